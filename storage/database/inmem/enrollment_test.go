package inmemdb_test

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core/enrollment"
	"github.com/trezcool/darasa/storage/database/inmem"
)

// enrollConcurrently runs n enrollments of distinct students at once and returns the errors.
func enrollConcurrently(repo enrollment.Repository, n int, courseID, coupon string, capacity int) []error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Enroll(context.Background(), enrollment.Enrollment{
				StudentID:  "student-" + strconv.Itoa(i),
				CourseID:   courseID,
				Status:     enrollment.StatusActive,
				CouponCode: coupon,
			}, capacity)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	return errs
}

func count(errs []error, target error) int {
	var n int
	for _, err := range errs {
		if err == target {
			n++
		}
	}
	return n
}

func TestEnrollmentRepository_Enroll_capacity(t *testing.T) {
	repo := inmemdb.NewEnrollmentRepository(inmemdb.Open())
	courseID := uuid.NewString()

	errs := enrollConcurrently(repo, 20, courseID, "", 5)
	assert.Equal(t, 5, count(errs, nil))
	assert.Equal(t, 15, count(errs, enrollment.ErrCourseFull))
}

func TestEnrollmentRepository_Enroll_coupon(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewEnrollmentRepository(inmemdb.Open())

	_, err := repo.CreateCoupon(ctx, enrollment.Coupon{Code: "FEW", PercentOff: 10, MaxRedemptions: 3, IsActive: true})
	require.NoError(t, err)

	errs := enrollConcurrently(repo, 10, uuid.NewString(), "FEW", 0)
	assert.Equal(t, 3, count(errs, nil))
	assert.Equal(t, 7, count(errs, enrollment.ErrInvalidCoupon))

	c, err := repo.GetCoupon(ctx, "FEW")
	require.NoError(t, err)
	assert.Equal(t, 3, c.Redemptions)
}

func TestEnrollmentRepository_Enroll_once(t *testing.T) {
	ctx := context.Background()
	repo := inmemdb.NewEnrollmentRepository(inmemdb.Open())
	e := enrollment.Enrollment{StudentID: "s", CourseID: "c", Status: enrollment.StatusActive}

	first, err := repo.Enroll(ctx, e, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	_, err = repo.Enroll(ctx, e, 0)
	assert.Equal(t, enrollment.ErrAlreadyEnrolled, err)

	first.Status = enrollment.StatusCancelled
	_, err = repo.UpdateEnrollment(ctx, first)
	require.NoError(t, err)

	_, err = repo.Enroll(ctx, e, 0)
	assert.NoError(t, err)
}
