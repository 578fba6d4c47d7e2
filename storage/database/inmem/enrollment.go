package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/enrollment"
	"github.com/trezcool/darasa/core/query"
)

type enrollmentRepository struct {
	db *DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(db *DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

func (repo *enrollmentRepository) CreateCoupon(_ context.Context, c enrollment.Coupon) (enrollment.Coupon, error) {
	repo.db.coupon.Lock()
	defer repo.db.coupon.Unlock()

	if _, ok := repo.db.coupon.get(c.Code); ok {
		return enrollment.Coupon{}, enrollment.ErrCouponExists
	}
	repo.db.coupon.put(c.Code, c)
	return c, nil
}

func (repo *enrollmentRepository) QueryCoupons(_ context.Context, q query.Query) ([]enrollment.Coupon, int, error) {
	repo.db.coupon.RLock()
	defer repo.db.coupon.RUnlock()

	cc, count := query.Apply(repo.db.coupon.list(), q)
	return cc, count, nil
}

func (repo *enrollmentRepository) GetCoupon(_ context.Context, code string) (enrollment.Coupon, error) {
	repo.db.coupon.RLock()
	defer repo.db.coupon.RUnlock()

	if c, ok := repo.db.coupon.get(code); ok {
		return c, nil
	}
	return enrollment.Coupon{}, enrollment.ErrCouponNotFound
}

func (repo *enrollmentRepository) UpdateCoupon(_ context.Context, c enrollment.Coupon) (enrollment.Coupon, error) {
	repo.db.coupon.Lock()
	defer repo.db.coupon.Unlock()

	if _, ok := repo.db.coupon.get(c.Code); !ok {
		return enrollment.Coupon{}, enrollment.ErrCouponNotFound
	}
	repo.db.coupon.put(c.Code, c)
	return c, nil
}

func (repo *enrollmentRepository) DeleteCoupon(_ context.Context, code string) error {
	repo.db.coupon.Lock()
	defer repo.db.coupon.Unlock()

	if repo.db.coupon.remove(code) == 0 {
		return enrollment.ErrCouponNotFound
	}
	return nil
}

func (repo *enrollmentRepository) QueryEnrollments(_ context.Context, q query.Query) ([]enrollment.Enrollment, int, error) {
	repo.db.enrollment.RLock()
	defer repo.db.enrollment.RUnlock()

	ee, count := query.Apply(repo.db.enrollment.list(), q)
	return ee, count, nil
}

func (repo *enrollmentRepository) GetEnrollment(_ context.Context, id string) (enrollment.Enrollment, error) {
	repo.db.enrollment.RLock()
	defer repo.db.enrollment.RUnlock()

	if e, ok := repo.db.enrollment.get(id); ok {
		return e, nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) findLive(studentID, courseID string) (enrollment.Enrollment, bool) {
	for _, e := range repo.db.enrollment.list() {
		if e.StudentID == studentID && e.CourseID == courseID && e.IsLive() {
			return e, true
		}
	}
	return enrollment.Enrollment{}, false
}

func (repo *enrollmentRepository) FindLiveEnrollment(_ context.Context, studentID, courseID string) (enrollment.Enrollment, error) {
	repo.db.enrollment.RLock()
	defer repo.db.enrollment.RUnlock()

	if e, ok := repo.findLive(studentID, courseID); ok {
		return e, nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) Enroll(_ context.Context, e enrollment.Enrollment, capacity int) (enrollment.Enrollment, error) {
	repo.db.coupon.Lock()
	defer repo.db.coupon.Unlock()
	repo.db.enrollment.Lock()
	defer repo.db.enrollment.Unlock()

	if _, ok := repo.findLive(e.StudentID, e.CourseID); ok {
		return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
	}
	if capacity > 0 {
		var active int
		for _, other := range repo.db.enrollment.list() {
			if other.CourseID == e.CourseID && other.Status == enrollment.StatusActive {
				active++
			}
		}
		if active >= capacity {
			return enrollment.Enrollment{}, enrollment.ErrCourseFull
		}
	}

	if e.CouponCode != "" {
		c, ok := repo.db.coupon.get(e.CouponCode)
		if !ok || !c.Redeemable(core.NowFunc()) {
			return enrollment.Enrollment{}, enrollment.ErrInvalidCoupon
		}
		c.Redemptions++
		repo.db.coupon.put(c.Code, c)
	}

	e.ID = uuid.NewString()
	repo.db.enrollment.put(e.ID, e)
	return e, nil
}

func (repo *enrollmentRepository) UpdateEnrollment(_ context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	repo.db.enrollment.Lock()
	defer repo.db.enrollment.Unlock()

	if _, ok := repo.db.enrollment.get(e.ID); !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	repo.db.enrollment.put(e.ID, e)
	return e, nil
}

func (repo *enrollmentRepository) Revenue(_ context.Context) (map[string]int64, error) {
	repo.db.enrollment.RLock()
	defer repo.db.enrollment.RUnlock()

	rev := make(map[string]int64)
	for _, e := range repo.db.enrollment.list() {
		if e.PaymentStatus == enrollment.PaymentPaid {
			rev[e.Currency] += e.AmountPaid
		}
	}
	return rev, nil
}
