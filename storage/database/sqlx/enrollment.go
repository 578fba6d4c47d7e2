package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/enrollment"
	"github.com/trezcool/darasa/core/query"
)

const (
	couponColumns     = "code, description, percent_off, amount_off, max_redemptions, redemptions, expires_at, is_active, created_at"
	enrollmentColumns = `id, student_id, course_id, status, payment_status, amount_paid, currency, coupon_code,
	charge_id, progress, completed_modules, enrolled_at, completed_at, updated_at`
)

type couponRow struct {
	Code           string    `db:"code"`
	Description    string    `db:"description"`
	PercentOff     int       `db:"percent_off"`
	AmountOff      int64     `db:"amount_off"`
	MaxRedemptions int       `db:"max_redemptions"`
	Redemptions    int       `db:"redemptions"`
	ExpiresAt      null.Time `db:"expires_at"`
	IsActive       bool      `db:"is_active"`
	CreatedAt      time.Time `db:"created_at"`
}

func toCouponRow(c enrollment.Coupon) couponRow {
	return couponRow{
		Code:           c.Code,
		Description:    c.Description,
		PercentOff:     c.PercentOff,
		AmountOff:      c.AmountOff,
		MaxRedemptions: c.MaxRedemptions,
		Redemptions:    c.Redemptions,
		ExpiresAt:      null.TimeFromPtr(c.ExpiresAt),
		IsActive:       c.IsActive,
		CreatedAt:      c.CreatedAt.UTC(),
	}
}

func (r couponRow) toCoupon() enrollment.Coupon {
	return enrollment.Coupon{
		Code:           r.Code,
		Description:    r.Description,
		PercentOff:     r.PercentOff,
		AmountOff:      r.AmountOff,
		MaxRedemptions: r.MaxRedemptions,
		Redemptions:    r.Redemptions,
		ExpiresAt:      r.ExpiresAt.Ptr(),
		IsActive:       r.IsActive,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

type enrollmentRow struct {
	ID               string         `db:"id"`
	StudentID        string         `db:"student_id"`
	CourseID         string         `db:"course_id"`
	Status           string         `db:"status"`
	PaymentStatus    string         `db:"payment_status"`
	AmountPaid       int64          `db:"amount_paid"`
	Currency         string         `db:"currency"`
	CouponCode       string         `db:"coupon_code"`
	ChargeID         string         `db:"charge_id"`
	Progress         int            `db:"progress"`
	CompletedModules pq.StringArray `db:"completed_modules"`
	EnrolledAt       time.Time      `db:"enrolled_at"`
	CompletedAt      null.Time      `db:"completed_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func toEnrollmentRow(e enrollment.Enrollment) enrollmentRow {
	completed := e.CompletedModules
	if completed == nil {
		completed = []string{}
	}
	return enrollmentRow{
		ID:               e.ID,
		StudentID:        e.StudentID,
		CourseID:         e.CourseID,
		Status:           e.Status,
		PaymentStatus:    e.PaymentStatus,
		AmountPaid:       e.AmountPaid,
		Currency:         e.Currency,
		CouponCode:       e.CouponCode,
		ChargeID:         e.ChargeID,
		Progress:         e.Progress,
		CompletedModules: pq.StringArray(completed),
		EnrolledAt:       e.EnrolledAt.UTC(),
		CompletedAt:      null.TimeFromPtr(e.CompletedAt),
		UpdatedAt:        e.UpdatedAt.UTC(),
	}
}

func (r enrollmentRow) toEnrollment() enrollment.Enrollment {
	return enrollment.Enrollment{
		ID:               r.ID,
		StudentID:        r.StudentID,
		CourseID:         r.CourseID,
		Status:           r.Status,
		PaymentStatus:    r.PaymentStatus,
		AmountPaid:       r.AmountPaid,
		Currency:         r.Currency,
		CouponCode:       r.CouponCode,
		ChargeID:         r.ChargeID,
		Progress:         r.Progress,
		CompletedModules: []string(r.CompletedModules),
		EnrolledAt:       r.EnrolledAt.UTC(),
		CompletedAt:      r.CompletedAt.Ptr(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

type enrollmentRepository struct {
	db *sqlx.DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(db *sqlx.DB) enrollment.Repository {
	return &enrollmentRepository{db: db}
}

func (repo *enrollmentRepository) CreateCoupon(ctx context.Context, c enrollment.Coupon) (enrollment.Coupon, error) {
	stmt := `INSERT INTO coupon (` + couponColumns + `) VALUES (
		:code, :description, :percent_off, :amount_off, :max_redemptions, :redemptions,
		:expires_at, :is_active, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, stmt, toCouponRow(c)); err != nil {
		if isUniqueViolation(err) {
			return enrollment.Coupon{}, enrollment.ErrCouponExists
		}
		return enrollment.Coupon{}, errors.Wrap(err, "inserting coupon")
	}
	return c, nil
}

func (repo *enrollmentRepository) QueryCoupons(ctx context.Context, q query.Query) ([]enrollment.Coupon, int, error) {
	var rows []couponRow
	count, err := selectPage(ctx, repo.db, &rows, "coupon", couponColumns, q)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying coupons")
	}
	cc := make([]enrollment.Coupon, 0, len(rows))
	for _, r := range rows {
		cc = append(cc, r.toCoupon())
	}
	return cc, count, nil
}

func (repo *enrollmentRepository) GetCoupon(ctx context.Context, code string) (enrollment.Coupon, error) {
	var r couponRow
	if err := repo.db.GetContext(ctx, &r, `SELECT `+couponColumns+` FROM coupon WHERE code = $1`, code); err != nil {
		return enrollment.Coupon{}, trapNoRowsErr(err, enrollment.ErrCouponNotFound, "getting coupon")
	}
	return r.toCoupon(), nil
}

func (repo *enrollmentRepository) UpdateCoupon(ctx context.Context, c enrollment.Coupon) (enrollment.Coupon, error) {
	stmt := `UPDATE coupon SET
		description = :description, percent_off = :percent_off, amount_off = :amount_off,
		max_redemptions = :max_redemptions, expires_at = :expires_at, is_active = :is_active
		WHERE code = :code`
	res, err := repo.db.NamedExecContext(ctx, stmt, toCouponRow(c))
	if err != nil {
		return enrollment.Coupon{}, errors.Wrap(err, "updating coupon")
	}
	return c, checkAffected(res, enrollment.ErrCouponNotFound)
}

func (repo *enrollmentRepository) DeleteCoupon(ctx context.Context, code string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM coupon WHERE code = $1`, code)
	if err != nil {
		return errors.Wrap(err, "deleting coupon")
	}
	return checkAffected(res, enrollment.ErrCouponNotFound)
}

func (repo *enrollmentRepository) QueryEnrollments(ctx context.Context, q query.Query) ([]enrollment.Enrollment, int, error) {
	var rows []enrollmentRow
	count, err := selectPage(ctx, repo.db, &rows, "enrollment", enrollmentColumns, q)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying enrollments")
	}
	ee := make([]enrollment.Enrollment, 0, len(rows))
	for _, r := range rows {
		ee = append(ee, r.toEnrollment())
	}
	return ee, count, nil
}

func (repo *enrollmentRepository) GetEnrollment(ctx context.Context, id string) (enrollment.Enrollment, error) {
	if !validID(id) {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	var r enrollmentRow
	if err := repo.db.GetContext(ctx, &r, `SELECT `+enrollmentColumns+` FROM enrollment WHERE id = $1`, id); err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.ErrNotFound, "getting enrollment")
	}
	return r.toEnrollment(), nil
}

func (repo *enrollmentRepository) FindLiveEnrollment(ctx context.Context, studentID, courseID string) (enrollment.Enrollment, error) {
	if !validID(studentID) || !validID(courseID) {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	var r enrollmentRow
	stmt := `SELECT ` + enrollmentColumns + ` FROM enrollment
		WHERE student_id = $1 AND course_id = $2 AND status IN ($3, $4) LIMIT 1`
	err := repo.db.GetContext(ctx, &r, stmt, studentID, courseID, enrollment.StatusActive, enrollment.StatusCompleted)
	if err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.ErrNotFound, "finding live enrollment")
	}
	return r.toEnrollment(), nil
}

// Enroll locks the course row so concurrent checkouts see each other's seats.
func (repo *enrollmentRepository) Enroll(ctx context.Context, e enrollment.Enrollment, capacity int) (enrollment.Enrollment, error) {
	e.ID = uuid.NewString()
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var locked string
		if err := tx.GetContext(ctx, &locked, `SELECT id FROM course WHERE id = $1 FOR UPDATE`, e.CourseID); err != nil {
			return errors.Wrap(err, "locking course")
		}

		var live int
		stmt := `SELECT COUNT(*) FROM enrollment WHERE student_id = $1 AND course_id = $2 AND status IN ($3, $4)`
		if err := tx.GetContext(ctx, &live, stmt, e.StudentID, e.CourseID, enrollment.StatusActive, enrollment.StatusCompleted); err != nil {
			return errors.Wrap(err, "checking enrollment")
		}
		if live > 0 {
			return enrollment.ErrAlreadyEnrolled
		}

		if capacity > 0 {
			var active int
			stmt := `SELECT COUNT(*) FROM enrollment WHERE course_id = $1 AND status = $2`
			if err := tx.GetContext(ctx, &active, stmt, e.CourseID, enrollment.StatusActive); err != nil {
				return errors.Wrap(err, "counting seats")
			}
			if active >= capacity {
				return enrollment.ErrCourseFull
			}
		}

		if e.CouponCode != "" {
			stmt := `UPDATE coupon SET redemptions = redemptions + 1
				WHERE code = $1 AND is_active AND (expires_at IS NULL OR expires_at > $2)
				AND (max_redemptions = 0 OR redemptions < max_redemptions)`
			res, err := tx.ExecContext(ctx, stmt, e.CouponCode, core.NowFunc().UTC())
			if err != nil {
				return errors.Wrap(err, "redeeming coupon")
			}
			if err := checkAffected(res, enrollment.ErrInvalidCoupon); err != nil {
				return err
			}
		}

		stmt = `INSERT INTO enrollment (` + enrollmentColumns + `) VALUES (
			:id, :student_id, :course_id, :status, :payment_status, :amount_paid, :currency, :coupon_code,
			:charge_id, :progress, :completed_modules, :enrolled_at, :completed_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, stmt, toEnrollmentRow(e)); err != nil {
			if isUniqueViolation(err) {
				return enrollment.ErrAlreadyEnrolled
			}
			return errors.Wrap(err, "inserting enrollment")
		}
		return nil
	})
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	return e, nil
}

func (repo *enrollmentRepository) UpdateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	stmt := `UPDATE enrollment SET
		status = :status, payment_status = :payment_status, amount_paid = :amount_paid,
		charge_id = :charge_id, progress = :progress, completed_modules = :completed_modules,
		completed_at = :completed_at, updated_at = :updated_at
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, stmt, toEnrollmentRow(e))
	if err != nil {
		if isUniqueViolation(err) {
			return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	return e, checkAffected(res, enrollment.ErrNotFound)
}

func (repo *enrollmentRepository) Revenue(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Currency string `db:"currency"`
		Total    int64  `db:"total"`
	}
	stmt := `SELECT currency, SUM(amount_paid) AS total FROM enrollment WHERE payment_status = $1 GROUP BY currency`
	if err := repo.db.SelectContext(ctx, &rows, stmt, enrollment.PaymentPaid); err != nil {
		return nil, errors.Wrap(err, "summing revenue")
	}
	rev := make(map[string]int64, len(rows))
	for _, r := range rows {
		rev[r.Currency] = r.Total
	}
	return rev, nil
}
