package enrollment

import (
	"context"
	"fmt"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/query"
	"github.com/trezcool/darasa/core/user"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("enrollment not found")
	ErrCouponNotFound  = core.NewNotFoundError("coupon not found")
	ErrCouponExists    = errors.New("a coupon with this code already exists")
	ErrAlreadyEnrolled = core.NewConflictError("already enrolled in this course")
	ErrCourseFull      = core.NewConflictError("course is full")
	ErrNotActive       = core.NewConflictError("enrollment is not active")
	ErrNotRefundable   = core.NewConflictError("enrollment has no payment to refund")
	ErrPaymentDeclined = core.NewPaymentError("payment declined")
	ErrNotApproved     = core.NewPermissionError("account pending approval")
	ErrInvalidCoupon   = core.NewValidationError(
		errors.New("invalid coupon"),
		core.FieldError{Field: "coupon_code", Error: "invalid, expired or exhausted coupon"},
	)
)

type (
	// PaymentGateway charges students; implementations return ErrPaymentDeclined on declines.
	PaymentGateway interface {
		Charge(ctx context.Context, req ChargeRequest) (Receipt, error)
		Refund(ctx context.Context, chargeID string) error
	}

	Repository interface {
		CreateCoupon(ctx context.Context, c Coupon) (Coupon, error)
		QueryCoupons(ctx context.Context, q query.Query) ([]Coupon, int, error)
		GetCoupon(ctx context.Context, code string) (Coupon, error)
		UpdateCoupon(ctx context.Context, c Coupon) (Coupon, error)
		DeleteCoupon(ctx context.Context, code string) error

		QueryEnrollments(ctx context.Context, q query.Query) ([]Enrollment, int, error)
		GetEnrollment(ctx context.Context, id string) (Enrollment, error)
		// FindLiveEnrollment returns the active or completed enrollment of a student in a course.
		FindLiveEnrollment(ctx context.Context, studentID, courseID string) (Enrollment, error)
		// Enroll atomically checks for a live enrollment and the capacity (0: unlimited),
		// redeems e.CouponCode and inserts e.
		Enroll(ctx context.Context, e Enrollment, capacity int) (Enrollment, error)
		UpdateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
		// Revenue sums the amounts of paid enrollments by currency.
		Revenue(ctx context.Context) (map[string]int64, error)
	}

	Service interface {
		Quote(ctx context.Context, qr QuoteRequest) (Quote, error)
		Checkout(ctx context.Context, student user.User, co Checkout) (Enrollment, error)

		ListMine(ctx context.Context, student user.User, q query.Query) (query.Page[Enrollment], error)
		ListForCourse(ctx context.Context, actor user.User, courseID string, q query.Query) (query.Page[Enrollment], error)
		// Count counts the enrollments matching q, without access checks.
		Count(ctx context.Context, q query.Query) (int, error)
		Get(ctx context.Context, actor user.User, id string) (Enrollment, error)
		CompleteModule(ctx context.Context, student user.User, id, moduleID string) (Enrollment, error)
		Cancel(ctx context.Context, student user.User, id string) (Enrollment, error)
		Refund(ctx context.Context, admin user.User, id string) (Enrollment, error)
		IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error)
		// Access returns the course if actor manages it or is enrolled in it,
		// and whether actor manages it.
		Access(ctx context.Context, actor user.User, courseID string) (course.Course, bool, error)
		// CourseIDs lists the courses a student is actively or fully enrolled in.
		CourseIDs(ctx context.Context, studentID string) ([]string, error)
		// StudentIDs lists the students actively or fully enrolled in a course.
		StudentIDs(ctx context.Context, courseID string) ([]string, error)
		Revenue(ctx context.Context) (map[string]int64, error)

		CreateCoupon(ctx context.Context, nc NewCoupon) (Coupon, error)
		ListCoupons(ctx context.Context, q query.Query) (query.Page[Coupon], error)
		GetCoupon(ctx context.Context, code string) (Coupon, error)
		UpdateCoupon(ctx context.Context, code string, uc UpdateCoupon) (Coupon, error)
		DeleteCoupon(ctx context.Context, code string) error
	}

	service struct {
		repo      Repository
		courseSvc course.Service
		notifSvc  notification.Service
		mailSvc   core.EmailService
		gateway   PaymentGateway
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	courseSvc course.Service,
	notifSvc notification.Service,
	mailSvc core.EmailService,
	gateway PaymentGateway,
) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(courseSvc, "courseSvc"),
		vala.IsNotNil(notifSvc, "notifSvc"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(gateway, "gateway"),
	).CheckAndPanic()

	return &service{
		repo:      repo,
		courseSvc: courseSvc,
		notifSvc:  notifSvc,
		mailSvc:   mailSvc,
		gateway:   gateway,
	}
}

func (svc *service) Quote(ctx context.Context, qr QuoteRequest) (Quote, error) {
	c, err := svc.courseSvc.GetPublished(ctx, qr.CourseID)
	if err != nil {
		return Quote{}, err
	}
	return svc.quote(ctx, c, qr.CouponCode)
}

func (svc *service) quote(ctx context.Context, c course.Course, code string) (Quote, error) {
	q := Quote{CourseID: c.ID, Subtotal: c.Price, Total: c.Price, Currency: c.Currency}
	if code == "" {
		return q, nil
	}

	cpn, err := svc.repo.GetCoupon(ctx, code)
	if err != nil {
		if core.IsNotFound(err) {
			return Quote{}, ErrInvalidCoupon
		}
		return Quote{}, errors.Wrap(err, "getting coupon")
	}
	if !cpn.Redeemable(core.NowFunc()) {
		return Quote{}, ErrInvalidCoupon
	}

	q.Coupon = &cpn
	q.Discount = cpn.Discount(q.Subtotal)
	q.Total = q.Subtotal - q.Discount
	return q, nil
}

func (svc *service) Checkout(ctx context.Context, student user.User, co Checkout) (Enrollment, error) {
	if !student.IsStudent() {
		return Enrollment{}, core.ErrPermissionDenied
	}
	if !student.IsApproved() {
		return Enrollment{}, ErrNotApproved
	}

	c, err := svc.courseSvc.GetPublished(ctx, co.CourseID)
	if err != nil {
		return Enrollment{}, err
	}

	if _, err := svc.repo.FindLiveEnrollment(ctx, student.ID, c.ID); err == nil {
		return Enrollment{}, ErrAlreadyEnrolled
	} else if !core.IsNotFound(err) {
		return Enrollment{}, errors.Wrap(err, "finding enrollment")
	}

	if c.Capacity > 0 {
		active, err := svc.Count(ctx, query.New(Schema).
			Where("course_id", query.Eq, c.ID).
			Where("status", query.Eq, StatusActive))
		if err != nil {
			return Enrollment{}, err
		}
		if active >= c.Capacity {
			return Enrollment{}, ErrCourseFull
		}
	}

	qt, err := svc.quote(ctx, c, co.CouponCode)
	if err != nil {
		return Enrollment{}, err
	}

	now := core.NowFunc()
	e := Enrollment{
		StudentID:        student.ID,
		CourseID:         c.ID,
		Status:           StatusActive,
		PaymentStatus:    PaymentFree,
		AmountPaid:       qt.Total,
		Currency:         qt.Currency,
		CouponCode:       co.CouponCode,
		CompletedModules: []string{},
		EnrolledAt:       now,
		UpdatedAt:        now,
	}

	if qt.Total > 0 {
		receipt, err := svc.gateway.Charge(ctx, ChargeRequest{
			Amount:      qt.Total,
			Currency:    qt.Currency,
			Description: c.Title,
			Method:      co.PaymentMethod,
			Metadata:    map[string]string{"course_id": c.ID, "student_id": student.ID},
		})
		if err != nil {
			if errors.Cause(err) == ErrPaymentDeclined {
				return Enrollment{}, ErrPaymentDeclined
			}
			return Enrollment{}, errors.Wrap(err, "charging student")
		}
		e.PaymentStatus = PaymentPaid
		e.ChargeID = receipt.ID
	}

	created, err := svc.repo.Enroll(ctx, e, c.Capacity)
	if err != nil {
		if e.ChargeID != "" {
			if rerr := svc.gateway.Refund(ctx, e.ChargeID); rerr != nil {
				return Enrollment{}, errors.Wrapf(rerr, "refunding charge %s after failed enrollment: %v", e.ChargeID, err)
			}
		}
		return Enrollment{}, errors.Wrap(err, "enrolling student")
	}
	e = created

	err = svc.notifSvc.Notify(ctx, []string{student.ID}, notification.NewNotification{
		Kind:  notification.KindEnrollment,
		Title: "Enrolled in " + c.Title,
		Body:  "Your enrollment is confirmed. Happy learning!",
		Link:  "/courses/" + c.ID,
	})
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "notifying student")
	}

	svc.mailSvc.SendMessages(core.NewEmailMessage(
		"Enrollment confirmed: "+c.Title,
		"enrollment_confirmed",
		map[string]interface{}{
			"Name":        student.Name,
			"CourseID":    c.ID,
			"CourseTitle": c.Title,
			"Subtotal":    FormatAmount(qt.Subtotal, qt.Currency),
			"Discount":    FormatAmount(qt.Discount, qt.Currency),
			"Total":       FormatAmount(qt.Total, qt.Currency),
			"CouponCode":  e.CouponCode,
			"ChargeID":    e.ChargeID,
		},
		student.MailAddress(),
	))
	return e, nil
}

func (svc *service) ListMine(ctx context.Context, student user.User, q query.Query) (query.Page[Enrollment], error) {
	return svc.query(ctx, q.Where("student_id", query.Eq, student.ID))
}

func (svc *service) ListForCourse(ctx context.Context, actor user.User, courseID string, q query.Query) (query.Page[Enrollment], error) {
	if _, err := svc.courseSvc.GetManaged(ctx, actor, courseID); err != nil {
		return query.Page[Enrollment]{}, err
	}
	return svc.query(ctx, q.Where("course_id", query.Eq, courseID))
}

func (svc *service) query(ctx context.Context, q query.Query) (query.Page[Enrollment], error) {
	ee, count, err := svc.repo.QueryEnrollments(ctx, q)
	if err != nil {
		return query.Page[Enrollment]{}, errors.Wrap(err, "querying enrollments")
	}
	return query.NewPage(ee, count, q), nil
}

func (svc *service) Count(ctx context.Context, q query.Query) (int, error) {
	q.Page, q.Limit = 1, 1
	_, count, err := svc.repo.QueryEnrollments(ctx, q)
	return count, errors.Wrap(err, "counting enrollments")
}

// Get returns an enrollment to its student, the course owner or an admin.
func (svc *service) Get(ctx context.Context, actor user.User, id string) (Enrollment, error) {
	e, err := svc.repo.GetEnrollment(ctx, id)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	if e.StudentID == actor.ID || actor.IsAdmin() {
		return e, nil
	}
	if _, err := svc.courseSvc.GetManaged(ctx, actor, e.CourseID); err != nil {
		if core.IsNotFound(err) {
			return Enrollment{}, core.ErrPermissionDenied
		}
		return Enrollment{}, err
	}
	return e, nil
}

func (svc *service) getOwn(ctx context.Context, student user.User, id string) (Enrollment, error) {
	e, err := svc.repo.GetEnrollment(ctx, id)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	if e.StudentID != student.ID {
		return Enrollment{}, core.ErrPermissionDenied
	}
	return e, nil
}

// CompleteModule marks a module done and recomputes progress; completing it twice is a no-op.
func (svc *service) CompleteModule(ctx context.Context, student user.User, id, moduleID string) (Enrollment, error) {
	e, err := svc.getOwn(ctx, student, id)
	if err != nil {
		return Enrollment{}, err
	}
	if !e.IsLive() {
		return Enrollment{}, ErrNotActive
	}
	if _, err := svc.courseSvc.GetModule(ctx, e.CourseID, moduleID); err != nil {
		return Enrollment{}, err
	}
	if e.hasCompleted(moduleID) {
		return e, nil
	}

	moduleIDs, err := svc.courseSvc.ModuleIDs(ctx, e.CourseID)
	if err != nil {
		return Enrollment{}, err
	}

	now := core.NowFunc()
	e.CompletedModules = append(e.CompletedModules, moduleID)
	e.Progress = progress(e.CompletedModules, moduleIDs)
	if e.Progress >= 100 && e.Status == StatusActive {
		e.Status = StatusCompleted
		e.CompletedAt = &now
	}
	e.UpdatedAt = now

	e, err = svc.repo.UpdateEnrollment(ctx, e)
	return e, errors.Wrap(err, "updating enrollment")
}

func (svc *service) Cancel(ctx context.Context, student user.User, id string) (Enrollment, error) {
	e, err := svc.getOwn(ctx, student, id)
	if err != nil {
		return Enrollment{}, err
	}
	if e.Status != StatusActive {
		return Enrollment{}, ErrNotActive
	}

	e.Status = StatusCancelled
	e.UpdatedAt = core.NowFunc()
	e, err = svc.repo.UpdateEnrollment(ctx, e)
	return e, errors.Wrap(err, "updating enrollment")
}

func (svc *service) Refund(ctx context.Context, admin user.User, id string) (Enrollment, error) {
	if !admin.IsAdmin() {
		return Enrollment{}, core.ErrPermissionDenied
	}
	e, err := svc.repo.GetEnrollment(ctx, id)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	if e.PaymentStatus != PaymentPaid {
		return Enrollment{}, ErrNotRefundable
	}

	// the coupon redemption stays consumed, so refunds cannot recycle a capped coupon
	if err := svc.gateway.Refund(ctx, e.ChargeID); err != nil {
		return Enrollment{}, errors.Wrap(err, "refunding charge")
	}
	e.PaymentStatus = PaymentRefunded
	e.Status = StatusCancelled
	e.UpdatedAt = core.NowFunc()

	e, err = svc.repo.UpdateEnrollment(ctx, e)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "updating enrollment")
	}

	err = svc.notifSvc.Notify(ctx, []string{e.StudentID}, notification.NewNotification{
		Kind:  notification.KindEnrollment,
		Title: "Enrollment refunded",
		Body:  "Your payment of " + FormatAmount(e.AmountPaid, e.Currency) + " was refunded.",
		Link:  "/enrollments/" + e.ID,
	})
	return e, errors.Wrap(err, "notifying student")
}

func (svc *service) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	if studentID == "" {
		return false, nil
	}
	_, err := svc.repo.FindLiveEnrollment(ctx, studentID, courseID)
	if err != nil {
		if core.IsNotFound(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "finding enrollment")
	}
	return true, nil
}

func (svc *service) Access(ctx context.Context, actor user.User, courseID string) (course.Course, bool, error) {
	c, err := svc.courseSvc.GetByID(ctx, courseID)
	if err != nil {
		return course.Course{}, false, err
	}
	if c.CanManage(actor) {
		return c, true, nil
	}
	enrolled, err := svc.IsEnrolled(ctx, actor.ID, courseID)
	if err != nil {
		return course.Course{}, false, err
	}
	if !enrolled {
		if !c.IsPublished() {
			return course.Course{}, false, course.ErrNotFound
		}
		return course.Course{}, false, core.ErrPermissionDenied
	}
	return c, false, nil
}

func (svc *service) live(ctx context.Context, field, id string) ([]Enrollment, error) {
	q := query.New(Schema).
		Where(field, query.Eq, id).
		Where("status", query.In, []interface{}{StatusActive, StatusCompleted})
	ee, _, err := svc.repo.QueryEnrollments(ctx, q)
	return ee, errors.Wrap(err, "querying enrollments")
}

func (svc *service) CourseIDs(ctx context.Context, studentID string) ([]string, error) {
	ee, err := svc.live(ctx, "student_id", studentID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(ee))
	for _, e := range ee {
		ids = append(ids, e.CourseID)
	}
	return ids, nil
}

func (svc *service) StudentIDs(ctx context.Context, courseID string) ([]string, error) {
	ee, err := svc.live(ctx, "course_id", courseID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(ee))
	for _, e := range ee {
		ids = append(ids, e.StudentID)
	}
	return ids, nil
}

func (svc *service) Revenue(ctx context.Context) (map[string]int64, error) {
	rev, err := svc.repo.Revenue(ctx)
	return rev, errors.Wrap(err, "computing revenue")
}

func (svc *service) CreateCoupon(ctx context.Context, nc NewCoupon) (Coupon, error) {
	c := Coupon{
		Code:           nc.Code,
		Description:    nc.Description,
		PercentOff:     nc.PercentOff,
		AmountOff:      nc.AmountOff,
		MaxRedemptions: nc.MaxRedemptions,
		ExpiresAt:      nc.ExpiresAt,
		IsActive:       nc.IsActive == nil || *nc.IsActive,
		CreatedAt:      core.NowFunc(),
	}

	c, err := svc.repo.CreateCoupon(ctx, c)
	if err != nil {
		if errors.Cause(err) == ErrCouponExists {
			return Coupon{}, core.NewFieldValidationError("code", ErrCouponExists.Error())
		}
		return Coupon{}, errors.Wrap(err, "creating coupon")
	}
	return c, nil
}

func (svc *service) ListCoupons(ctx context.Context, q query.Query) (query.Page[Coupon], error) {
	cc, count, err := svc.repo.QueryCoupons(ctx, q)
	if err != nil {
		return query.Page[Coupon]{}, errors.Wrap(err, "querying coupons")
	}
	return query.NewPage(cc, count, q), nil
}

func (svc *service) GetCoupon(ctx context.Context, code string) (Coupon, error) {
	c, err := svc.repo.GetCoupon(ctx, normalizeCode(code))
	return c, errors.Wrap(err, "getting coupon")
}

func (svc *service) UpdateCoupon(ctx context.Context, code string, uc UpdateCoupon) (Coupon, error) {
	c, err := svc.GetCoupon(ctx, code)
	if err != nil {
		return Coupon{}, err
	}
	if c, err = uc.apply(c); err != nil {
		return Coupon{}, err
	}

	c, err = svc.repo.UpdateCoupon(ctx, c)
	return c, errors.Wrap(err, "updating coupon")
}

func (svc *service) DeleteCoupon(ctx context.Context, code string) error {
	if _, err := svc.GetCoupon(ctx, code); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteCoupon(ctx, normalizeCode(code)), "deleting coupon")
}

// progress is the share of existing modules completed, rounded down.
func progress(completed, moduleIDs []string) int {
	if len(moduleIDs) == 0 {
		return 0
	}
	done := make(map[string]bool, len(completed))
	for _, id := range completed {
		done[id] = true
	}
	var n int
	for _, id := range moduleIDs {
		if done[id] {
			n++
		}
	}
	return n * 100 / len(moduleIDs)
}

// FormatAmount renders minor units, e.g. 4999 USD as "USD 49.99".
func FormatAmount(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign, amount = "-", -amount
	}
	return fmt.Sprintf("%s %s%d.%02d", currency, sign, amount/100, amount%100)
}
