package enrollment

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/query"
)

// Statuses
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Payment statuses
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFree     = "free"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

var (
	Schema = &query.Schema{
		Fields: map[string]query.Field{
			"id":             {Column: "id", Kind: query.UUID},
			"student_id":     {Column: "student_id", Kind: query.UUID},
			"course_id":      {Column: "course_id", Kind: query.UUID},
			"status":         {Column: "status", Kind: query.String},
			"payment_status": {Column: "payment_status", Kind: query.String},
			"coupon_code":    {Column: "coupon_code", Kind: query.String},
			"progress":       {Column: "progress", Kind: query.Int},
			"enrolled_at":    {Column: "enrolled_at", Kind: query.Time},
			"completed_at":   {Column: "completed_at", Kind: query.Time},
		},
		DefaultOrdering: []core.DBOrdering{{Field: "enrolled_at"}},
	}

	CouponSchema = &query.Schema{
		Fields: map[string]query.Field{
			"code":        {Column: "code", Kind: query.String, Search: true},
			"description": {Column: "description", Kind: query.String, Search: true},
			"is_active":   {Column: "is_active", Kind: query.Bool},
			"expires_at":  {Column: "expires_at", Kind: query.Time},
			"created_at":  {Column: "created_at", Kind: query.Time},
		},
		DefaultOrdering: []core.DBOrdering{{Field: "created_at"}},
	}
)

type Enrollment struct {
	ID               string     `json:"id"`
	StudentID        string     `json:"student_id"`
	CourseID         string     `json:"course_id"`
	Status           string     `json:"status"`
	PaymentStatus    string     `json:"payment_status"`
	AmountPaid       int64      `json:"amount_paid"`
	Currency         string     `json:"currency"`
	CouponCode       string     `json:"coupon_code"`
	ChargeID         string     `json:"charge_id"`
	Progress         int        `json:"progress"` // 0..100
	CompletedModules []string   `json:"completed_modules"`
	EnrolledAt       time.Time  `json:"enrolled_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsLive reports whether the enrollment grants access to the course.
func (e Enrollment) IsLive() bool {
	return e.Status == StatusActive || e.Status == StatusCompleted
}

func (e Enrollment) hasCompleted(moduleID string) bool {
	for _, id := range e.CompletedModules {
		if id == moduleID {
			return true
		}
	}
	return false
}

func (e Enrollment) QueryValue(field string) interface{} {
	switch field {
	case "id":
		return e.ID
	case "student_id":
		return e.StudentID
	case "course_id":
		return e.CourseID
	case "status":
		return e.Status
	case "payment_status":
		return e.PaymentStatus
	case "coupon_code":
		return e.CouponCode
	case "progress":
		return e.Progress
	case "enrolled_at":
		return e.EnrolledAt
	case "completed_at":
		return e.CompletedAt
	}
	return nil
}

type Coupon struct {
	Code           string     `json:"code"`
	Description    string     `json:"description"`
	PercentOff     int        `json:"percent_off"`
	AmountOff      int64      `json:"amount_off"`
	MaxRedemptions int        `json:"max_redemptions"` // 0: unlimited
	Redemptions    int        `json:"redemptions"`
	ExpiresAt      *time.Time `json:"expires_at"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Redeemable reports whether the coupon can be applied at `now`.
func (c Coupon) Redeemable(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return false
	}
	return c.MaxRedemptions == 0 || c.Redemptions < c.MaxRedemptions
}

// Discount returns the amount taken off subtotal; never more than subtotal.
func (c Coupon) Discount(subtotal int64) int64 {
	var off int64
	if c.PercentOff > 0 {
		off = subtotal * int64(c.PercentOff) / 100
	} else {
		off = c.AmountOff
	}
	if off > subtotal {
		off = subtotal
	}
	return off
}

func (c Coupon) QueryValue(field string) interface{} {
	switch field {
	case "code":
		return c.Code
	case "description":
		return c.Description
	case "is_active":
		return c.IsActive
	case "expires_at":
		return c.ExpiresAt
	case "created_at":
		return c.CreatedAt
	}
	return nil
}

// Quote is the price a student would pay for a course.
type Quote struct {
	CourseID string  `json:"course_id"`
	Subtotal int64   `json:"subtotal"`
	Discount int64   `json:"discount"`
	Total    int64   `json:"total"`
	Currency string  `json:"currency"`
	Coupon   *Coupon `json:"coupon"`
}

type PaymentMethod struct {
	Token      string `json:"token"`
	CardNumber string `json:"card_number"`
}

type ChargeRequest struct {
	Amount      int64
	Currency    string
	Description string
	Method      PaymentMethod
	Metadata    map[string]string
}

type Receipt struct {
	ID        string    `json:"id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

type QuoteRequest struct {
	CourseID   string `json:"course_id" validate:"required"`
	CouponCode string `json:"coupon_code"`
}

func (qr *QuoteRequest) Validate(validate *validator.Validate) error {
	qr.CourseID = core.CleanString(qr.CourseID)
	qr.CouponCode = normalizeCode(qr.CouponCode)
	return validate.Struct(qr)
}

type Checkout struct {
	CourseID      string        `json:"course_id" validate:"required"`
	CouponCode    string        `json:"coupon_code"`
	PaymentMethod PaymentMethod `json:"payment_method"`
}

func (co *Checkout) Validate(validate *validator.Validate) error {
	co.CourseID = core.CleanString(co.CourseID)
	co.CouponCode = normalizeCode(co.CouponCode)
	co.PaymentMethod.Token = core.CleanString(co.PaymentMethod.Token)
	co.PaymentMethod.CardNumber = strings.ReplaceAll(core.CleanString(co.PaymentMethod.CardNumber), " ", "")
	return validate.Struct(co)
}

type NewCoupon struct {
	Code           string     `json:"code" validate:"required,min=3,max=32,alphanum_"`
	Description    string     `json:"description" validate:"max=200"`
	PercentOff     int        `json:"percent_off" validate:"gte=0,lte=100"`
	AmountOff      int64      `json:"amount_off" validate:"gte=0"`
	MaxRedemptions int        `json:"max_redemptions" validate:"gte=0"`
	ExpiresAt      *time.Time `json:"expires_at"`
	IsActive       *bool      `json:"is_active"`
}

func (nc *NewCoupon) Validate(validate *validator.Validate) error {
	nc.Code = normalizeCode(nc.Code)
	nc.Description = strings.TrimSpace(nc.Description)
	if err := validate.Struct(nc); err != nil {
		return err
	}
	return validateDiscount(nc.PercentOff, nc.AmountOff)
}

// UpdateCoupon defines what may change on a Coupon; the code is immutable.
type UpdateCoupon struct {
	Description    *string    `json:"description" validate:"omitempty,max=200"`
	PercentOff     *int       `json:"percent_off" validate:"omitempty,gte=0,lte=100"`
	AmountOff      *int64     `json:"amount_off" validate:"omitempty,gte=0"`
	MaxRedemptions *int       `json:"max_redemptions" validate:"omitempty,gte=0"`
	ExpiresAt      *time.Time `json:"expires_at"`
	IsActive       *bool      `json:"is_active"`
}

func (uc *UpdateCoupon) Validate(validate *validator.Validate) error {
	if uc.Description != nil {
		*uc.Description = strings.TrimSpace(*uc.Description)
	}
	return validate.Struct(uc)
}

func (uc UpdateCoupon) apply(c Coupon) (Coupon, error) {
	if uc.Description != nil {
		c.Description = *uc.Description
	}
	if uc.PercentOff != nil {
		c.PercentOff = *uc.PercentOff
		if c.PercentOff > 0 && uc.AmountOff == nil {
			c.AmountOff = 0
		}
	}
	if uc.AmountOff != nil {
		c.AmountOff = *uc.AmountOff
		if c.AmountOff > 0 && uc.PercentOff == nil {
			c.PercentOff = 0
		}
	}
	if uc.MaxRedemptions != nil {
		c.MaxRedemptions = *uc.MaxRedemptions
	}
	if uc.ExpiresAt != nil {
		c.ExpiresAt = uc.ExpiresAt
	}
	if uc.IsActive != nil {
		c.IsActive = *uc.IsActive
	}
	return c, validateDiscount(c.PercentOff, c.AmountOff)
}

func validateDiscount(percentOff int, amountOff int64) error {
	if (percentOff > 0) == (amountOff > 0) {
		msg := "exactly one of percent_off or amount_off must be set"
		return core.NewValidationError(nil,
			core.FieldError{Field: "percent_off", Error: msg},
			core.FieldError{Field: "amount_off", Error: msg},
		)
	}
	return nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(core.CleanString(code))
}
