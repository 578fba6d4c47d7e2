package assignment

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/query"
)

// Submission statuses
const (
	StatusSubmitted = "submitted"
	StatusGraded    = "graded"
)

var (
	Schema = &query.Schema{
		Fields: map[string]query.Field{
			"id":         {Column: "id", Kind: query.UUID},
			"course_id":  {Column: "course_id", Kind: query.UUID},
			"module_id":  {Column: "module_id", Kind: query.UUID},
			"title":      {Column: "title", Kind: query.String, Search: true},
			"due_at":     {Column: "due_at", Kind: query.Time},
			"created_at": {Column: "created_at", Kind: query.Time},
		},
		DefaultOrdering: []core.DBOrdering{{Field: "due_at", Ascending: true}, {Field: "created_at", Ascending: true}},
	}

	SubmissionSchema = &query.Schema{
		Fields: map[string]query.Field{
			"id":            {Column: "id", Kind: query.UUID},
			"assignment_id": {Column: "assignment_id", Kind: query.UUID},
			"student_id":    {Column: "student_id", Kind: query.UUID},
			"status":        {Column: "status", Kind: query.String},
			"is_late":       {Column: "is_late", Kind: query.Bool},
			"submitted_at":  {Column: "submitted_at", Kind: query.Time},
		},
		DefaultOrdering: []core.DBOrdering{{Field: "submitted_at", Ascending: true}},
	}
)

type Assignment struct {
	ID           string     `json:"id"`
	CourseID     string     `json:"course_id"`
	ModuleID     string     `json:"module_id"`
	Title        string     `json:"title"`
	Instructions string     `json:"instructions"`
	DueAt        *time.Time `json:"due_at"`
	MaxPoints    int        `json:"max_points"`
	AllowLate    bool       `json:"allow_late"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsPastDue reports whether t is after the due date.
func (a Assignment) IsPastDue(t time.Time) bool {
	return a.DueAt != nil && t.After(*a.DueAt)
}

func (a Assignment) QueryValue(field string) interface{} {
	switch field {
	case "id":
		return a.ID
	case "course_id":
		return a.CourseID
	case "module_id":
		return a.ModuleID
	case "title":
		return a.Title
	case "due_at":
		return a.DueAt
	case "created_at":
		return a.CreatedAt
	}
	return nil
}

type Submission struct {
	ID            string     `json:"id"`
	AssignmentID  string     `json:"assignment_id"`
	StudentID     string     `json:"student_id"`
	Content       string     `json:"content"`
	AttachmentURL string     `json:"attachment_url"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	IsLate        bool       `json:"is_late"`
	Status        string     `json:"status"`
	Points        *int       `json:"points"`
	Feedback      string     `json:"feedback"`
	GradedBy      string     `json:"graded_by"`
	GradedAt      *time.Time `json:"graded_at"`
}

func (s Submission) IsGraded() bool { return s.Status == StatusGraded }

func (s Submission) QueryValue(field string) interface{} {
	switch field {
	case "id":
		return s.ID
	case "assignment_id":
		return s.AssignmentID
	case "student_id":
		return s.StudentID
	case "status":
		return s.Status
	case "is_late":
		return s.IsLate
	case "submitted_at":
		return s.SubmittedAt
	}
	return nil
}

type NewAssignment struct {
	ModuleID     string     `json:"module_id"`
	Title        string     `json:"title" validate:"required,notblank,max=200"`
	Instructions string     `json:"instructions"`
	DueAt        *time.Time `json:"due_at"`
	MaxPoints    int        `json:"max_points" validate:"required,gt=0"`
	AllowLate    bool       `json:"allow_late"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.ModuleID = core.CleanString(na.ModuleID)
	na.Title = core.CleanString(na.Title)
	na.Instructions = strings.TrimSpace(na.Instructions)
	return validate.Struct(na)
}

// UpdateAssignment holds the fields to change; nil fields are left untouched.
type UpdateAssignment struct {
	ModuleID     *string    `json:"module_id"`
	Title        *string    `json:"title" validate:"omitempty,notblank,max=200"`
	Instructions *string    `json:"instructions"`
	DueAt        *time.Time `json:"due_at"`
	MaxPoints    *int       `json:"max_points" validate:"omitempty,gt=0"`
	AllowLate    *bool      `json:"allow_late"`
}

func (ua *UpdateAssignment) Validate(validate *validator.Validate) error {
	if ua.ModuleID != nil {
		*ua.ModuleID = core.CleanString(*ua.ModuleID)
	}
	if ua.Title != nil {
		*ua.Title = core.CleanString(*ua.Title)
	}
	if ua.Instructions != nil {
		*ua.Instructions = strings.TrimSpace(*ua.Instructions)
	}
	return validate.Struct(ua)
}

func (ua UpdateAssignment) apply(a Assignment) Assignment {
	if ua.ModuleID != nil {
		a.ModuleID = *ua.ModuleID
	}
	if ua.Title != nil && *ua.Title != "" {
		a.Title = *ua.Title
	}
	if ua.Instructions != nil {
		a.Instructions = *ua.Instructions
	}
	if ua.DueAt != nil {
		a.DueAt = ua.DueAt
	}
	if ua.MaxPoints != nil && *ua.MaxPoints > 0 {
		a.MaxPoints = *ua.MaxPoints
	}
	if ua.AllowLate != nil {
		a.AllowLate = *ua.AllowLate
	}
	return a
}

type NewSubmission struct {
	Content       string `json:"content"`
	AttachmentURL string `json:"attachment_url" validate:"omitempty,httpurl"`
}

func (ns *NewSubmission) Validate(validate *validator.Validate) error {
	ns.Content = strings.TrimSpace(ns.Content)
	ns.AttachmentURL = core.CleanString(ns.AttachmentURL)
	if err := validate.Struct(ns); err != nil {
		return err
	}
	if ns.Content == "" && ns.AttachmentURL == "" {
		msg := "either content or attachment_url is required"
		return core.NewValidationError(nil,
			core.FieldError{Field: "content", Error: msg},
			core.FieldError{Field: "attachment_url", Error: msg},
		)
	}
	return nil
}

type GradeSubmission struct {
	Points   *int   `json:"points" validate:"required,gte=0"`
	Feedback string `json:"feedback" validate:"max=5000"`
}

func (gs *GradeSubmission) Validate(validate *validator.Validate) error {
	gs.Feedback = strings.TrimSpace(gs.Feedback)
	return validate.Struct(gs)
}
