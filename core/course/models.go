package course

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/query"
	"github.com/trezcool/darasa/core/user"
)

// Levels
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
)

// Statuses
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

var (
	Levels   = []string{LevelBeginner, LevelIntermediate, LevelAdvanced}
	Statuses = []string{StatusDraft, StatusPublished, StatusArchived}

	Schema = &query.Schema{
		Fields: map[string]query.Field{
			"id":          {Column: "id", Kind: query.UUID},
			"title":       {Column: "title", Kind: query.String, Search: true},
			"description": {Column: "description", Kind: query.String, Search: true},
			"category":    {Column: "category", Kind: query.String, Search: true},
			"level":       {Column: "level", Kind: query.String},
			"price":       {Column: "price", Kind: query.Int},
			"currency":    {Column: "currency", Kind: query.String},
			"teacher_id":  {Column: "teacher_id", Kind: query.UUID},
			"status":      {Column: "status", Kind: query.String},
			"capacity":    {Column: "capacity", Kind: query.Int},
			"starts_at":   {Column: "starts_at", Kind: query.Time},
			"created_at":  {Column: "created_at", Kind: query.Time},
		},
		DefaultOrdering: []core.DBOrdering{{Field: "created_at"}},
	}

	errEndsBeforeStart     = "must be after starts_at"
	errPublishNeedsContent = "a description is required to publish a course"
)

type Course struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Category     string     `json:"category"`
	Level        string     `json:"level"`
	Price        int64      `json:"price"` // minor units
	Currency     string     `json:"currency"`
	TeacherID    string     `json:"teacher_id"`
	Status       string     `json:"status"`
	Capacity     int        `json:"capacity"` // 0: unlimited
	StartsAt     *time.Time `json:"starts_at"`
	EndsAt       *time.Time `json:"ends_at"`
	ThumbnailURL string     `json:"thumbnail_url"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (c Course) IsPublished() bool { return c.Status == StatusPublished }

// CanManage reports whether usr may edit the course and see its private data.
func (c Course) CanManage(usr user.User) bool {
	return usr.IsAdmin() || (usr.ID != "" && c.TeacherID == usr.ID)
}

// VisibleTo reports whether usr may see the course at all.
func (c Course) VisibleTo(usr user.User) bool {
	return c.IsPublished() || c.CanManage(usr)
}

func (c Course) QueryValue(field string) interface{} {
	switch field {
	case "id":
		return c.ID
	case "title":
		return c.Title
	case "description":
		return c.Description
	case "category":
		return c.Category
	case "level":
		return c.Level
	case "price":
		return c.Price
	case "currency":
		return c.Currency
	case "teacher_id":
		return c.TeacherID
	case "status":
		return c.Status
	case "capacity":
		return c.Capacity
	case "starts_at":
		return c.StartsAt
	case "created_at":
		return c.CreatedAt
	}
	return nil
}

func (c Course) validate() error {
	var flds []core.FieldError
	if c.StartsAt != nil && c.EndsAt != nil && !c.EndsAt.After(*c.StartsAt) {
		flds = append(flds, core.FieldError{Field: "ends_at", Error: errEndsBeforeStart})
	}
	if c.IsPublished() && strings.TrimSpace(c.Description) == "" {
		flds = append(flds, core.FieldError{Field: "description", Error: errPublishNeedsContent})
	}
	if flds != nil {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

type Module struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title        string     `json:"title" validate:"required,notblank,max=200"`
	Description  string     `json:"description"`
	Category     string     `json:"category" validate:"max=100"`
	Level        string     `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
	Price        int64      `json:"price" validate:"gte=0"`
	Currency     string     `json:"currency" validate:"omitempty,len=3,alpha"`
	TeacherID    string     `json:"teacher_id"`
	Status       string     `json:"status" validate:"omitempty,oneof=draft published archived"`
	Capacity     int        `json:"capacity" validate:"gte=0"`
	StartsAt     *time.Time `json:"starts_at"`
	EndsAt       *time.Time `json:"ends_at"`
	ThumbnailURL string     `json:"thumbnail_url" validate:"omitempty,httpurl"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = strings.TrimSpace(nc.Description)
	nc.Category = core.CleanString(nc.Category, true /* lower */)
	nc.Level = core.CleanString(nc.Level, true /* lower */)
	nc.Currency = strings.ToUpper(core.CleanString(nc.Currency))
	nc.TeacherID = core.CleanString(nc.TeacherID)
	nc.Status = core.CleanString(nc.Status, true /* lower */)
	nc.ThumbnailURL = core.CleanString(nc.ThumbnailURL)
	return validate.Struct(nc)
}

// UpdateCourse defines what information may be provided to modify an existing Course.
// nil fields are left untouched.
type UpdateCourse struct {
	Title        *string    `json:"title" validate:"omitempty,notblank,max=200"`
	Description  *string    `json:"description"`
	Category     *string    `json:"category" validate:"omitempty,max=100"`
	Level        *string    `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
	Price        *int64     `json:"price" validate:"omitempty,gte=0"`
	Currency     *string    `json:"currency" validate:"omitempty,len=3,alpha"`
	Status       *string    `json:"status" validate:"omitempty,oneof=draft published archived"`
	Capacity     *int       `json:"capacity" validate:"omitempty,gte=0"`
	StartsAt     *time.Time `json:"starts_at"`
	EndsAt       *time.Time `json:"ends_at"`
	ThumbnailURL *string    `json:"thumbnail_url" validate:"omitempty,httpurl"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	clean := func(s *string, lower bool) {
		if s != nil {
			*s = core.CleanString(*s, lower)
		}
	}
	clean(uc.Title, false)
	clean(uc.Category, true)
	clean(uc.Level, true)
	clean(uc.Status, true)
	clean(uc.ThumbnailURL, false)
	if uc.Currency != nil {
		*uc.Currency = strings.ToUpper(core.CleanString(*uc.Currency))
	}
	if uc.Description != nil {
		*uc.Description = strings.TrimSpace(*uc.Description)
	}
	return validate.Struct(uc)
}

func (uc UpdateCourse) apply(c Course) Course {
	if uc.Title != nil && *uc.Title != "" {
		c.Title = *uc.Title
	}
	if uc.Description != nil {
		c.Description = *uc.Description
	}
	if uc.Category != nil {
		c.Category = *uc.Category
	}
	if uc.Level != nil && *uc.Level != "" {
		c.Level = *uc.Level
	}
	if uc.Price != nil {
		c.Price = *uc.Price
	}
	if uc.Currency != nil && *uc.Currency != "" {
		c.Currency = *uc.Currency
	}
	if uc.Status != nil && *uc.Status != "" {
		c.Status = *uc.Status
	}
	if uc.Capacity != nil {
		c.Capacity = *uc.Capacity
	}
	if uc.StartsAt != nil {
		c.StartsAt = uc.StartsAt
	}
	if uc.EndsAt != nil {
		c.EndsAt = uc.EndsAt
	}
	if uc.ThumbnailURL != nil {
		c.ThumbnailURL = *uc.ThumbnailURL
	}
	return c
}

type NewModule struct {
	Title       string `json:"title" validate:"required,notblank,max=200"`
	Description string `json:"description"`
	Position    int    `json:"position" validate:"gte=0"` // 0: append
}

func (nm *NewModule) Validate(validate *validator.Validate) error {
	nm.Title = core.CleanString(nm.Title)
	nm.Description = strings.TrimSpace(nm.Description)
	return validate.Struct(nm)
}

type UpdateModule struct {
	Title       *string `json:"title" validate:"omitempty,notblank,max=200"`
	Description *string `json:"description"`
	Position    *int    `json:"position" validate:"omitempty,gte=1"`
}

func (um *UpdateModule) Validate(validate *validator.Validate) error {
	if um.Title != nil {
		*um.Title = core.CleanString(*um.Title)
	}
	if um.Description != nil {
		*um.Description = strings.TrimSpace(*um.Description)
	}
	return validate.Struct(um)
}
