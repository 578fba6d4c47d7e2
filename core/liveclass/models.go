package liveclass

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/query"
)

// Statuses
const (
	StatusScheduled = "scheduled"
	StatusLive      = "live"
	StatusEnded     = "ended"
	StatusCancelled = "cancelled"
)

const (
	MinDuration = 5      // minutes
	MaxDuration = 8 * 60 // minutes
)

var Schema = &query.Schema{
	Fields: map[string]query.Field{
		"id":         {Column: "id", Kind: query.UUID},
		"course_id":  {Column: "course_id", Kind: query.UUID},
		"title":      {Column: "title", Kind: query.String, Search: true},
		"status":     {Column: "status", Kind: query.String},
		"host_id":    {Column: "host_id", Kind: query.UUID},
		"starts_at":  {Column: "starts_at", Kind: query.Time},
		"created_at": {Column: "created_at", Kind: query.Time},
	},
	DefaultOrdering: []core.DBOrdering{{Field: "starts_at", Ascending: true}},
}

type Session struct {
	ID          string     `json:"id"`
	CourseID    string     `json:"course_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartsAt    time.Time  `json:"starts_at"`
	Duration    int        `json:"duration"` // minutes
	MeetingURL  string     `json:"meeting_url"`
	Status      string     `json:"status"`
	HostID      string     `json:"host_id"`
	StartedAt   *time.Time `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// EndsAt is the planned end of the session.
func (s Session) EndsAt() time.Time {
	return s.StartsAt.Add(time.Duration(s.Duration) * time.Minute)
}

// Joinable reports whether students may join at `now`.
func (s Session) Joinable(now time.Time, window time.Duration) bool {
	switch s.Status {
	case StatusLive:
		return true
	case StatusScheduled:
		return !now.Before(s.StartsAt.Add(-window))
	}
	return false
}

func (s Session) QueryValue(field string) interface{} {
	switch field {
	case "id":
		return s.ID
	case "course_id":
		return s.CourseID
	case "title":
		return s.Title
	case "status":
		return s.Status
	case "host_id":
		return s.HostID
	case "starts_at":
		return s.StartsAt
	case "created_at":
		return s.CreatedAt
	}
	return nil
}

type Attendance struct {
	SessionID string    `json:"session_id"`
	StudentID string    `json:"student_id"`
	JoinedAt  time.Time `json:"joined_at"`
}

// JoinInfo is what a participant needs to enter the meeting.
type JoinInfo struct {
	SessionID  string `json:"session_id"`
	MeetingURL string `json:"meeting_url"`
}

type NewSession struct {
	Title       string     `json:"title" validate:"required,notblank,max=200"`
	Description string     `json:"description"`
	StartsAt    *time.Time `json:"starts_at" validate:"required"`
	Duration    int        `json:"duration" validate:"required,min=5,max=480"`
}

func (ns *NewSession) Validate(validate *validator.Validate) error {
	ns.Title = core.CleanString(ns.Title)
	ns.Description = strings.TrimSpace(ns.Description)
	return validate.Struct(ns)
}
