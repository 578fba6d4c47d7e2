package notification

import (
	"time"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/query"
)

// Kinds
const (
	KindOnboarding = "onboarding"
	KindEnrollment = "enrollment"
	KindAssignment = "assignment"
	KindGrade      = "grade"
	KindLiveClass  = "live_class"
	KindMaterial   = "material"
	KindSystem     = "system"
)

var Kinds = []string{KindOnboarding, KindEnrollment, KindAssignment, KindGrade, KindLiveClass, KindMaterial, KindSystem}

var Schema = &query.Schema{
	Fields: map[string]query.Field{
		"user_id":    {Column: "user_id", Kind: query.UUID},
		"kind":       {Column: "kind", Kind: query.String},
		"title":      {Column: "title", Kind: query.String, Search: true},
		"body":       {Column: "body", Kind: query.String, Search: true},
		"is_read":    {Column: "read_at IS NOT NULL", Kind: query.Bool},
		"created_at": {Column: "created_at", Kind: query.Time},
	},
	DefaultOrdering: []core.DBOrdering{{Field: "created_at"}},
}

type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Link      string     `json:"link"`
	ReadAt    *time.Time `json:"read_at"`
	CreatedAt time.Time  `json:"created_at"`
}

func (n Notification) IsRead() bool { return n.ReadAt != nil }

func (n Notification) QueryValue(field string) interface{} {
	switch field {
	case "id":
		return n.ID
	case "user_id":
		return n.UserID
	case "kind":
		return n.Kind
	case "title":
		return n.Title
	case "body":
		return n.Body
	case "is_read":
		return n.IsRead()
	case "created_at":
		return n.CreatedAt
	}
	return nil
}

// NewNotification is what other services send to Notify.
type NewNotification struct {
	Kind  string
	Title string
	Body  string
	Link  string // frontend path, e.g. /courses/<id>
}
