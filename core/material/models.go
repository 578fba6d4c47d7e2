package material

import (
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/query"
)

// Types
const (
	TypePDF          = "pdf"
	TypeVideo        = "video"
	TypeDocument     = "document"
	TypePresentation = "presentation"
	TypeLink         = "link"
)

var (
	Types = []string{TypePDF, TypeVideo, TypeDocument, TypePresentation, TypeLink}

	Schema = &query.Schema{
		Fields: map[string]query.Field{
			"id":         {Column: "id", Kind: query.UUID},
			"course_id":  {Column: "course_id", Kind: query.UUID},
			"module_id":  {Column: "module_id", Kind: query.UUID},
			"title":      {Column: "title", Kind: query.String, Search: true},
			"type":       {Column: "type", Kind: query.String},
			"created_at": {Column: "created_at", Kind: query.Time},
		},
		DefaultOrdering: []core.DBOrdering{{Field: "created_at", Ascending: true}},
	}

	videoExts        = map[string]bool{".mp4": true, ".webm": true, ".mov": true, ".mkv": true, ".avi": true, ".m4v": true}
	presentationExts = map[string]bool{".ppt": true, ".pptx": true, ".odp": true, ".key": true}
)

type Material struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id"`
	ModuleID    string    `json:"module_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	URL         string    `json:"url"`
	ObjectKey   string    `json:"-"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	UploadedBy  string    `json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsUpload reports whether the content lives in the file store rather than behind a URL.
func (m Material) IsUpload() bool { return m.ObjectKey != "" }

func (m Material) QueryValue(field string) interface{} {
	switch field {
	case "id":
		return m.ID
	case "course_id":
		return m.CourseID
	case "module_id":
		return m.ModuleID
	case "title":
		return m.Title
	case "type":
		return m.Type
	case "created_at":
		return m.CreatedAt
	}
	return nil
}

// NewMaterial describes an uploaded file.
type NewMaterial struct {
	ModuleID    string `json:"module_id" form:"module_id"`
	Title       string `json:"title" form:"title" validate:"required,notblank,max=200"`
	Description string `json:"description" form:"description"`
	Type        string `json:"type" form:"type" validate:"omitempty,oneof=pdf video document presentation"`
}

func (nm *NewMaterial) Validate(validate *validator.Validate) error {
	nm.ModuleID = core.CleanString(nm.ModuleID)
	nm.Title = core.CleanString(nm.Title)
	nm.Description = strings.TrimSpace(nm.Description)
	nm.Type = core.CleanString(nm.Type, true /* lower */)
	return validate.Struct(nm)
}

// Upload is the file part of an upload request.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// NewLink describes an external resource, e.g. a hosted video.
type NewLink struct {
	ModuleID    string `json:"module_id"`
	Title       string `json:"title" validate:"required,notblank,max=200"`
	Description string `json:"description"`
	Type        string `json:"type" validate:"omitempty,oneof=link video"`
	URL         string `json:"url" validate:"required,httpurl"`
}

func (nl *NewLink) Validate(validate *validator.Validate) error {
	nl.ModuleID = core.CleanString(nl.ModuleID)
	nl.Title = core.CleanString(nl.Title)
	nl.Description = strings.TrimSpace(nl.Description)
	nl.Type = core.CleanString(nl.Type, true /* lower */)
	nl.URL = core.CleanString(nl.URL)
	return validate.Struct(nl)
}

// InferType guesses the material type from a content type and file name.
func InferType(contentType, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	mediaType, _, _ := mime.ParseMediaType(contentType)

	switch {
	case mediaType == "application/pdf" || ext == ".pdf":
		return TypePDF
	case strings.HasPrefix(mediaType, "video/") || videoExts[ext]:
		return TypeVideo
	case strings.Contains(mediaType, "presentation") || strings.Contains(mediaType, "powerpoint") || presentationExts[ext]:
		return TypePresentation
	}
	return TypeDocument
}
