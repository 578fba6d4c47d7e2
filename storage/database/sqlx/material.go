package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/material"
	"github.com/trezcool/darasa/core/query"
)

const materialColumns = `id, course_id, module_id, title, description, type, url, object_key,
	content_type, size, uploaded_by, created_at`

type materialRow struct {
	ID          string      `db:"id"`
	CourseID    string      `db:"course_id"`
	ModuleID    null.String `db:"module_id"`
	Title       string      `db:"title"`
	Description string      `db:"description"`
	Type        string      `db:"type"`
	URL         string      `db:"url"`
	ObjectKey   string      `db:"object_key"`
	ContentType string      `db:"content_type"`
	Size        int64       `db:"size"`
	UploadedBy  string      `db:"uploaded_by"`
	CreatedAt   time.Time   `db:"created_at"`
}

func (r materialRow) toMaterial() material.Material {
	return material.Material{
		ID:          r.ID,
		CourseID:    r.CourseID,
		ModuleID:    r.ModuleID.String,
		Title:       r.Title,
		Description: r.Description,
		Type:        r.Type,
		URL:         r.URL,
		ObjectKey:   r.ObjectKey,
		ContentType: r.ContentType,
		Size:        r.Size,
		UploadedBy:  r.UploadedBy,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type materialRepository struct {
	db *sqlx.DB
}

var _ material.Repository = (*materialRepository)(nil)

func NewMaterialRepository(db *sqlx.DB) material.Repository {
	return &materialRepository{db: db}
}

func (repo *materialRepository) CreateMaterial(ctx context.Context, m material.Material) (material.Material, error) {
	m.ID = uuid.NewString()
	row := materialRow{
		ID:          m.ID,
		CourseID:    m.CourseID,
		ModuleID:    null.NewString(m.ModuleID, m.ModuleID != ""),
		Title:       m.Title,
		Description: m.Description,
		Type:        m.Type,
		URL:         m.URL,
		ObjectKey:   m.ObjectKey,
		ContentType: m.ContentType,
		Size:        m.Size,
		UploadedBy:  m.UploadedBy,
		CreatedAt:   m.CreatedAt.UTC(),
	}
	stmt := `INSERT INTO material (` + materialColumns + `) VALUES (
		:id, :course_id, :module_id, :title, :description, :type, :url, :object_key,
		:content_type, :size, :uploaded_by, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, stmt, row); err != nil {
		return material.Material{}, errors.Wrap(err, "inserting material")
	}
	return m, nil
}

func (repo *materialRepository) QueryMaterials(ctx context.Context, q query.Query) ([]material.Material, int, error) {
	var rows []materialRow
	count, err := selectPage(ctx, repo.db, &rows, "material", materialColumns, q)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying materials")
	}
	mm := make([]material.Material, 0, len(rows))
	for _, r := range rows {
		mm = append(mm, r.toMaterial())
	}
	return mm, count, nil
}

func (repo *materialRepository) GetMaterial(ctx context.Context, id string) (material.Material, error) {
	if !validID(id) {
		return material.Material{}, material.ErrNotFound
	}
	var r materialRow
	if err := repo.db.GetContext(ctx, &r, `SELECT `+materialColumns+` FROM material WHERE id = $1`, id); err != nil {
		return material.Material{}, trapNoRowsErr(err, material.ErrNotFound, "getting material")
	}
	return r.toMaterial(), nil
}

func (repo *materialRepository) DeleteMaterial(ctx context.Context, id string) error {
	if !validID(id) {
		return material.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM material WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting material")
	}
	return checkAffected(res, material.ErrNotFound)
}
