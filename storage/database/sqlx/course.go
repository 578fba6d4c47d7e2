package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/query"
)

const (
	courseColumns = `id, title, description, category, level, price, currency, teacher_id, status,
	capacity, starts_at, ends_at, thumbnail_url, created_at, updated_at`
	moduleColumns = "id, course_id, title, description, position, created_at"
)

type courseRow struct {
	ID           string    `db:"id"`
	Title        string    `db:"title"`
	Description  string    `db:"description"`
	Category     string    `db:"category"`
	Level        string    `db:"level"`
	Price        int64     `db:"price"`
	Currency     string    `db:"currency"`
	TeacherID    string    `db:"teacher_id"`
	Status       string    `db:"status"`
	Capacity     int       `db:"capacity"`
	StartsAt     null.Time `db:"starts_at"`
	EndsAt       null.Time `db:"ends_at"`
	ThumbnailURL string    `db:"thumbnail_url"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func toCourseRow(c course.Course) courseRow {
	return courseRow{
		ID:           c.ID,
		Title:        c.Title,
		Description:  c.Description,
		Category:     c.Category,
		Level:        c.Level,
		Price:        c.Price,
		Currency:     c.Currency,
		TeacherID:    c.TeacherID,
		Status:       c.Status,
		Capacity:     c.Capacity,
		StartsAt:     null.TimeFromPtr(c.StartsAt),
		EndsAt:       null.TimeFromPtr(c.EndsAt),
		ThumbnailURL: c.ThumbnailURL,
		CreatedAt:    c.CreatedAt.UTC(),
		UpdatedAt:    c.UpdatedAt.UTC(),
	}
}

func (r courseRow) toCourse() course.Course {
	return course.Course{
		ID:           r.ID,
		Title:        r.Title,
		Description:  r.Description,
		Category:     r.Category,
		Level:        r.Level,
		Price:        r.Price,
		Currency:     r.Currency,
		TeacherID:    r.TeacherID,
		Status:       r.Status,
		Capacity:     r.Capacity,
		StartsAt:     r.StartsAt.Ptr(),
		EndsAt:       r.EndsAt.Ptr(),
		ThumbnailURL: r.ThumbnailURL,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type moduleRow struct {
	ID          string    `db:"id"`
	CourseID    string    `db:"course_id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Position    int       `db:"position"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r moduleRow) toModule() course.Module {
	return course.Module{
		ID:          r.ID,
		CourseID:    r.CourseID,
		Title:       r.Title,
		Description: r.Description,
		Position:    r.Position,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	c.ID = uuid.NewString()
	stmt := `INSERT INTO course (` + courseColumns + `) VALUES (
		:id, :title, :description, :category, :level, :price, :currency, :teacher_id, :status,
		:capacity, :starts_at, :ends_at, :thumbnail_url, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, stmt, toCourseRow(c)); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo *courseRepository) QueryCourses(ctx context.Context, q query.Query) ([]course.Course, int, error) {
	var rows []courseRow
	count, err := selectPage(ctx, repo.db, &rows, "course", courseColumns, q)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, r.toCourse())
	}
	return courses, count, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	if !validID(id) {
		return course.Course{}, course.ErrNotFound
	}
	var r courseRow
	if err := repo.db.GetContext(ctx, &r, `SELECT `+courseColumns+` FROM course WHERE id = $1`, id); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "getting course")
	}
	return r.toCourse(), nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	stmt := `UPDATE course SET
		title = :title, description = :description, category = :category, level = :level,
		price = :price, currency = :currency, teacher_id = :teacher_id, status = :status,
		capacity = :capacity, starts_at = :starts_at, ends_at = :ends_at,
		thumbnail_url = :thumbnail_url, updated_at = :updated_at
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, stmt, toCourseRow(c))
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	return c, checkAffected(res, course.ErrNotFound)
}

// DeleteCourse relies on ON DELETE CASCADE for modules.
func (repo *courseRepository) DeleteCourse(ctx context.Context, id string) error {
	if !validID(id) {
		return course.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM course WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return checkAffected(res, course.ErrNotFound)
}

func (repo *courseRepository) CountEnrollments(ctx context.Context, courseID string) (int, error) {
	if !validID(courseID) {
		return 0, nil
	}
	var count int
	err := repo.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM enrollment WHERE course_id = $1`, courseID)
	return count, errors.Wrap(err, "counting enrollments")
}

func (repo *courseRepository) CreateModule(ctx context.Context, m course.Module) (course.Module, error) {
	m.ID = uuid.NewString()
	stmt := `INSERT INTO course_module (` + moduleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := repo.db.ExecContext(ctx, stmt, m.ID, m.CourseID, m.Title, m.Description, m.Position, m.CreatedAt.UTC()); err != nil {
		return course.Module{}, errors.Wrap(err, "inserting module")
	}
	return m, nil
}

func (repo *courseRepository) ListModules(ctx context.Context, courseID string) ([]course.Module, error) {
	mods := make([]course.Module, 0)
	if !validID(courseID) {
		return mods, nil
	}
	var rows []moduleRow
	stmt := `SELECT ` + moduleColumns + ` FROM course_module WHERE course_id = $1 ORDER BY position, created_at`
	if err := repo.db.SelectContext(ctx, &rows, stmt, courseID); err != nil {
		return nil, errors.Wrap(err, "listing modules")
	}
	for _, r := range rows {
		mods = append(mods, r.toModule())
	}
	return mods, nil
}

func (repo *courseRepository) GetModule(ctx context.Context, id string) (course.Module, error) {
	if !validID(id) {
		return course.Module{}, course.ErrModuleNotFound
	}
	var r moduleRow
	if err := repo.db.GetContext(ctx, &r, `SELECT `+moduleColumns+` FROM course_module WHERE id = $1`, id); err != nil {
		return course.Module{}, trapNoRowsErr(err, course.ErrModuleNotFound, "getting module")
	}
	return r.toModule(), nil
}

func (repo *courseRepository) UpdateModules(ctx context.Context, mods ...course.Module) error {
	return inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		stmt := `UPDATE course_module SET title = $2, description = $3, position = $4 WHERE id = $1`
		for _, m := range mods {
			res, err := tx.ExecContext(ctx, stmt, m.ID, m.Title, m.Description, m.Position)
			if err != nil {
				return errors.Wrap(err, "updating module")
			}
			if err := checkAffected(res, course.ErrModuleNotFound); err != nil {
				return err
			}
		}
		return nil
	})
}

func (repo *courseRepository) DeleteModule(ctx context.Context, id string) error {
	if !validID(id) {
		return course.ErrModuleNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM course_module WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting module")
	}
	return checkAffected(res, course.ErrModuleNotFound)
}
