package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/query"
)

const (
	assignmentColumns = `id, course_id, module_id, title, instructions, due_at, max_points, allow_late,
	created_by, created_at, updated_at`
	submissionColumns = `id, assignment_id, student_id, content, attachment_url, submitted_at, is_late,
	status, points, feedback, graded_by, graded_at`
)

type assignmentRow struct {
	ID           string      `db:"id"`
	CourseID     string      `db:"course_id"`
	ModuleID     null.String `db:"module_id"`
	Title        string      `db:"title"`
	Instructions string      `db:"instructions"`
	DueAt        null.Time   `db:"due_at"`
	MaxPoints    int         `db:"max_points"`
	AllowLate    bool        `db:"allow_late"`
	CreatedBy    string      `db:"created_by"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func toAssignmentRow(a assignment.Assignment) assignmentRow {
	return assignmentRow{
		ID:           a.ID,
		CourseID:     a.CourseID,
		ModuleID:     null.NewString(a.ModuleID, a.ModuleID != ""),
		Title:        a.Title,
		Instructions: a.Instructions,
		DueAt:        null.TimeFromPtr(a.DueAt),
		MaxPoints:    a.MaxPoints,
		AllowLate:    a.AllowLate,
		CreatedBy:    a.CreatedBy,
		CreatedAt:    a.CreatedAt.UTC(),
		UpdatedAt:    a.UpdatedAt.UTC(),
	}
}

func (r assignmentRow) toAssignment() assignment.Assignment {
	return assignment.Assignment{
		ID:           r.ID,
		CourseID:     r.CourseID,
		ModuleID:     r.ModuleID.String,
		Title:        r.Title,
		Instructions: r.Instructions,
		DueAt:        r.DueAt.Ptr(),
		MaxPoints:    r.MaxPoints,
		AllowLate:    r.AllowLate,
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type submissionRow struct {
	ID            string      `db:"id"`
	AssignmentID  string      `db:"assignment_id"`
	StudentID     string      `db:"student_id"`
	Content       string      `db:"content"`
	AttachmentURL string      `db:"attachment_url"`
	SubmittedAt   time.Time   `db:"submitted_at"`
	IsLate        bool        `db:"is_late"`
	Status        string      `db:"status"`
	Points        null.Int    `db:"points"`
	Feedback      string      `db:"feedback"`
	GradedBy      null.String `db:"graded_by"`
	GradedAt      null.Time   `db:"graded_at"`
}

func toSubmissionRow(s assignment.Submission) submissionRow {
	return submissionRow{
		ID:            s.ID,
		AssignmentID:  s.AssignmentID,
		StudentID:     s.StudentID,
		Content:       s.Content,
		AttachmentURL: s.AttachmentURL,
		SubmittedAt:   s.SubmittedAt.UTC(),
		IsLate:        s.IsLate,
		Status:        s.Status,
		Points:        null.IntFromPtr(s.Points),
		Feedback:      s.Feedback,
		GradedBy:      null.NewString(s.GradedBy, s.GradedBy != ""),
		GradedAt:      null.TimeFromPtr(s.GradedAt),
	}
}

func (r submissionRow) toSubmission() assignment.Submission {
	return assignment.Submission{
		ID:            r.ID,
		AssignmentID:  r.AssignmentID,
		StudentID:     r.StudentID,
		Content:       r.Content,
		AttachmentURL: r.AttachmentURL,
		SubmittedAt:   r.SubmittedAt.UTC(),
		IsLate:        r.IsLate,
		Status:        r.Status,
		Points:        r.Points.Ptr(),
		Feedback:      r.Feedback,
		GradedBy:      r.GradedBy.String,
		GradedAt:      r.GradedAt.Ptr(),
	}
}

type assignmentRepository struct {
	db *sqlx.DB
}

var _ assignment.Repository = (*assignmentRepository)(nil)

func NewAssignmentRepository(db *sqlx.DB) assignment.Repository {
	return &assignmentRepository{db: db}
}

func (repo *assignmentRepository) CreateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	a.ID = uuid.NewString()
	stmt := `INSERT INTO assignment (` + assignmentColumns + `) VALUES (
		:id, :course_id, :module_id, :title, :instructions, :due_at, :max_points, :allow_late,
		:created_by, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, stmt, toAssignmentRow(a)); err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return a, nil
}

func (repo *assignmentRepository) QueryAssignments(ctx context.Context, q query.Query) ([]assignment.Assignment, int, error) {
	var rows []assignmentRow
	count, err := selectPage(ctx, repo.db, &rows, "assignment", assignmentColumns, q)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying assignments")
	}
	aa := make([]assignment.Assignment, 0, len(rows))
	for _, r := range rows {
		aa = append(aa, r.toAssignment())
	}
	return aa, count, nil
}

func (repo *assignmentRepository) GetAssignment(ctx context.Context, id string) (assignment.Assignment, error) {
	if !validID(id) {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	var r assignmentRow
	if err := repo.db.GetContext(ctx, &r, `SELECT `+assignmentColumns+` FROM assignment WHERE id = $1`, id); err != nil {
		return assignment.Assignment{}, trapNoRowsErr(err, assignment.ErrNotFound, "getting assignment")
	}
	return r.toAssignment(), nil
}

func (repo *assignmentRepository) UpdateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	stmt := `UPDATE assignment SET
		module_id = :module_id, title = :title, instructions = :instructions, due_at = :due_at,
		max_points = :max_points, allow_late = :allow_late, updated_at = :updated_at
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, stmt, toAssignmentRow(a))
	if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "updating assignment")
	}
	return a, checkAffected(res, assignment.ErrNotFound)
}

// DeleteAssignment relies on ON DELETE CASCADE for submissions.
func (repo *assignmentRepository) DeleteAssignment(ctx context.Context, id string) error {
	if !validID(id) {
		return assignment.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM assignment WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return checkAffected(res, assignment.ErrNotFound)
}

func (repo *assignmentRepository) QuerySubmissions(ctx context.Context, q query.Query) ([]assignment.Submission, int, error) {
	var rows []submissionRow
	count, err := selectPage(ctx, repo.db, &rows, "submission", submissionColumns, q)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying submissions")
	}
	ss := make([]assignment.Submission, 0, len(rows))
	for _, r := range rows {
		ss = append(ss, r.toSubmission())
	}
	return ss, count, nil
}

func (repo *assignmentRepository) GetSubmission(ctx context.Context, id string) (assignment.Submission, error) {
	if !validID(id) {
		return assignment.Submission{}, assignment.ErrSubmissionNotFound
	}
	var r submissionRow
	if err := repo.db.GetContext(ctx, &r, `SELECT `+submissionColumns+` FROM submission WHERE id = $1`, id); err != nil {
		return assignment.Submission{}, trapNoRowsErr(err, assignment.ErrSubmissionNotFound, "getting submission")
	}
	return r.toSubmission(), nil
}

func (repo *assignmentRepository) FindSubmission(ctx context.Context, assignmentID, studentID string) (assignment.Submission, error) {
	if !validID(assignmentID) || !validID(studentID) {
		return assignment.Submission{}, assignment.ErrSubmissionNotFound
	}
	var r submissionRow
	stmt := `SELECT ` + submissionColumns + ` FROM submission WHERE assignment_id = $1 AND student_id = $2`
	if err := repo.db.GetContext(ctx, &r, stmt, assignmentID, studentID); err != nil {
		return assignment.Submission{}, trapNoRowsErr(err, assignment.ErrSubmissionNotFound, "finding submission")
	}
	return r.toSubmission(), nil
}

func (repo *assignmentRepository) SaveSubmission(ctx context.Context, s assignment.Submission) (assignment.Submission, error) {
	s.ID = uuid.NewString()
	stmt := `INSERT INTO submission (` + submissionColumns + `) VALUES (
		:id, :assignment_id, :student_id, :content, :attachment_url, :submitted_at, :is_late,
		:status, :points, :feedback, :graded_by, :graded_at)
		ON CONFLICT (assignment_id, student_id) DO UPDATE SET
		content = EXCLUDED.content, attachment_url = EXCLUDED.attachment_url,
		submitted_at = EXCLUDED.submitted_at, is_late = EXCLUDED.is_late, status = EXCLUDED.status,
		points = EXCLUDED.points, feedback = EXCLUDED.feedback, graded_by = EXCLUDED.graded_by,
		graded_at = EXCLUDED.graded_at
		RETURNING id`
	rows, err := repo.db.NamedQueryContext(ctx, stmt, toSubmissionRow(s))
	if err != nil {
		return assignment.Submission{}, errors.Wrap(err, "saving submission")
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&s.ID); err != nil {
			return assignment.Submission{}, errors.Wrap(err, "scanning submission id")
		}
	}
	return s, errors.Wrap(rows.Err(), "saving submission")
}
