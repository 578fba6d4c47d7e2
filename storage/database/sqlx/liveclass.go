package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/liveclass"
	"github.com/trezcool/darasa/core/query"
)

const sessionColumns = `id, course_id, title, description, starts_at, duration, meeting_url, status,
	host_id, started_at, ended_at, created_at`

type sessionRow struct {
	ID          string    `db:"id"`
	CourseID    string    `db:"course_id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	StartsAt    time.Time `db:"starts_at"`
	Duration    int       `db:"duration"`
	MeetingURL  string    `db:"meeting_url"`
	Status      string    `db:"status"`
	HostID      string    `db:"host_id"`
	StartedAt   null.Time `db:"started_at"`
	EndedAt     null.Time `db:"ended_at"`
	CreatedAt   time.Time `db:"created_at"`
}

func toSessionRow(s liveclass.Session) sessionRow {
	return sessionRow{
		ID:          s.ID,
		CourseID:    s.CourseID,
		Title:       s.Title,
		Description: s.Description,
		StartsAt:    s.StartsAt.UTC(),
		Duration:    s.Duration,
		MeetingURL:  s.MeetingURL,
		Status:      s.Status,
		HostID:      s.HostID,
		StartedAt:   null.TimeFromPtr(s.StartedAt),
		EndedAt:     null.TimeFromPtr(s.EndedAt),
		CreatedAt:   s.CreatedAt.UTC(),
	}
}

func (r sessionRow) toSession() liveclass.Session {
	return liveclass.Session{
		ID:          r.ID,
		CourseID:    r.CourseID,
		Title:       r.Title,
		Description: r.Description,
		StartsAt:    r.StartsAt.UTC(),
		Duration:    r.Duration,
		MeetingURL:  r.MeetingURL,
		Status:      r.Status,
		HostID:      r.HostID,
		StartedAt:   r.StartedAt.Ptr(),
		EndedAt:     r.EndedAt.Ptr(),
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type liveClassRepository struct {
	db *sqlx.DB
}

var _ liveclass.Repository = (*liveClassRepository)(nil)

func NewLiveClassRepository(db *sqlx.DB) liveclass.Repository {
	return &liveClassRepository{db: db}
}

func (repo *liveClassRepository) CreateSession(ctx context.Context, s liveclass.Session) (liveclass.Session, error) {
	s.ID = uuid.NewString()
	stmt := `INSERT INTO live_session (` + sessionColumns + `) VALUES (
		:id, :course_id, :title, :description, :starts_at, :duration, :meeting_url, :status,
		:host_id, :started_at, :ended_at, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, stmt, toSessionRow(s)); err != nil {
		return liveclass.Session{}, errors.Wrap(err, "inserting live session")
	}
	return s, nil
}

func (repo *liveClassRepository) QuerySessions(ctx context.Context, q query.Query) ([]liveclass.Session, int, error) {
	var rows []sessionRow
	count, err := selectPage(ctx, repo.db, &rows, "live_session", sessionColumns, q)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying live sessions")
	}
	ss := make([]liveclass.Session, 0, len(rows))
	for _, r := range rows {
		ss = append(ss, r.toSession())
	}
	return ss, count, nil
}

func (repo *liveClassRepository) GetSession(ctx context.Context, id string) (liveclass.Session, error) {
	if !validID(id) {
		return liveclass.Session{}, liveclass.ErrNotFound
	}
	var r sessionRow
	if err := repo.db.GetContext(ctx, &r, `SELECT `+sessionColumns+` FROM live_session WHERE id = $1`, id); err != nil {
		return liveclass.Session{}, trapNoRowsErr(err, liveclass.ErrNotFound, "getting live session")
	}
	return r.toSession(), nil
}

func (repo *liveClassRepository) UpdateSession(ctx context.Context, s liveclass.Session) (liveclass.Session, error) {
	stmt := `UPDATE live_session SET
		title = :title, description = :description, starts_at = :starts_at, duration = :duration,
		status = :status, started_at = :started_at, ended_at = :ended_at
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, stmt, toSessionRow(s))
	if err != nil {
		return liveclass.Session{}, errors.Wrap(err, "updating live session")
	}
	return s, checkAffected(res, liveclass.ErrNotFound)
}

func (repo *liveClassRepository) AddAttendance(ctx context.Context, a liveclass.Attendance) (bool, error) {
	stmt := `INSERT INTO live_attendance (session_id, student_id, joined_at) VALUES ($1, $2, $3)
		ON CONFLICT (session_id, student_id) DO NOTHING`
	res, err := repo.db.ExecContext(ctx, stmt, a.SessionID, a.StudentID, a.JoinedAt.UTC())
	if err != nil {
		return false, errors.Wrap(err, "recording attendance")
	}
	n, err := res.RowsAffected()
	return n > 0, errors.Wrap(err, "getting affected rows")
}

func (repo *liveClassRepository) ListAttendance(ctx context.Context, sessionID string) ([]liveclass.Attendance, error) {
	aa := make([]liveclass.Attendance, 0)
	if !validID(sessionID) {
		return aa, nil
	}
	var rows []struct {
		SessionID string    `db:"session_id"`
		StudentID string    `db:"student_id"`
		JoinedAt  time.Time `db:"joined_at"`
	}
	stmt := `SELECT session_id, student_id, joined_at FROM live_attendance WHERE session_id = $1 ORDER BY joined_at`
	if err := repo.db.SelectContext(ctx, &rows, stmt, sessionID); err != nil {
		return nil, errors.Wrap(err, "listing attendance")
	}
	for _, r := range rows {
		aa = append(aa, liveclass.Attendance{SessionID: r.SessionID, StudentID: r.StudentID, JoinedAt: r.JoinedAt.UTC()})
	}
	return aa, nil
}
