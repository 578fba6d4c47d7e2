package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/query"
)

const notificationColumns = "id, user_id, kind, title, body, link, read_at, created_at"

type notificationRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Kind      string    `db:"kind"`
	Title     string    `db:"title"`
	Body      string    `db:"body"`
	Link      string    `db:"link"`
	ReadAt    null.Time `db:"read_at"`
	CreatedAt time.Time `db:"created_at"`
}

func (r notificationRow) toNotification() notification.Notification {
	return notification.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Kind:      r.Kind,
		Title:     r.Title,
		Body:      r.Body,
		Link:      r.Link,
		ReadAt:    r.ReadAt.Ptr(),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *sqlx.DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotifications(ctx context.Context, ns []notification.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	rows := make([]notificationRow, 0, len(ns))
	for _, n := range ns {
		rows = append(rows, notificationRow{
			ID:        uuid.NewString(),
			UserID:    n.UserID,
			Kind:      n.Kind,
			Title:     n.Title,
			Body:      n.Body,
			Link:      n.Link,
			ReadAt:    null.TimeFromPtr(n.ReadAt),
			CreatedAt: n.CreatedAt.UTC(),
		})
	}
	stmt := `INSERT INTO notification (` + notificationColumns + `)
		VALUES (:id, :user_id, :kind, :title, :body, :link, :read_at, :created_at)`
	_, err := repo.db.NamedExecContext(ctx, stmt, rows)
	return errors.Wrap(err, "inserting notifications")
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, q query.Query) ([]notification.Notification, int, error) {
	var rows []notificationRow
	count, err := selectPage(ctx, repo.db, &rows, "notification", notificationColumns, q)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying notifications")
	}
	ns := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		ns = append(ns, r.toNotification())
	}
	return ns, count, nil
}

func (repo *notificationRepository) GetNotification(ctx context.Context, id string) (notification.Notification, error) {
	if !validID(id) {
		return notification.Notification{}, notification.ErrNotFound
	}
	var r notificationRow
	stmt := `SELECT ` + notificationColumns + ` FROM notification WHERE id = $1`
	if err := repo.db.GetContext(ctx, &r, stmt, id); err != nil {
		return notification.Notification{}, trapNoRowsErr(err, notification.ErrNotFound, "getting notification")
	}
	return r.toNotification(), nil
}

func (repo *notificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	if !validID(userID) {
		return 0, nil
	}
	var count int
	stmt := `SELECT COUNT(*) FROM notification WHERE user_id = $1 AND read_at IS NULL`
	err := repo.db.GetContext(ctx, &count, stmt, userID)
	return count, errors.Wrap(err, "counting unread notifications")
}

func (repo *notificationRepository) MarkRead(ctx context.Context, userID string, ids []string, at time.Time) error {
	stmt := `UPDATE notification SET read_at = ? WHERE user_id = ? AND read_at IS NULL`
	args := []interface{}{at.UTC(), userID}
	if len(ids) > 0 {
		ids = validIDs(ids)
		if len(ids) == 0 {
			return nil
		}
		stmt += " AND id IN (?)"
		args = append(args, ids)
	}
	stmt, args, err := sqlx.In(stmt, args...)
	if err != nil {
		return errors.Wrap(err, "building mark-read query")
	}
	_, err = repo.db.ExecContext(ctx, repo.db.Rebind(stmt), args...)
	return errors.Wrap(err, "marking notifications read")
}

func (repo *notificationRepository) DeleteNotification(ctx context.Context, id string) error {
	if !validID(id) {
		return notification.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM notification WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting notification")
	}
	return checkAffected(res, notification.ErrNotFound)
}
