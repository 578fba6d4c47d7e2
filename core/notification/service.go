package notification

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/query"
)

var ErrNotFound = core.NewNotFoundError("notification not found")

type (
	Repository interface {
		CreateNotifications(ctx context.Context, ns []Notification) error
		QueryNotifications(ctx context.Context, q query.Query) ([]Notification, int, error)
		GetNotification(ctx context.Context, id string) (Notification, error)
		CountUnread(ctx context.Context, userID string) (int, error)
		// MarkRead sets ReadAt on the user's unread notifications; all of them when ids is empty.
		MarkRead(ctx context.Context, userID string, ids []string, at time.Time) error
		DeleteNotification(ctx context.Context, id string) error
	}

	Service interface {
		Notify(ctx context.Context, userIDs []string, nn NewNotification) error
		ListMine(ctx context.Context, userID string, q query.Query) (query.Page[Notification], error)
		UnreadCount(ctx context.Context, userID string) (int, error)
		MarkRead(ctx context.Context, userID, id string) (Notification, error)
		MarkAllRead(ctx context.Context, userID string) error
		Delete(ctx context.Context, userID, id string) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	vala.BeginValidation().Validate(vala.IsNotNil(repo, "repo")).CheckAndPanic()
	return &service{repo: repo}
}

func (svc *service) Notify(ctx context.Context, userIDs []string, nn NewNotification) error {
	if len(userIDs) == 0 {
		return nil
	}
	if nn.Kind == "" {
		nn.Kind = KindSystem
	}

	now := core.NowFunc()
	seen := make(map[string]bool, len(userIDs))
	ns := make([]Notification, 0, len(userIDs))
	for _, id := range userIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ns = append(ns, Notification{
			UserID:    id,
			Kind:      nn.Kind,
			Title:     nn.Title,
			Body:      nn.Body,
			Link:      nn.Link,
			CreatedAt: now,
		})
	}
	return errors.Wrap(svc.repo.CreateNotifications(ctx, ns), "creating notifications")
}

func (svc *service) ListMine(ctx context.Context, userID string, q query.Query) (query.Page[Notification], error) {
	ns, count, err := svc.repo.QueryNotifications(ctx, q.Where("user_id", query.Eq, userID))
	if err != nil {
		return query.Page[Notification]{}, errors.Wrap(err, "querying notifications")
	}
	return query.NewPage(ns, count, q), nil
}

func (svc *service) UnreadCount(ctx context.Context, userID string) (int, error) {
	cnt, err := svc.repo.CountUnread(ctx, userID)
	return cnt, errors.Wrap(err, "counting unread notifications")
}

// getOwned hides other users' notifications behind ErrNotFound.
func (svc *service) getOwned(ctx context.Context, userID, id string) (Notification, error) {
	n, err := svc.repo.GetNotification(ctx, id)
	if err != nil {
		return Notification{}, errors.Wrap(err, "getting notification")
	}
	if n.UserID != userID {
		return Notification{}, ErrNotFound
	}
	return n, nil
}

func (svc *service) MarkRead(ctx context.Context, userID, id string) (Notification, error) {
	n, err := svc.getOwned(ctx, userID, id)
	if err != nil {
		return Notification{}, err
	}
	if n.IsRead() {
		return n, nil
	}

	now := core.NowFunc()
	if err := svc.repo.MarkRead(ctx, userID, []string{id}, now); err != nil {
		return Notification{}, errors.Wrap(err, "marking notification as read")
	}
	n.ReadAt = &now
	return n, nil
}

func (svc *service) MarkAllRead(ctx context.Context, userID string) error {
	return errors.Wrap(svc.repo.MarkRead(ctx, userID, nil, core.NowFunc()), "marking notifications as read")
}

func (svc *service) Delete(ctx context.Context, userID, id string) error {
	if _, err := svc.getOwned(ctx, userID, id); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteNotification(ctx, id), "deleting notification")
}
