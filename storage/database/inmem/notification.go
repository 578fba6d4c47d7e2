package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/query"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotifications(_ context.Context, ns []notification.Notification) error {
	repo.db.notification.Lock()
	defer repo.db.notification.Unlock()

	for _, n := range ns {
		n.ID = uuid.NewString()
		repo.db.notification.put(n.ID, n)
	}
	return nil
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, q query.Query) ([]notification.Notification, int, error) {
	repo.db.notification.RLock()
	defer repo.db.notification.RUnlock()

	ns, count := query.Apply(repo.db.notification.list(), q)
	return ns, count, nil
}

func (repo *notificationRepository) GetNotification(_ context.Context, id string) (notification.Notification, error) {
	repo.db.notification.RLock()
	defer repo.db.notification.RUnlock()

	if n, ok := repo.db.notification.get(id); ok {
		return n, nil
	}
	return notification.Notification{}, notification.ErrNotFound
}

func (repo *notificationRepository) CountUnread(_ context.Context, userID string) (int, error) {
	repo.db.notification.RLock()
	defer repo.db.notification.RUnlock()

	var cnt int
	for _, n := range repo.db.notification.list() {
		if n.UserID == userID && !n.IsRead() {
			cnt++
		}
	}
	return cnt, nil
}

func (repo *notificationRepository) MarkRead(_ context.Context, userID string, ids []string, at time.Time) error {
	repo.db.notification.Lock()
	defer repo.db.notification.Unlock()

	only := make(map[string]bool, len(ids))
	for _, id := range ids {
		only[id] = true
	}
	for _, n := range repo.db.notification.list() {
		if n.UserID != userID || n.IsRead() || (len(only) > 0 && !only[n.ID]) {
			continue
		}
		readAt := at
		n.ReadAt = &readAt
		repo.db.notification.put(n.ID, n)
	}
	return nil
}

func (repo *notificationRepository) DeleteNotification(_ context.Context, id string) error {
	repo.db.notification.Lock()
	defer repo.db.notification.Unlock()

	if repo.db.notification.remove(id) == 0 {
		return notification.ErrNotFound
	}
	return nil
}
