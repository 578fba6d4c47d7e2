package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core/liveclass"
	"github.com/trezcool/darasa/core/query"
)

type liveClassRepository struct {
	db *DB
}

var _ liveclass.Repository = (*liveClassRepository)(nil)

func NewLiveClassRepository(db *DB) liveclass.Repository {
	return &liveClassRepository{db: db}
}

func (repo *liveClassRepository) CreateSession(_ context.Context, s liveclass.Session) (liveclass.Session, error) {
	repo.db.session.Lock()
	defer repo.db.session.Unlock()

	s.ID = uuid.NewString()
	repo.db.session.put(s.ID, s)
	return s, nil
}

func (repo *liveClassRepository) QuerySessions(_ context.Context, q query.Query) ([]liveclass.Session, int, error) {
	repo.db.session.RLock()
	defer repo.db.session.RUnlock()

	ss, count := query.Apply(repo.db.session.list(), q)
	return ss, count, nil
}

func (repo *liveClassRepository) GetSession(_ context.Context, id string) (liveclass.Session, error) {
	repo.db.session.RLock()
	defer repo.db.session.RUnlock()

	if s, ok := repo.db.session.get(id); ok {
		return s, nil
	}
	return liveclass.Session{}, liveclass.ErrNotFound
}

func (repo *liveClassRepository) UpdateSession(_ context.Context, s liveclass.Session) (liveclass.Session, error) {
	repo.db.session.Lock()
	defer repo.db.session.Unlock()

	if _, ok := repo.db.session.get(s.ID); !ok {
		return liveclass.Session{}, liveclass.ErrNotFound
	}
	repo.db.session.put(s.ID, s)
	return s, nil
}

func (repo *liveClassRepository) AddAttendance(_ context.Context, a liveclass.Attendance) (bool, error) {
	repo.db.attendance.Lock()
	defer repo.db.attendance.Unlock()

	key := a.SessionID + "/" + a.StudentID
	if _, ok := repo.db.attendance.get(key); ok {
		return false, nil
	}
	repo.db.attendance.put(key, a)
	return true, nil
}

func (repo *liveClassRepository) ListAttendance(_ context.Context, sessionID string) ([]liveclass.Attendance, error) {
	repo.db.attendance.RLock()
	defer repo.db.attendance.RUnlock()

	aa := make([]liveclass.Attendance, 0)
	for _, a := range repo.db.attendance.list() {
		if a.SessionID == sessionID {
			aa = append(aa, a)
		}
	}
	return aa, nil
}
