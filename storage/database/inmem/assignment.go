package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/query"
)

type assignmentRepository struct {
	db *DB
}

var _ assignment.Repository = (*assignmentRepository)(nil)

func NewAssignmentRepository(db *DB) assignment.Repository {
	return &assignmentRepository{db: db}
}

func (repo *assignmentRepository) CreateAssignment(_ context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	repo.db.assignment.Lock()
	defer repo.db.assignment.Unlock()

	a.ID = uuid.NewString()
	repo.db.assignment.put(a.ID, a)
	return a, nil
}

func (repo *assignmentRepository) QueryAssignments(_ context.Context, q query.Query) ([]assignment.Assignment, int, error) {
	repo.db.assignment.RLock()
	defer repo.db.assignment.RUnlock()

	aa, count := query.Apply(repo.db.assignment.list(), q)
	return aa, count, nil
}

func (repo *assignmentRepository) GetAssignment(_ context.Context, id string) (assignment.Assignment, error) {
	repo.db.assignment.RLock()
	defer repo.db.assignment.RUnlock()

	if a, ok := repo.db.assignment.get(id); ok {
		return a, nil
	}
	return assignment.Assignment{}, assignment.ErrNotFound
}

func (repo *assignmentRepository) UpdateAssignment(_ context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	repo.db.assignment.Lock()
	defer repo.db.assignment.Unlock()

	if _, ok := repo.db.assignment.get(a.ID); !ok {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	repo.db.assignment.put(a.ID, a)
	return a, nil
}

func (repo *assignmentRepository) DeleteAssignment(_ context.Context, id string) error {
	repo.db.assignment.Lock()
	defer repo.db.assignment.Unlock()
	repo.db.submission.Lock()
	defer repo.db.submission.Unlock()

	if repo.db.assignment.remove(id) == 0 {
		return assignment.ErrNotFound
	}
	repo.db.submission.removeWhere(func(s assignment.Submission) bool { return s.AssignmentID == id })
	return nil
}

func (repo *assignmentRepository) QuerySubmissions(_ context.Context, q query.Query) ([]assignment.Submission, int, error) {
	repo.db.submission.RLock()
	defer repo.db.submission.RUnlock()

	ss, count := query.Apply(repo.db.submission.list(), q)
	return ss, count, nil
}

func (repo *assignmentRepository) GetSubmission(_ context.Context, id string) (assignment.Submission, error) {
	repo.db.submission.RLock()
	defer repo.db.submission.RUnlock()

	if s, ok := repo.db.submission.get(id); ok {
		return s, nil
	}
	return assignment.Submission{}, assignment.ErrSubmissionNotFound
}

func (repo *assignmentRepository) find(assignmentID, studentID string) (assignment.Submission, bool) {
	for _, s := range repo.db.submission.list() {
		if s.AssignmentID == assignmentID && s.StudentID == studentID {
			return s, true
		}
	}
	return assignment.Submission{}, false
}

func (repo *assignmentRepository) FindSubmission(_ context.Context, assignmentID, studentID string) (assignment.Submission, error) {
	repo.db.submission.RLock()
	defer repo.db.submission.RUnlock()

	if s, ok := repo.find(assignmentID, studentID); ok {
		return s, nil
	}
	return assignment.Submission{}, assignment.ErrSubmissionNotFound
}

func (repo *assignmentRepository) SaveSubmission(_ context.Context, s assignment.Submission) (assignment.Submission, error) {
	repo.db.submission.Lock()
	defer repo.db.submission.Unlock()

	if existing, ok := repo.find(s.AssignmentID, s.StudentID); ok {
		s.ID = existing.ID
	} else {
		s.ID = uuid.NewString()
	}
	repo.db.submission.put(s.ID, s)
	return s, nil
}
