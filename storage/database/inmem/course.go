package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/query"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()

	c.ID = uuid.NewString()
	repo.db.course.put(c.ID, c)
	return c, nil
}

func (repo *courseRepository) QueryCourses(_ context.Context, q query.Query) ([]course.Course, int, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()

	courses, count := query.Apply(repo.db.course.list(), q)
	return courses, count, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id string) (course.Course, error) {
	repo.db.course.RLock()
	defer repo.db.course.RUnlock()

	if c, ok := repo.db.course.get(id); ok {
		return c, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) UpdateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()

	if _, ok := repo.db.course.get(c.ID); !ok {
		return course.Course{}, course.ErrNotFound
	}
	repo.db.course.put(c.ID, c)
	return c, nil
}

func (repo *courseRepository) DeleteCourse(_ context.Context, id string) error {
	repo.db.course.Lock()
	defer repo.db.course.Unlock()
	repo.db.module.Lock()
	defer repo.db.module.Unlock()

	if repo.db.course.remove(id) == 0 {
		return course.ErrNotFound
	}
	repo.db.module.removeWhere(func(m course.Module) bool { return m.CourseID == id })
	return nil
}

func (repo *courseRepository) CountEnrollments(_ context.Context, courseID string) (int, error) {
	repo.db.enrollment.RLock()
	defer repo.db.enrollment.RUnlock()

	var cnt int
	for _, e := range repo.db.enrollment.list() {
		if e.CourseID == courseID {
			cnt++
		}
	}
	return cnt, nil
}

func (repo *courseRepository) CreateModule(_ context.Context, m course.Module) (course.Module, error) {
	repo.db.module.Lock()
	defer repo.db.module.Unlock()

	m.ID = uuid.NewString()
	repo.db.module.put(m.ID, m)
	return m, nil
}

func (repo *courseRepository) ListModules(_ context.Context, courseID string) ([]course.Module, error) {
	repo.db.module.RLock()
	defer repo.db.module.RUnlock()

	mods := make([]course.Module, 0)
	for _, m := range repo.db.module.list() {
		if m.CourseID == courseID {
			mods = append(mods, m)
		}
	}
	sort.SliceStable(mods, func(i, j int) bool { return mods[i].Position < mods[j].Position })
	return mods, nil
}

func (repo *courseRepository) GetModule(_ context.Context, id string) (course.Module, error) {
	repo.db.module.RLock()
	defer repo.db.module.RUnlock()

	if m, ok := repo.db.module.get(id); ok {
		return m, nil
	}
	return course.Module{}, course.ErrModuleNotFound
}

func (repo *courseRepository) UpdateModules(_ context.Context, mods ...course.Module) error {
	repo.db.module.Lock()
	defer repo.db.module.Unlock()

	for _, m := range mods {
		if _, ok := repo.db.module.get(m.ID); !ok {
			return course.ErrModuleNotFound
		}
	}
	for _, m := range mods {
		repo.db.module.put(m.ID, m)
	}
	return nil
}

func (repo *courseRepository) DeleteModule(_ context.Context, id string) error {
	repo.db.module.Lock()
	defer repo.db.module.Unlock()

	if repo.db.module.remove(id) == 0 {
		return course.ErrModuleNotFound
	}
	return nil
}
