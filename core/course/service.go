package course

import (
	"context"
	"sort"
	"time"

	"github.com/kat-co/vala"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/query"
	"github.com/trezcool/darasa/core/user"
)

const publishedCacheTTL = time.Minute

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("course not found")
	ErrModuleNotFound = core.NewNotFoundError("module not found")
	ErrHasEnrollments = core.NewConflictError("course has enrollments; archive it instead")
	ErrNotPublished   = core.NewConflictError("course is not open for enrollment")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course) (Course, error)
		QueryCourses(ctx context.Context, q query.Query) ([]Course, int, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		UpdateCourse(ctx context.Context, c Course) (Course, error)
		DeleteCourse(ctx context.Context, id string) error
		// CountEnrollments counts every enrollment of the course, whatever its status.
		CountEnrollments(ctx context.Context, courseID string) (int, error)

		CreateModule(ctx context.Context, m Module) (Module, error)
		// ListModules returns the modules of a course ordered by position.
		ListModules(ctx context.Context, courseID string) ([]Module, error)
		GetModule(ctx context.Context, id string) (Module, error)
		UpdateModules(ctx context.Context, mods ...Module) error
		DeleteModule(ctx context.Context, id string) error
	}

	Service interface {
		Create(ctx context.Context, actor user.User, nc NewCourse) (Course, error)
		Get(ctx context.Context, actor user.User, id string) (Course, error)
		// GetByID skips visibility rules; internal callers only.
		GetByID(ctx context.Context, id string) (Course, error)
		// GetManaged returns the course if actor is its owner or an admin.
		GetManaged(ctx context.Context, actor user.User, id string) (Course, error)
		// GetPublished is the cached lookup used by checkout.
		GetPublished(ctx context.Context, id string) (Course, error)
		Query(ctx context.Context, actor user.User, q query.Query) (query.Page[Course], error)
		ListAll(ctx context.Context, q query.Query) ([]Course, error)
		Update(ctx context.Context, actor user.User, id string, uc UpdateCourse) (Course, error)
		Delete(ctx context.Context, actor user.User, id string) error

		AddModule(ctx context.Context, actor user.User, courseID string, nm NewModule) (Module, error)
		ListModules(ctx context.Context, actor user.User, courseID string) ([]Module, error)
		// GetModule returns the module if it belongs to the course.
		GetModule(ctx context.Context, courseID, moduleID string) (Module, error)
		ModuleIDs(ctx context.Context, courseID string) ([]string, error)
		UpdateModule(ctx context.Context, actor user.User, courseID, moduleID string, um UpdateModule) (Module, error)
		DeleteModule(ctx context.Context, actor user.User, courseID, moduleID string) error
	}

	service struct {
		repo      Repository
		userSvc   user.Service
		conf      *core.Config
		published *cache.Cache
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, userSvc user.Service, conf *core.Config) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(userSvc, "userSvc"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &service{
		repo:      repo,
		userSvc:   userSvc,
		conf:      conf,
		published: cache.New(publishedCacheTTL, 5*publishedCacheTTL),
	}
}

func (svc *service) Create(ctx context.Context, actor user.User, nc NewCourse) (Course, error) {
	teacherID := actor.ID
	if actor.IsAdmin() {
		if nc.TeacherID == "" {
			return Course{}, core.NewFieldValidationError("teacher_id", "this field is required")
		}
		teacher, err := svc.userSvc.GetByID(ctx, nc.TeacherID)
		if err != nil && !core.IsNotFound(err) {
			return Course{}, errors.Wrap(err, "getting teacher")
		}
		if err != nil || !teacher.IsTeacher() {
			return Course{}, core.NewFieldValidationError("teacher_id", "must be the ID of a teacher")
		}
		teacherID = teacher.ID
	} else if !actor.IsTeacher() {
		return Course{}, core.ErrPermissionDenied
	}

	now := core.NowFunc()
	c := Course{
		Title:        nc.Title,
		Description:  nc.Description,
		Category:     nc.Category,
		Level:        nc.Level,
		Price:        nc.Price,
		Currency:     nc.Currency,
		TeacherID:    teacherID,
		Status:       nc.Status,
		Capacity:     nc.Capacity,
		StartsAt:     nc.StartsAt,
		EndsAt:       nc.EndsAt,
		ThumbnailURL: nc.ThumbnailURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if c.Level == "" {
		c.Level = LevelBeginner
	}
	if c.Currency == "" {
		c.Currency = svc.conf.Payment.Currency
	}
	if c.Status == "" {
		c.Status = StatusDraft
	}
	if err := c.validate(); err != nil {
		return Course{}, err
	}

	c, err := svc.repo.CreateCourse(ctx, c)
	return c, errors.Wrap(err, "creating course")
}

// Get hides unpublished courses from everyone but their owner and admins.
func (svc *service) Get(ctx context.Context, actor user.User, id string) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, errors.Wrap(err, "getting course")
	}
	if !c.VisibleTo(actor) {
		return Course{}, ErrNotFound
	}
	return c, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	return c, errors.Wrap(err, "getting course")
}

func (svc *service) GetManaged(ctx context.Context, actor user.User, id string) (Course, error) {
	c, err := svc.Get(ctx, actor, id)
	if err != nil {
		return Course{}, err
	}
	if !c.CanManage(actor) {
		return Course{}, core.ErrPermissionDenied
	}
	return c, nil
}

func (svc *service) GetPublished(ctx context.Context, id string) (Course, error) {
	if c, ok := svc.published.Get(id); ok {
		return c.(Course), nil
	}

	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, errors.Wrap(err, "getting course")
	}
	if !c.IsPublished() {
		return Course{}, ErrNotPublished
	}
	svc.published.SetDefault(id, c)
	return c, nil
}

// Query lists published courses, unless actor is an admin or filters on their own courses.
func (svc *service) Query(ctx context.Context, actor user.User, q query.Query) (query.Page[Course], error) {
	if !actor.IsAdmin() && !filtersOwnCourses(q, actor) {
		q = q.Where("status", query.Eq, StatusPublished)
	}
	courses, count, err := svc.repo.QueryCourses(ctx, q)
	if err != nil {
		return query.Page[Course]{}, errors.Wrap(err, "querying courses")
	}
	return query.NewPage(courses, count, q), nil
}

// ListAll runs q without visibility rules; internal callers only.
func (svc *service) ListAll(ctx context.Context, q query.Query) ([]Course, error) {
	courses, _, err := svc.repo.QueryCourses(ctx, q)
	return courses, errors.Wrap(err, "querying courses")
}

func (svc *service) Update(ctx context.Context, actor user.User, id string, uc UpdateCourse) (Course, error) {
	c, err := svc.GetManaged(ctx, actor, id)
	if err != nil {
		return Course{}, err
	}

	c = uc.apply(c)
	if err := c.validate(); err != nil {
		return Course{}, err
	}
	c.UpdatedAt = core.NowFunc()

	c, err = svc.repo.UpdateCourse(ctx, c)
	if err != nil {
		return Course{}, errors.Wrap(err, "updating course")
	}
	svc.published.Delete(id)
	return c, nil
}

// Delete refuses to drop a course that has enrollments; those are payment records.
func (svc *service) Delete(ctx context.Context, actor user.User, id string) error {
	if _, err := svc.GetManaged(ctx, actor, id); err != nil {
		return err
	}

	cnt, err := svc.repo.CountEnrollments(ctx, id)
	if err != nil {
		return errors.Wrap(err, "counting enrollments")
	}
	if cnt > 0 {
		return ErrHasEnrollments
	}

	if err := svc.repo.DeleteCourse(ctx, id); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	svc.published.Delete(id)
	return nil
}

func (svc *service) AddModule(ctx context.Context, actor user.User, courseID string, nm NewModule) (Module, error) {
	if _, err := svc.GetManaged(ctx, actor, courseID); err != nil {
		return Module{}, err
	}
	mods, err := svc.repo.ListModules(ctx, courseID)
	if err != nil {
		return Module{}, errors.Wrap(err, "listing modules")
	}

	m := Module{
		CourseID:    courseID,
		Title:       nm.Title,
		Description: nm.Description,
		Position:    len(mods) + 1,
		CreatedAt:   core.NowFunc(),
	}
	if m, err = svc.repo.CreateModule(ctx, m); err != nil {
		return Module{}, errors.Wrap(err, "creating module")
	}
	if nm.Position == 0 || nm.Position > len(mods) {
		return m, nil
	}

	moved := reposition(append(mods, m), m.ID, nm.Position)
	if err := svc.repo.UpdateModules(ctx, moved...); err != nil {
		return Module{}, errors.Wrap(err, "reordering modules")
	}
	return findModule(moved, m.ID), nil
}

func (svc *service) ListModules(ctx context.Context, actor user.User, courseID string) ([]Module, error) {
	if _, err := svc.Get(ctx, actor, courseID); err != nil {
		return nil, err
	}
	mods, err := svc.repo.ListModules(ctx, courseID)
	return mods, errors.Wrap(err, "listing modules")
}

func (svc *service) GetModule(ctx context.Context, courseID, moduleID string) (Module, error) {
	m, err := svc.repo.GetModule(ctx, moduleID)
	if err != nil {
		return Module{}, errors.Wrap(err, "getting module")
	}
	if m.CourseID != courseID {
		return Module{}, ErrModuleNotFound
	}
	return m, nil
}

func (svc *service) ModuleIDs(ctx context.Context, courseID string) ([]string, error) {
	mods, err := svc.repo.ListModules(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "listing modules")
	}
	ids := make([]string, 0, len(mods))
	for _, m := range mods {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (svc *service) UpdateModule(ctx context.Context, actor user.User, courseID, moduleID string, um UpdateModule) (Module, error) {
	if _, err := svc.GetManaged(ctx, actor, courseID); err != nil {
		return Module{}, err
	}
	m, err := svc.GetModule(ctx, courseID, moduleID)
	if err != nil {
		return Module{}, err
	}

	if um.Title != nil && *um.Title != "" {
		m.Title = *um.Title
	}
	if um.Description != nil {
		m.Description = *um.Description
	}
	if um.Position == nil || *um.Position == m.Position {
		return m, errors.Wrap(svc.repo.UpdateModules(ctx, m), "updating module")
	}

	mods, err := svc.repo.ListModules(ctx, courseID)
	if err != nil {
		return Module{}, errors.Wrap(err, "listing modules")
	}
	for i := range mods {
		if mods[i].ID == m.ID {
			mods[i] = m
		}
	}
	mods = reposition(mods, m.ID, *um.Position)
	if err := svc.repo.UpdateModules(ctx, mods...); err != nil {
		return Module{}, errors.Wrap(err, "reordering modules")
	}
	return findModule(mods, m.ID), nil
}

func (svc *service) DeleteModule(ctx context.Context, actor user.User, courseID, moduleID string) error {
	if _, err := svc.GetManaged(ctx, actor, courseID); err != nil {
		return err
	}
	if _, err := svc.GetModule(ctx, courseID, moduleID); err != nil {
		return err
	}
	if err := svc.repo.DeleteModule(ctx, moduleID); err != nil {
		return errors.Wrap(err, "deleting module")
	}

	mods, err := svc.repo.ListModules(ctx, courseID)
	if err != nil {
		return errors.Wrap(err, "listing modules")
	}
	return errors.Wrap(svc.repo.UpdateModules(ctx, renumber(mods)...), "reordering modules")
}

func filtersOwnCourses(q query.Query, actor user.User) bool {
	if actor.ID == "" {
		return false
	}
	for _, c := range q.Conditions {
		if c.Field == "teacher_id" && c.Op == query.Eq && c.Value == actor.ID {
			return true
		}
	}
	return false
}

// reposition moves the module with the given id to pos (1-based, clamped) and renumbers all.
func reposition(mods []Module, id string, pos int) []Module {
	sort.SliceStable(mods, func(i, j int) bool { return mods[i].Position < mods[j].Position })

	var moved Module
	rest := make([]Module, 0, len(mods))
	for _, m := range mods {
		if m.ID == id {
			moved = m
			continue
		}
		rest = append(rest, m)
	}
	if pos < 1 {
		pos = 1
	}
	if pos > len(rest)+1 {
		pos = len(rest) + 1
	}

	out := make([]Module, 0, len(mods))
	out = append(out, rest[:pos-1]...)
	out = append(out, moved)
	out = append(out, rest[pos-1:]...)
	return renumber(out)
}

// renumber assigns contiguous positions following the slice order.
func renumber(mods []Module) []Module {
	for i := range mods {
		mods[i].Position = i + 1
	}
	return mods
}

func findModule(mods []Module, id string) Module {
	for _, m := range mods {
		if m.ID == id {
			return m
		}
	}
	return Module{}
}
