// Package dashboard aggregates the per-role home page counters.
package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/enrollment"
	"github.com/trezcool/darasa/core/liveclass"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/query"
	"github.com/trezcool/darasa/core/user"
)

// DueSoonWindow is how far ahead the student dashboard looks for deadlines.
const DueSoonWindow = 14 * 24 * time.Hour

type (
	Student struct {
		ActiveEnrollments    int                     `json:"active_enrollments"`
		CompletedEnrollments int                     `json:"completed_enrollments"`
		AverageProgress      float64                 `json:"average_progress"`
		DueSoon              []assignment.Assignment `json:"due_soon"`
		UpcomingSessions     []liveclass.Session     `json:"upcoming_sessions"`
		UnreadNotifications  int                     `json:"unread_notifications"`
	}

	Teacher struct {
		CoursesByStatus     map[string]int      `json:"courses_by_status"`
		Students            int                 `json:"students"`
		UngradedSubmissions int                 `json:"ungraded_submissions"`
		UpcomingSessions    []liveclass.Session `json:"upcoming_sessions"`
		UnreadNotifications int                 `json:"unread_notifications"`
	}

	Admin struct {
		UsersByRole         map[string]int   `json:"users_by_role"`
		PendingOnboarding   int              `json:"pending_onboarding"`
		CoursesByStatus     map[string]int   `json:"courses_by_status"`
		Enrollments         int              `json:"enrollments"`
		Revenue             map[string]int64 `json:"revenue"`
		UnreadNotifications int              `json:"unread_notifications"`
	}

	Service interface {
		Student(ctx context.Context, usr user.User) (Student, error)
		Teacher(ctx context.Context, usr user.User) (Teacher, error)
		Admin(ctx context.Context, usr user.User) (Admin, error)
	}

	service struct {
		userSvc   user.Service
		courseSvc course.Service
		enrollSvc enrollment.Service
		assignSvc assignment.Service
		liveSvc   liveclass.Service
		notifSvc  notification.Service
	}
)

var _ Service = (*service)(nil)

func NewService(
	userSvc user.Service,
	courseSvc course.Service,
	enrollSvc enrollment.Service,
	assignSvc assignment.Service,
	liveSvc liveclass.Service,
	notifSvc notification.Service,
) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(userSvc, "userSvc"),
		vala.IsNotNil(courseSvc, "courseSvc"),
		vala.IsNotNil(enrollSvc, "enrollSvc"),
		vala.IsNotNil(assignSvc, "assignSvc"),
		vala.IsNotNil(liveSvc, "liveSvc"),
		vala.IsNotNil(notifSvc, "notifSvc"),
	).CheckAndPanic()

	return &service{
		userSvc:   userSvc,
		courseSvc: courseSvc,
		enrollSvc: enrollSvc,
		assignSvc: assignSvc,
		liveSvc:   liveSvc,
		notifSvc:  notifSvc,
	}
}

func (svc *service) Student(ctx context.Context, usr user.User) (Student, error) {
	var dash Student
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		page, err := svc.enrollSvc.ListMine(ctx, usr, query.New(enrollment.Schema))
		if err != nil {
			return err
		}
		var total, n int
		for _, e := range page.Results {
			switch e.Status {
			case enrollment.StatusActive:
				dash.ActiveEnrollments++
			case enrollment.StatusCompleted:
				dash.CompletedEnrollments++
			default:
				continue
			}
			total += e.Progress
			n++
		}
		if n > 0 {
			dash.AverageProgress = float64(total) / float64(n)
		}
		return nil
	})
	g.Go(func() (err error) {
		dash.DueSoon, err = svc.assignSvc.DueSoon(ctx, usr.ID, DueSoonWindow)
		return err
	})
	g.Go(func() (err error) {
		dash.UpcomingSessions, err = svc.liveSvc.Upcoming(ctx, usr)
		return err
	})
	g.Go(func() (err error) {
		dash.UnreadNotifications, err = svc.notifSvc.UnreadCount(ctx, usr.ID)
		return err
	})

	if err := g.Wait(); err != nil {
		return Student{}, errors.Wrap(err, "building student dashboard")
	}
	return dash, nil
}

func (svc *service) Teacher(ctx context.Context, usr user.User) (Teacher, error) {
	courses, err := svc.courseSvc.ListAll(ctx, query.New(course.Schema).Where("teacher_id", query.Eq, usr.ID))
	if err != nil {
		return Teacher{}, errors.Wrap(err, "listing courses")
	}

	dash := Teacher{CoursesByStatus: make(map[string]int, len(course.Statuses))}
	for _, status := range course.Statuses {
		dash.CoursesByStatus[status] = 0
	}
	courseIDs := make([]string, 0, len(courses))
	for _, c := range courses {
		dash.CoursesByStatus[c.Status]++
		courseIDs = append(courseIDs, c.ID)
	}

	g, ctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	students := make(map[string]bool)
	for _, id := range courseIDs {
		id := id
		g.Go(func() error {
			ids, err := svc.enrollSvc.StudentIDs(ctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, sid := range ids {
				students[sid] = true
			}
			return nil
		})
	}
	g.Go(func() (err error) {
		dash.UngradedSubmissions, err = svc.assignSvc.CountUngraded(ctx, courseIDs)
		return err
	})
	g.Go(func() (err error) {
		dash.UpcomingSessions, err = svc.liveSvc.Upcoming(ctx, usr)
		return err
	})
	g.Go(func() (err error) {
		dash.UnreadNotifications, err = svc.notifSvc.UnreadCount(ctx, usr.ID)
		return err
	})

	if err := g.Wait(); err != nil {
		return Teacher{}, errors.Wrap(err, "building teacher dashboard")
	}
	dash.Students = len(students)
	return dash, nil
}

func (svc *service) Admin(ctx context.Context, usr user.User) (Admin, error) {
	dash := Admin{
		UsersByRole:     make(map[string]int, len(user.AllRoles)),
		CoursesByStatus: make(map[string]int, len(course.Statuses)),
	}
	g, ctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	count := func(m map[string]int, key string, fn func() (int, error)) {
		g.Go(func() error {
			n, err := fn()
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			m[key] = n
			return nil
		})
	}

	countUsers := func(q query.Query) (int, error) {
		q.Limit = 1
		page, err := svc.userSvc.Query(ctx, q)
		return page.Count, err
	}
	for _, role := range []string{user.RoleAdmin, user.RoleTeacher, user.RoleStudent} {
		role := role
		count(dash.UsersByRole, role, func() (int, error) {
			return countUsers(query.New(user.Schema).Where("role", query.Eq, role))
		})
	}
	for _, status := range course.Statuses {
		status := status
		count(dash.CoursesByStatus, status, func() (int, error) {
			q := query.New(course.Schema).Where("status", query.Eq, status)
			q.Limit = 1
			page, err := svc.courseSvc.Query(ctx, usr, q)
			return page.Count, err
		})
	}

	g.Go(func() (err error) {
		dash.PendingOnboarding, err = countUsers(query.New(user.Schema).Where("onboarding_status", query.Eq, user.OnboardingPending))
		return err
	})
	g.Go(func() (err error) {
		dash.Enrollments, err = svc.enrollSvc.Count(ctx, query.New(enrollment.Schema))
		return err
	})
	g.Go(func() (err error) {
		dash.Revenue, err = svc.enrollSvc.Revenue(ctx)
		return err
	})
	g.Go(func() (err error) {
		dash.UnreadNotifications, err = svc.notifSvc.UnreadCount(ctx, usr.ID)
		return err
	})

	if err := g.Wait(); err != nil {
		return Admin{}, errors.Wrap(err, "building admin dashboard")
	}
	return dash, nil
}
