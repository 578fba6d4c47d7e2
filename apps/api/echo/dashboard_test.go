package echoapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/dashboard"
	"github.com/trezcool/darasa/core/liveclass"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/tests"
)

func Test_dashboardApi(t *testing.T) {
	env, app := setup(t)

	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin", "admin@email.com", pwd, []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, env.UserRepo, "Teacher", "teach", "teach@email.com", pwd, []string{user.RoleTeacher}, true)
	student := testutil.CreateUser(t, env.UserRepo, "Student", "stud", "stud@email.com", pwd, []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, env.UserRepo, "Other", "other", "other@email.com", pwd, []string{user.RoleStudent}, true)
	testutil.CreatePendingUser(t, env.UserRepo, "Pending", "pend", "pend@email.com", pwd, []string{user.RoleTeacher})

	goCourse := testutil.CreateCourse(t, env.CourseSvc, teacher, "Go", 5000, 0)
	gitCourse := testutil.CreateCourse(t, env.CourseSvc, teacher, "Git", 0, 0)
	_, err := env.CourseSvc.Create(ctx(), teacher, course.NewCourse{Title: "Rust"})
	require.NoError(t, err)
	mod := testutil.AddModule(t, env.CourseSvc, teacher, gitCourse.ID, "Basics")

	testutil.Enroll(t, env.EnrollSvc, student, goCourse.ID)
	gitEnr := testutil.Enroll(t, env.EnrollSvc, student, gitCourse.ID)
	testutil.Enroll(t, env.EnrollSvc, other, goCourse.ID)
	_, err = env.EnrollSvc.CompleteModule(ctx(), student, gitEnr.ID, mod.ID)
	require.NoError(t, err)

	due := time.Now().Add(3 * 24 * time.Hour).UTC()
	hw, err := env.AssignSvc.Create(ctx(), teacher, goCourse.ID, assignment.NewAssignment{Title: "Homework", MaxPoints: 10, DueAt: &due})
	require.NoError(t, err)
	_, err = env.AssignSvc.Submit(ctx(), other, hw.ID, assignment.NewSubmission{Content: "done"})
	require.NoError(t, err)

	starts := time.Now().Add(24 * time.Hour).UTC()
	sess, err := env.LiveSvc.Schedule(ctx(), teacher, goCourse.ID, liveclass.NewSession{Title: "Q&A", StartsAt: &starts, Duration: 60})
	require.NoError(t, err)

	t.Run("student", func(t *testing.T) {
		rec := do(t, app, http.MethodGet, "/v1/dashboard", getToken(t, env, student), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var dash dashboard.Student
		unmarshal(t, rec, &dash)
		assert.Equal(t, 1, dash.ActiveEnrollments)
		assert.Equal(t, 1, dash.CompletedEnrollments)
		assert.Equal(t, float64(50), dash.AverageProgress)
		require.Len(t, dash.DueSoon, 1)
		assert.Equal(t, hw.ID, dash.DueSoon[0].ID)
		require.Len(t, dash.UpcomingSessions, 1)
		assert.Equal(t, sess.ID, dash.UpcomingSessions[0].ID)
		// 2 enrollments, 1 assignment, 1 live class
		assert.Equal(t, 4, dash.UnreadNotifications)
	})

	t.Run("submitted work is not due", func(t *testing.T) {
		rec := do(t, app, http.MethodGet, "/v1/dashboard?as=student", getToken(t, env, other), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var dash dashboard.Student
		unmarshal(t, rec, &dash)
		assert.Empty(t, dash.DueSoon)
	})

	t.Run("teacher", func(t *testing.T) {
		rec := do(t, app, http.MethodGet, "/v1/dashboard", getToken(t, env, teacher), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var dash dashboard.Teacher
		unmarshal(t, rec, &dash)
		assert.Equal(t, map[string]int{course.StatusDraft: 1, course.StatusPublished: 2, course.StatusArchived: 0}, dash.CoursesByStatus)
		assert.Equal(t, 2, dash.Students)
		assert.Equal(t, 1, dash.UngradedSubmissions)
		require.Len(t, dash.UpcomingSessions, 1)
	})

	t.Run("admin", func(t *testing.T) {
		rec := do(t, app, http.MethodGet, "/v1/dashboard", getToken(t, env, admin), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var dash dashboard.Admin
		unmarshal(t, rec, &dash)
		assert.Equal(t, map[string]int{user.RoleAdmin: 1, user.RoleTeacher: 2, user.RoleStudent: 2}, dash.UsersByRole)
		assert.Equal(t, 1, dash.PendingOnboarding)
		assert.Equal(t, map[string]int{course.StatusDraft: 1, course.StatusPublished: 2, course.StatusArchived: 0}, dash.CoursesByStatus)
		assert.Equal(t, 3, dash.Enrollments)
		assert.Equal(t, map[string]int64{"USD": 10000}, dash.Revenue)
	})

	runHTTPTests(t, app, []httpTest{
		{
			name:     "auth required",
			path:     "/v1/dashboard",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "students cannot see the admin dashboard",
			path:     "/v1/dashboard?as=admin",
			token:    getToken(t, env, student),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name:     "teachers cannot see a student dashboard",
			path:     "/v1/dashboard?as=student",
			token:    getToken(t, env, teacher),
			wantCode: http.StatusForbidden,
		},
	})
}
