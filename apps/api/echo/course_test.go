package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/query"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/tests"
)

func Test_courseApi_catalog(t *testing.T) {
	env, app := setup(t)

	teacher := testutil.CreateUser(t, env.UserRepo, "Teacher", "teach", "teach@email.com", pwd, []string{user.RoleTeacher}, true)
	other := testutil.CreateUser(t, env.UserRepo, "Other", "other", "other@email.com", pwd, []string{user.RoleTeacher}, true)
	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin", "admin@email.com", pwd, []string{user.RoleAdmin}, true)

	published := testutil.CreateCourse(t, env.CourseSvc, teacher, "Go", 5000, 0)
	rec := do(t, app, http.MethodPost, "/v1/courses", getToken(t, env, teacher), course.NewCourse{Title: "Rust"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var draft course.Course
	unmarshal(t, rec, &draft)
	assert.Equal(t, course.StatusDraft, draft.Status)
	assert.Equal(t, course.LevelBeginner, draft.Level)
	assert.Equal(t, "USD", draft.Currency)
	assert.Equal(t, teacher.ID, draft.TeacherID)

	listed := func(t *testing.T, path, token string) []string {
		rec := do(t, app, http.MethodGet, path, token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var page query.Page[course.Course]
		unmarshal(t, rec, &page)
		ids := make([]string, 0, len(page.Results))
		for _, c := range page.Results {
			ids = append(ids, c.ID)
		}
		return ids
	}

	t.Run("anonymous sees published courses only", func(t *testing.T) {
		assert.Equal(t, []string{published.ID}, listed(t, "/v1/courses", ""))
	})
	t.Run("other teachers do not see drafts", func(t *testing.T) {
		assert.Equal(t, []string{published.ID}, listed(t, "/v1/courses", getToken(t, env, other)))
	})
	t.Run("mine includes own drafts", func(t *testing.T) {
		assert.ElementsMatch(t, []string{published.ID, draft.ID}, listed(t, "/v1/courses?mine=true", getToken(t, env, teacher)))
		assert.Empty(t, listed(t, "/v1/courses?mine=true", getToken(t, env, other)))
	})
	t.Run("admins see everything", func(t *testing.T) {
		assert.ElementsMatch(t, []string{published.ID, draft.ID}, listed(t, "/v1/courses", getToken(t, env, admin)))
	})
	t.Run("teacher filter", func(t *testing.T) {
		assert.Equal(t, []string{published.ID}, listed(t, "/v1/courses?teacher_id="+teacher.ID, ""))
		assert.Empty(t, listed(t, "/v1/courses?teacher_id="+other.ID, ""))
	})
	t.Run("search", func(t *testing.T) {
		assert.Equal(t, []string{published.ID}, listed(t, "/v1/courses?search=go", ""))
		assert.Empty(t, listed(t, "/v1/courses?search=python", ""))
	})

	runHTTPTests(t, app, []httpTest{
		{
			name:     "mine requires auth",
			path:     "/v1/courses?mine=true",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "user not authenticated"}),
		},
		{
			name:     "invalid filter",
			path:     "/v1/courses?price=cheap",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "like on a number",
			path:     "/v1/courses?price[like]=5",
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"price": "operator not supported on this field"}),
		},
		{
			name:     "malformed teacher id",
			path:     "/v1/courses?teacher_id=abc",
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"teacher_id": "invalid value"}),
		},
		{
			name:     "published course is public",
			path:     "/v1/courses/" + published.ID,
			wantData: marchallObj(t, published),
		},
		{
			name:     "draft is hidden from anonymous",
			path:     "/v1/courses/" + draft.ID,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, errNotFound),
		},
		{
			name:     "draft is hidden from other teachers",
			path:     "/v1/courses/" + draft.ID,
			token:    getToken(t, env, other),
			wantCode: http.StatusNotFound,
		},
		{
			name:     "draft is visible to its teacher",
			path:     "/v1/courses/" + draft.ID,
			token:    getToken(t, env, teacher),
			wantData: marchallObj(t, draft),
		},
		{
			name:     "unknown course",
			path:     "/v1/courses/unknown",
			wantCode: http.StatusNotFound,
		},
	})
}

func Test_courseApi_create(t *testing.T) {
	env, app := setup(t)

	teacher := testutil.CreateUser(t, env.UserRepo, "Teacher", "teach", "teach@email.com", pwd, []string{user.RoleTeacher}, true)
	student := testutil.CreateUser(t, env.UserRepo, "Student", "stud", "stud@email.com", pwd, []string{user.RoleStudent}, true)
	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin", "admin@email.com", pwd, []string{user.RoleAdmin}, true)
	pending := testutil.CreatePendingUser(t, env.UserRepo, "Pending", "pend", "pend@email.com", pwd, []string{user.RoleTeacher})

	runHTTPTests(t, app, []httpTest{
		{
			name:     "auth required",
			method:   http.MethodPost,
			path:     "/v1/courses",
			body:     marchallObj(t, course.NewCourse{Title: "Go"}),
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "students cannot create courses",
			method:   http.MethodPost,
			path:     "/v1/courses",
			body:     marchallObj(t, course.NewCourse{Title: "Go"}),
			token:    getToken(t, env, student),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name:     "pending teachers cannot create courses",
			method:   http.MethodPost,
			path:     "/v1/courses",
			body:     marchallObj(t, course.NewCourse{Title: "Go"}),
			token:    getToken(t, env, pending),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errPending),
		},
		{
			name:     "title required",
			method:   http.MethodPost,
			path:     "/v1/courses",
			body:     []byte(`{"price": 100}`),
			token:    getToken(t, env, teacher),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"title": "this field is required"}`),
		},
		{
			name:     "publishing needs a description",
			method:   http.MethodPost,
			path:     "/v1/courses",
			body:     marchallObj(t, course.NewCourse{Title: "Go", Status: course.StatusPublished}),
			token:    getToken(t, env, teacher),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"description": "a description is required to publish a course"}`),
		},
		{
			name:     "admins must name the teacher",
			method:   http.MethodPost,
			path:     "/v1/courses",
			body:     marchallObj(t, course.NewCourse{Title: "Go"}),
			token:    getToken(t, env, admin),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"teacher_id": "this field is required"}`),
		},
		{
			name:     "admins cannot assign courses to students",
			method:   http.MethodPost,
			path:     "/v1/courses",
			body:     marchallObj(t, course.NewCourse{Title: "Go", TeacherID: student.ID}),
			token:    getToken(t, env, admin),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"teacher_id": "must be the ID of a teacher"}`),
		},
	})

	t.Run("admin creates for a teacher", func(t *testing.T) {
		rec := do(t, app, http.MethodPost, "/v1/courses", getToken(t, env, admin), course.NewCourse{
			Title:     "  Go Basics ",
			TeacherID: teacher.ID,
			Level:     "Advanced",
			Currency:  "eur",
			Price:     1500,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var c course.Course
		unmarshal(t, rec, &c)
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, "Go Basics", c.Title)
		assert.Equal(t, teacher.ID, c.TeacherID)
		assert.Equal(t, course.LevelAdvanced, c.Level)
		assert.Equal(t, "EUR", c.Currency)
		assert.Equal(t, int64(1500), c.Price)
	})
}

func Test_courseApi_updateDelete(t *testing.T) {
	env, app := setup(t)

	teacher := testutil.CreateUser(t, env.UserRepo, "Teacher", "teach", "teach@email.com", pwd, []string{user.RoleTeacher}, true)
	other := testutil.CreateUser(t, env.UserRepo, "Other", "other", "other@email.com", pwd, []string{user.RoleTeacher}, true)
	student := testutil.CreateUser(t, env.UserRepo, "Student", "stud", "stud@email.com", pwd, []string{user.RoleStudent}, true)

	c := testutil.CreateCourse(t, env.CourseSvc, teacher, "Go", 0, 0)
	busy := testutil.CreateCourse(t, env.CourseSvc, teacher, "Rust", 0, 0)
	testutil.Enroll(t, env.EnrollSvc, student, busy.ID)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "other teachers cannot update",
			method:   http.MethodPut,
			path:     "/v1/courses/" + c.ID,
			body:     []byte(`{"title": "Mine now"}`),
			token:    getToken(t, env, other),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name:     "students cannot update",
			method:   http.MethodPut,
			path:     "/v1/courses/" + c.ID,
			body:     []byte(`{"title": "Mine now"}`),
			token:    getToken(t, env, student),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "ends before start",
			method:   http.MethodPut,
			path:     "/v1/courses/" + c.ID,
			body:     []byte(`{"starts_at": "2030-02-01T00:00:00Z", "ends_at": "2030-01-01T00:00:00Z"}`),
			token:    getToken(t, env, teacher),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"ends_at": "must be after starts_at"}`),
		},
		{
			name:     "other teachers cannot delete",
			method:   http.MethodDelete,
			path:     "/v1/courses/" + c.ID,
			token:    getToken(t, env, other),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "courses with enrollments cannot be deleted",
			method:   http.MethodDelete,
			path:     "/v1/courses/" + busy.ID,
			token:    getToken(t, env, teacher),
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "course has enrollments; archive it instead"}),
		},
	})

	t.Run("owner updates", func(t *testing.T) {
		rec := do(t, app, http.MethodPut, "/v1/courses/"+c.ID, getToken(t, env, teacher), map[string]interface{}{
			"title":    "Go in depth",
			"capacity": 30,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got course.Course
		unmarshal(t, rec, &got)
		assert.Equal(t, "Go in depth", got.Title)
		assert.Equal(t, 30, got.Capacity)
		assert.Equal(t, c.Description, got.Description)
	})

	t.Run("unpublished courses leave the catalog", func(t *testing.T) {
		rec := do(t, app, http.MethodPut, "/v1/courses/"+c.ID, getToken(t, env, teacher), map[string]string{"status": course.StatusArchived})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = do(t, app, http.MethodGet, "/v1/courses/"+c.ID, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("owner deletes", func(t *testing.T) {
		rec := do(t, app, http.MethodDelete, "/v1/courses/"+c.ID, getToken(t, env, teacher), nil)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = do(t, app, http.MethodGet, "/v1/courses/"+c.ID, getToken(t, env, teacher), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_courseApi_modules(t *testing.T) {
	env, app := setup(t)

	teacher := testutil.CreateUser(t, env.UserRepo, "Teacher", "teach", "teach@email.com", pwd, []string{user.RoleTeacher}, true)
	other := testutil.CreateUser(t, env.UserRepo, "Other", "other", "other@email.com", pwd, []string{user.RoleTeacher}, true)
	tToken := getToken(t, env, teacher)

	c := testutil.CreateCourse(t, env.CourseSvc, teacher, "Go", 0, 0)
	intro := testutil.AddModule(t, env.CourseSvc, teacher, c.ID, "Intro")
	types := testutil.AddModule(t, env.CourseSvc, teacher, c.ID, "Types")

	titles := func(t *testing.T) []string {
		rec := do(t, app, http.MethodGet, "/v1/courses/"+c.ID+"/modules", "", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var mods []course.Module
		unmarshal(t, rec, &mods)
		res := make([]string, 0, len(mods))
		for i, m := range mods {
			assert.Equal(t, i+1, m.Position)
			res = append(res, m.Title)
		}
		return res
	}

	assert.Equal(t, []string{"Intro", "Types"}, titles(t))

	runHTTPTests(t, app, []httpTest{
		{
			name:     "other teachers cannot add modules",
			method:   http.MethodPost,
			path:     "/v1/courses/" + c.ID + "/modules",
			body:     []byte(`{"title": "Hijack"}`),
			token:    getToken(t, env, other),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "title required",
			method:   http.MethodPost,
			path:     "/v1/courses/" + c.ID + "/modules",
			body:     []byte(`{"description": "no title"}`),
			token:    tToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"title": "this field is required"}`),
		},
		{
			name:     "module from another course",
			method:   http.MethodPut,
			path:     "/v1/courses/" + testutil.CreateCourse(t, env.CourseSvc, teacher, "Rust", 0, 0).ID + "/modules/" + intro.ID,
			body:     []byte(`{"title": "Moved"}`),
			token:    tToken,
			wantCode: http.StatusNotFound,
		},
	})

	t.Run("insert at position", func(t *testing.T) {
		rec := do(t, app, http.MethodPost, "/v1/courses/"+c.ID+"/modules", tToken, map[string]interface{}{
			"title":    "Setup",
			"position": 1,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var m course.Module
		unmarshal(t, rec, &m)
		assert.Equal(t, 1, m.Position)
		assert.Equal(t, []string{"Setup", "Intro", "Types"}, titles(t))
	})

	t.Run("move", func(t *testing.T) {
		rec := do(t, app, http.MethodPut, "/v1/courses/"+c.ID+"/modules/"+types.ID, tToken, map[string]interface{}{"position": 1})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, []string{"Types", "Setup", "Intro"}, titles(t))
	})

	t.Run("delete renumbers", func(t *testing.T) {
		rec := do(t, app, http.MethodDelete, "/v1/courses/"+c.ID+"/modules/"+types.ID, tToken, nil)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		assert.Equal(t, []string{"Setup", "Intro"}, titles(t))
	})
}
