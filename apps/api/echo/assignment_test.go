package echoapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/query"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/tests"
)

func Test_assignmentApi(t *testing.T) {
	env, app := setup(t)

	teacher := testutil.CreateUser(t, env.UserRepo, "Teacher", "teach", "teach@email.com", pwd, []string{user.RoleTeacher}, true)
	other := testutil.CreateUser(t, env.UserRepo, "Other", "other", "other@email.com", pwd, []string{user.RoleTeacher}, true)
	student := testutil.CreateUser(t, env.UserRepo, "Student", "stud", "stud@email.com", pwd, []string{user.RoleStudent}, true)
	outsider := testutil.CreateUser(t, env.UserRepo, "Outsider", "out", "out@email.com", pwd, []string{user.RoleStudent}, true)
	tToken, sToken := getToken(t, env, teacher), getToken(t, env, student)

	c := testutil.CreateCourse(t, env.CourseSvc, teacher, "Go", 0, 0)
	mod := testutil.AddModule(t, env.CourseSvc, teacher, c.ID, "Intro")
	rust := testutil.CreateCourse(t, env.CourseSvc, teacher, "Rust", 0, 0)
	foreign := testutil.AddModule(t, env.CourseSvc, teacher, rust.ID, "Borrowing")
	testutil.Enroll(t, env.EnrollSvc, student, c.ID)

	coursePath := "/v1/courses/" + c.ID + "/assignments"
	due := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "students cannot create assignments",
			method:   http.MethodPost,
			path:     coursePath,
			body:     []byte(`{"title": "Homework", "max_points": 10}`),
			token:    sToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name:     "other teachers cannot create assignments",
			method:   http.MethodPost,
			path:     coursePath,
			body:     []byte(`{"title": "Homework", "max_points": 10}`),
			token:    getToken(t, env, other),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "required fields",
			method:   http.MethodPost,
			path:     coursePath,
			body:     []byte(`{"instructions": "do it"}`),
			token:    tToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"title": "this field is required", "max_points": "this field is required"}`),
		},
		{
			name:     "module of another course",
			method:   http.MethodPost,
			path:     coursePath,
			body:     marchallObj(t, assignment.NewAssignment{Title: "Homework", MaxPoints: 10, ModuleID: foreign.ID}),
			token:    tToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"module_id": "module does not belong to this course"}`),
		},
	})

	rec := do(t, app, http.MethodPost, coursePath, tToken, assignment.NewAssignment{
		Title:     "Homework",
		ModuleID:  mod.ID,
		MaxPoints: 10,
		DueAt:     &due,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var a assignment.Assignment
	unmarshal(t, rec, &a)
	assert.Equal(t, c.ID, a.CourseID)
	assert.Equal(t, teacher.ID, a.CreatedBy)

	aPath := "/v1/assignments/" + a.ID

	runHTTPTests(t, app, []httpTest{
		{
			name:     "enrolled students see the assignment",
			path:     aPath,
			token:    sToken,
			wantData: marchallObj(t, a),
		},
		{
			name:     "outsiders do not",
			path:     aPath,
			token:    getToken(t, env, outsider),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "course assignments",
			path:     coursePath,
			token:    sToken,
			wantData: marchallObj(t, query.NewPage([]assignment.Assignment{a}, 1, query.Query{Page: 1, Limit: 10})),
		},
		{
			name:     "outsiders cannot list assignments",
			path:     coursePath,
			token:    getToken(t, env, outsider),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "submission needs content",
			method:   http.MethodPost,
			path:     aPath + "/submit",
			body:     []byte(`{}`),
			token:    sToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{
				"content": "either content or attachment_url is required",
				"attachment_url": "either content or attachment_url is required"
			}`),
		},
		{
			name:     "outsiders cannot submit",
			method:   http.MethodPost,
			path:     aPath + "/submit",
			body:     []byte(`{"content": "42"}`),
			token:    getToken(t, env, outsider),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "teachers cannot submit",
			method:   http.MethodPost,
			path:     aPath + "/submit",
			body:     []byte(`{"content": "42"}`),
			token:    tToken,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "no submission yet",
			path:     aPath + "/submission",
			token:    sToken,
			wantCode: http.StatusNotFound,
		},
	})

	t.Run("resubmitting replaces the draft", func(t *testing.T) {
		rec := do(t, app, http.MethodPost, aPath+"/submit", sToken, assignment.NewSubmission{Content: "41"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var first assignment.Submission
		unmarshal(t, rec, &first)

		rec = do(t, app, http.MethodPost, aPath+"/submit", sToken, assignment.NewSubmission{Content: "42"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var second assignment.Submission
		unmarshal(t, rec, &second)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "42", second.Content)
		assert.False(t, second.IsLate)
		assert.Equal(t, assignment.StatusSubmitted, second.Status)
	})

	rec = do(t, app, http.MethodGet, aPath+"/submissions", tToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var subs query.Page[assignment.Submission]
	unmarshal(t, rec, &subs)
	require.Len(t, subs.Results, 1)
	sub := subs.Results[0]
	gradePath := "/v1/submissions/" + sub.ID + "/grade"

	runHTTPTests(t, app, []httpTest{
		{
			name:     "submissions are for the course teacher",
			path:     aPath + "/submissions",
			token:    getToken(t, env, other),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "points required",
			method:   http.MethodPost,
			path:     gradePath,
			body:     []byte(`{"feedback": "nice"}`),
			token:    tToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"points": "this field is required"}`),
		},
		{
			name:     "points capped",
			method:   http.MethodPost,
			path:     gradePath,
			body:     []byte(`{"points": 11}`),
			token:    tToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"points": "must be 10 or less"}`),
		},
		{
			name:     "other teachers cannot grade",
			method:   http.MethodPost,
			path:     gradePath,
			body:     []byte(`{"points": 5}`),
			token:    getToken(t, env, other),
			wantCode: http.StatusForbidden,
		},
	})

	t.Run("grade", func(t *testing.T) {
		env.Mail.Reset()
		rec := do(t, app, http.MethodPost, gradePath, tToken, map[string]interface{}{"points": 9, "feedback": " Nearly there "})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var graded assignment.Submission
		unmarshal(t, rec, &graded)
		assert.Equal(t, assignment.StatusGraded, graded.Status)
		require.NotNil(t, graded.Points)
		assert.Equal(t, 9, *graded.Points)
		assert.Equal(t, "Nearly there", graded.Feedback)
		assert.Equal(t, teacher.ID, graded.GradedBy)

		msgs := env.Mail.SentMessages()
		require.Len(t, msgs, 1)
		assert.Equal(t, student.Email, msgs[0].To[0].Address)
		assert.Contains(t, msgs[0].TextContent, "Homework")

		rec = do(t, app, http.MethodGet, aPath+"/submission", sToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, string(marchallObj(t, graded)), rec.Body.String())
	})

	runHTTPTests(t, app, []httpTest{
		{
			name:     "graded submissions are final",
			method:   http.MethodPost,
			path:     aPath + "/submit",
			body:     []byte(`{"content": "43"}`),
			token:    sToken,
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "submission has already been graded"}),
		},
	})

	t.Run("late submissions", func(t *testing.T) {
		past := time.Now().Add(-time.Hour).UTC()
		closed, err := env.AssignSvc.Create(ctx(), teacher, c.ID, assignment.NewAssignment{Title: "Closed", MaxPoints: 5, DueAt: &past})
		require.NoError(t, err)
		lenient, err := env.AssignSvc.Create(ctx(), teacher, c.ID, assignment.NewAssignment{Title: "Lenient", MaxPoints: 5, DueAt: &past, AllowLate: true})
		require.NoError(t, err)

		rec := do(t, app, http.MethodPost, "/v1/assignments/"+closed.ID+"/submit", sToken, assignment.NewSubmission{Content: "late"})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.JSONEq(t, `{"error": "submissions are closed for this assignment"}`, rec.Body.String())

		rec = do(t, app, http.MethodPost, "/v1/assignments/"+lenient.ID+"/submit", sToken, assignment.NewSubmission{Content: "late"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var s assignment.Submission
		unmarshal(t, rec, &s)
		assert.True(t, s.IsLate)
	})

	t.Run("update and delete", func(t *testing.T) {
		rec := do(t, app, http.MethodPut, aPath, getToken(t, env, other), map[string]string{"title": "Mine"})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(t, app, http.MethodPut, aPath, tToken, map[string]interface{}{"title": "Homework 1", "allow_late": true})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got assignment.Assignment
		unmarshal(t, rec, &got)
		assert.Equal(t, "Homework 1", got.Title)
		assert.True(t, got.AllowLate)
		assert.Equal(t, 10, got.MaxPoints)

		rec = do(t, app, http.MethodDelete, aPath, tToken, nil)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		rec = do(t, app, http.MethodGet, aPath, sToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

}
