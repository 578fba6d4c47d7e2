package echoapi_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core/material"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/tests"
)

// uploadRequest builds a multipart request with the given form fields and, unless content is nil, a "file" part.
func uploadRequest(t *testing.T, path, token string, fields map[string]string, filename, contentType string, content []byte) *http.Request {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if content != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func Test_materialApi(t *testing.T) {
	env, app := setup(t)

	teacher := testutil.CreateUser(t, env.UserRepo, "Teacher", "teach", "teach@email.com", pwd, []string{user.RoleTeacher}, true)
	other := testutil.CreateUser(t, env.UserRepo, "Other", "other", "other@email.com", pwd, []string{user.RoleTeacher}, true)
	student := testutil.CreateUser(t, env.UserRepo, "Student", "stud", "stud@email.com", pwd, []string{user.RoleStudent}, true)
	outsider := testutil.CreateUser(t, env.UserRepo, "Outsider", "out", "out@email.com", pwd, []string{user.RoleStudent}, true)
	tToken, sToken := getToken(t, env, teacher), getToken(t, env, student)

	c := testutil.CreateCourse(t, env.CourseSvc, teacher, "Go", 0, 0)
	mod := testutil.AddModule(t, env.CourseSvc, teacher, c.ID, "Intro")
	testutil.Enroll(t, env.EnrollSvc, student, c.ID)
	coursePath := "/v1/courses/" + c.ID + "/materials"
	pdf := []byte("%PDF-1.4 slides")

	upload := func(t *testing.T, token string, fields map[string]string, filename string, content []byte) *httptest.ResponseRecorder {
		req := uploadRequest(t, coursePath, token, fields, filename, "application/pdf", content)
		rec := httptest.NewRecorder()
		app.ServeHTTP(rec, req)
		return rec
	}

	t.Run("upload validation", func(t *testing.T) {
		rec := upload(t, sToken, map[string]string{"title": "Slides"}, "slides.pdf", pdf)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = upload(t, getToken(t, env, other), map[string]string{"title": "Slides"}, "slides.pdf", pdf)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = upload(t, tToken, map[string]string{}, "slides.pdf", pdf)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"title": "this field is required"}`, rec.Body.String())

		rec = upload(t, tToken, map[string]string{"title": "Slides"}, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"file": "this field is required"}`, rec.Body.String())

		rec = upload(t, tToken, map[string]string{"title": "Slides"}, "slides.pdf", []byte{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"file": "file is empty"}`, rec.Body.String())

		rec = upload(t, tToken, map[string]string{"title": "Slides"}, "huge.pdf", make([]byte, env.Conf.Storage.MaxUploadSize+1))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"file": "file is too large"}`, rec.Body.String())
	})

	rec := upload(t, tToken, map[string]string{"title": "Slides", "module_id": mod.ID}, "week1.pdf", pdf)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var doc material.Material
	unmarshal(t, rec, &doc)

	t.Run("uploaded", func(t *testing.T) {
		assert.Equal(t, material.TypePDF, doc.Type)
		assert.Equal(t, mod.ID, doc.ModuleID)
		assert.Equal(t, "application/pdf", doc.ContentType)
		assert.Equal(t, int64(len(pdf)), doc.Size)
		assert.Equal(t, teacher.ID, doc.UploadedBy)
		assert.NotEmpty(t, doc.URL)

		rec := do(t, app, http.MethodGet, "/v1/notifications/unread-count", sToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"count": 2}`, rec.Body.String()) // enrollment + material
	})

	rec = do(t, app, http.MethodPost, coursePath, tToken, material.NewLink{Title: "Talk", Type: material.TypeVideo, URL: "https://video.example.com/talk"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var link material.Material
	unmarshal(t, rec, &link)
	assert.Equal(t, material.TypeVideo, link.Type)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "link needs a valid url",
			method:   http.MethodPost,
			path:     coursePath,
			body:     []byte(`{"title": "Talk"}`),
			token:    tToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"url": "this field is required"}`),
		},
		{
			name:     "enrolled students see the material",
			path:     "/v1/materials/" + doc.ID,
			token:    sToken,
			wantData: marchallObj(t, doc),
		},
		{
			name:     "outsiders do not",
			path:     "/v1/materials/" + doc.ID,
			token:    getToken(t, env, outsider),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "outsiders cannot download",
			path:     "/v1/materials/" + doc.ID + "/download",
			token:    getToken(t, env, outsider),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "students cannot delete",
			method:   http.MethodDelete,
			path:     "/v1/materials/" + doc.ID,
			token:    sToken,
			wantCode: http.StatusForbidden,
		},
	})

	t.Run("course materials", func(t *testing.T) {
		rec := do(t, app, http.MethodGet, coursePath, sToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var page struct {
			Results []material.Material `json:"results"`
			Count   int                 `json:"count"`
		}
		unmarshal(t, rec, &page)
		require.Equal(t, 2, page.Count)
		assert.ElementsMatch(t, []string{doc.ID, link.ID}, []string{page.Results[0].ID, page.Results[1].ID})

		rec = do(t, app, http.MethodGet, coursePath+"?type=video", sToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshal(t, rec, &page)
		assert.Equal(t, 1, page.Count)
	})

	t.Run("download streams the file", func(t *testing.T) {
		rec := do(t, app, http.MethodGet, "/v1/materials/"+doc.ID+"/download", sToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename=Slides.pdf`, rec.Header().Get("Content-Disposition"))
		assert.Equal(t, pdf, rec.Body.Bytes())
	})

	t.Run("download redirects to links", func(t *testing.T) {
		rec := do(t, app, http.MethodGet, "/v1/materials/"+link.ID+"/download", sToken, nil)
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, link.URL, rec.Header().Get("Location"))
	})

	t.Run("delete removes the file", func(t *testing.T) {
		rec := do(t, app, http.MethodDelete, "/v1/materials/"+doc.ID, getToken(t, env, other), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(t, app, http.MethodDelete, "/v1/materials/"+doc.ID, tToken, nil)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = do(t, app, http.MethodGet, "/v1/materials/"+doc.ID+"/download", sToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
