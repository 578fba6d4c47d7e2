package echoapi

import (
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/material"
)

type materialApi struct {
	svc      material.Service
	auth     *authenticator
	conf     *core.Config
	validate *validator.Validate
}

func registerMaterialAPI(g *echo.Group, auth *authenticator, deps Deps) {
	api := materialApi{svc: deps.MaterialSvc, auth: auth, conf: deps.Conf, validate: deps.Validate}
	required := auth.required()

	g.GET("/courses/:id/materials", api.queryForCourse, required...)
	g.POST("/courses/:id/materials", api.create, with(required, teacherMiddleware)...)

	mg := g.Group("/materials", required...)
	mg.GET("/:id", api.retrieve)
	mg.GET("/:id/download", api.download)
	mg.DELETE("/:id", api.destroy, teacherMiddleware)
}

func (api *materialApi) queryForCourse(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	q, err := parseQuery(ctx, material.Schema, api.conf)
	if err != nil {
		return err
	}
	page, err := api.svc.ListForCourse(ctx.Request().Context(), usr, ctx.Param("id"), q)
	if err != nil {
		return errors.Wrap(err, "listing materials")
	}
	return ctx.JSON(http.StatusOK, page)
}

// create takes a multipart upload with a "file" part, or a JSON link.
func (api *materialApi) create(ctx echo.Context) error {
	if strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return api.upload(ctx)
	}

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data material.NewLink
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding data")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.svc.AddLink(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding link")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *materialApi) upload(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data material.NewMaterial
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding data")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return core.NewFieldValidationError("file", "this field is required")
		}
		return errors.Wrap(err, "reading file")
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening file")
	}
	defer f.Close()

	up := material.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Size:        fh.Size,
		Body:        f,
	}
	m, err := api.svc.Upload(ctx.Request().Context(), usr, ctx.Param("id"), data, up)
	if err != nil {
		return errors.Wrap(err, "uploading material")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *materialApi) retrieve(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	m, err := api.svc.Get(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting material")
	}
	return ctx.JSON(http.StatusOK, m)
}

// download streams uploaded files and redirects to links.
func (api *materialApi) download(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	m, body, err := api.svc.Open(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "opening material")
	}
	if body == nil {
		return ctx.Redirect(http.StatusFound, m.URL)
	}
	defer body.Close()

	contentType := m.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	filename := m.Title + path.Ext(m.ObjectKey)
	ctx.Response().Header().Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	return ctx.Stream(http.StatusOK, contentType, body)
}

func (api *materialApi) destroy(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err := api.svc.Delete(ctx.Request().Context(), usr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting material")
	}
	return ctx.NoContent(http.StatusNoContent)
}
