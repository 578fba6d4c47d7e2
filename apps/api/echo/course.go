package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/enrollment"
	"github.com/trezcool/darasa/core/query"
)

type courseApi struct {
	svc       course.Service
	enrollSvc enrollment.Service
	auth      *authenticator
	conf      *core.Config
	validate  *validator.Validate
}

func registerCourseAPI(g *echo.Group, auth *authenticator, deps Deps) {
	api := courseApi{
		svc:       deps.CourseSvc,
		enrollSvc: deps.EnrollSvc,
		auth:      auth,
		conf:      deps.Conf,
		validate:  deps.Validate,
	}
	required := auth.required()

	// the catalog is public, so middlewares go on each route
	cg := g.Group("/courses")
	cg.GET("", api.query, auth.optional()...)
	cg.POST("", api.create, with(required, teacherMiddleware)...)
	cg.GET("/:id", api.retrieve, auth.optional()...)
	cg.PUT("/:id", api.update, with(required, teacherMiddleware)...)
	cg.DELETE("/:id", api.destroy, with(required, teacherMiddleware)...)

	cg.GET("/:id/modules", api.listModules, auth.optional()...)
	cg.POST("/:id/modules", api.addModule, with(required, teacherMiddleware)...)
	cg.PUT("/:id/modules/:mid", api.updateModule, with(required, teacherMiddleware)...)
	cg.DELETE("/:id/modules/:mid", api.deleteModule, with(required, teacherMiddleware)...)

	cg.GET("/:id/enrollments", api.listEnrollments, with(required, teacherMiddleware)...)
}

// query lists the catalog. mine=true narrows it to the caller's own courses, drafts included.
func (api *courseApi) query(ctx echo.Context) error {
	usr, err := api.auth.optionalUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	q, err := parseQuery(ctx, course.Schema, api.conf)
	if err != nil {
		return err
	}
	if mine, _ := strconv.ParseBool(ctx.QueryParam("mine")); mine {
		if usr.ID == "" {
			return errUnauthorized
		}
		q = q.Where("teacher_id", query.Eq, usr.ID)
	}

	page, err := api.svc.Query(ctx.Request().Context(), usr, q)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *courseApi) create(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding data")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	usr, err := api.auth.optionalUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	c, err := api.svc.Get(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) update(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data course.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding data")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Update(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err := api.svc.Delete(ctx.Request().Context(), usr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) listModules(ctx echo.Context) error {
	usr, err := api.auth.optionalUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	mods, err := api.svc.ListModules(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing modules")
	}
	return ctx.JSON(http.StatusOK, mods)
}

func (api *courseApi) addModule(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data course.NewModule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding data")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.svc.AddModule(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding module")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *courseApi) updateModule(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data course.UpdateModule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding data")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.svc.UpdateModule(ctx.Request().Context(), usr, ctx.Param("id"), ctx.Param("mid"), data)
	if err != nil {
		return errors.Wrap(err, "updating module")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *courseApi) deleteModule(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err := api.svc.DeleteModule(ctx.Request().Context(), usr, ctx.Param("id"), ctx.Param("mid")); err != nil {
		return errors.Wrap(err, "deleting module")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) listEnrollments(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	q, err := parseQuery(ctx, enrollment.Schema, api.conf)
	if err != nil {
		return err
	}
	page, err := api.enrollSvc.ListForCourse(ctx.Request().Context(), usr, ctx.Param("id"), q)
	if err != nil {
		return errors.Wrap(err, "listing enrollments")
	}
	return ctx.JSON(http.StatusOK, page)
}
