package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/liveclass"
	"github.com/trezcool/darasa/core/user"
)

type liveClassApi struct {
	svc      liveclass.Service
	auth     *authenticator
	conf     *core.Config
	validate *validator.Validate
}

func registerLiveClassAPI(g *echo.Group, auth *authenticator, deps Deps) {
	api := liveClassApi{svc: deps.LiveSvc, auth: auth, conf: deps.Conf, validate: deps.Validate}
	required := auth.required()

	g.GET("/courses/:id/live-sessions", api.queryForCourse, required...)
	g.POST("/courses/:id/live-sessions", api.schedule, with(required, teacherMiddleware)...)

	lg := g.Group("/live-sessions", required...)
	lg.GET("/upcoming", api.upcoming)
	lg.GET("/:id", api.retrieve)
	lg.POST("/:id/start", api.start, teacherMiddleware)
	lg.POST("/:id/end", api.end, teacherMiddleware)
	lg.POST("/:id/cancel", api.cancel, teacherMiddleware)
	lg.POST("/:id/join", api.join)
	lg.GET("/:id/attendance", api.attendance, teacherMiddleware)
}

func (api *liveClassApi) queryForCourse(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	q, err := parseQuery(ctx, liveclass.Schema, api.conf)
	if err != nil {
		return err
	}
	page, err := api.svc.ListForCourse(ctx.Request().Context(), usr, ctx.Param("id"), q)
	if err != nil {
		return errors.Wrap(err, "listing sessions")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *liveClassApi) schedule(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data liveclass.NewSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding data")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.Schedule(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "scheduling session")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *liveClassApi) upcoming(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sessions, err := api.svc.Upcoming(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing upcoming sessions")
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *liveClassApi) retrieve(ctx echo.Context) error {
	return api.do(ctx, "getting session", api.svc.Get)
}

func (api *liveClassApi) start(ctx echo.Context) error {
	return api.do(ctx, "starting session", api.svc.Start)
}

func (api *liveClassApi) end(ctx echo.Context) error {
	return api.do(ctx, "ending session", api.svc.End)
}

func (api *liveClassApi) cancel(ctx echo.Context) error {
	return api.do(ctx, "cancelling session", api.svc.Cancel)
}

// do runs a single-session operation for the context user and renders the session.
func (api *liveClassApi) do(
	ctx echo.Context,
	desc string,
	op func(context.Context, user.User, string) (liveclass.Session, error),
) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	s, err := op(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, desc)
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *liveClassApi) join(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	info, err := api.svc.Join(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "joining session")
	}
	return ctx.JSON(http.StatusOK, info)
}

func (api *liveClassApi) attendance(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	att, err := api.svc.Attendance(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing attendance")
	}
	return ctx.JSON(http.StatusOK, att)
}
