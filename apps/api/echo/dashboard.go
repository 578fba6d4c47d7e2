package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/dashboard"
)

type dashboardApi struct {
	svc  dashboard.Service
	auth *authenticator
}

func registerDashboardAPI(g *echo.Group, auth *authenticator, deps Deps) {
	api := dashboardApi{svc: deps.DashSvc, auth: auth}
	g.GET("/dashboard", api.retrieve, auth.required()...)
}

// retrieve renders the dashboard of the role picked with ?as=admin|teacher|student,
// defaulting to the user's highest role.
func (api *dashboardApi) retrieve(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	as := strings.ToLower(strings.TrimSpace(ctx.QueryParam("as")))
	if as == "" {
		switch {
		case usr.IsAdmin():
			as = "admin"
		case usr.IsTeacher():
			as = "teacher"
		default:
			as = "student"
		}
	}

	reqCtx := ctx.Request().Context()
	var data interface{}
	switch {
	case as == "admin" && usr.IsAdmin():
		data, err = api.svc.Admin(reqCtx, usr)
	case as == "teacher" && usr.IsTeacher():
		data, err = api.svc.Teacher(reqCtx, usr)
	case as == "student" && usr.IsStudent():
		data, err = api.svc.Student(reqCtx, usr)
	default:
		return errHttpForbidden
	}
	if err != nil {
		return errors.Wrapf(err, "building %s dashboard", as)
	}
	return ctx.JSON(http.StatusOK, data)
}
