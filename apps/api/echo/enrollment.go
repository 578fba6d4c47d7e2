package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/enrollment"
)

type enrollmentApi struct {
	svc      enrollment.Service
	auth     *authenticator
	conf     *core.Config
	validate *validator.Validate
}

func registerEnrollmentAPI(g *echo.Group, auth *authenticator, deps Deps) {
	api := enrollmentApi{svc: deps.EnrollSvc, auth: auth, conf: deps.Conf, validate: deps.Validate}

	chg := g.Group("/checkout", auth.required()...)
	chg.POST("/quote", api.quote)
	chg.POST("", api.checkout, studentMiddleware)

	eg := g.Group("/enrollments", auth.required()...)
	eg.GET("", api.queryMine, studentMiddleware)
	eg.GET("/:id", api.retrieve)
	eg.POST("/:id/modules/:mid/complete", api.completeModule, studentMiddleware)
	eg.POST("/:id/cancel", api.cancel, studentMiddleware)
	eg.POST("/:id/refund", api.refund, adminMiddleware())

	cpg := g.Group("/coupons", with(auth.required(), adminMiddleware())...)
	cpg.GET("", api.queryCoupons)
	cpg.POST("", api.createCoupon)
	cpg.GET("/:code", api.retrieveCoupon)
	cpg.PUT("/:code", api.updateCoupon)
	cpg.DELETE("/:code", api.destroyCoupon)
}

func (api *enrollmentApi) quote(ctx echo.Context) error {
	var data enrollment.QuoteRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding data")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	q, err := api.svc.Quote(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "quoting course")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *enrollmentApi) checkout(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data enrollment.Checkout
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding data")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	e, err := api.svc.Checkout(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "checking out")
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (api *enrollmentApi) queryMine(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	q, err := parseQuery(ctx, enrollment.Schema, api.conf)
	if err != nil {
		return err
	}
	page, err := api.svc.ListMine(ctx.Request().Context(), usr, q)
	if err != nil {
		return errors.Wrap(err, "listing enrollments")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *enrollmentApi) retrieve(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	e, err := api.svc.Get(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting enrollment")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *enrollmentApi) completeModule(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	e, err := api.svc.CompleteModule(ctx.Request().Context(), usr, ctx.Param("id"), ctx.Param("mid"))
	if err != nil {
		return errors.Wrap(err, "completing module")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *enrollmentApi) cancel(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	e, err := api.svc.Cancel(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling enrollment")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *enrollmentApi) refund(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	e, err := api.svc.Refund(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "refunding enrollment")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *enrollmentApi) queryCoupons(ctx echo.Context) error {
	q, err := parseQuery(ctx, enrollment.CouponSchema, api.conf)
	if err != nil {
		return err
	}
	page, err := api.svc.ListCoupons(ctx.Request().Context(), q)
	if err != nil {
		return errors.Wrap(err, "listing coupons")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *enrollmentApi) createCoupon(ctx echo.Context) error {
	var data enrollment.NewCoupon
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding data")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.CreateCoupon(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating coupon")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *enrollmentApi) retrieveCoupon(ctx echo.Context) error {
	c, err := api.svc.GetCoupon(ctx.Request().Context(), ctx.Param("code"))
	if err != nil {
		return errors.Wrap(err, "getting coupon")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *enrollmentApi) updateCoupon(ctx echo.Context) error {
	var data enrollment.UpdateCoupon
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding data")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.UpdateCoupon(ctx.Request().Context(), ctx.Param("code"), data)
	if err != nil {
		return errors.Wrap(err, "updating coupon")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *enrollmentApi) destroyCoupon(ctx echo.Context) error {
	if err := api.svc.DeleteCoupon(ctx.Request().Context(), ctx.Param("code")); err != nil {
		return errors.Wrap(err, "deleting coupon")
	}
	return ctx.NoContent(http.StatusNoContent)
}
