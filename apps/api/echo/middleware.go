package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// teacherMiddleware lets teachers and admins through.
func teacherMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		if claims.IsTeacher || claims.IsAdmin {
			return next(ctx)
		}
		return errHttpForbidden
	}
}

func studentMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		if claims.IsStudent {
			return next(ctx)
		}
		return errHttpForbidden
	}
}

// activeMiddleware rejects deactivated accounts. Tokens outlive deactivation.
func (a *authenticator) activeMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := a.contextUser(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}
		if !usr.Active() {
			return errAccountDeactivated
		}
		return next(ctx)
	}
}

// approvedMiddleware only lets active users who passed onboarding through.
// The stored user is checked, so an approval applies without a new token.
func (a *authenticator) approvedMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return a.activeMiddleware(func(ctx echo.Context) error {
		usr, err := a.contextUser(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}
		if !usr.IsApproved() {
			return errPendingApproval
		}
		return next(ctx)
	})
}

// required is the middleware chain of every authenticated route that needs an approved account.
func (a *authenticator) required() []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{a.jwt, a.approvedMiddleware}
}

// optional is for public routes: a token is parsed when sent, and its user needs no approval.
func (a *authenticator) optional() []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{a.anonJwt}
}
