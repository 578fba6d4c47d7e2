package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errPendingApproval      = echo.NewHTTPError(http.StatusForbidden, "account pending approval")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
	errTooManyAttempts      = echo.NewHTTPError(http.StatusTooManyRequests, "too many attempts, try again later")
)

// apiError is what a failed request answers.
// body is a message, or a field -> message map for invalid input.
type apiError struct {
	code int
	body interface{}
}

func (e apiError) serverError() bool { return e.code >= http.StatusInternalServerError }

// toAPIError maps domain errors to their HTTP status:
//   - validation failures (request bodies, query strings, onboarding state): 400 with a field map
//   - not found: 404, permission: 403, conflicting state: 409, declined payment: 402
//
// Everything else is a 500.
func toAPIError(err error, translator ut.Translator) apiError {
	switch cause := errors.Cause(err).(type) {
	case *echo.HTTPError:
		if cause == middleware.ErrJWTMissing {
			return apiError{code: http.StatusUnauthorized, body: cause.Message}
		}
		if herr, ok := cause.Internal.(*echo.HTTPError); ok {
			cause = herr
		}
		return apiError{code: cause.Code, body: cause.Message}

	case validator.ValidationErrors:
		fields := make(map[string]string, len(cause))
		for _, fe := range cause {
			fields[fe.Field()] = fe.Translate(translator)
		}
		return apiError{code: http.StatusBadRequest, body: fields}

	case *core.ValidationError:
		if len(cause.Fields) == 0 {
			return apiError{code: http.StatusBadRequest, body: cause.Error()}
		}
		fields := make(map[string]string, len(cause.Fields))
		for _, fe := range cause.Fields {
			// the first problem of a field wins, e.g. for repeated query params
			if _, seen := fields[fe.Field]; !seen {
				fields[fe.Field] = fe.Error
			}
		}
		return apiError{code: http.StatusBadRequest, body: fields}

	case *core.NotFoundError:
		return apiError{code: errHttpNotFound.Code, body: errHttpNotFound.Message}
	case *core.PermissionError:
		return apiError{code: http.StatusForbidden, body: cause.Error()}
	case *core.ConflictError:
		return apiError{code: http.StatusConflict, body: cause.Error()}
	case *core.PaymentError:
		return apiError{code: http.StatusPaymentRequired, body: cause.Error()}
	}
	return apiError{code: http.StatusInternalServerError, body: http.StatusText(http.StatusInternalServerError)}
}

// requestFields describes the failing request for the logs.
func requestFields(ctx echo.Context, code int) map[string]interface{} {
	req := ctx.Request()
	return map[string]interface{}{
		"status":     code,
		"method":     req.Method,
		"path":       req.URL.Path,
		"route":      ctx.Path(),
		"request_id": ctx.Response().Header().Get(echo.HeaderXRequestID),
		"remote_ip":  ctx.RealIP(),
	}
}

// contextUserRef identifies the caller from the token claims, if any.
func contextUserRef(ctx echo.Context) user.User {
	var usr user.User
	if claims, err := getContextClaims(ctx); err == nil {
		usr.ID = claims.Subject
		usr.Username = claims.Username
		usr.Email = claims.Email
	}
	return usr
}

// newAppHTTPErrorHandler renders errors as JSON and reports server errors.
// A core shutdown error also stops the Server through signalShutdown.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		apiErr := toAPIError(err, translator)

		switch {
		case apiErr.serverError():
			logger.Error("request failed", errors.WithStack(err), requestFields(ctx, apiErr.code), contextUserRef(ctx))
			if ctx.Echo().Debug {
				apiErr.body = err.Error()
			}
			if core.IsShutdown(err) {
				signalShutdown()
			}
		case apiErr.code == http.StatusPaymentRequired:
			logger.Info("payment refused", requestFields(ctx, apiErr.code), contextUserRef(ctx))
		}

		body := apiErr.body
		if msg, ok := body.(string); ok {
			body = echo.Map{"error": msg}
		}

		if ctx.Response().Committed {
			return
		}
		if ctx.Request().Method == http.MethodHead {
			err = ctx.NoContent(apiErr.code)
		} else {
			err = ctx.JSON(apiErr.code, body)
		}
		if err != nil {
			logger.Error("writing error response", err, requestFields(ctx, apiErr.code))
		}
	}
}
