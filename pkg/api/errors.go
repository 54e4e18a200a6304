package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/vibecheck/vibecheck/pkg/vcerrors"
)

// mapError is the single place a vcerrors.Error (or any other error)
// becomes an HTTP response, grounded on the teacher's mapServiceError.
func mapError(err error) *echo.HTTPError {
	var verr *vcerrors.Error
	if errors.As(err, &verr) {
		return echo.NewHTTPError(verr.HTTPStatus, &ErrorEnvelope{
			Error: ErrorBody{
				Type:    string(verr.Kind),
				Message: verr.Message,
				Code:    verr.Code,
				Param:   verr.Param,
			},
		})
	}

	slog.Error("unexpected internal error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, &ErrorEnvelope{
		Error: ErrorBody{
			Type:    "internal_error",
			Message: "internal server error",
			Code:    "INTERNAL_ERROR",
		},
	})
}

// customHTTPErrorHandler renders echo.HTTPError.Message as the error
// envelope's body when it is already one, and wraps any other error
// (including echo's own routing errors, e.g. 404/405) in the same shape.
func customHTTPErrorHandler(err error, c *echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if env, ok := he.Message.(*ErrorEnvelope); ok {
			_ = c.JSON(he.Code, env)
			return
		}
		_ = c.JSON(he.Code, &ErrorEnvelope{
			Error: ErrorBody{
				Type:    "http_error",
				Message: httpErrorMessage(he),
				Code:    http.StatusText(he.Code),
			},
		})
		return
	}

	he = mapError(err)
	if env, ok := he.Message.(*ErrorEnvelope); ok {
		_ = c.JSON(he.Code, env)
		return
	}
	_ = c.JSON(http.StatusInternalServerError, &ErrorEnvelope{
		Error: ErrorBody{Type: "internal_error", Message: "internal server error", Code: "INTERNAL_ERROR"},
	})
}

func httpErrorMessage(he *echo.HTTPError) string {
	if s, ok := he.Message.(string); ok {
		return s
	}
	return http.StatusText(he.Code)
}
