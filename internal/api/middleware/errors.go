package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/licensehub/internal/apperr"
)

// ErrorResponse is the envelope every failed request receives
type ErrorResponse struct {
	Message string `json:"message"`
}

// ErrorHandler renders err as {message}. Domain errors map through apperr,
// echo errors keep their code, anything else is a redacted 500.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, msg := resolve(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
			Msg("request failed")
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, ErrorResponse{Message: msg})
	}
	if werr != nil {
		log.Warn().Err(werr).Msg("failed to write error response")
	}
}

func resolve(err error) (int, string) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return apperr.HTTPStatus(ae.Kind), apperr.MessageOf(err)
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code >= http.StatusInternalServerError {
			return he.Code, "Internal server error"
		}
		if m, ok := he.Message.(string); ok {
			return he.Code, m
		}
		return he.Code, fmt.Sprint(he.Message)
	}
	return http.StatusInternalServerError, "Internal server error"
}
