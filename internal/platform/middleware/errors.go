package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Client facing messages. Causes are logged, never returned.
const (
	MsgInternal = "Internal server error"
	MsgTimeout  = "Request timed out"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Detail string `json:"detail"`
}

// StatusOf maps err to the status ErrorHandler will write.
func StatusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// ErrorHandler renders errors as {"detail": "..."}. Only *echo.HTTPError
// messages reach the client; anything else becomes a generic 500.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		detail := MsgInternal

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if msg, ok := he.Message.(string); ok && msg != "" {
				detail = msg
			} else {
				detail = http.StatusText(status)
			}
			if he.Internal != nil {
				logger.Debug().
					Err(he.Internal).
					Str("request_id", GetRequestID(c)).
					Int("status", status).
					Msg("request failed")
			}
		} else {
			logger.Error().
				Err(err).
				Str("request_id", GetRequestID(c)).
				Msg("unhandled error")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, ErrorBody{Detail: detail})
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}
