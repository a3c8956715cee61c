package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout puts a deadline on the request context. Handlers and the
// clients they call observe it through ctx. When the deadline has passed and
// nothing was written, the client gets a 504 unless the handler already
// chose a status by returning an *echo.HTTPError.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			if !errors.Is(ctx.Err(), context.DeadlineExceeded) || c.Response().Committed {
				return err
			}
			var he *echo.HTTPError
			if errors.As(err, &he) {
				return err
			}
			return echo.NewHTTPError(http.StatusGatewayTimeout, MsgTimeout).SetInternal(err)
		}
	}
}
