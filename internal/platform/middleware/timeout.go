package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout puts a deadline on the request context. Handlers that call
// the upstream model inherit it, so a stalled upstream cannot hold the
// connection open past the limit; the client gets a 504 instead.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() { done <- next(c) }()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
			}

			if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				// Client disconnect or parent cancellation.
				return ctx.Err()
			}
			if c.Response().Committed {
				return nil
			}
			return c.JSON(http.StatusGatewayTimeout, map[string]interface{}{
				"ok":    false,
				"error": "request processing exceeded the allowed time limit",
			})
		}
	}
}
