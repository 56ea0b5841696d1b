package web

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			req := c.Request()
			logger.Info().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Int64("duration_ms", time.Since(start).Milliseconds()).
				Msg("http_request")
			return nil
		}
	}
}

// renderErrors replies to handler errors inside the group, while any response
// writer installed by an earlier group middleware is still usable.
func renderErrors(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := next(c); err != nil {
			c.Error(err)
		}
		return nil
	}
}
