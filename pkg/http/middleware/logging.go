package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	applogger "SPXEngine/pkg/logger"
)

// RequestLogging logs one debug record per request.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			l.Debug("http request",
				applogger.String("method", req.Method),
				applogger.String("route", routeLabel(c)),
				applogger.Int("status", c.Response().Status),
				applogger.String("remote", c.RealIP()),
				applogger.Duration("duration_ms", time.Since(start)),
			)
			return err
		}
	}
}
