package middleware

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
)

type contextKey string

const loggerKey = contextKey("logger")

// RequestLogger injects a request-scoped slog logger carrying the request id
// into the request context. It must run after echo's RequestID middleware.
func RequestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		reqID := c.Response().Header().Get(echo.HeaderXRequestID)
		requestLogger := slog.Default().With("request_id", reqID)

		newCtx := context.WithValue(c.Request().Context(), loggerKey, requestLogger)
		c.SetRequest(c.Request().WithContext(newCtx))

		return next(c)
	}
}

// FromContext returns the request-scoped logger, falling back to the process
// default when none was injected (background workers, tests).
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
