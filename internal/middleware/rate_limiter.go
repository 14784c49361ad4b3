package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// SignInLimiter throttles session creation per client IP. Sign-in is the one
// unauthenticated write endpoint, so it gets its own budget separate from the
// per-connection websocket limiter.
func SignInLimiter(perMinute float64) echo.MiddlewareFunc {
	config := middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStore(rate.Limit(perMinute)),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.String(http.StatusTooManyRequests, "Too many sign-in attempts. Please try again later.")
		},
	}
	return middleware.RateLimiterWithConfig(config)
}
