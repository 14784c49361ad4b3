package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignInLimiter(t *testing.T) {
	e := echo.New()

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	}

	e.POST("/session", handler, SignInLimiter(10))

	t.Run("allows requests within the limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/session", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()

		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("blocks requests exceeding the limit", func(t *testing.T) {
		limit := 10
		clientIP := "192.0.2.2:1234"

		for i := 0; i < limit; i++ {
			req := httptest.NewRequest(http.MethodPost, "/session", nil)
			req.RemoteAddr = clientIP
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code, "request %d should be allowed", i+1)
		}

		req := httptest.NewRequest(http.MethodPost, "/session", nil)
		req.RemoteAddr = clientIP
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Contains(t, rec.Body.String(), "Too many sign-in attempts")
	})
}

func TestRequestLoggerFallsBackToDefault(t *testing.T) {
	e := echo.New()

	var sawLogger bool
	handler := func(c echo.Context) error {
		sawLogger = FromContext(c.Request().Context()) != nil
		return c.NoContent(http.StatusOK)
	}

	e.GET("/", handler, RequestLogger)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, sawLogger)
}
