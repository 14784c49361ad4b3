package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"

	appmiddleware "github.com/chattersphere/chattersphere/internal/middleware"
)

const (
	sessionName = "chattersphere_session"

	// signInsPerMinute bounds session creation per client IP.
	signInsPerMinute = 10
)

var errNotSignedIn = errors.New("no identity in session")

// identityFromSession resolves the signed-in user from the session cookie.
// It satisfies chatmodule.IdentityFunc.
func identityFromSession(c echo.Context) (userID, displayName string, err error) {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return "", "", err
	}

	userID, _ = sess.Values["userId"].(string)
	displayName, _ = sess.Values["displayName"].(string)
	if userID == "" || displayName == "" {
		return "", "", errNotSignedIn
	}
	return userID, displayName, nil
}

type signInRequest struct {
	DisplayName string `json:"displayName"`
}

type identityResponse struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// registerSessionRoutes wires the minimal identity endpoints. Identity is a
// display name bound to a generated user id in the session cookie; there is
// no password or account record.
func registerSessionRoutes(e *echo.Echo) {
	e.POST("/session", signIn, appmiddleware.SignInLimiter(signInsPerMinute))

	e.GET("/session", func(c echo.Context) error {
		userID, displayName, err := identityFromSession(c)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
		}
		return c.JSON(http.StatusOK, identityResponse{UserID: userID, DisplayName: displayName})
	})

	e.DELETE("/session", func(c echo.Context) error {
		sess, err := session.Get(sessionName, c)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "session unavailable")
		}
		sess.Options.MaxAge = -1
		if err := sess.Save(c.Request(), c.Response()); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to clear session")
		}
		return c.NoContent(http.StatusNoContent)
	})
}

func signIn(c echo.Context) error {
	var req signInRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" || len(name) > 64 {
		return echo.NewHTTPError(http.StatusBadRequest, "display name must be 1-64 characters")
	}

	sess, err := session.Get(sessionName, c)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "session unavailable")
	}

	// Keep the user id stable across repeated sign-ins in one browser.
	userID, _ := sess.Values["userId"].(string)
	if userID == "" {
		userID = "user:" + uuid.New().String()
	}

	sess.Values["userId"] = userID
	sess.Values["displayName"] = name
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save session")
	}

	return c.JSON(http.StatusOK, identityResponse{UserID: userID, DisplayName: name})
}
