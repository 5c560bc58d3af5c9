package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/licensehub/pkg/models"
)

// ContextKey represents keys for context values
type ContextKey string

const (
	UserContextKey   ContextKey = "user"
	ClaimsContextKey ContextKey = "claims"
)

func setPrincipal(c echo.Context, user *models.User, claims *JWTClaims) {
	c.Set(string(UserContextKey), user)
	c.Set(string(ClaimsContextKey), claims)
}

// GetUser returns the authenticated user, or nil
func GetUser(c echo.Context) *models.User {
	u, _ := c.Get(string(UserContextKey)).(*models.User)
	return u
}

// GetClaims returns the access token claims, or nil
func GetClaims(c echo.Context) *JWTClaims {
	cl, _ := c.Get(string(ClaimsContextKey)).(*JWTClaims)
	return cl
}

// UserID returns the authenticated user's id, or nil. It has the shape the
// traffic recorder expects.
func UserID(c echo.Context) *int64 {
	if u := GetUser(c); u != nil {
		id := u.ID
		return &id
	}
	return nil
}

// Actor describes the caller for audit entries
func Actor(c echo.Context) models.Actor {
	return models.Actor{UserID: UserID(c), IP: c.RealIP()}
}
