package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// bearerToken extracts the token from an Authorization header. ok is false
// when no header was sent.
func bearerToken(c echo.Context) (token string, ok bool, err error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		return "", false, nil
	}
	tokenParts := strings.SplitN(authHeader, " ", 2)
	if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "Bearer") || strings.TrimSpace(tokenParts[1]) == "" {
		return "", true, ErrInvalidToken
	}
	return strings.TrimSpace(tokenParts[1]), true, nil
}

func authenticate(ts *TokenService, c echo.Context, token string) error {
	user, claims, err := ts.ValidateAccessToken(c.Request().Context(), token)
	if err != nil {
		return err
	}
	setPrincipal(c, user, claims)
	return nil
}

// RequireAuth rejects requests without a valid access token
func RequireAuth(ts *TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok, err := bearerToken(c)
			if err != nil {
				return err
			}
			if !ok {
				return ErrMissingToken
			}
			if err := authenticate(ts, c, token); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// OptionalAuth authenticates when a token is sent and lets anonymous
// requests through. A token that is sent but invalid is still rejected so
// force-logged-out clients learn about it.
func OptionalAuth(ts *TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok, err := bearerToken(c)
			if err != nil {
				return err
			}
			if ok {
				if err := authenticate(ts, c, token); err != nil {
					return err
				}
			}
			return next(c)
		}
	}
}

// RequireRole must run after RequireAuth
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := GetUser(c)
			if user == nil {
				return ErrMissingToken
			}
			for _, r := range roles {
				if user.Role == r {
					return next(c)
				}
			}
			return ErrInsufficientPermissions
		}
	}
}
