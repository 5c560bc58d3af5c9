package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/licensehub/internal/api/middleware"
	"github.com/licensehub/internal/apperr"
	"github.com/licensehub/pkg/models"
)

// AuthHandlers contains the authentication handler methods
type AuthHandlers struct {
	tokenService *TokenService
}

// NewAuthHandlers creates a new authentication handlers instance
func NewAuthHandlers(tokenService *TokenService) *AuthHandlers {
	return &AuthHandlers{tokenService: tokenService}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	User   *models.User `json:"user"`
	Tokens *TokenPair   `json:"tokens"`
}

// RefreshRequest represents the token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// LogoutRequest optionally ends every session of the caller
type LogoutRequest struct {
	LogoutAll bool `json:"logoutAll"`
}

// Login handles user authentication with email/password
func (h *AuthHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}
	user, pair, err := h.tokenService.Login(c.Request().Context(), req.Email, req.Password,
		c.Request().UserAgent(), c.RealIP())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LoginResponse{User: user, Tokens: pair})
}

// Refresh rotates the token pair
func (h *AuthHandlers) Refresh(c echo.Context) error {
	var req RefreshRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}
	pair, err := h.tokenService.RefreshTokenPair(c.Request().Context(), req.RefreshToken,
		c.Request().UserAgent(), c.RealIP())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pair)
}

// Logout ends the current session, or all of them with logoutAll
func (h *AuthHandlers) Logout(c echo.Context) error {
	claims := GetClaims(c)
	if claims == nil {
		return ErrMissingToken
	}
	var req LogoutRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return apperr.Wrap(middleware.ErrBadBody, err)
		}
	}
	n, err := h.tokenService.Logout(c.Request().Context(), claims, req.LogoutAll)
	if err != nil {
		return err
	}
	msg := "Logged out"
	if req.LogoutAll {
		msg = "Logged out from all devices"
	}
	return c.JSON(http.StatusOK, map[string]any{"message": msg, "sessionsEnded": n})
}

// Me returns information about the currently authenticated user
func (h *AuthHandlers) Me(c echo.Context) error {
	user := GetUser(c)
	if user == nil {
		return ErrMissingToken
	}
	return c.JSON(http.StatusOK, user)
}
