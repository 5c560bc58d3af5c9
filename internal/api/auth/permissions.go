package auth

import (
	"github.com/licensehub/internal/apperr"
	"github.com/licensehub/pkg/models"
)

// Common auth errors
var (
	ErrMissingToken            = apperr.Auth("Authorization header required")
	ErrInvalidToken            = apperr.Auth("Invalid or expired token")
	ErrInvalidCredentials      = apperr.Auth("Invalid email or password")
	ErrRefreshTokenInvalid     = apperr.Auth("Refresh token is invalid or expired")
	ErrUserInactive            = apperr.Auth("Account is disabled")
	ErrUserNotFound            = apperr.NotFound("User not found")
	ErrInsufficientPermissions = apperr.Forbidden("Insufficient permissions")
)

// IsValidRole checks if a role name is valid
func IsValidRole(role string) bool {
	switch role {
	case models.RoleAdmin, models.RoleStaff, models.RoleClinic:
		return true
	default:
		return false
	}
}
