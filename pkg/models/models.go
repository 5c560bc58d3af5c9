package models

import (
	"time"
)

// Role values for users
const (
	RoleAdmin  = "admin"
	RoleStaff  = "staff"
	RoleClinic = "clinic"
)

// User represents a dashboard or tenant user
type User struct {
	ID           int64      `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"` // Never expose password hash in JSON
	Name         string     `json:"name" db:"name"`
	Role         string     `json:"role" db:"role"`
	ClinicID     *int64     `json:"clinicId,omitempty" db:"clinic_id"`
	IsActive     bool       `json:"isActive" db:"is_active"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }

// IsStaff reports whether the user is staff or admin
func (u *User) IsStaff() bool { return u != nil && (u.Role == RoleStaff || u.Role == RoleAdmin) }

// Session is a refresh-token-backed login session. Deleting the row
// invalidates both tokens of the pair.
type Session struct {
	ID               int64      `json:"id" db:"id"`
	UserID           int64      `json:"userId" db:"user_id"`
	AccessTokenHash  string     `json:"-" db:"access_token_hash"`
	RefreshTokenHash string     `json:"-" db:"refresh_token_hash"`
	UserAgent        string     `json:"userAgent" db:"user_agent"`
	IPAddress        string     `json:"ipAddress" db:"ip_address"`
	AccessExpiresAt  time.Time  `json:"accessExpiresAt" db:"access_expires_at"`
	ExpiresAt        time.Time  `json:"expiresAt" db:"expires_at"`
	CreatedAt        time.Time  `json:"createdAt" db:"created_at"`
	LastUsedAt       *time.Time `json:"lastUsedAt,omitempty" db:"last_used_at"`
}

// Actor identifies who performed a state-mutating operation
type Actor struct {
	UserID *int64
	IP     string
}

// AuditLog is an append-only record of a state mutation
type AuditLog struct {
	ID        int64     `json:"id" db:"id"`
	UserID    *int64    `json:"userId" db:"user_id"`
	Action    string    `json:"action" db:"action"`
	Details   string    `json:"details" db:"details"`
	IPAddress string    `json:"ipAddress" db:"ip_address"`
	CreatedAt time.Time `json:"timestamp" db:"created_at"`
}

// TrafficLog records one API request
type TrafficLog struct {
	ID        int64     `json:"id" db:"id"`
	RequestID string    `json:"requestId" db:"request_id"`
	Method    string    `json:"method" db:"method"`
	Path      string    `json:"path" db:"path"`
	Status    int       `json:"status" db:"status"`
	LatencyMS int64     `json:"latencyMs" db:"latency_ms"`
	IPAddress string    `json:"ipAddress" db:"ip_address"`
	UserAgent string    `json:"userAgent" db:"user_agent"`
	UserID    *int64    `json:"userId,omitempty" db:"user_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
