package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/licensehub/internal/api/auth"
	"github.com/licensehub/internal/apperr"
	"github.com/licensehub/internal/audit"
	"github.com/licensehub/pkg/models"
)

var (
	ErrEmailTaken     = apperr.Duplicate("Email already registered")
	ErrInvalidRole    = apperr.Validation("role must be one of: admin, staff, clinic")
	ErrClinicRequired = apperr.Validation("clinicId is required for clinic users")
	ErrClinicNotFound = apperr.NotFound("Clinic not found")
	ErrShortPassword  = apperr.Validation("password must be at least 8 characters")
	ErrEmptyEmail     = apperr.Validation("email is required")
	ErrSelfDelete     = apperr.StateConflict("You cannot delete your own account")
	ErrSelfDeactivate = apperr.StateConflict("You cannot deactivate your own account")
	ErrSelfRoleChange = apperr.StateConflict("You cannot change your own role")
)

const minPasswordLength = 8

// Store is the persistence behind UserService
type Store interface {
	WithinTx(ctx context.Context, fn func(Store) error) error

	ListUsers(ctx context.Context, f Filter) ([]models.User, int, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	UpdateUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id int64) error
	ClinicExists(ctx context.Context, id int64) (bool, error)
	DeleteUserSessions(ctx context.Context, userID int64) (int64, error)

	InsertAudit(ctx context.Context, e models.AuditLog) error
}

// Filter narrows ListUsers. Search matches email and name.
type Filter struct {
	Role     string
	ClinicID *int64
	Search   string
	Limit    int
	Offset   int
}

// UserService handles core user management operations
type UserService struct {
	store Store
}

// NewUserService creates a new user service
func NewUserService(store Store) *UserService {
	return &UserService{store: store}
}

// CreateUserRequest represents the request to create a new user
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name"`
	Role     string `json:"role" validate:"required"`
	ClinicID *int64 `json:"clinicId"`
}

// UpdateUserRequest represents the request to update a user. Nil fields
// are left unchanged.
type UpdateUserRequest struct {
	Name     *string `json:"name"`
	Role     *string `json:"role"`
	ClinicID *int64  `json:"clinicId"`
	IsActive *bool   `json:"isActive"`
	Password *string `json:"password"`
}

func (us *UserService) List(ctx context.Context, f Filter) ([]models.User, int, error) {
	if f.Role != "" && !auth.IsValidRole(f.Role) {
		return nil, 0, ErrInvalidRole
	}
	return us.store.ListUsers(ctx, f)
}

func (us *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	return us.store.GetUser(ctx, id)
}

// checkClinic enforces that clinic users, and only clinic users, point at
// an existing clinic. It returns the clinic id to store.
func checkClinic(ctx context.Context, st Store, role string, clinicID *int64) (*int64, error) {
	if role != models.RoleClinic {
		return nil, nil
	}
	if clinicID == nil {
		return nil, ErrClinicRequired
	}
	ok, err := st.ClinicExists(ctx, *clinicID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrClinicNotFound
	}
	return clinicID, nil
}

// Create adds a user with a bcrypt password hash
func (us *UserService) Create(ctx context.Context, actor models.Actor, req CreateUserRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, ErrEmptyEmail
	}
	if !auth.IsValidRole(req.Role) {
		return nil, ErrInvalidRole
	}
	if len(req.Password) < minPasswordLength {
		return nil, ErrShortPassword
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	u := &models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(req.Name),
		Role:         req.Role,
		IsActive:     true,
	}
	err = us.store.WithinTx(ctx, func(tx Store) error {
		clinicID, err := checkClinic(ctx, tx, u.Role, req.ClinicID)
		if err != nil {
			return err
		}
		u.ClinicID = clinicID
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionUserCreated,
			fmt.Sprintf("user=%d email=%s role=%s", u.ID, u.Email, u.Role)))
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int64("user_id", u.ID).Str("role", u.Role).Msg("user created")
	return u, nil
}

// Update applies req. Deactivating a user or changing their password ends
// every session they hold.
func (us *UserService) Update(ctx context.Context, actor models.Actor, id int64, req UpdateUserRequest) (*models.User, error) {
	var out *models.User
	err := us.store.WithinTx(ctx, func(tx Store) error {
		u, err := tx.GetUser(ctx, id)
		if err != nil {
			return err
		}
		self := actor.UserID != nil && *actor.UserID == id
		var changes []string

		if req.Name != nil {
			if name := strings.TrimSpace(*req.Name); name != u.Name {
				changes = append(changes, fmt.Sprintf("name: %q → %q", u.Name, name))
				u.Name = name
			}
		}

		role := u.Role
		if req.Role != nil && *req.Role != u.Role {
			if !auth.IsValidRole(*req.Role) {
				return ErrInvalidRole
			}
			if self {
				return ErrSelfRoleChange
			}
			role = *req.Role
		}
		clinicID := u.ClinicID
		if req.ClinicID != nil {
			clinicID = req.ClinicID
		}
		if role != u.Role || req.ClinicID != nil {
			if clinicID, err = checkClinic(ctx, tx, role, clinicID); err != nil {
				return err
			}
			if role != u.Role {
				changes = append(changes, fmt.Sprintf("role: %s → %s", u.Role, role))
			}
			if !sameID(clinicID, u.ClinicID) {
				changes = append(changes, fmt.Sprintf("clinic: %s → %s", idString(u.ClinicID), idString(clinicID)))
			}
			u.Role, u.ClinicID = role, clinicID
		}

		endSessions := false
		if req.IsActive != nil && *req.IsActive != u.IsActive {
			if self && !*req.IsActive {
				return ErrSelfDeactivate
			}
			changes = append(changes, fmt.Sprintf("isActive: %t → %t", u.IsActive, *req.IsActive))
			u.IsActive = *req.IsActive
			endSessions = !u.IsActive
		}

		if req.Password != nil {
			if len(*req.Password) < minPasswordLength {
				return ErrShortPassword
			}
			hash, err := auth.HashPassword(*req.Password)
			if err != nil {
				return err
			}
			u.PasswordHash = hash
			changes = append(changes, "password reset")
			endSessions = true
		}

		out = u
		if len(changes) == 0 {
			return nil
		}
		if err := tx.UpdateUser(ctx, u); err != nil {
			return err
		}
		if endSessions {
			n, err := tx.DeleteUserSessions(ctx, u.ID)
			if err != nil {
				return err
			}
			changes = append(changes, fmt.Sprintf("sessionsEnded=%d", n))
		}
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionUserUpdated,
			fmt.Sprintf("user=%d %s", u.ID, strings.Join(changes, "; "))))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a user; their sessions cascade
func (us *UserService) Delete(ctx context.Context, actor models.Actor, id int64) error {
	if actor.UserID != nil && *actor.UserID == id {
		return ErrSelfDelete
	}
	return us.store.WithinTx(ctx, func(tx Store) error {
		u, err := tx.GetUser(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteUser(ctx, id); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionUserDeleted,
			fmt.Sprintf("user=%d email=%s", u.ID, u.Email)))
	})
}

// ForceLogout ends every session of a user and returns how many ended
func (us *UserService) ForceLogout(ctx context.Context, actor models.Actor, id int64) (int64, error) {
	var n int64
	err := us.store.WithinTx(ctx, func(tx Store) error {
		if _, err := tx.GetUser(ctx, id); err != nil {
			return err
		}
		var err error
		if n, err = tx.DeleteUserSessions(ctx, id); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, audit.Entry(actor, audit.ActionUserForceLogout,
			fmt.Sprintf("user=%d sessionsEnded=%d", id, n)))
	})
	return n, err
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func idString(id *int64) string {
	if id == nil {
		return "none"
	}
	return fmt.Sprint(*id)
}
