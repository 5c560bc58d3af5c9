package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/licensehub/internal/api/auth"
	"github.com/licensehub/internal/apperr"
	"github.com/licensehub/internal/audit"
	"github.com/licensehub/internal/database"
	"github.com/licensehub/internal/sessions"
	"github.com/licensehub/pkg/models"
)

// Storage is the Postgres Store
type Storage struct {
	db *sql.DB
	q  database.Querier
}

func NewStorage(db *sql.DB) *Storage { return &Storage{db: db, q: db} }

func (s *Storage) WithinTx(ctx context.Context, fn func(Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&Storage{db: s.db, q: tx})
	})
}

func (s *Storage) ListUsers(ctx context.Context, f Filter) ([]models.User, int, error) {
	limit, offset := database.ClampPage(f.Limit, f.Offset)

	var (
		where []string
		args  []any
	)
	if f.Role != "" {
		args = append(args, f.Role)
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	if f.ClinicID != nil {
		args = append(args, *f.ClinicID)
		where = append(where, fmt.Sprintf("clinic_id = $%d", len(args)))
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		args = append(args, "%"+q+"%")
		where = append(where, fmt.Sprintf("(email ILIKE $%d OR name ILIKE $%d)", len(args), len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := s.q.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM users%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
			auth.UserColumns, clause, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	out := []models.User{}
	for rows.Next() {
		u, err := auth.ScanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *u)
	}
	return out, total, rows.Err()
}

func (s *Storage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return auth.ScanUser(s.q.QueryRowContext(ctx, `SELECT `+auth.UserColumns+` FROM users WHERE id = $1`, id))
}

func (s *Storage) CreateUser(ctx context.Context, u *models.User) error {
	err := s.q.QueryRowContext(ctx, `INSERT INTO users (email, password_hash, name, role, clinic_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at`,
		u.Email, u.PasswordHash, u.Name, u.Role, u.ClinicID, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	switch {
	case database.IsUniqueViolation(err, "users_email_key"):
		return apperr.Wrap(ErrEmailTaken, err)
	case database.IsForeignKeyViolation(err):
		return apperr.Wrap(ErrClinicNotFound, err)
	case err != nil:
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Storage) UpdateUser(ctx context.Context, u *models.User) error {
	err := s.q.QueryRowContext(ctx, `UPDATE users SET name = $2, role = $3, clinic_id = $4, is_active = $5,
		password_hash = $6, updated_at = NOW() WHERE id = $1 RETURNING updated_at`,
		u.ID, u.Name, u.Role, u.ClinicID, u.IsActive, u.PasswordHash,
	).Scan(&u.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return auth.ErrUserNotFound
	case database.IsForeignKeyViolation(err):
		return apperr.Wrap(ErrClinicNotFound, err)
	case err != nil:
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func (s *Storage) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

func (s *Storage) ClinicExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	if err := s.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM clinics WHERE id = $1)`, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("check clinic: %w", err)
	}
	return ok, nil
}

func (s *Storage) DeleteUserSessions(ctx context.Context, userID int64) (int64, error) {
	return sessions.DeleteForUser(ctx, s.q, userID)
}

func (s *Storage) InsertAudit(ctx context.Context, e models.AuditLog) error {
	return audit.Insert(ctx, s.q, e)
}
