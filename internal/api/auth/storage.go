package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/licensehub/internal/database"
	"github.com/licensehub/internal/sessions"
	"github.com/licensehub/pkg/models"
)

// UserColumns is the select list ScanUser expects
const UserColumns = `id, email, password_hash, name, role, clinic_id, is_active, last_login_at, created_at, updated_at`

// ScanUser reads one UserColumns row. A missing row is ErrUserNotFound.
func ScanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.ClinicID,
		&u.IsActive, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

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

func (s *Storage) UserByID(ctx context.Context, id int64) (*models.User, error) {
	return ScanUser(s.q.QueryRowContext(ctx, `SELECT `+UserColumns+` FROM users WHERE id = $1`, id))
}

func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return ScanUser(s.q.QueryRowContext(ctx, `SELECT `+UserColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
}

func (s *Storage) TouchLogin(ctx context.Context, userID int64) error {
	if _, err := s.q.ExecContext(ctx, `UPDATE users SET last_login_at = NOW() WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

func (s *Storage) CreateSession(ctx context.Context, sess *models.Session) error {
	return sessions.Create(ctx, s.q, sess)
}

func (s *Storage) TouchSession(ctx context.Context, userID int64, accessHash string) (*models.Session, error) {
	return sessions.TouchByAccessHash(ctx, s.q, userID, accessHash)
}

func (s *Storage) TakeSession(ctx context.Context, refreshHash string) (*models.Session, error) {
	return sessions.TakeByRefreshHash(ctx, s.q, refreshHash)
}

func (s *Storage) DeleteSession(ctx context.Context, accessHash string) (int64, error) {
	return sessions.DeleteByAccessHash(ctx, s.q, accessHash)
}

func (s *Storage) DeleteUserSessions(ctx context.Context, userID int64) (int64, error) {
	return sessions.DeleteForUser(ctx, s.q, userID)
}

func (s *Storage) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	return sessions.DeleteExpired(ctx, s.q)
}
