// Package sessions owns the sessions table. A session row backs one
// access/refresh token pair; deleting it revokes both on the next request.
package sessions

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/licensehub/internal/database"
	"github.com/licensehub/pkg/models"
)

// ErrNotFound is returned when no live session matches
var ErrNotFound = errors.New("session not found")

// HashToken is the at-rest form of a token
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

const columns = `id, user_id, access_token_hash, refresh_token_hash, user_agent, ip_address,
	access_expires_at, expires_at, created_at, last_used_at`

func scan(row interface{ Scan(...any) error }) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.UserID, &s.AccessTokenHash, &s.RefreshTokenHash, &s.UserAgent, &s.IPAddress,
		&s.AccessExpiresAt, &s.ExpiresAt, &s.CreatedAt, &s.LastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}

// Create inserts s and fills its id and created_at
func Create(ctx context.Context, q database.Querier, s *models.Session) error {
	err := q.QueryRowContext(ctx, `INSERT INTO sessions
		(user_id, access_token_hash, refresh_token_hash, user_agent, ip_address, access_expires_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`,
		s.UserID, s.AccessTokenHash, s.RefreshTokenHash, s.UserAgent, s.IPAddress, s.AccessExpiresAt, s.ExpiresAt,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// TouchByAccessHash returns the unexpired session for an access token hash
// and stamps last_used_at.
func TouchByAccessHash(ctx context.Context, q database.Querier, userID int64, accessHash string) (*models.Session, error) {
	return scan(q.QueryRowContext(ctx, `UPDATE sessions SET last_used_at = NOW()
		WHERE user_id = $1 AND access_token_hash = $2 AND access_expires_at > NOW() AND expires_at > NOW()
		RETURNING `+columns, userID, accessHash))
}

// TakeByRefreshHash deletes and returns the unexpired session for a refresh
// token hash, so a refresh token can be used once.
func TakeByRefreshHash(ctx context.Context, q database.Querier, refreshHash string) (*models.Session, error) {
	return scan(q.QueryRowContext(ctx, `DELETE FROM sessions
		WHERE refresh_token_hash = $1 AND expires_at > NOW()
		RETURNING `+columns, refreshHash))
}

// DeleteByAccessHash removes the session an access token belongs to
func DeleteByAccessHash(ctx context.Context, q database.Querier, accessHash string) (int64, error) {
	return exec(ctx, q, `DELETE FROM sessions WHERE access_token_hash = $1`, accessHash)
}

// DeleteForUser removes every session of a user
func DeleteForUser(ctx context.Context, q database.Querier, userID int64) (int64, error) {
	return exec(ctx, q, `DELETE FROM sessions WHERE user_id = $1`, userID)
}

// DeleteForClinic removes every session of every user of a clinic
func DeleteForClinic(ctx context.Context, q database.Querier, clinicID int64) (int64, error) {
	return exec(ctx, q, `DELETE FROM sessions WHERE user_id IN (SELECT id FROM users WHERE clinic_id = $1)`, clinicID)
}

// DeleteExpired removes sessions whose refresh window has closed
func DeleteExpired(ctx context.Context, q database.Querier) (int64, error) {
	return exec(ctx, q, `DELETE FROM sessions WHERE expires_at <= NOW()`)
}

func exec(ctx context.Context, q database.Querier, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
