package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/licensehub/internal/sessions"
	"github.com/licensehub/pkg/models"
)

// Issuer is stamped into and required on every access token
const Issuer = "licensehub"

// Store is the persistence the token service needs
type Store interface {
	WithinTx(ctx context.Context, fn func(Store) error) error

	UserByID(ctx context.Context, id int64) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	TouchLogin(ctx context.Context, userID int64) error

	CreateSession(ctx context.Context, s *models.Session) error
	TouchSession(ctx context.Context, userID int64, accessHash string) (*models.Session, error)
	TakeSession(ctx context.Context, refreshHash string) (*models.Session, error)
	DeleteSession(ctx context.Context, accessHash string) (int64, error)
	DeleteUserSessions(ctx context.Context, userID int64) (int64, error)
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// TokenService handles JWT token creation, validation, and management
type TokenService struct {
	store     Store
	secretKey []byte
	now       func() time.Time

	// Configurable token durations
	AccessTokenDuration  time.Duration // Default: 15 minutes
	RefreshTokenDuration time.Duration // Default: 30 days
}

// TokenPair represents access and refresh tokens
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	TokenType    string    `json:"tokenType"` // "Bearer"
}

// JWTClaims represents the claims in our JWT tokens
type JWTClaims struct {
	UserID    int64  `json:"user_id"`
	Role      string `json:"role"`
	ClinicID  *int64 `json:"clinic_id,omitempty"`
	TokenHash string `json:"token_hash"` // Reference to the session row
	jwt.RegisteredClaims
}

// NewTokenService creates a new token service. Zero durations keep the
// defaults.
func NewTokenService(store Store, secretKey string, accessTTL, refreshTTL time.Duration) *TokenService {
	ts := &TokenService{
		store:                store,
		secretKey:            []byte(secretKey),
		now:                  time.Now,
		AccessTokenDuration:  15 * time.Minute,
		RefreshTokenDuration: 30 * 24 * time.Hour,
	}
	if accessTTL > 0 {
		ts.AccessTokenDuration = accessTTL
	}
	if refreshTTL > 0 {
		ts.RefreshTokenDuration = refreshTTL
	}
	return ts
}

// generateRandomToken creates a cryptographically secure random token
func generateRandomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashPassword is the bcrypt form stored in users.password_hash
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Login checks credentials and opens a new session
func (ts *TokenService) Login(ctx context.Context, email, password, userAgent, ipAddress string) (*models.User, *TokenPair, error) {
	user, err := ts.store.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, nil, ErrUserInactive
	}

	var pair *TokenPair
	err = ts.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.TouchLogin(ctx, user.ID); err != nil {
			return err
		}
		pair, err = ts.createTokenPair(ctx, tx, user, userAgent, ipAddress)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info().Int64("user_id", user.ID).Str("role", user.Role).Msg("user logged in")
	return user, pair, nil
}

// CreateTokenPair creates both access and refresh tokens for a user
func (ts *TokenService) CreateTokenPair(ctx context.Context, user *models.User, userAgent, ipAddress string) (*TokenPair, error) {
	return ts.createTokenPair(ctx, ts.store, user, userAgent, ipAddress)
}

func (ts *TokenService) createTokenPair(ctx context.Context, st Store, user *models.User, userAgent, ipAddress string) (*TokenPair, error) {
	refreshToken, err := generateRandomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	accessID, err := generateRandomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	now := ts.now()
	accessExpiresAt := now.Add(ts.AccessTokenDuration)
	session := &models.Session{
		UserID:           user.ID,
		AccessTokenHash:  sessions.HashToken(accessID),
		RefreshTokenHash: sessions.HashToken(refreshToken),
		UserAgent:        userAgent,
		IPAddress:        ipAddress,
		AccessExpiresAt:  accessExpiresAt,
		ExpiresAt:        now.Add(ts.RefreshTokenDuration),
	}
	if err := st.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	claims := &JWTClaims{
		UserID:    user.ID,
		Role:      user.Role,
		ClinicID:  user.ClinicID,
		TokenHash: session.AccessTokenHash,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(accessExpiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    Issuer,
			Subject:   fmt.Sprintf("user_%d", user.ID),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.secretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign JWT: %w", err)
	}

	return &TokenPair{
		AccessToken:  signed,
		RefreshToken: refreshToken,
		ExpiresAt:    accessExpiresAt,
		TokenType:    "Bearer",
	}, nil
}

// parseTokenClaims verifies signature, issuer and expiry
func (ts *TokenService) parseTokenClaims(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.secretKey, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ts.now),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// ValidateAccessToken verifies the JWT and requires its session row to
// still exist, so deleted sessions stop working on the next request.
func (ts *TokenService) ValidateAccessToken(ctx context.Context, tokenString string) (*models.User, *JWTClaims, error) {
	claims, err := ts.parseTokenClaims(tokenString)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}

	if _, err := ts.store.TouchSession(ctx, claims.UserID, claims.TokenHash); err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}

	user, err := ts.store.UserByID(ctx, claims.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil, ErrInvalidToken
	}
	if err != nil {
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, ErrUserInactive
	}
	return user, claims, nil
}

// RefreshTokenPair consumes a refresh token and issues a new pair
func (ts *TokenService) RefreshTokenPair(ctx context.Context, refreshToken, userAgent, ipAddress string) (*TokenPair, error) {
	var pair *TokenPair
	err := ts.store.WithinTx(ctx, func(tx Store) error {
		old, err := tx.TakeSession(ctx, sessions.HashToken(refreshToken))
		if errors.Is(err, sessions.ErrNotFound) {
			return ErrRefreshTokenInvalid
		}
		if err != nil {
			return err
		}
		user, err := tx.UserByID(ctx, old.UserID)
		if errors.Is(err, ErrUserNotFound) {
			return ErrRefreshTokenInvalid
		}
		if err != nil {
			return err
		}
		if !user.IsActive {
			return ErrUserInactive
		}
		pair, err = ts.createTokenPair(ctx, tx, user, userAgent, ipAddress)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout removes the session behind claims, or every session of the user
// when all is set. It returns the number of sessions removed.
func (ts *TokenService) Logout(ctx context.Context, claims *JWTClaims, all bool) (int64, error) {
	if all {
		return ts.store.DeleteUserSessions(ctx, claims.UserID)
	}
	return ts.store.DeleteSession(ctx, claims.TokenHash)
}

// RevokeAllUserTokens logs a user out everywhere
func (ts *TokenService) RevokeAllUserTokens(ctx context.Context, userID int64) (int64, error) {
	return ts.store.DeleteUserSessions(ctx, userID)
}

// CleanupExpiredSessions removes sessions past their refresh window. The
// job queue calls it periodically.
func (ts *TokenService) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	n, err := ts.store.DeleteExpiredSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired sessions: %w", err)
	}
	return n, nil
}
