package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TokenType distinguishes short-lived access tokens from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// tokenPrefix marks docquery tokens so they are easy to spot in logs.
const tokenPrefix = "dq_"

// Default token lifetimes.
const (
	DefaultAccessTTL  = 24 * time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	// ErrInvalidToken is returned for unknown, replaced or wrong-type tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned for a known token past its expiry.
	ErrTokenExpired = errors.New("token has expired")
)

// TokenStorage manages user tokens in the database. Only hashes are stored;
// the raw value is returned once when the pair is issued.
type TokenStorage struct {
	db         *sql.DB
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenInfo represents public token information (no sensitive data)
type TokenInfo struct {
	TokenID    string     `json:"token_id"`
	UserID     string     `json:"user_id"`
	Type       TokenType  `json:"token_type"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// TokenPair is the result of a login or refresh.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// TokenOption configures TokenStorage.
type TokenOption func(*TokenStorage)

// WithTokenTTL sets the access and refresh token lifetimes. Non-positive
// values keep the defaults.
func WithTokenTTL(access, refresh time.Duration) TokenOption {
	return func(ts *TokenStorage) {
		if access > 0 {
			ts.accessTTL = access
		}
		if refresh > 0 {
			ts.refreshTTL = refresh
		}
	}
}

// WithTokenClock overrides the clock used for issuing and expiry checks.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(ts *TokenStorage) { ts.now = now }
}

// NewTokenStorage creates a new token storage instance
func NewTokenStorage(db *sql.DB, opts ...TokenOption) *TokenStorage {
	ts := &TokenStorage{
		db:         db,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateToken() (string, error) {
	b := make([]byte, 32) // 256 bits
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return tokenPrefix + hex.EncodeToString(b), nil
}

// IssuePair creates a new access/refresh pair for userID. Every token the
// user held before is deleted in the same transaction, so only the newest
// pair validates.
func (ts *TokenStorage) IssuePair(ctx context.Context, userID string) (*TokenPair, error) {
	access, err := generateToken()
	if err != nil {
		return nil, err
	}
	refresh, err := generateToken()
	if err != nil {
		return nil, err
	}

	now := ts.now().UTC()
	pair := &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(ts.accessTTL),
		RefreshExpiresAt: now.Add(ts.refreshTTL),
	}

	tx, err := ts.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM auth_tokens WHERE user_id = ?`, userID); err != nil {
		return nil, fmt.Errorf("failed to replace tokens: %w", err)
	}

	insert := `
		INSERT INTO auth_tokens (token_id, user_id, token_type, hashed_token, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, insert, uuid.New().String(), userID, TokenTypeAccess, hashToken(access), now, pair.AccessExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insert, uuid.New().String(), userID, TokenTypeRefresh, hashToken(refresh), now, pair.RefreshExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit tokens: %w", err)
	}
	return pair, nil
}

// ValidateToken checks that rawToken is a current token of the wanted type
// and updates last_used_at.
func (ts *TokenStorage) ValidateToken(ctx context.Context, rawToken string, want TokenType) (*TokenInfo, error) {
	if rawToken == "" {
		return nil, ErrInvalidToken
	}

	var info TokenInfo
	err := ts.db.QueryRowContext(ctx, `
		SELECT token_id, user_id, token_type, created_at, expires_at, last_used_at
		FROM auth_tokens
		WHERE hashed_token = ?
	`, hashToken(rawToken)).Scan(
		&info.TokenID,
		&info.UserID,
		&info.Type,
		&info.CreatedAt,
		&info.ExpiresAt,
		&info.LastUsedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}

	if info.Type != want {
		return nil, ErrInvalidToken
	}

	now := ts.now().UTC()
	if now.After(info.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	// A failed last-used update does not invalidate the token.
	if _, err := ts.db.ExecContext(ctx, `UPDATE auth_tokens SET last_used_at = ? WHERE token_id = ?`, now, info.TokenID); err == nil {
		info.LastUsedAt = &now
	}
	return &info, nil
}

// ListUserTokens returns the user's stored tokens, newest first.
func (ts *TokenStorage) ListUserTokens(ctx context.Context, userID string) ([]TokenInfo, error) {
	rows, err := ts.db.QueryContext(ctx, `
		SELECT token_id, user_id, token_type, created_at, expires_at, last_used_at
		FROM auth_tokens
		WHERE user_id = ?
		ORDER BY created_at DESC, token_type
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close()

	var tokens []TokenInfo
	for rows.Next() {
		var info TokenInfo
		if err := rows.Scan(&info.TokenID, &info.UserID, &info.Type, &info.CreatedAt, &info.ExpiresAt, &info.LastUsedAt); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tokens, nil
}

// RevokeUserTokens deletes every token of userID.
func (ts *TokenStorage) RevokeUserTokens(ctx context.Context, userID string) (int64, error) {
	result, err := ts.db.ExecContext(ctx, `DELETE FROM auth_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke tokens: %w", err)
	}
	return result.RowsAffected()
}

// CleanupExpiredTokens removes expired tokens from the database
func (ts *TokenStorage) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	result, err := ts.db.ExecContext(ctx, `
		DELETE FROM auth_tokens
		WHERE expires_at < ?
	`, ts.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired tokens: %w", err)
	}
	return result.RowsAffected()
}
