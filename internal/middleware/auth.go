// Package middleware provides the HTTP middleware of the docquery API.
package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"docquery/internal/auth"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	// AuthContextKey is the context key for storing authentication info
	AuthContextKey contextKey = "auth"
)

// AuthInfo describes the authenticated caller of a request.
type AuthInfo struct {
	UserID          string
	TokenID         string
	TokenType       auth.TokenType
	ExpiresAt       time.Time
	Source          auth.TokenSource
	AuthenticatedAt time.Time
}

// GetAuthInfo returns nil if the request is not authenticated.
func GetAuthInfo(ctx context.Context) *AuthInfo {
	if info, ok := ctx.Value(AuthContextKey).(*AuthInfo); ok {
		return info
	}
	return nil
}

// WithAuthInfo stores info in ctx.
func WithAuthInfo(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, AuthContextKey, info)
}

// AuthError represents an authentication error
type AuthError struct {
	Code    int
	Message string
}

var (
	ErrMissingToken = AuthError{Code: http.StatusUnauthorized, Message: "Token missing or empty"}
	ErrInvalidToken = AuthError{Code: http.StatusUnauthorized, Message: "Invalid token"}
	ErrExpiredToken = AuthError{Code: http.StatusUnauthorized, Message: "Token has expired"}
)

// TokenValidator checks a raw token of the wanted type.
type TokenValidator interface {
	ValidateToken(ctx context.Context, rawToken string, want auth.TokenType) (*auth.TokenInfo, error)
}

// AuthMiddleware provides HTTP authentication middleware
type AuthMiddleware struct {
	validator   TokenValidator
	tokenType   auth.TokenType
	extractor   *auth.TokenExtractor
	skipPaths   map[string]bool
	onAuthError func(r *http.Request, err AuthError)
	logger      *log.Logger
}

// AuthMiddlewareConfig contains configuration for AuthMiddleware
type AuthMiddlewareConfig struct {
	// TokenType is the token type the wrapped routes accept (default access).
	TokenType auth.TokenType

	// SkipPaths is a list of paths that don't require authentication
	SkipPaths []string

	// OnAuthError is called when authentication fails (for logging/metrics)
	OnAuthError func(r *http.Request, err AuthError)

	Logger *log.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(validator TokenValidator, config AuthMiddlewareConfig) *AuthMiddleware {
	skipPaths := make(map[string]bool)
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}
	if config.TokenType == "" {
		config.TokenType = auth.TokenTypeAccess
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	return &AuthMiddleware{
		validator:   validator,
		tokenType:   config.TokenType,
		extractor:   auth.NewTokenExtractor(),
		skipPaths:   skipPaths,
		onAuthError: config.OnAuthError,
		logger:      config.Logger,
	}
}

// Wrap wraps an http.Handler with authentication
func (m *AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		extracted := m.extractor.Extract(r)
		if extracted.Token == "" {
			m.sendError(w, r, ErrMissingToken)
			return
		}

		info, err := m.validator.ValidateToken(r.Context(), extracted.Token, m.tokenType)
		if err != nil {
			m.logger.Printf("[Auth] Token validation failed request_id=%s path=%s source=%s: %v",
				GetRequestID(r.Context()), r.URL.Path, extracted.Source, err)
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				m.sendError(w, r, ErrExpiredToken)
			case errors.Is(err, auth.ErrInvalidToken):
				m.sendError(w, r, ErrInvalidToken)
			default:
				writeError(w, http.StatusInternalServerError, "Something went wrong")
			}
			return
		}

		authInfo := &AuthInfo{
			UserID:          info.UserID,
			TokenID:         info.TokenID,
			TokenType:       info.Type,
			ExpiresAt:       info.ExpiresAt,
			Source:          extracted.Source,
			AuthenticatedAt: time.Now(),
		}
		next.ServeHTTP(w, r.WithContext(WithAuthInfo(r.Context(), authInfo)))
	})
}

// WrapFunc wraps an http.HandlerFunc with authentication
func (m *AuthMiddleware) WrapFunc(next http.HandlerFunc) http.HandlerFunc {
	return m.Wrap(next).ServeHTTP
}

func (m *AuthMiddleware) sendError(w http.ResponseWriter, r *http.Request, authErr AuthError) {
	if m.onAuthError != nil {
		m.onAuthError(r, authErr)
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="docquery"`)
	writeError(w, authErr.Code, authErr.Message)
}
