package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"docquery/internal/auth"
	"docquery/internal/database"
)

type authFixture struct {
	tokens *auth.TokenStorage
	pair   *auth.TokenPair
	userID string
	now    time.Time
}

func setupAuth(t *testing.T) *authFixture {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &authFixture{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	f.tokens = auth.NewTokenStorage(db,
		auth.WithTokenTTL(time.Hour, 24*time.Hour),
		auth.WithTokenClock(func() time.Time { return f.now }))

	user, err := auth.NewUserStore(db, bcrypt.MinCost).Register(context.Background(), "ada@example.com", "secret")
	if err != nil {
		t.Fatalf("Failed to register user: %v", err)
	}
	f.userID = user.ID

	f.pair, err = f.tokens.IssuePair(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("Failed to issue tokens: %v", err)
	}
	return f
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return env
}

func TestAuthMiddleware_Wrap(t *testing.T) {
	f := setupAuth(t)
	mw := NewAuthMiddleware(f.tokens, AuthMiddlewareConfig{SkipPaths: []string{"/api/v1/health"}})

	var seen *AuthInfo
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetAuthInfo(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name           string
		path           string
		headers        map[string]string
		expectedStatus int
		expectedMsg    string
		expectAuthInfo bool
	}{
		{
			name:           "valid bearer access token",
			path:           "/api/v1/qa",
			headers:        map[string]string{"Authorization": "Bearer " + f.pair.AccessToken},
			expectedStatus: http.StatusOK,
			expectAuthInfo: true,
		},
		{
			name:           "valid api key header",
			path:           "/api/v1/qa",
			headers:        map[string]string{"X-API-Key": f.pair.AccessToken},
			expectedStatus: http.StatusOK,
			expectAuthInfo: true,
		},
		{
			name:           "missing token",
			path:           "/api/v1/qa",
			expectedStatus: http.StatusUnauthorized,
			expectedMsg:    "Token missing or empty",
		},
		{
			name:           "malformed bearer header",
			path:           "/api/v1/qa",
			headers:        map[string]string{"Authorization": "Bearer"},
			expectedStatus: http.StatusUnauthorized,
			expectedMsg:    "Token missing or empty",
		},
		{
			name:           "unknown token",
			path:           "/api/v1/qa",
			headers:        map[string]string{"Authorization": "Bearer dq_nope"},
			expectedStatus: http.StatusUnauthorized,
			expectedMsg:    "Invalid token",
		},
		{
			name:           "refresh token on access route",
			path:           "/api/v1/qa",
			headers:        map[string]string{"Authorization": "Bearer " + f.pair.RefreshToken},
			expectedStatus: http.StatusUnauthorized,
			expectedMsg:    "Invalid token",
		},
		{
			name:           "skip path",
			path:           "/api/v1/health",
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
			if tt.expectedMsg != "" {
				env := decodeEnvelope(t, rec)
				if env.Status != 0 || env.Code != tt.expectedStatus || env.Message != tt.expectedMsg {
					t.Errorf("Unexpected envelope: %+v", env)
				}
				if rec.Header().Get("WWW-Authenticate") == "" {
					t.Error("Expected WWW-Authenticate header")
				}
			}
			if tt.expectAuthInfo {
				if seen == nil {
					t.Fatal("Expected auth info in context")
				}
				if seen.UserID != f.userID {
					t.Errorf("Expected user %s, got %s", f.userID, seen.UserID)
				}
				if seen.TokenType != auth.TokenTypeAccess {
					t.Errorf("Expected access token type, got %s", seen.TokenType)
				}
			} else if seen != nil {
				t.Error("Did not expect auth info in context")
			}
		})
	}
}

func TestAuthMiddleware_RefreshRoute(t *testing.T) {
	f := setupAuth(t)
	mw := NewAuthMiddleware(f.tokens, AuthMiddlewareConfig{TokenType: auth.TokenTypeRefresh})
	handler := mw.WrapFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+f.pair.RefreshToken)
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Refresh token should pass refresh route, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+f.pair.AccessToken)
	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Access token should be rejected on refresh route, got %d", rec.Code)
	}
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	f := setupAuth(t)
	var reported []AuthError
	mw := NewAuthMiddleware(f.tokens, AuthMiddlewareConfig{
		OnAuthError: func(r *http.Request, err AuthError) { reported = append(reported, err) },
	})
	handler := mw.WrapFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	f.now = f.now.Add(time.Hour + time.Second)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/list-documents", nil)
	req.Header.Set("Authorization", "Bearer "+f.pair.AccessToken)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Message != "Token has expired" {
		t.Errorf("Expected expiry message, got %q", env.Message)
	}
	if len(reported) != 1 || reported[0] != ErrExpiredToken {
		t.Errorf("Expected one expired-token callback, got %v", reported)
	}
}

type failingValidator struct{}

func (failingValidator) ValidateToken(context.Context, string, auth.TokenType) (*auth.TokenInfo, error) {
	return nil, errors.New("database is locked")
}

func TestAuthMiddleware_StorageFailure(t *testing.T) {
	mw := NewAuthMiddleware(failingValidator{}, AuthMiddlewareConfig{})
	handler := mw.WrapFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/list-documents", nil)
	req.Header.Set("Authorization", "Bearer dq_anything")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Message != "Something went wrong" {
		t.Errorf("Unexpected message %q", env.Message)
	}
}

func TestGetAuthInfo(t *testing.T) {
	if GetAuthInfo(context.Background()) != nil {
		t.Error("Expected nil auth info on bare context")
	}
	info := &AuthInfo{UserID: "u1"}
	if got := GetAuthInfo(WithAuthInfo(context.Background(), info)); got != info {
		t.Errorf("Expected stored auth info, got %+v", got)
	}
}
