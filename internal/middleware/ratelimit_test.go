package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRateLimiter(t *testing.T, anon, authed int) (*RateLimitMiddleware, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := NewRateLimitMiddleware(RateLimitMiddlewareConfig{
		Config: RateLimitConfig{
			Enabled:       true,
			Anonymous:     RateLimitRule{WindowSeconds: 60, MaxRequests: anon},
			Authenticated: RateLimitRule{WindowSeconds: 60, MaxRequests: authed},
		},
		Clock: clock.Now,
	})
	t.Cleanup(m.Stop)
	return m, clock
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRateLimitMiddleware_AnonymousRequests(t *testing.T) {
	m, _ := newTestRateLimiter(t, 2, 10)
	handler := m.Wrap(okHandler)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/login", nil)
		req.RemoteAddr = "192.168.1.100:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	second := send()
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "0", second.Header().Get("X-RateLimit-Remaining"))

	third := send()
	require.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.Equal(t, "30", third.Header().Get("Retry-After"))

	env := decodeEnvelope(t, third)
	assert.Equal(t, 0, env.Status)
	assert.Equal(t, http.StatusTooManyRequests, env.Code)
	assert.Equal(t, "Too many requests", env.Message)
}

func TestRateLimitMiddleware_Refill(t *testing.T) {
	m, clock := newTestRateLimiter(t, 1, 10)
	handler := m.Wrap(okHandler)

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
	clock.Advance(61 * time.Second)
	assert.Equal(t, http.StatusOK, send())
}

func TestRateLimitMiddleware_AuthenticatedKeyedByUser(t *testing.T) {
	m, _ := newTestRateLimiter(t, 1, 2)
	handler := m.Wrap(okHandler)

	send := func(userID, remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/qa", nil)
		req.RemoteAddr = remote
		req = req.WithContext(WithAuthInfo(req.Context(), &AuthInfo{UserID: userID}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	// Same user from two addresses shares one budget.
	assert.Equal(t, http.StatusOK, send("u1", "10.0.0.1:1").Code)
	rec := send("u1", "10.0.0.2:1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, http.StatusTooManyRequests, send("u1", "10.0.0.3:1").Code)

	assert.Equal(t, http.StatusOK, send("u2", "10.0.0.1:1").Code)
}

func TestRateLimitMiddleware_ExceededCallback(t *testing.T) {
	var calls []string
	m := NewRateLimitMiddleware(RateLimitMiddlewareConfig{
		Config: RateLimitConfig{
			Enabled:   true,
			Anonymous: RateLimitRule{WindowSeconds: 60, MaxRequests: 1},
		},
		OnRateLimitExceeded: func(r *http.Request, identifier string, isAnonymous bool) {
			assert.True(t, isAnonymous)
			calls = append(calls, identifier)
		},
	})
	defer m.Stop()
	handler := m.WrapFunc(okHandler)

	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		handler(httptest.NewRecorder(), req)
	}
	assert.Equal(t, []string{"203.0.113.9", "203.0.113.9"}, calls)
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	m := NewRateLimitMiddleware(RateLimitMiddlewareConfig{Config: RateLimitConfig{Enabled: false}})
	defer m.Stop()
	handler := m.Wrap(okHandler)

	for range 5 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
	assert.False(t, m.GetStats().Enabled)
}

func TestRateLimitMiddleware_GetStats(t *testing.T) {
	m, _ := newTestRateLimiter(t, 5, 10)
	handler := m.Wrap(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	stats := m.GetStats()
	assert.True(t, stats.Enabled)
	require.NotNil(t, stats.Anonymous)
	require.NotNil(t, stats.Authenticated)
	assert.Equal(t, 1, stats.Anonymous.ActiveBuckets)
	assert.Equal(t, 0, stats.Authenticated.ActiveBuckets)
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expected   string
	}{
		{"forwarded for first hop", map[string]string{"X-Forwarded-For": "203.0.113.1, 198.51.100.2"}, "10.0.0.1:1", "203.0.113.1"},
		{"invalid forwarded falls back to real ip", map[string]string{"X-Forwarded-For": "garbage", "X-Real-IP": "198.51.100.7"}, "10.0.0.1:1", "198.51.100.7"},
		{"remote addr", nil, "192.0.2.5:443", "192.0.2.5"},
		{"remote addr without port", nil, "192.0.2.5", "192.0.2.5"},
		{"ipv6 remote", nil, "[2001:db8::1]:8080", "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, extractClientIP(req))
		})
	}
}

func TestSanitizeIdentifier(t *testing.T) {
	assert.Equal(t, "192.168.*.*", sanitizeIdentifier("192.168.1.100", true))
	assert.Equal(t, "2001::*", sanitizeIdentifier("2001:db8::1", true))
	assert.Equal(t, "IP_ADDR", sanitizeIdentifier("not-an-ip", true))
	assert.Equal(t, "user-1", sanitizeIdentifier("user-1", false))
}
