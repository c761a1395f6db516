package middleware

import (
	"fmt"
	"log"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docquery/internal/ratelimit"
)

// RateLimitRule is a request budget per window.
type RateLimitRule struct {
	WindowSeconds int `json:"window_seconds" yaml:"window_seconds"`
	MaxRequests   int `json:"max_requests" yaml:"max_requests"`
}

// RateLimitConfig contains configuration for rate limiting middleware
type RateLimitConfig struct {
	// Anonymous requests are limited per client IP.
	Anonymous RateLimitRule `json:"anonymous" yaml:"anonymous"`

	// Authenticated requests are limited per user.
	Authenticated RateLimitRule `json:"authenticated" yaml:"authenticated"`

	// Cleanup interval for idle buckets
	CleanupIntervalSeconds int `json:"cleanup_interval_seconds" yaml:"cleanup_interval_seconds"`

	Enabled bool `json:"enabled" yaml:"enabled"`
}

// DefaultRateLimitConfig returns default rate limiting configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:                true,
		Anonymous:              RateLimitRule{WindowSeconds: 60, MaxRequests: 30},
		Authenticated:          RateLimitRule{WindowSeconds: 60, MaxRequests: 120},
		CleanupIntervalSeconds: 300,
	}
}

// RateLimitMiddleware provides HTTP rate limiting
type RateLimitMiddleware struct {
	anonymousLimiter     *ratelimit.Limiter
	authenticatedLimiter *ratelimit.Limiter
	config               RateLimitConfig
	onRateLimitExceeded  func(r *http.Request, identifier string, isAnonymous bool)
	logger               *log.Logger
}

// RateLimitMiddlewareConfig contains initialization options for rate limiting middleware
type RateLimitMiddlewareConfig struct {
	Config              RateLimitConfig
	OnRateLimitExceeded func(r *http.Request, identifier string, isAnonymous bool)
	Logger              *log.Logger

	// Clock overrides the limiter time source in tests.
	Clock func() time.Time
}

// NewRateLimitMiddleware creates a new rate limiting middleware
func NewRateLimitMiddleware(config RateLimitMiddlewareConfig) *RateLimitMiddleware {
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	m := &RateLimitMiddleware{
		config:              config.Config,
		onRateLimitExceeded: config.OnRateLimitExceeded,
		logger:              config.Logger,
	}
	if !config.Config.Enabled {
		return m
	}

	cleanupInterval := time.Duration(config.Config.CleanupIntervalSeconds) * time.Second
	if cleanupInterval <= 0 {
		cleanupInterval = 60 * time.Second
	}
	var opts []ratelimit.Option
	if config.Clock != nil {
		opts = append(opts, ratelimit.WithClock(config.Clock))
	}

	m.anonymousLimiter = ratelimit.New(
		config.Config.Anonymous.MaxRequests,
		time.Duration(config.Config.Anonymous.WindowSeconds)*time.Second,
		cleanupInterval,
		opts...,
	)
	m.authenticatedLimiter = ratelimit.New(
		config.Config.Authenticated.MaxRequests,
		time.Duration(config.Config.Authenticated.WindowSeconds)*time.Second,
		cleanupInterval,
		opts...,
	)
	return m
}

// Wrap wraps an http.Handler with rate limiting. Requests that already
// passed AuthMiddleware are keyed by user id, all others by client IP.
func (m *RateLimitMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.config.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		var (
			decision    ratelimit.Decision
			identifier  string
			isAnonymous bool
		)
		if authInfo := GetAuthInfo(r.Context()); authInfo != nil {
			identifier = authInfo.UserID
			decision = m.authenticatedLimiter.Allow("user:" + identifier)
		} else {
			identifier = extractClientIP(r)
			isAnonymous = true
			decision = m.anonymousLimiter.Allow("ip:" + identifier)
		}

		setRateLimitHeaders(w, decision)

		if !decision.Allowed {
			if m.onRateLimitExceeded != nil {
				m.onRateLimitExceeded(r, identifier, isAnonymous)
			}
			m.logger.Printf("[RateLimit] Rate limit exceeded: %s %s (identifier: %s, type: %s, request_id: %s)",
				r.Method, r.URL.Path, sanitizeIdentifier(identifier, isAnonymous),
				getIdentifierType(isAnonymous), GetRequestID(r.Context()))
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WrapFunc wraps an http.HandlerFunc with rate limiting
func (m *RateLimitMiddleware) WrapFunc(next http.HandlerFunc) http.HandlerFunc {
	return m.Wrap(next).ServeHTTP
}

func setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

	if !d.Allowed {
		secs := int(math.Ceil(d.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
}

// extractClientIP extracts the real client IP from the request
// Handles proxies and load balancers by checking standard headers
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); isValidIP(ip) {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := strings.TrimSpace(xri); isValidIP(ip) {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}

// sanitizeIdentifier masks client IPs for logging. User ids are opaque and
// logged as-is.
func sanitizeIdentifier(identifier string, isAnonymous bool) string {
	if !isAnonymous {
		return identifier
	}

	if ip := net.ParseIP(identifier); ip != nil {
		if ip.To4() != nil {
			parts := strings.Split(identifier, ".")
			return fmt.Sprintf("%s.%s.*.*", parts[0], parts[1])
		}
		parts := strings.Split(identifier, ":")
		return fmt.Sprintf("%s::*", parts[0])
	}

	return "IP_ADDR"
}

func getIdentifierType(isAnonymous bool) string {
	if isAnonymous {
		return "anonymous_ip"
	}
	return "authenticated_user"
}

// Stop stops the rate limiting middleware and cleans up resources
func (m *RateLimitMiddleware) Stop() {
	if m.anonymousLimiter != nil {
		m.anonymousLimiter.Stop()
	}
	if m.authenticatedLimiter != nil {
		m.authenticatedLimiter.Stop()
	}
}

// RateLimitStats summarizes both limiters.
type RateLimitStats struct {
	Enabled       bool             `json:"enabled"`
	Anonymous     *ratelimit.Stats `json:"anonymous,omitempty"`
	Authenticated *ratelimit.Stats `json:"authenticated,omitempty"`
}

// GetStats returns statistics about rate limiting
func (m *RateLimitMiddleware) GetStats() RateLimitStats {
	stats := RateLimitStats{Enabled: m.config.Enabled}
	if m.anonymousLimiter != nil {
		s := m.anonymousLimiter.GetStats()
		stats.Anonymous = &s
	}
	if m.authenticatedLimiter != nil {
		s := m.authenticatedLimiter.GetStats()
		stats.Authenticated = &s
	}
	return stats
}
