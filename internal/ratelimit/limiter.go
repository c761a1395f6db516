// Package ratelimit provides keyed token-bucket rate limiting for the HTTP
// API.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

type bucket struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiter keeps one token bucket per key. A bucket holds limit tokens and
// refills at limit per window, so a key may burst up to limit requests and
// then sustain limit requests per window.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	window  time.Duration
	every   rate.Limit
	now     func() time.Time

	cleanupTick *time.Ticker
	stopCleanup chan struct{}
	cleanupWG   sync.WaitGroup
	stopOnce    sync.Once
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a limiter allowing limit requests per window for every key.
// Buckets idle for two windows are dropped every cleanupInterval; a
// non-positive interval disables the background cleanup.
func New(limit int, window, cleanupInterval time.Duration, opts ...Option) *Limiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	l := &Limiter{
		buckets:     make(map[string]*bucket),
		limit:       limit,
		window:      window,
		every:       rate.Limit(float64(limit) / window.Seconds()),
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	if cleanupInterval > 0 {
		l.cleanupTick = time.NewTicker(cleanupInterval)
		l.cleanupWG.Add(1)
		go l.cleanupLoop()
	}
	return l
}

// Allow consumes one token for key if available.
func (l *Limiter) Allow(key string) Decision {
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.every, l.limit)}
		l.buckets[key] = b
	}
	b.lastAccess = now
	l.mu.Unlock()

	d := Decision{Limit: l.limit}
	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		d.RetryAfter = delay
	} else {
		d.Allowed = true
	}

	tokens := b.limiter.TokensAt(now)
	d.Remaining = max(0, int(math.Floor(tokens)))
	missing := float64(l.limit) - tokens
	d.ResetAt = now.Add(time.Duration(missing / float64(l.every) * float64(time.Second)))
	return d
}

func (l *Limiter) cleanupLoop() {
	defer l.cleanupWG.Done()
	for {
		select {
		case <-l.cleanupTick.C:
			l.Cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

// Cleanup drops buckets idle for more than two windows. A dropped bucket is
// full again by then, so dropping it changes nothing for its key.
func (l *Limiter) Cleanup() int {
	cutoff := l.now().Add(-2 * l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, b := range l.buckets {
		if b.lastAccess.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Stop ends the background cleanup. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		if l.cleanupTick != nil {
			l.cleanupTick.Stop()
		}
		close(l.stopCleanup)
		l.cleanupWG.Wait()
	})
}

// Stats contains statistics about the rate limiter
type Stats struct {
	ActiveBuckets int           `json:"active_buckets"`
	Window        time.Duration `json:"window"`
	Limit         int           `json:"limit"`
}

func (l *Limiter) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{ActiveBuckets: len(l.buckets), Window: l.window, Limit: l.limit}
}
