package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
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
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestLimiter_BurstThenDeny(t *testing.T) {
	clock := newClock()
	l := New(3, time.Minute, 0, WithClock(clock.Now))
	defer l.Stop()

	for i := 0; i < 3; i++ {
		d := l.Allow("client")
		assert.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 2-i, d.Remaining)
		assert.Equal(t, 3, d.Limit)
	}

	d := l.Allow("client")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.InDelta(t, float64(20*time.Second), float64(d.RetryAfter), float64(time.Millisecond))
}

func TestLimiter_Refill(t *testing.T) {
	clock := newClock()
	l := New(2, time.Minute, 0, WithClock(clock.Now))
	defer l.Stop()

	assert.True(t, l.Allow("k").Allowed)
	assert.True(t, l.Allow("k").Allowed)
	assert.False(t, l.Allow("k").Allowed)

	clock.Advance(29 * time.Second)
	assert.False(t, l.Allow("k").Allowed)

	clock.Advance(time.Second)
	assert.True(t, l.Allow("k").Allowed, "one token refills every 30s")
	assert.False(t, l.Allow("k").Allowed)
}

func TestLimiter_DeniedRequestsDoNotConsume(t *testing.T) {
	clock := newClock()
	l := New(1, time.Minute, 0, WithClock(clock.Now))
	defer l.Stop()

	assert.True(t, l.Allow("k").Allowed)
	for i := 0; i < 10; i++ {
		assert.False(t, l.Allow("k").Allowed)
	}
	clock.Advance(time.Minute)
	assert.True(t, l.Allow("k").Allowed)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	clock := newClock()
	l := New(1, time.Minute, 0, WithClock(clock.Now))
	defer l.Stop()

	assert.True(t, l.Allow("a").Allowed)
	assert.False(t, l.Allow("a").Allowed)
	assert.True(t, l.Allow("b").Allowed)
	assert.Equal(t, 2, l.GetStats().ActiveBuckets)
}

func TestLimiter_Cleanup(t *testing.T) {
	clock := newClock()
	l := New(5, time.Minute, 0, WithClock(clock.Now))
	defer l.Stop()

	l.Allow("old")
	clock.Advance(90 * time.Second)
	l.Allow("recent")

	assert.Zero(t, l.Cleanup())
	clock.Advance(31 * time.Second)
	assert.Equal(t, 1, l.Cleanup())
	assert.Equal(t, 1, l.GetStats().ActiveBuckets)
}

func TestLimiter_ConcurrentAccess(t *testing.T) {
	l := New(100, time.Hour, 0)
	defer l.Stop()

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if l.Allow("shared").Allowed {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(100), allowed.Load())
}

func TestLimiter_StopIsIdempotent(t *testing.T) {
	l := New(1, time.Second, 10*time.Millisecond)
	l.Stop()
	l.Stop()
}

func BenchmarkLimiter_AllowMultipleClients(b *testing.B) {
	l := New(1000, time.Minute, 0)
	defer l.Stop()
	for i := 0; i < b.N; i++ {
		l.Allow(fmt.Sprintf("client-%d", i%100))
	}
}
