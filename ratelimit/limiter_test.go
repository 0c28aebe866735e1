package ratelimit_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/applyflow/telemetry/common/test"
	"github.com/applyflow/telemetry/ratelimit"
)

// fakeClock provides a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
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

func newLimiter(t *testing.T, capacity, refill float64, opts ...ratelimit.Option) *ratelimit.Limiter {
	t.Helper()
	opts = append(opts, ratelimit.WithLogger(test.NewLogger(t)))
	return ratelimit.New(capacity, refill, opts...)
}

func TestAllowedExactCapacity(t *testing.T) {
	l := newLimiter(t, 5, 1)

	for i := 0; i < 5; i++ {
		d := l.Allowed("client-1", 1)
		assert.True(t, d.Allowed, "request %d", i+1)
	}

	d := l.Allowed("client-1", 1)
	require.False(t, d.Allowed)
	assert.InDelta(t, 0, d.Remaining, 0.01)
	assert.GreaterOrEqual(t, d.RetryAfterSeconds, 1)
}

func TestAllowedRemainingCountsDown(t *testing.T) {
	l := newLimiter(t, 3, 1)

	assert.InDelta(t, 2, l.Allowed("k", 1).Remaining, 0.001)
	assert.InDelta(t, 1, l.Allowed("k", 1).Remaining, 0.001)
	assert.InDelta(t, 0, l.Allowed("k", 1).Remaining, 0.001)
}

func TestAllowedRefill(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(t, 2, 1, ratelimit.WithClock(clock.Now))

	assert.True(t, l.Allowed("k", 2).Allowed)
	assert.False(t, l.Allowed("k", 1).Allowed)

	clock.Advance(1500 * time.Millisecond)

	d := l.Allowed("k", 1)
	require.True(t, d.Allowed)
	assert.InDelta(t, 0.5, d.Remaining, 0.001)
}

func TestAllowedRefillCapsAtCapacity(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(t, 3, 10, ratelimit.WithClock(clock.Now))

	assert.True(t, l.Allowed("k", 1).Allowed)
	clock.Advance(time.Hour)

	d := l.Allowed("k", 1)
	require.True(t, d.Allowed)
	assert.InDelta(t, 2, d.Remaining, 0.001)
}

func TestAllowedRetryAfter(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(t, 10, 2, ratelimit.WithClock(clock.Now))

	require.True(t, l.Allowed("k", 10).Allowed)

	// Empty bucket, cost 5 at 2 tokens/s needs 2.5s, rounded up to 3.
	d := l.Allowed("k", 5)
	require.False(t, d.Allowed)
	assert.Equal(t, 3, d.RetryAfterSeconds)
}

func TestAllowedZeroCostDefaultsToOne(t *testing.T) {
	l := newLimiter(t, 1, 1)

	assert.True(t, l.Allowed("k", 0).Allowed)
	assert.False(t, l.Allowed("k", 0).Allowed)
}

func TestAllowedKeysAreIndependent(t *testing.T) {
	l := newLimiter(t, 1, 1)

	assert.True(t, l.Allowed("a", 1).Allowed)
	assert.False(t, l.Allowed("a", 1).Allowed)
	assert.True(t, l.Allowed("b", 1).Allowed)
}

func TestStats(t *testing.T) {
	l := newLimiter(t, 5, 1)

	_, ok := l.Stats("k")
	assert.False(t, ok)

	l.Allowed("k", 2)

	stats, ok := l.Stats("k")
	require.True(t, ok)
	assert.InDelta(t, 3, stats.Remaining, 0.1)
	assert.InDelta(t, 5, stats.Capacity, 0.001)

	// Stats must not consume tokens.
	again, _ := l.Stats("k")
	assert.GreaterOrEqual(t, again.Remaining, stats.Remaining)
}

func TestReset(t *testing.T) {
	l := newLimiter(t, 1, 0.001)

	require.False(t, l.Allowed("a", 2).Allowed)
	l.Reset("a")
	assert.True(t, l.Allowed("a", 1).Allowed)

	l.Allowed("b", 1)
	l.Reset()
	assert.Zero(t, l.Len())
}

func TestMaxKeysEvictsLRU(t *testing.T) {
	l := newLimiter(t, 1, 1, ratelimit.WithMaxKeys(3))

	for i := 0; i < 10; i++ {
		l.Allowed(fmt.Sprintf("key-%d", i), 1)
	}

	assert.Equal(t, 3, l.Len())
}

func TestSweepReclaimsIdleBuckets(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(t, 5, 1,
		ratelimit.WithClock(clock.Now),
		ratelimit.WithSweepInterval(time.Minute),
	)

	l.Allowed("idle", 1)
	clock.Advance(90 * time.Second)
	l.Allowed("active", 1)
	clock.Advance(60 * time.Second)

	// "idle" last used 150s ago, past the 2m idle cutoff; "active" 60s ago.
	removed := l.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, l.Len())

	_, ok := l.Stats("active")
	assert.True(t, ok)
}

func TestAllowedConcurrent(t *testing.T) {
	l := newLimiter(t, 100, 0.0001)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if l.Allowed("shared", 1).Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	// 200 attempts against capacity 100 with negligible refill.
	assert.Equal(t, 100, allowed)
}
