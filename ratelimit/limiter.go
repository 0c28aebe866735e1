// Package ratelimit implements per-key token-bucket admission control.
// Buckets are created lazily, refilled on each check rather than by a timer,
// kept in a bounded LRU so adversarial key cardinality (e.g. spoofed IPs)
// cannot grow memory without limit, and reclaimed by a periodic idle sweep.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/applyflow/telemetry/common/logger"
)

// DefaultMaxKeys bounds the bucket store when no limit is configured.
const DefaultMaxKeys = 10_000

// DefaultSweepInterval is how often idle buckets are reclaimed. A bucket is
// considered idle after twice this interval without a check.
const DefaultSweepInterval = 5 * time.Minute

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool
	// Remaining tokens after the check, floored at zero.
	Remaining float64
	// RetryAfterSeconds is set only on denial: how long until the bucket
	// will have refilled enough to admit the same cost.
	RetryAfterSeconds int
}

// Stats exposes a bucket's state for response headers.
type Stats struct {
	Remaining float64
	Capacity  float64
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	lastUsed   time.Time
}

// Limiter is a thread-safe token-bucket rate limiter keyed by caller
// identity. Each bucket has its own lock; the store itself is a concurrent
// LRU, so checks for different keys never contend.
type Limiter struct {
	capacity      float64
	refillRate    float64
	sweepInterval time.Duration
	log           *logger.Logger
	now           func() time.Time

	buckets *lru.Cache[string, *bucket]
}

// Option configures a Limiter.
type Option func(l *limiterCfg)

type limiterCfg struct {
	maxKeys       int
	sweepInterval time.Duration
	log           *logger.Logger
	now           func() time.Time
}

// WithMaxKeys bounds the number of live buckets; the least recently used
// bucket is evicted when the bound is hit.
func WithMaxKeys(n int) Option {
	return func(c *limiterCfg) {
		if n > 0 {
			c.maxKeys = n
		}
	}
}

// WithSweepInterval sets the idle-bucket sweep period.
func WithSweepInterval(d time.Duration) Option {
	return func(c *limiterCfg) {
		if d > 0 {
			c.sweepInterval = d
		}
	}
}

// WithLogger sets the logger used for sweep reporting.
func WithLogger(log *logger.Logger) Option {
	return func(c *limiterCfg) {
		c.log = log
	}
}

// WithClock injects the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(c *limiterCfg) {
		c.now = now
	}
}

// New builds a Limiter admitting capacity tokens per key, refilled at
// refillRate tokens per second.
func New(capacity, refillRate float64, opts ...Option) *Limiter {
	cfg := &limiterCfg{
		maxKeys:       DefaultMaxKeys,
		sweepInterval: DefaultSweepInterval,
		log:           logger.Instance(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	buckets, err := lru.New[string, *bucket](cfg.maxKeys)
	if err != nil {
		// Only reachable with a non-positive size, which WithMaxKeys rejects.
		panic(err)
	}
	return &Limiter{
		capacity:      capacity,
		refillRate:    refillRate,
		sweepInterval: cfg.sweepInterval,
		log:           cfg.log,
		now:           cfg.now,
		buckets:       buckets,
	}
}

func (l *Limiter) bucket(key string) *bucket {
	if b, ok := l.buckets.Get(key); ok {
		return b
	}
	b := &bucket{
		tokens:     l.capacity,
		lastRefill: l.now(),
	}
	if existing, found, _ := l.buckets.PeekOrAdd(key, b); found {
		return existing
	}
	return b
}

// Allowed checks whether the caller identified by key may spend cost tokens.
// Refill happens lazily here: elapsed seconds times the refill rate, capped
// at capacity. On denial the decision carries the seconds to wait before the
// same cost would be admitted.
func (l *Limiter) Allowed(key string, cost float64) Decision {
	if cost <= 0 {
		cost = 1
	}
	b := l.bucket(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(l.capacity, b.tokens+elapsed*l.refillRate)
		b.lastRefill = now
	}
	b.lastUsed = now

	if b.tokens >= cost {
		b.tokens -= cost
		return Decision{Allowed: true, Remaining: b.tokens}
	}

	retryAfter := int(math.Ceil((cost - b.tokens) / l.refillRate))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return Decision{Remaining: b.tokens, RetryAfterSeconds: retryAfter}
}

// Stats reports a bucket's remaining tokens without consuming any. ok is
// false when no bucket exists for the key yet.
func (l *Limiter) Stats(key string) (Stats, bool) {
	b, ok := l.buckets.Peek(key)
	if !ok {
		return Stats{}, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	elapsed := l.now().Sub(b.lastRefill).Seconds()
	tokens := math.Min(l.capacity, b.tokens+elapsed*l.refillRate)
	return Stats{Remaining: tokens, Capacity: l.capacity}, true
}

// Capacity returns the per-key bucket capacity.
func (l *Limiter) Capacity() float64 { return l.capacity }

// Reset clears the named buckets, or every bucket when called without keys.
// Administrative and test use.
func (l *Limiter) Reset(keys ...string) {
	if len(keys) == 0 {
		l.buckets.Purge()
		return
	}
	for _, key := range keys {
		l.buckets.Remove(key)
	}
}

// Len reports the number of live buckets.
func (l *Limiter) Len() int { return l.buckets.Len() }

// Sweep removes buckets idle for more than twice the sweep interval and
// returns how many were reclaimed.
func (l *Limiter) Sweep() int {
	idleCutoff := l.now().Add(-2 * l.sweepInterval)
	var removed int
	for _, key := range l.buckets.Keys() {
		b, ok := l.buckets.Peek(key)
		if !ok {
			continue
		}
		b.mu.Lock()
		idle := b.lastUsed.Before(idleCutoff)
		b.mu.Unlock()
		if idle {
			l.buckets.Remove(key)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep periodically until the context is canceled.
func (l *Limiter) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(l.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := l.Sweep(); removed > 0 {
					l.log.Debug("rate limiter sweep", logger.Int("reclaimed_buckets", removed))
				}
			}
		}
	}()
}
