package floodgate

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/floodgate-dev/floodgate/metrics"
)

// bucket is the per-key token bucket state. All access is guarded by the
// registry entry that owns it.
type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// TokenBucketLimiter admits requests from a continuously refilling reservoir,
// one bucket per key. Each admitted request consumes one token; tokens refill
// at a fixed rate up to the capacity, so bursts up to the capacity are
// allowed while the sustained rate converges to the refill rate.
type TokenBucketLimiter struct {
	capacity  int64
	ratePerMs float64
	keys      *registry[bucket]
	clock     Clock
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

var (
	_ Limiter = (*TokenBucketLimiter)(nil)
	_ Stats   = (*TokenBucketLimiter)(nil)
)

// NewTokenBucketLimiter creates a token bucket limiter with the given per-key
// capacity and refill rate in tokens per second.
//
// Example: NewTokenBucketLimiter(100, 10.0) allows bursts of 100 requests per
// key and a sustained 10 requests/second.
func NewTokenBucketLimiter(capacity int64, refillPerSec float64, opts ...Option) (*TokenBucketLimiter, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if refillPerSec <= 0 {
		return nil, ErrInvalidRefillRate
	}

	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}

	tb := &TokenBucketLimiter{
		capacity:  capacity,
		ratePerMs: refillPerSec / 1000.0,
		clock:     s.clock,
		logger:    s.logger,
		metrics:   s.metrics,
	}
	tb.keys = newRegistry(s.clock, s.idleTTL, func(now time.Time) bucket {
		// New buckets start full.
		return bucket{tokens: float64(capacity), lastRefill: now}
	})
	return tb, nil
}

// Allow consumes one token from key's bucket if one is available.
// Refill, check and consume run as a single critical section per key.
func (tb *TokenBucketLimiter) Allow(key string) bool {
	e := tb.keys.lookup(key)

	e.mu.Lock()
	now := tb.clock.Now()
	e.lastSeen = now
	tb.refill(&e.state, now)
	allowed := e.state.tokens >= 1
	if allowed {
		e.state.tokens--
	}
	e.mu.Unlock()

	tb.metrics.RecordCheck(AlgorithmTokenBucket, allowed)
	return allowed
}

// refill applies the continuous refill owed since the bucket's own last
// refill timestamp. Caller must hold the entry lock.
func (tb *TokenBucketLimiter) refill(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		// Clock did not advance, or went backward: zero elapsed time.
		// The timestamp stays put so no future refill is forfeited.
		return
	}
	elapsedMs := float64(elapsed) / float64(time.Millisecond)
	b.tokens = math.Min(float64(tb.capacity), b.tokens+elapsedMs*tb.ratePerMs)
	b.lastRefill = now
}

// Limit returns the bucket capacity.
func (tb *TokenBucketLimiter) Limit() int64 { return tb.capacity }

// Remaining returns the whole tokens currently available to key.
func (tb *TokenBucketLimiter) Remaining(key string) int64 {
	e := tb.keys.lookup(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := tb.clock.Now()
	e.lastSeen = now
	tb.refill(&e.state, now)
	return int64(e.state.tokens)
}

// RetryAfter returns how long key must wait before one token is available.
func (tb *TokenBucketLimiter) RetryAfter(key string) time.Duration {
	e := tb.keys.lookup(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := tb.clock.Now()
	e.lastSeen = now
	tb.refill(&e.state, now)
	if e.state.tokens >= 1 {
		return 0
	}
	missingMs := (1 - e.state.tokens) / tb.ratePerMs
	return time.Duration(missingMs * float64(time.Millisecond))
}

// Len returns the number of keys with live bucket state.
func (tb *TokenBucketLimiter) Len() int { return tb.keys.len() }

// Sweep removes buckets idle for longer than the configured TTL and returns
// how many were removed. With no idle TTL configured it is a no-op.
func (tb *TokenBucketLimiter) Sweep() int {
	removed := tb.keys.sweep(tb.clock.Now())
	tb.afterSweep(removed)
	return removed
}

// StartBackgroundSweep sweeps idle buckets on the given interval until the
// returned stop function is called.
func (tb *TokenBucketLimiter) StartBackgroundSweep(interval time.Duration) func() {
	return tb.keys.startSweeper(interval, tb.afterSweep)
}

func (tb *TokenBucketLimiter) afterSweep(removed int) {
	remaining := tb.keys.len()
	tb.metrics.AddSweptKeys(AlgorithmTokenBucket, removed)
	tb.metrics.SetActiveKeys(AlgorithmTokenBucket, remaining)
	if removed > 0 {
		tb.logger.Debug("swept idle keys",
			zap.String("algorithm", AlgorithmTokenBucket),
			zap.Int("removed", removed),
			zap.Int("remaining", remaining))
	}
}
