package floodgate

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenBucketLimiter_Validation(t *testing.T) {
	tests := []struct {
		name         string
		capacity     int64
		refillPerSec float64
		wantErr      error
	}{
		{name: "valid", capacity: 100, refillPerSec: 10.0},
		{name: "zero capacity", capacity: 0, refillPerSec: 10.0, wantErr: ErrInvalidCapacity},
		{name: "negative capacity", capacity: -10, refillPerSec: 10.0, wantErr: ErrInvalidCapacity},
		{name: "zero refill rate", capacity: 100, refillPerSec: 0, wantErr: ErrInvalidRefillRate},
		{name: "negative refill rate", capacity: 100, refillPerSec: -5.0, wantErr: ErrInvalidRefillRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter, err := NewTokenBucketLimiter(tt.capacity, tt.refillPerSec)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, limiter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.capacity, limiter.Limit())
		})
	}
}

func TestTokenBucket_FillAndDrain(t *testing.T) {
	clock := NewFakeClock()
	limiter, err := NewTokenBucketLimiter(5, 1.0, WithClock(clock))
	require.NoError(t, err)

	// A new bucket starts full: the first 5 calls drain it.
	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow("u"), "call %d should be admitted", i+1)
	}
	assert.False(t, limiter.Allow("u"), "call 6 should be denied")
}

func TestTokenBucket_Refill(t *testing.T) {
	clock := NewFakeClock()
	limiter, err := NewTokenBucketLimiter(5, 1.0, WithClock(clock))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.True(t, limiter.Allow("u"))
	}
	require.False(t, limiter.Allow("u"))

	// One second at 1 token/second refills exactly one token.
	clock.Advance(time.Second)
	assert.True(t, limiter.Allow("u"), "call 7 should be admitted after refill")
	assert.False(t, limiter.Allow("u"), "call 8 should be denied again")
}

func TestTokenBucket_RefillCappedAtCapacity(t *testing.T) {
	clock := NewFakeClock()
	limiter, err := NewTokenBucketLimiter(3, 10.0, WithClock(clock))
	require.NoError(t, err)

	clock.Advance(time.Hour)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("u"))
	}
	assert.False(t, limiter.Allow("u"), "refill must not exceed capacity")
}

func TestTokenBucket_FractionalTokensPersist(t *testing.T) {
	clock := NewFakeClock()
	limiter, err := NewTokenBucketLimiter(5, 1.0, WithClock(clock))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.True(t, limiter.Allow("u"))
	}

	// 500ms at 1 token/second accrues half a token: not enough to admit,
	// but it must not be lost on the denial.
	clock.Advance(500 * time.Millisecond)
	require.False(t, limiter.Allow("u"))

	clock.Advance(500 * time.Millisecond)
	assert.True(t, limiter.Allow("u"), "the two half tokens should add up")
}

func TestTokenBucket_DenialDoesNotMutate(t *testing.T) {
	clock := NewFakeClock()
	limiter, err := NewTokenBucketLimiter(2, 1.0, WithClock(clock))
	require.NoError(t, err)

	require.True(t, limiter.Allow("u"))
	require.True(t, limiter.Allow("u"))

	clock.Advance(300 * time.Millisecond)
	require.False(t, limiter.Allow("u"))

	e := limiter.keys.lookup("u")
	e.mu.Lock()
	tokens := e.state.tokens
	e.mu.Unlock()

	assert.InDelta(t, 0.3, tokens, 1e-9, "a denial leaves only the refill applied")
}

func TestTokenBucket_BackwardClockAbsorbed(t *testing.T) {
	clock := NewFakeClock()
	limiter, err := NewTokenBucketLimiter(1, 1.0, WithClock(clock))
	require.NoError(t, err)

	require.True(t, limiter.Allow("u"))

	// Clock jumps backward: treated as zero elapsed time, never an error,
	// and the refill timestamp stays put.
	clock.Advance(-500 * time.Millisecond)
	assert.False(t, limiter.Allow("u"))

	// Back at the original instant: still zero elapsed.
	clock.Advance(500 * time.Millisecond)
	assert.False(t, limiter.Allow("u"))

	// Real progress past the original timestamp refills as usual.
	clock.Advance(time.Second)
	assert.True(t, limiter.Allow("u"))
}

func TestTokenBucket_InvariantTokensWithinBounds(t *testing.T) {
	clock := NewFakeClock()
	limiter, err := NewTokenBucketLimiter(4, 3.0, WithClock(clock))
	require.NoError(t, err)

	check := func() {
		e := limiter.keys.lookup("u")
		e.mu.Lock()
		tokens := e.state.tokens
		e.mu.Unlock()
		require.GreaterOrEqual(t, tokens, 0.0)
		require.LessOrEqual(t, tokens, 4.0)
	}

	for i := 0; i < 50; i++ {
		limiter.Allow("u")
		check()
		clock.Advance(137 * time.Millisecond)
		limiter.Allow("u")
		check()
	}
}

func TestTokenBucket_MinimumIntervalGate(t *testing.T) {
	// Capacity 1 degenerates to a strict minimum-inter-arrival gate of
	// 1000/refillPerSec ms, here 250ms.
	clock := NewFakeClock()
	limiter, err := NewTokenBucketLimiter(1, 4.0, WithClock(clock))
	require.NoError(t, err)

	require.True(t, limiter.Allow("u"))

	clock.Advance(249 * time.Millisecond)
	assert.False(t, limiter.Allow("u"), "second call inside the interval is denied")

	clock.Advance(1 * time.Millisecond)
	assert.True(t, limiter.Allow("u"), "interval elapsed")
}

func TestTokenBucket_IndependentKeys(t *testing.T) {
	clock := NewFakeClock()
	limiter, err := NewTokenBucketLimiter(1, 1.0, WithClock(clock))
	require.NoError(t, err)

	assert.True(t, limiter.Allow("a"))
	assert.True(t, limiter.Allow("b"), "keys must not share capacity")
	assert.False(t, limiter.Allow("a"))
	assert.False(t, limiter.Allow("b"))
	assert.Equal(t, 2, limiter.Len())
}

func TestTokenBucket_RemainingAndRetryAfter(t *testing.T) {
	clock := NewFakeClock()
	limiter, err := NewTokenBucketLimiter(2, 2.0, WithClock(clock))
	require.NoError(t, err)

	assert.Equal(t, int64(2), limiter.Remaining("u"))
	assert.Equal(t, time.Duration(0), limiter.RetryAfter("u"))

	require.True(t, limiter.Allow("u"))
	require.True(t, limiter.Allow("u"))
	assert.Equal(t, int64(0), limiter.Remaining("u"))

	// One full token at 2 tokens/second takes 500ms.
	assert.InDelta(t, float64(500*time.Millisecond), float64(limiter.RetryAfter("u")), float64(time.Millisecond))
}

func TestTokenBucket_ConcurrentAllowNoOverdraw(t *testing.T) {
	const (
		capacity = 50
		callers  = 400
	)

	clock := NewFakeClock()
	limiter, err := NewTokenBucketLimiter(capacity, 0.001, WithClock(clock))
	require.NoError(t, err)

	var (
		admitted atomic.Int64
		start    = make(chan struct{})
		wg       sync.WaitGroup
	)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if limiter.Allow("shared") {
				admitted.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	// With the clock frozen there is no refill: exactly capacity calls may
	// win, regardless of interleaving.
	assert.Equal(t, int64(capacity), admitted.Load())
}

func TestTokenBucket_ConcurrentFirstAccessCreatesOneBucket(t *testing.T) {
	clock := NewFakeClock()
	limiter, err := NewTokenBucketLimiter(1, 0.001, WithClock(clock))
	require.NoError(t, err)

	var (
		admitted atomic.Int64
		start    = make(chan struct{})
		wg       sync.WaitGroup
	)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if limiter.Allow("fresh") {
				admitted.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	// Two divergent states for the same key would admit twice.
	assert.Equal(t, int64(1), admitted.Load())
	assert.Equal(t, 1, limiter.Len())
}
