package floodgate

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_LookupCreatesLazily(t *testing.T) {
	clock := NewFakeClock()
	limiter, err := NewTokenBucketLimiter(5, 1.0, WithClock(clock))
	require.NoError(t, err)

	assert.Equal(t, 0, limiter.Len(), "no state before first access")
	limiter.Allow("a")
	assert.Equal(t, 1, limiter.Len())
	limiter.Allow("a")
	assert.Equal(t, 1, limiter.Len(), "repeat access reuses the entry")
}

func TestRegistry_ConcurrentLookupSingleEntry(t *testing.T) {
	clock := NewFakeClock()
	limiter, err := NewTokenBucketLimiter(5, 1.0, WithClock(clock))
	require.NoError(t, err)

	var (
		start = make(chan struct{})
		wg    sync.WaitGroup
		mu    sync.Mutex
	)
	seen := make(map[*entry[bucket]]struct{})

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			e := limiter.keys.lookup("fresh")
			mu.Lock()
			seen[e] = struct{}{}
			mu.Unlock()
		}()
	}

	close(start)
	wg.Wait()

	assert.Len(t, seen, 1, "all goroutines must observe the same entry")
	assert.Equal(t, 1, limiter.Len())
}

func TestRegistry_ConcurrentDistinctKeys(t *testing.T) {
	clock := NewFakeClock()
	limiter, err := NewTokenBucketLimiter(1, 1.0, WithClock(clock))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i)
			assert.True(t, limiter.Allow(key))
			assert.False(t, limiter.Allow(key))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 32, limiter.Len())
}

func TestRegistry_SweepRemovesIdleKeys(t *testing.T) {
	clock := NewFakeClock()
	limiter, err := NewTokenBucketLimiter(5, 1.0, WithClock(clock), WithIdleTTL(time.Hour))
	require.NoError(t, err)

	limiter.Allow("old")
	clock.Advance(2 * time.Hour)
	limiter.Allow("recent")

	removed := limiter.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, limiter.Len())

	// The swept key starts over with a full bucket.
	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow("old"))
	}
}

func TestRegistry_SweepDisabledWithoutTTL(t *testing.T) {
	clock := NewFakeClock()
	limiter, err := NewTokenBucketLimiter(5, 1.0, WithClock(clock))
	require.NoError(t, err)

	limiter.Allow("u")
	clock.Advance(24 * time.Hour)

	assert.Equal(t, 0, limiter.Sweep())
	assert.Equal(t, 1, limiter.Len())
}

func TestRegistry_BackgroundSweep(t *testing.T) {
	clock := NewFakeClock()
	limiter, err := NewSlidingWindowLimiter(5, time.Second, WithClock(clock), WithIdleTTL(time.Minute))
	require.NoError(t, err)

	limiter.Allow("u")
	clock.Advance(time.Hour)

	stop := limiter.StartBackgroundSweep(5 * time.Millisecond)
	defer stop()

	require.Eventually(t, func() bool {
		return limiter.Len() == 0
	}, time.Second, 5*time.Millisecond, "background sweep should evict the idle key")
}

func TestRegistry_BackgroundSweepStop(t *testing.T) {
	clock := NewFakeClock()
	limiter, err := NewTokenBucketLimiter(5, 1.0, WithClock(clock), WithIdleTTL(time.Minute))
	require.NoError(t, err)

	stop := limiter.StartBackgroundSweep(time.Millisecond)
	stop()

	// After stop, idle keys stay until an explicit sweep.
	limiter.Allow("u")
	clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, limiter.Len())
}

func TestRegistry_BackgroundSweepNopWithoutTTL(t *testing.T) {
	clock := NewFakeClock()
	limiter, err := NewTokenBucketLimiter(5, 1.0, WithClock(clock))
	require.NoError(t, err)

	stop := limiter.StartBackgroundSweep(time.Millisecond)
	stop() // no goroutine was started; stop is a no-op
}
