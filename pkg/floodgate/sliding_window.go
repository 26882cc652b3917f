package floodgate

import (
	"time"

	"go.uber.org/zap"

	"github.com/floodgate-dev/floodgate/metrics"
)

// window is the per-key sliding window state: the timestamps of admitted
// events, oldest first, all within the horizon. Guarded by the registry
// entry that owns it.
type window struct {
	log []time.Time
}

// SlidingWindowLimiter admits at most windowSize events per key within a
// trailing time horizon. It keeps an exact log of admitted timestamps, so
// unlike counter approximations it never over- or under-counts at window
// boundaries. Memory per key is bounded by windowSize entries.
type SlidingWindowLimiter struct {
	windowSize int
	timeLimit  time.Duration
	keys       *registry[window]
	clock      Clock
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

var (
	_ Limiter = (*SlidingWindowLimiter)(nil)
	_ Stats   = (*SlidingWindowLimiter)(nil)
)

// NewSlidingWindowLimiter creates a sliding window limiter admitting up to
// windowSize events per key within any trailing timeLimit span.
//
// Example: NewSlidingWindowLimiter(100, time.Minute) allows 100 requests per
// key per rolling minute.
func NewSlidingWindowLimiter(windowSize int, timeLimit time.Duration, opts ...Option) (*SlidingWindowLimiter, error) {
	if windowSize <= 0 {
		return nil, ErrInvalidWindowSize
	}
	if timeLimit <= 0 {
		return nil, ErrInvalidTimeLimit
	}

	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}

	sw := &SlidingWindowLimiter{
		windowSize: windowSize,
		timeLimit:  timeLimit,
		clock:      s.clock,
		logger:     s.logger,
		metrics:    s.metrics,
	}
	sw.keys = newRegistry(s.clock, s.idleTTL, func(time.Time) window {
		// New windows start empty.
		return window{}
	})
	return sw, nil
}

// Allow records one event for key if fewer than windowSize admitted events
// fall within the horizon. Eviction, check and append run as a single
// critical section per key. A denied request leaves no trace in the log.
func (sw *SlidingWindowLimiter) Allow(key string) bool {
	e := sw.keys.lookup(key)

	e.mu.Lock()
	now := sw.clock.Now()
	e.lastSeen = now
	sw.evict(&e.state, now)
	allowed := len(e.state.log) < sw.windowSize
	if allowed {
		e.state.log = append(e.state.log, now)
	}
	e.mu.Unlock()

	sw.metrics.RecordCheck(AlgorithmSlidingWindow, allowed)
	return allowed
}

// evict drops every logged timestamp older than the horizon. Timestamps are
// appended in non-decreasing order, so only a prefix can be stale; each entry
// is evicted at most once over its lifetime. Caller must hold the entry lock.
func (sw *SlidingWindowLimiter) evict(w *window, now time.Time) {
	n := 0
	for n < len(w.log) && now.Sub(w.log[n]) > sw.timeLimit {
		n++
	}
	if n > 0 {
		w.log = append(w.log[:0], w.log[n:]...)
	}
}

// Limit returns the maximum number of events per horizon.
func (sw *SlidingWindowLimiter) Limit() int64 { return int64(sw.windowSize) }

// Remaining returns how many events key may still record in the current
// horizon.
func (sw *SlidingWindowLimiter) Remaining(key string) int64 {
	e := sw.keys.lookup(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := sw.clock.Now()
	e.lastSeen = now
	sw.evict(&e.state, now)
	return int64(sw.windowSize - len(e.state.log))
}

// RetryAfter returns how long key must wait until the oldest logged event
// ages out of the horizon. Zero means an event would be admitted immediately.
func (sw *SlidingWindowLimiter) RetryAfter(key string) time.Duration {
	e := sw.keys.lookup(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := sw.clock.Now()
	e.lastSeen = now
	sw.evict(&e.state, now)
	if len(e.state.log) < sw.windowSize {
		return 0
	}
	wait := sw.timeLimit - now.Sub(e.state.log[0])
	if wait < 0 {
		wait = 0
	}
	return wait
}

// Len returns the number of keys with live window state.
func (sw *SlidingWindowLimiter) Len() int { return sw.keys.len() }

// Sweep removes windows idle for longer than the configured TTL and returns
// how many were removed. With no idle TTL configured it is a no-op.
func (sw *SlidingWindowLimiter) Sweep() int {
	removed := sw.keys.sweep(sw.clock.Now())
	sw.afterSweep(removed)
	return removed
}

// StartBackgroundSweep sweeps idle windows on the given interval until the
// returned stop function is called.
func (sw *SlidingWindowLimiter) StartBackgroundSweep(interval time.Duration) func() {
	return sw.keys.startSweeper(interval, sw.afterSweep)
}

func (sw *SlidingWindowLimiter) afterSweep(removed int) {
	remaining := sw.keys.len()
	sw.metrics.AddSweptKeys(AlgorithmSlidingWindow, removed)
	sw.metrics.SetActiveKeys(AlgorithmSlidingWindow, remaining)
	if removed > 0 {
		sw.logger.Debug("swept idle keys",
			zap.String("algorithm", AlgorithmSlidingWindow),
			zap.Int("removed", removed),
			zap.Int("remaining", remaining))
	}
}
