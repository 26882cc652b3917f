package floodgate

import (
	"sync"
	"time"
)

// Clock is the time source used for all elapsed-time computation.
// Limiters never read wall-clock time directly; injecting a Clock makes
// every admission decision reproducible in tests.
type Clock interface {
	Now() time.Time
}

// systemClock reads the system timer. time.Now carries a monotonic reading,
// so durations derived via Sub are unaffected by wall-clock adjustments.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the default production Clock.
func SystemClock() Clock { return systemClock{} }

// FakeClock is a manually advanced Clock for deterministic tests.
// It starts at a fixed instant and only moves when Advance is called.
// Safe for concurrent use.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a FakeClock at an arbitrary fixed epoch.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the clock's current instant.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. Negative values move it backward,
// which limiters absorb as zero elapsed time.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
