package floodgate

import (
	"sync"
	"time"
)

// registry owns all per-key limiter state. It is shared by both algorithms
// and is generic over the per-key state type (bucket or window).
//
// Two locks are involved:
//   - registry.mu guards the key map. Lookups take the read lock on the fast
//     path and fall back to double-checked creation under the write lock, so
//     exactly one state object is created per key even when many goroutines
//     race on first access.
//   - entry.mu serializes all work on a single key's state. The whole
//     refill/evict + check + consume sequence runs under it, while unrelated
//     keys proceed in parallel.
type registry[S any] struct {
	mu       sync.RWMutex
	entries  map[string]*entry[S]
	newState func(now time.Time) S
	clock    Clock
	idleTTL  time.Duration
}

// entry wraps one key's state with its lock and idle-eviction bookkeeping.
type entry[S any] struct {
	mu       sync.Mutex
	state    S
	lastSeen time.Time // guarded by mu
}

func newRegistry[S any](clock Clock, idleTTL time.Duration, newState func(now time.Time) S) *registry[S] {
	return &registry[S]{
		entries:  make(map[string]*entry[S]),
		newState: newState,
		clock:    clock,
		idleTTL:  idleTTL,
	}
}

// lookup returns the entry for key, creating it if absent. New state starts
// in its initial condition (full bucket, empty window).
func (r *registry[S]) lookup(key string) *entry[S] {
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have created it between the locks.
	if e, ok := r.entries[key]; ok {
		return e
	}

	now := r.clock.Now()
	e = &entry[S]{state: r.newState(now), lastSeen: now}
	r.entries[key] = e
	return e
}

// len returns the number of live keys.
func (r *registry[S]) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// sweep removes entries idle for longer than the configured TTL and returns
// how many were removed. A TTL of zero disables eviction.
func (r *registry[S]) sweep(now time.Time) int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, e := range r.entries {
		e.mu.Lock()
		idle := e.lastSeen.Before(cutoff)
		e.mu.Unlock()
		if idle {
			delete(r.entries, key)
			removed++
		}
	}
	return removed
}

// startSweeper runs sweep on the given interval until the returned stop
// function is called. onSweep is invoked after every pass with the number of
// removed entries.
func (r *registry[S]) startSweeper(interval time.Duration, onSweep func(removed int)) func() {
	if r.idleTTL <= 0 || interval <= 0 {
		return func() {}
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				onSweep(r.sweep(r.clock.Now()))
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}
