// Package floodgate provides per-key rate limiting with two interchangeable
// admission algorithms: a continuously refilling token bucket and a sliding
// window event log.
//
// # Quick Start
//
// Token bucket, 100-request bursts at a sustained 10 requests/second per key:
//
//	limiter, err := floodgate.NewTokenBucketLimiter(100, 10.0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if limiter.Allow("user-123") {
//	    // admitted
//	}
//
// Sliding window, at most 5 requests per key per rolling minute:
//
//	limiter, err := floodgate.NewSlidingWindowLimiter(5, time.Minute)
//
// Both satisfy the Limiter interface, so callers select the algorithm at
// construction (or via Config) and the rest of the code is indifferent to
// which variant backs it. A denied request is a normal false result, never
// an error; the only errors are configuration errors at construction.
//
// # Keys
//
// Every key owns independent state, created lazily on first use and
// initialized full (token bucket) or empty (sliding window). Keys are opaque
// strings; derive them from whatever identifies a client: user ids, API
// tokens, IP addresses. For HTTP handlers the KeyExtractor helpers and
// Middleware do this wiring.
//
// # Concurrency
//
// All operations are safe for concurrent use, including concurrent calls on
// the same key. The refill-or-evict, check, consume sequence runs as one
// critical section per key, so capacity is never overdrawn: with one token
// left, exactly one of two racing callers is admitted. Unrelated keys
// proceed in parallel.
//
// # Time
//
// All elapsed-time computation goes through the Clock interface. Production
// code uses the system monotonic clock; tests inject a FakeClock and advance
// it explicitly, which makes every admission decision deterministic. Backward
// clock jumps are absorbed as zero elapsed time.
//
// # Memory
//
// Idle keys accumulate unless eviction is enabled. WithIdleTTL plus Sweep or
// StartBackgroundSweep bound key growth at the registry level without
// touching the admission algorithms.
//
// # Observability
//
// WithLogger attaches a zap logger and WithMetrics attaches Prometheus
// collectors from the metrics package. Both default to no-ops.
package floodgate
