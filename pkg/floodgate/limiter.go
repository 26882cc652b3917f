package floodgate

import "time"

// Algorithm names, as accepted in configuration and reported in metrics.
const (
	AlgorithmTokenBucket   = "token_bucket"
	AlgorithmSlidingWindow = "sliding_window"
)

// Limiter is the admission capability shared by both algorithms.
// Allow reports whether one request for key is admitted right now. It never
// blocks and a false result is a normal outcome, not an error.
//
// Implementations are safe for concurrent use, including concurrent calls on
// the same key: when only one unit of capacity remains, exactly one of two
// racing callers observes an admit.
type Limiter interface {
	Allow(key string) bool
}

// Stats is implemented by both limiters and feeds the middleware's
// rate-limit headers.
type Stats interface {
	// Limit is the per-key capacity (bucket size or window size).
	Limit() int64

	// Remaining reports how many admissions key has left right now.
	Remaining(key string) int64

	// RetryAfter reports how long key must wait for the next admission.
	// Zero means a request would be admitted immediately.
	RetryAfter(key string) time.Duration
}
