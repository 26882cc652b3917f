package floodgate

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// MiddlewareOption configures the HTTP middleware.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	extractor KeyExtractor
	logger    *zap.Logger
}

// WithExtractor sets how the middleware derives the rate limit key from a
// request. Defaults to ExtractIP.
func WithExtractor(extractor KeyExtractor) MiddlewareOption {
	return func(c *middlewareConfig) {
		if extractor != nil {
			c.extractor = extractor
		}
	}
}

// WithMiddlewareLogger sets the logger for extraction failures and denials.
// Defaults to a nop logger.
func WithMiddlewareLogger(logger *zap.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Middleware returns an HTTP middleware that gates requests through l.
// It sets X-RateLimit-Limit and X-RateLimit-Remaining on every response and
// answers 429 with a Retry-After header when a request is denied. The core
// limiter stays transport-free; this adapter is the caller-side wiring.
func Middleware(l Limiter, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{
		extractor: ExtractIP(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	stats, _ := l.(Stats)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := cfg.extractor(r)
			if err != nil {
				cfg.logger.Warn("key extraction failed",
					zap.String("path", r.URL.Path),
					zap.Error(err))
				http.Error(w, "unable to identify client for rate limiting", http.StatusBadRequest)
				return
			}

			allowed := l.Allow(key)

			if stats != nil {
				w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(stats.Limit(), 10))
				w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(stats.Remaining(key), 10))
			}

			if !allowed {
				var retryAfterMs int64
				retrySec := int64(1)
				if stats != nil {
					retryAfter := stats.RetryAfter(key)
					retryAfterMs = retryAfter.Milliseconds()
					if secs := int64(math.Ceil(retryAfter.Seconds())); secs > retrySec {
						retrySec = secs
					}
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retrySec, 10))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error":          "rate_limit_exceeded",
					"message":        "too many requests, slow down",
					"retry_after_ms": retryAfterMs,
				})

				cfg.logger.Debug("request denied",
					zap.String("key", key),
					zap.String("path", r.URL.Path))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
