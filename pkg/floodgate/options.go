package floodgate

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/floodgate-dev/floodgate/metrics"
)

// Option configures a limiter. Options are shared by both algorithms.
type Option func(*settings) error

// settings holds the cross-algorithm knobs applied at construction.
type settings struct {
	clock   Clock
	idleTTL time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func newSettings(opts []Option) (*settings, error) {
	s := &settings{
		clock:  SystemClock(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return s, nil
}

// WithClock sets the time source. Defaults to the system monotonic clock.
// Tests inject a FakeClock here.
func WithClock(clock Clock) Option {
	return func(s *settings) error {
		if clock == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidConfig)
		}
		s.clock = clock
		return nil
	}
}

// WithIdleTTL enables idle-key eviction: keys untouched for longer than ttl
// are removed by Sweep and by the background sweeper. Zero disables eviction
// (the default).
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *settings) error {
		if ttl < 0 {
			return fmt.Errorf("%w: idle TTL cannot be negative", ErrInvalidConfig)
		}
		s.idleTTL = ttl
		return nil
	}
}

// WithLogger sets the logger used for sweep reporting. Defaults to a nop
// logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) error {
		if logger == nil {
			return fmt.Errorf("%w: logger cannot be nil", ErrInvalidConfig)
		}
		s.logger = logger
		return nil
	}
}

// WithMetrics attaches Prometheus collectors. Admission checks and sweeps are
// recorded on them. Defaults to no recording.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) error {
		if m == nil {
			return fmt.Errorf("%w: metrics cannot be nil", ErrInvalidConfig)
		}
		s.metrics = m
		return nil
	}
}
