package floodgate

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML-loadable limiter configuration. It carries a default
// policy, optional per-route overrides, and registry-level settings.
type Config struct {
	// Defaults applies to every route without a specific policy
	Defaults Policy `yaml:"defaults"`

	// Policies maps route paths to their own policies
	// Example: "/api/login" -> a strict sliding window
	Policies map[string]Policy `yaml:"policies,omitempty"`

	// KeyExtractor selects how clients are identified, in the syntax
	// understood by ParseKeyExtractor ("ip", "header:X-API-Key", ...)
	KeyExtractor string `yaml:"key_extractor,omitempty"`

	// IdleTTL is how long idle keys are kept before sweeps remove them.
	// Format: "1h", "30m", "0" to disable.
	IdleTTL string `yaml:"idle_ttl,omitempty"`
}

// Policy defines the admission parameters for one route or for the default.
// Algorithm selects the variant; only that variant's fields are consulted.
type Policy struct {
	// Algorithm is "token_bucket" (default) or "sliding_window"
	Algorithm string `yaml:"algorithm,omitempty"`

	// Capacity is the bucket size (token bucket only)
	Capacity int64 `yaml:"capacity,omitempty"`

	// RefillPerSec is tokens added per second (token bucket only)
	RefillPerSec float64 `yaml:"refill_per_sec,omitempty"`

	// WindowSize is the maximum events per horizon (sliding window only)
	WindowSize int `yaml:"window_size,omitempty"`

	// TimeLimit is the horizon length, e.g. "1s", "5m" (sliding window only)
	TimeLimit string `yaml:"time_limit,omitempty"`

	// Enabled allows switching rate limiting off for specific routes
	Enabled bool `yaml:"enabled"`
}

// NewConfig returns a Config with sensible defaults: a 100-token bucket
// refilling at 10 tokens/second, IP-keyed, with hourly idle eviction.
func NewConfig() *Config {
	return &Config{
		Defaults: Policy{
			Algorithm:    AlgorithmTokenBucket,
			Capacity:     100,
			RefillPerSec: 10.0,
			Enabled:      true,
		},
		Policies:     make(map[string]Policy),
		KeyExtractor: "ip",
		IdleTTL:      "1h",
	}
}

// LoadConfig loads and validates a Config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrInvalidConfig, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidConfig, err)
	}

	if config.KeyExtractor == "" {
		config.KeyExtractor = "ip"
	}
	if config.Policies == nil {
		config.Policies = make(map[string]Policy)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the default policy, every route policy, and the idle TTL.
func (c *Config) Validate() error {
	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("%w: invalid defaults: %v", ErrInvalidConfig, err)
	}
	for route, policy := range c.Policies {
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("%w: invalid policy for route %s: %v", ErrInvalidConfig, route, err)
		}
	}
	if _, err := c.idleTTL(); err != nil {
		return err
	}
	return nil
}

// GetPolicy returns the policy for a route, falling back to the default.
func (c *Config) GetPolicy(route string) Policy {
	if policy, exists := c.Policies[route]; exists {
		return policy
	}
	return c.Defaults
}

// BuildDefault constructs a limiter from the default policy, applying the
// config-level idle TTL before any caller-supplied options.
func (c *Config) BuildDefault(opts ...Option) (Limiter, error) {
	ttl, err := c.idleTTL()
	if err != nil {
		return nil, err
	}
	if ttl > 0 {
		opts = append([]Option{WithIdleTTL(ttl)}, opts...)
	}
	return c.Defaults.Build(opts...)
}

func (c *Config) idleTTL() (time.Duration, error) {
	if c.IdleTTL == "" || c.IdleTTL == "0" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(c.IdleTTL)
	if err != nil {
		return 0, fmt.Errorf("%w: bad idle_ttl %q: %v", ErrInvalidConfig, c.IdleTTL, err)
	}
	return ttl, nil
}

// Validate checks that the policy's selected algorithm is fully specified.
func (p *Policy) Validate() error {
	switch p.Algorithm {
	case "", AlgorithmTokenBucket:
		if p.Capacity <= 0 {
			return ErrInvalidCapacity
		}
		if p.RefillPerSec <= 0 {
			return ErrInvalidRefillRate
		}
	case AlgorithmSlidingWindow:
		if p.WindowSize <= 0 {
			return ErrInvalidWindowSize
		}
		d, err := time.ParseDuration(p.TimeLimit)
		if err != nil {
			return fmt.Errorf("%w: bad time_limit %q: %v", ErrInvalidConfig, p.TimeLimit, err)
		}
		if d <= 0 {
			return ErrInvalidTimeLimit
		}
	default:
		return fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, p.Algorithm)
	}
	return nil
}

// Build constructs the limiter variant the policy selects.
func (p *Policy) Build(opts ...Option) (Limiter, error) {
	switch p.Algorithm {
	case "", AlgorithmTokenBucket:
		return NewTokenBucketLimiter(p.Capacity, p.RefillPerSec, opts...)
	case AlgorithmSlidingWindow:
		d, err := time.ParseDuration(p.TimeLimit)
		if err != nil {
			return nil, fmt.Errorf("%w: bad time_limit %q: %v", ErrInvalidConfig, p.TimeLimit, err)
		}
		return NewSlidingWindowLimiter(p.WindowSize, d, opts...)
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, p.Algorithm)
	}
}
