package floodgate

import "errors"

var (
	// ErrInvalidCapacity is returned when a token bucket capacity is not positive
	ErrInvalidCapacity = errors.New("bucket capacity must be positive")

	// ErrInvalidRefillRate is returned when a token bucket refill rate is not positive
	ErrInvalidRefillRate = errors.New("refill rate must be positive")

	// ErrInvalidWindowSize is returned when a sliding window size is not positive
	ErrInvalidWindowSize = errors.New("window size must be positive")

	// ErrInvalidTimeLimit is returned when a sliding window horizon is not positive
	ErrInvalidTimeLimit = errors.New("window time limit must be positive")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrKeyExtractionFailed is returned when key extraction from a request fails
	ErrKeyExtractionFailed = errors.New("failed to extract key from request")
)
