package leakybucket

import "errors"

var (
	// ErrInvalidConfig is returned when a limiter cannot be built from the given settings.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidRate is returned when the leak rate is not a positive finite number.
	ErrInvalidRate = errors.New("leak rate must be positive")

	// ErrInvalidCapacity is returned when the capacity is not a positive finite number.
	ErrInvalidCapacity = errors.New("bucket capacity must be positive")

	// ErrInvalidKey is returned when a shared bucket is created without a key.
	ErrInvalidKey = errors.New("bucket key cannot be empty")
)
