package leakybucket

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Option is a functional option for configuring a RateLimiter or RedisBucket.
type Option func(*options) error

type options struct {
	clock  Clock
	logger zerolog.Logger
}

func defaultOptions() options {
	return options{
		clock:  SystemClock(),
		logger: zerolog.Nop(),
	}
}

func applyOptions(opts []Option) (options, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return o, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return o, nil
}

// WithClock replaces the time source. Tests use it to simulate elapsed time
// without sleeping.
func WithClock(clock Clock) Option {
	return func(o *options) error {
		if clock == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidConfig)
		}
		o.clock = clock
		return nil
	}
}

// WithLogger sets the logger used for per-decision debug events.
// By default nothing is logged.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}
