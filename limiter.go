package leakybucket

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// RateLimiter is a leaky bucket guarding a single identity.
// It is safe for concurrent use.
type RateLimiter struct {
	rate     float64 // units drained per second
	capacity float64

	opts options

	mu          sync.Mutex
	level       float64
	lastChecked time.Time
}

// New returns a RateLimiter that drains rate units per second and holds at
// most capacity units. Both values must be positive and finite.
func New(rate, capacity float64, opts ...Option) (*RateLimiter, error) {
	if err := validate(rate, capacity); err != nil {
		return nil, err
	}
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &RateLimiter{
		rate:        rate,
		capacity:    capacity,
		opts:        o,
		lastChecked: o.clock.Now(),
	}, nil
}

// AllowRequest reports whether one more request may proceed now.
// An admitted request adds one unit to the bucket; a rejected one leaves the
// bucket at its drained level.
func (l *RateLimiter) AllowRequest() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.opts.clock.Now()
	elapsed := now.Sub(l.lastChecked)
	if elapsed < 0 {
		// Clock went backwards: drain nothing and keep the newer reading.
		elapsed = 0
	} else {
		l.lastChecked = now
	}

	var allowed bool
	l.level, allowed = leakAndAdmit(l.level, elapsed.Seconds(), l.rate, l.capacity)

	l.opts.logger.Debug().
		Bool("allowed", allowed).
		Float64("level", l.level).
		Float64("capacity", l.capacity).
		Dur("elapsed", elapsed).
		Msg("request checked")
	return allowed
}

// Level returns the fill level as of now. It does not modify the bucket.
func (l *RateLimiter) Level() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	elapsed := l.opts.clock.Now().Sub(l.lastChecked).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return math.Max(0, l.level-elapsed*l.rate)
}

// Rate returns the leak rate in units per second.
func (l *RateLimiter) Rate() float64 { return l.rate }

// Capacity returns the maximum fill level.
func (l *RateLimiter) Capacity() float64 { return l.capacity }

func (l *RateLimiter) String() string {
	return fmt.Sprintf("leaky bucket %g/s (capacity %g)", l.rate, l.capacity)
}

// leakAndAdmit drains elapsedSec*rate from level and then admits one unit if
// the drained level is below capacity. An admission from a fractional level
// may leave the bucket above capacity, but never at or above capacity+1.
func leakAndAdmit(level, elapsedSec, rate, capacity float64) (float64, bool) {
	level = math.Max(0, level-elapsedSec*rate)
	if level < capacity {
		return level + 1, true
	}
	return level, false
}

func validate(rate, capacity float64) error {
	if !(rate > 0) || math.IsInf(rate, 0) {
		return fmt.Errorf("%w: %w: got %g", ErrInvalidConfig, ErrInvalidRate, rate)
	}
	if !(capacity > 0) || math.IsInf(capacity, 0) {
		return fmt.Errorf("%w: %w: got %g", ErrInvalidConfig, ErrInvalidCapacity, capacity)
	}
	return nil
}
