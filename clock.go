package leakybucket

import "time"

// Clock is the time source a limiter reads on every call.
// Implementations should return readings that carry a monotonic component
// (as time.Now does) so that wall-clock jumps do not skew elapsed time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to the Clock interface.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock {
	return ClockFunc(time.Now)
}
