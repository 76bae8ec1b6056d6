package callstack

import "time"

// A Clock tells monotonic time as an offset from an arbitrary origin.
type Clock interface {
	Now() time.Duration
}

type monotonicClock struct {
	origin time.Time
}

// NewMonotonicClock returns a Clock backed by the runtime's monotonic clock.
func NewMonotonicClock() Clock {
	return monotonicClock{origin: time.Now()}
}

func (c monotonicClock) Now() time.Duration {
	return time.Since(c.origin)
}
