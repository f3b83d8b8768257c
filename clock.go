package netcore

import "time"

// Clock is the only source of "now" handed to connection event handlers.
// Tests substitute it.
type Clock interface {
	Now() float64
}

type monotonicClock struct {
	start time.Time
}

// NewClock returns a monotonic clock counting fractional seconds since its
// creation.
func NewClock() Clock {
	return &monotonicClock{start: time.Now()}
}

func (c *monotonicClock) Now() float64 {
	return time.Since(c.start).Seconds()
}
