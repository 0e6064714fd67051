// Package clock supplies timestamps for created_at, started_at and finished_at.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Monotonic is a Clock whose readings strictly increase, even if the wall
// clock is stepped or two calls land in the same microsecond. Readings are
// UTC and truncated to microseconds so they survive a round trip through the
// database unchanged.
type Monotonic struct {
	mu   sync.Mutex
	last time.Time
	src  func() time.Time
}

func New() *Monotonic {
	return &Monotonic{src: time.Now}
}

// NewWithSource is used by tests to drive the clock from a fixed sequence.
func NewWithSource(src func() time.Time) *Monotonic {
	return &Monotonic{src: src}
}

func (c *Monotonic) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.src().UTC().Truncate(time.Microsecond)
	if !c.last.IsZero() && !now.After(c.last) {
		now = c.last.Add(time.Microsecond)
	}
	c.last = now
	return now
}
