package data

import (
	"sync"
	"time"
)

// TimeProvider supplies the clock used for every timestamp the data layer writes.
type TimeProvider interface {
	Now() time.Time
}

// TimeFunc adapts a plain function to TimeProvider.
type TimeFunc func() time.Time

// Now calls f.
func (f TimeFunc) Now() time.Time { return f() }

// SystemTime is the wall clock.
var SystemTime TimeProvider = TimeFunc(time.Now)

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new reading.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
