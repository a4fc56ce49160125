package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant returned by a new Clock.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Clock is a thread-safe stepping clock for tests.
//
// Every call to Now returns the previous instant plus Step, starting at Epoch.
// Two clocks created with the same step produce identical sequences, which
// keeps stored timestamps and attempt durations stable across runs.
type Clock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewClock creates a clock that advances by step on every read.
func NewClock(step time.Duration) *Clock {
	return &Clock{next: Epoch, step: step}
}

// Now returns the current instant and advances the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

// Reset rewinds the clock to Epoch.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = Epoch
}
