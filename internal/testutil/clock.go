// Package testutil provides deterministic helpers for harness tests: a
// fixed wall clock for journal timestamps and an in-memory Querier fake
// with scriptable page failures.
package testutil

import (
	"sync"
	"time"
)

// FixedClock returns deterministic, strictly increasing timestamps for
// tests that assert on journal lines or run durations.
//
// Each call to Now advances the clock by Step so consecutive records never
// share a timestamp.
type FixedClock struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

// NewFixedClock creates a clock starting at start with a one-second step.
func NewFixedClock(start time.Time) *FixedClock {
	return &FixedClock{now: start, Step: time.Second}
}

// Now returns the current instant and advances the clock.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}

// Peek returns the instant the next Now call will produce.
func (c *FixedClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}
