// Package clock provides the audio clock the engine schedules against.
package clock

import (
	"sync"
	"time"
)

// Clock reports the audio hardware time in seconds.
type Clock interface {
	Now() float64
}

// System is a monotonic clock counting seconds since it was created.
type System struct {
	origin time.Time
}

// NewSystem creates a system clock starting at zero.
func NewSystem() *System {
	return &System{origin: time.Now()}
}

// Now returns seconds elapsed since creation, measured on the monotonic clock.
func (c *System) Now() float64 {
	return time.Since(c.origin).Seconds()
}

// Manual is a clock that only moves when told to. Used for offline rendering and tests.
type Manual struct {
	mu  sync.Mutex
	now float64
}

// NewManual creates a manual clock at start seconds.
func NewManual(start float64) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time.
func (c *Manual) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t. Moving backwards is ignored.
func (c *Manual) Set(t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t > c.now {
		c.now = t
	}
}

// Advance moves the clock forward by d seconds.
func (c *Manual) Advance(d float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now += d
	}
	return c.now
}
