// Package clock implements the authoritative per-color countdown timer.
package clock

// A Clock belongs to exactly one color and is mutated only by that game's
// session goroutine, so it carries no locking of its own. Remaining time is
// always computed against the reference instant recorded at Start, never by
// repeated small subtractions from ticks.

import (
	"time"
)

// Clock counts down one player's thinking time with increment-on-move
// semantics. An unlimited clock never expires and reports zero remaining.
type Clock struct {
	remaining time.Duration
	increment time.Duration
	unlimited bool

	running   bool
	reference time.Time

	now func() time.Time
}

// New creates a stopped clock with the given initial time and increment.
func New(initial, increment time.Duration) *Clock {
	return &Clock{
		remaining: initial,
		increment: increment,
		now:       time.Now,
	}
}

// NewUnlimited creates a clock that never counts down and never expires.
func NewUnlimited() *Clock {
	return &Clock{
		unlimited: true,
		now:       time.Now,
	}
}

// Start begins the countdown. Starting a running clock is a no-op.
func (c *Clock) Start() {
	if c.running {
		return
	}
	c.running = true
	c.reference = c.now()
}

// Stop halts the countdown, folding the elapsed time since the reference
// instant into the remaining balance. Stopping a stopped clock is a no-op.
func (c *Clock) Stop() {
	if !c.running {
		return
	}
	c.running = false
	if c.unlimited {
		return
	}
	c.remaining -= c.now().Sub(c.reference)
	if c.remaining < 0 {
		c.remaining = 0
	}
}

// ApplyIncrement credits the per-move increment. Invoked exactly once per
// accepted move, on the clock of the color that just moved.
func (c *Clock) ApplyIncrement() {
	if c.unlimited {
		return
	}
	c.remaining += c.increment
}

// Remaining returns the time left right now. Zero for unlimited clocks.
func (c *Clock) Remaining() time.Duration {
	if c.unlimited {
		return 0
	}
	left := c.remaining
	if c.running {
		left -= c.now().Sub(c.reference)
	}
	if left < 0 {
		left = 0
	}
	return left
}

// SetRemaining overwrites the balance, keeping the countdown running if it
// was. Callers are expected to have bounds-checked the value first.
func (c *Clock) SetRemaining(d time.Duration) {
	if c.unlimited {
		return
	}
	if d < 0 {
		d = 0
	}
	c.remaining = d
	if c.running {
		c.reference = c.now()
	}
}

// Expired reports whether a limited clock has run out.
func (c *Clock) Expired() bool {
	return !c.unlimited && c.Running() && c.Remaining() <= 0
}

// Running reports whether the clock is counting down.
func (c *Clock) Running() bool {
	return c.running
}

// Unlimited reports whether the clock is the non-expiring sentinel.
func (c *Clock) Unlimited() bool {
	return c.unlimited
}

// Increment returns the per-move increment.
func (c *Clock) Increment() time.Duration {
	return c.increment
}
