package testutil

import (
	"time"

	"github.com/hupe1980/simlink/clock"
)

// StepClock is a virtual clock that jumps forward by d whenever After(d) is
// called, so a poll loop runs through simulated seconds instantly while
// elapsed time stays exact.
type StepClock struct {
	*clock.Virtual
}

// NewStepClock returns a StepClock starting at start.
func NewStepClock(start time.Time) *StepClock {
	return &StepClock{Virtual: clock.NewVirtual(start)}
}

// After advances the clock by d and returns the already fired timer.
func (c *StepClock) After(d time.Duration) <-chan time.Time {
	ch := c.Virtual.After(d)
	c.Virtual.Advance(d)
	return ch
}
