// Package lock implements the blocking wait for an engine state.
//
// A Coordinator repeatedly polls a status source until the reported state is
// a member of a target mask, or fails once the timeout has elapsed. Between
// polls it suspends on its clock, so it never busy-spins, and polls are
// strictly sequential, so two status requests never overlap on one channel.
package lock

import (
	"context"
	"time"

	"github.com/hupe1980/simlink/clock"
	"github.com/hupe1980/simlink/core"
	"github.com/hupe1980/simlink/logging"
)

// DefaultPollInterval is the pause between two status polls.
const DefaultPollInterval = 100 * time.Millisecond

// Options configures a Coordinator.
type Options struct {
	// Clock measures elapsed time and schedules the pause between polls.
	// Defaults to the wall clock.
	Clock clock.Clock

	// PollInterval is the pause between two polls. Defaults to
	// DefaultPollInterval. The pause is shortened when the remaining time
	// until the timeout is smaller.
	PollInterval time.Duration

	// Logger receives a debug entry per acquired lock and a warning per timeout.
	// Defaults to a no-op logger.
	Logger logging.Logger
}

// Coordinator waits for a status source to reach a state in a mask.
// It holds no per-call state and may be reused, but the poller it wraps is
// usually owned by a single caller.
type Coordinator struct {
	poller   core.StatusPoller
	clock    clock.Clock
	interval time.Duration
	logger   logging.Logger
}

// New returns a Coordinator polling p.
func New(p core.StatusPoller, optFns ...func(o *Options)) *Coordinator {
	opts := Options{
		Clock:        clock.New(),
		PollInterval: DefaultPollInterval,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Coordinator{
		poller:   p,
		clock:    clock.OrReal(opts.Clock),
		interval: opts.PollInterval,
		logger:   logging.OrNoOp(opts.Logger),
	}
}

// Lock blocks until the engine reports a state in mask and returns that
// status. The first matching poll wins.
//
// PLEASE_WAIT is always removed from mask: it is a transient state that is
// polled through, never waited for. The remaining mask must not be empty and
// timeout must be positive, otherwise a *core.ValidationError is returned
// before anything is polled.
//
// Lock fails with a *core.TimeoutError, carrying the last observed state,
// when a poll does not match and at least timeout has elapsed since entry.
// It never fails earlier. The last status is returned alongside the error. Transport errors are returned immediately without
// retry; a cancelled ctx returns ctx.Err().
func (c *Coordinator) Lock(ctx context.Context, mask core.StateMask, timeout time.Duration) (core.Status, error) {
	mask = mask.Without(core.StatePleaseWait.Mask())
	if mask.IsEmpty() {
		return core.Status{}, &core.ValidationError{Field: "mask", Value: mask.String(), Message: "mask must contain at least one state other than PLEASE_WAIT"}
	}
	if timeout <= 0 {
		return core.Status{}, &core.ValidationError{Field: "timeout", Value: timeout, Message: "timeout must be positive"}
	}

	start := c.clock.Now()
	polls := 0
	for {
		if err := ctx.Err(); err != nil {
			return core.Status{}, err
		}

		status, err := c.poller.Status(ctx)
		polls++
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return core.Status{}, ctxErr
			}
			c.logger.Error("Status poll failed while locking", "mask", mask.String(), "polls", polls, "error", err)
			return core.Status{}, core.NewTransportError("lock", err)
		}

		elapsed := c.clock.Now().Sub(start)
		if status.State.In(mask) {
			logging.Lock(c.logger, mask.String(), status.State.String(), elapsed, nil)
			return status, nil
		}

		if elapsed >= timeout {
			err := &core.TimeoutError{Mask: mask, Last: status.State, Elapsed: elapsed, Timeout: timeout}
			logging.Lock(c.logger, mask.String(), status.State.String(), elapsed, err)
			return status, err
		}

		wait := c.interval
		if remaining := timeout - elapsed; remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return core.Status{}, ctx.Err()
		case <-c.clock.After(wait):
		}
	}
}
