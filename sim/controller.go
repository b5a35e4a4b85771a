// Package sim implements the run controller: the operation surface a caller
// uses to drive one engine through reset, take-action and status queries.
//
// A Controller owns exactly one core.Channel. It validates every request
// against the model's schema before anything is sent, layers defaults under
// per-call values, resolves generator values at send time and, under
// auto-lock, waits for the engine to become ready before returning.
//
// Controllers share no mutable state. Run several engines in parallel by
// creating one Controller per engine.
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/simlink/clock"
	"github.com/hupe1980/simlink/core"
	"github.com/hupe1980/simlink/internal/util"
	"github.com/hupe1980/simlink/lock"
	"github.com/hupe1980/simlink/logging"
)

// Controller drives one engine run after another. It is owned by a single
// caller and is not meant for concurrent use.
type Controller struct {
	id      string
	channel core.Channel
	schema  *core.Schema
	locker  *lock.Coordinator
	clock   clock.Clock
	opts    Options
	logger  logging.Logger

	closeOnce sync.Once
	closeErr  error
}

// New fetches the model schema over ch and validates the options against it.
// The returned Controller owns ch and closes it on Close.
func New(ctx context.Context, ch core.Channel, optFns ...func(o *Options)) (*Controller, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	id := util.NewID()
	logger := logging.Scoped(logging.OrNoOp(opts.Logger), "controller", id)
	clk := clock.OrReal(opts.Clock)

	start := clk.Now()
	schema, err := ch.Schema(ctx)
	logging.Request(logger, "schema", clk.Now().Sub(start), err)
	if err != nil {
		return nil, core.NewTransportError("schema", err)
	}
	schema.Normalize()

	if err := opts.validate(schema); err != nil {
		return nil, err
	}

	c := &Controller{
		id:      id,
		channel: ch,
		schema:  schema,
		clock:   clk,
		opts:    opts,
		logger:  logger,
	}
	c.locker = lock.New(ch, func(o *lock.Options) {
		o.Clock = clk
		o.PollInterval = opts.PollInterval
		o.Logger = logging.Scoped(logging.OrNoOp(opts.Logger), "lock", id)
	})

	logger.Info("Controller ready",
		"auto_lock", opts.AutoLock,
		"auto_finish", opts.AutoFinish,
		"lock_mask", opts.LockDefaults.Mask.String(),
		"lock_timeout", opts.LockDefaults.Timeout,
		"configuration", schema.Configuration.Names(),
		"action", schema.Action.Names(),
	)
	return c, nil
}

// ID returns the instance id used in logs.
func (c *Controller) ID() string { return c.id }

// Schema returns the model schema fetched at construction.
func (c *Controller) Schema() *core.Schema { return c.schema }

// Options returns the effective options.
func (c *Controller) Options() Options { return c.opts }

// Reset starts a new run from any engine state. The effective configuration
// is the model's defaults, overridden by ConfigDefaults, overridden by each
// of overrides in order. Generators are invoked once, here.
//
// Validation errors are returned before anything is sent. With AutoLock the
// returned Pending has already been waited on; a failed wait returns the
// Pending together with the error so the caller can wait again.
func (c *Controller) Reset(ctx context.Context, overrides ...core.Args) (*Pending, error) {
	layers := append([]core.Args{c.opts.ConfigDefaults}, overrides...)
	cfg, err := c.schema.Configuration.Resolve(layers...)
	if err != nil {
		return nil, err
	}
	settings, err := resolveSettings(c.schema.EngineSettings, c.opts.EngineOverrides)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Sending reset", "configuration", cfg.Summary(), "engine_settings", settings.Summary())
	start := c.clock.Now()
	err = c.channel.Reset(ctx, core.ResetRequest{Configuration: cfg, EngineSettings: settings})
	logging.Request(c.logger, "reset", c.clock.Now().Sub(start), err)
	if err != nil {
		return nil, core.NewTransportError("reset", err)
	}
	return c.settle(ctx, newPending(c, "reset"))
}

// TakeAction submits an action. Fields not given fall back to the action
// template's defaults, never to the previous action. The engine's current
// state is not checked here; the engine decides whether to accept.
//
// A refusal comes back as a *core.TransportError wrapping *core.EngineError.
// The engine is still alive in that case and the controller stays usable;
// any other transport error means the connection or process is gone.
func (c *Controller) TakeAction(ctx context.Context, action ...core.Args) (*Pending, error) {
	act, err := c.schema.Action.Resolve(action...)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Sending action", "action", act.Summary())
	start := c.clock.Now()
	err = c.channel.Act(ctx, act)
	logging.Request(c.logger, "action", c.clock.Now().Sub(start), err)
	if err != nil {
		return nil, core.NewTransportError("action", err)
	}
	return c.settle(ctx, newPending(c, "action"))
}

func (c *Controller) settle(ctx context.Context, p *Pending) (*Pending, error) {
	if !c.opts.AutoLock {
		return p, nil
	}
	if _, err := p.Wait(ctx); err != nil {
		return p, err
	}
	return p, nil
}

// Lock waits until the engine reports a state in mask. A zero mask or
// timeout uses LockDefaults.
//
// With AutoFinish and a mask containing FINISHED, a paused status whose stop
// condition is set is finished through the channel (when it supports it)
// and the wait continues until the run reports a finished state in mask.
// Other masks get the paused status as is.
func (c *Controller) Lock(ctx context.Context, mask core.StateMask, timeout time.Duration) (core.Status, error) {
	if mask == 0 {
		mask = c.opts.LockDefaults.Mask
	}
	if timeout <= 0 {
		timeout = c.opts.LockDefaults.Timeout
	}

	start := c.clock.Now()
	st, err := c.locker.Lock(ctx, mask, timeout)
	if err != nil {
		return st, err
	}
	if !c.opts.AutoFinish || !st.Stop || st.State != core.StatePaused || !mask.Contains(core.StateFinished) {
		return st, nil
	}

	f, ok := c.channel.(core.Finisher)
	if !ok {
		return st, nil
	}
	c.logger.Debug("Stop condition reached, finishing run", "episode", st.EpisodeNum, "step", st.StepNum)
	if err := f.Finish(ctx); err != nil {
		return st, core.NewTransportError("finish", err)
	}
	remaining := timeout - c.clock.Now().Sub(start)
	if remaining <= 0 {
		remaining = time.Millisecond
	}
	return c.locker.Lock(ctx, mask&core.MaskOf(core.StateFinished, core.StateError), remaining)
}

// Status performs one status query. It does not lock; a status taken while
// the engine is running is transient.
func (c *Controller) Status(ctx context.Context) (core.Status, error) {
	st, err := c.channel.Status(ctx)
	if err != nil {
		return core.Status{}, core.NewTransportError("status", err)
	}
	return st, nil
}

// Observation is shorthand for Status().Observation.
func (c *Controller) Observation(ctx context.Context) (*core.Space, error) {
	st, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}
	return st.Observation, nil
}

// Outputs reads the named outputs, in the given order. No names reads every
// output the model declares. Unknown names fail before anything is sent.
func (c *Controller) Outputs(ctx context.Context, names ...string) (*core.Space, error) {
	sel, err := c.schema.Outputs.Select(names...)
	if err != nil {
		return nil, err
	}
	if len(sel) == 0 {
		return core.NewSpace(c.schema.Outputs).Freeze(), nil
	}
	start := c.clock.Now()
	out, err := c.channel.Outputs(ctx, sel)
	logging.Request(c.logger, "outputs", c.clock.Now().Sub(start), err)
	if err != nil {
		return nil, core.NewTransportError("outputs", err)
	}
	return out, nil
}

// Engine returns debugging information about the engine.
func (c *Controller) Engine(ctx context.Context) (core.EngineInfo, error) {
	info, err := c.channel.Engine(ctx)
	if err != nil {
		return core.EngineInfo{}, core.NewTransportError("engine", err)
	}
	return info, nil
}

// Close closes the channel. It is safe to call more than once.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.channel.Close()
		c.logger.Info("Controller closed")
	})
	return c.closeErr
}
