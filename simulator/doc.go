// Package simulator provides an in-process engine for development and tests.
//
// A Simulator serves a model schema and hosts a Model, the user-supplied
// simulation logic. It implements core.Channel, so a sim.Controller drives
// it exactly like a remote engine process:
//
//	schema := ... // templates for configuration, observation, action, outputs
//	engine := simulator.New(schema, simulator.Funcs{
//	    ActFn:     func(a *core.Space) error { ... },
//	    ObserveFn: func() map[string]any { ... },
//	})
//	ctrl, err := sim.New(ctx, engine)
//
// # State machine
//
// The simulator starts in IDLE. A reset is accepted in any state and begins
// a run segment; an action is accepted in PAUSED only. Each segment passes
// through PLEASE_WAIT and RUNNING before the engine settles in PAUSED, or in
// FINISHED when the model is done, the stop time or date is reached or, with
// Config.AutoFinish, the model's stop condition is set. A model error moves
// the engine to ERROR with the error text as the status message.
//
// Transitions run on a background goroutine timed by the configured clock,
// so statuses read during a segment are transient.
package simulator
