package simulator

import "github.com/hupe1980/simlink/core"

// Model is the simulation logic hosted by a Simulator. The Simulator calls
// it from one goroutine at a time.
//
// Reset and Act are applied when the request arrives. The run segment that
// follows only advances the clock; afterwards Done and Stop decide whether
// the run pauses for the next action or finishes.
type Model interface {
	// Reset prepares a new run. An error puts the engine into ERROR.
	Reset(cfg, settings *core.Space) error

	// Act applies one action. An error puts the engine into ERROR.
	Act(action *core.Space) error

	// Observe returns the current observation values by name.
	Observe() map[string]any

	// Stop reports the model's stop condition.
	Stop() bool

	// Done reports that the run reached its natural end.
	Done() bool

	// Outputs returns the current output values by name.
	Outputs() map[string]any
}

// Funcs adapts plain functions to Model. Nil functions do nothing and
// report zero values.
type Funcs struct {
	ResetFn   func(cfg, settings *core.Space) error
	ActFn     func(action *core.Space) error
	ObserveFn func() map[string]any
	StopFn    func() bool
	DoneFn    func() bool
	OutputsFn func() map[string]any
}

var _ Model = Funcs{}

// Reset implements Model.
func (f Funcs) Reset(cfg, settings *core.Space) error {
	if f.ResetFn == nil {
		return nil
	}
	return f.ResetFn(cfg, settings)
}

// Act implements Model.
func (f Funcs) Act(action *core.Space) error {
	if f.ActFn == nil {
		return nil
	}
	return f.ActFn(action)
}

// Observe implements Model.
func (f Funcs) Observe() map[string]any {
	if f.ObserveFn == nil {
		return nil
	}
	return f.ObserveFn()
}

// Stop implements Model.
func (f Funcs) Stop() bool { return f.StopFn != nil && f.StopFn() }

// Done implements Model.
func (f Funcs) Done() bool { return f.DoneFn != nil && f.DoneFn() }

// Outputs implements Model.
func (f Funcs) Outputs() map[string]any {
	if f.OutputsFn == nil {
		return nil
	}
	return f.OutputsFn()
}
