package core

import "context"

// ResetRequest carries the resolved configuration and engine settings of a
// new run.
type ResetRequest struct {
	Configuration  *Space
	EngineSettings *Space
}

// StatusPoller is the read-only part of a Channel needed to wait for a state.
type StatusPoller interface {
	Status(ctx context.Context) (Status, error)
}

// Channel is the request/response link to exactly one engine process.
// Every method may fail with a *TransportError, which is fatal for the
// channel. Requests are processed by the engine in send order; a Channel is
// not safe for concurrent use unless the implementation says otherwise.
type Channel interface {
	StatusPoller

	// Schema returns the templates declared by the connected model.
	Schema(ctx context.Context) (*Schema, error)

	// Reset starts a new run. It returns once the engine acknowledged the
	// request, not once the run reached a particular state.
	Reset(ctx context.Context, req ResetRequest) error

	// Act submits an action. The engine decides whether it is acceptable in
	// its current state.
	Act(ctx context.Context, action *Space) error

	// Outputs returns the named outputs in the given order.
	Outputs(ctx context.Context, names []string) (*Space, error)

	// Engine returns debugging information about the engine.
	Engine(ctx context.Context) (EngineInfo, error)

	// Close releases the channel and the engine behind it.
	Close() error
}

// Finisher is implemented by channels whose engine can be told to end the
// current run, moving a paused run to FINISHED.
type Finisher interface {
	Finish(ctx context.Context) error
}
