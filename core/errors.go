package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation is matched by every *ValidationError. Validation errors are
	// raised locally before any request is sent and are always recoverable.
	ErrValidation = errors.New("validation failed")

	// ErrTimeout is matched by every *TimeoutError.
	ErrTimeout = errors.New("lock timed out")

	// ErrTransport is matched by every *TransportError. A transport error is
	// fatal for the channel that produced it.
	ErrTransport = errors.New("transport failure")
)

// ValidationError reports a request that references an unknown field or
// carries a value incompatible with the field's declared type.
type ValidationError struct {
	Space   SpaceName `json:"space,omitempty"`
	Field   string    `json:"field,omitempty"`
	Value   any       `json:"value,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	switch {
	case e.Space != "" && e.Field != "":
		return fmt.Sprintf("validation error for %s field '%s': %s", e.Space, e.Field, e.Message)
	case e.Field != "":
		return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
	default:
		return "validation error: " + e.Message
	}
}

// Is makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// TimeoutError is returned by a lock whose mask was not satisfied in time.
// Last is the state seen by the final poll.
type TimeoutError struct {
	Mask    StateMask
	Last    EngineState
	Elapsed time.Duration
	Timeout time.Duration
}

// Error implements the error interface for TimeoutError.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("engine did not reach %s within %s (last state %s after %s)", e.Mask, e.Timeout, e.Last, e.Elapsed.Round(time.Millisecond))
}

// Is makes errors.Is(err, ErrTimeout) true.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// TransportError wraps a failure to talk to the engine process: crash,
// connection loss, malformed reply or a request the engine refused.
type TransportError struct {
	Op  string
	Err error
}

// Error implements the error interface for TransportError.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrTransport) true.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// NewTransportError wraps err unless it already is a *TransportError.
func NewTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// EngineError is the error payload the engine returns when it refuses a
// request (e.g. an action sent while not paused). It always travels inside
// a *TransportError; use errors.As to inspect it.
type EngineError struct {
	Status  int    `json:"status"`
	Err     string `json:"error"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// Error implements the error interface for EngineError.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error [path=%s, status=%d, error=%s]: %s", e.Path, e.Status, e.Err, e.Message)
}
