// Package logging provides a minimal logging interface and adapters for simlink.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the controller, lock coordinator, transport and process launcher use for
// observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - SimLogger with component / instance scoping and request / lock helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelDebug, "text", false)
//	ctrl, err := sim.New(ctx, channel, func(o *sim.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging
