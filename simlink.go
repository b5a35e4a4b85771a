// Package simlink connects a controller, typically a reinforcement learning
// training loop, to a simulation engine running as a separate process.
//
// Most applications interact with this package by:
//  1. Opening a model export with Open, which launches the engine server
//  2. Resetting the run with a configuration and stepping it with actions
//  3. Reading observations and outputs between steps
//  4. Closing the Sim to shut the engine down
//
// The façade delegates to sim.Controller for the run protocol, to
// transport/http for the wire and to process for the engine lifecycle. Use
// sim.New directly to drive a custom core.Channel, such as the in-process
// simulator.
package simlink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/simlink/core"
	"github.com/hupe1980/simlink/logging"
	"github.com/hupe1980/simlink/process"
	"github.com/hupe1980/simlink/sim"
	transport "github.com/hupe1980/simlink/transport/http"
)

// Options configures Open.
type Options struct {
	// Port is the server port. Zero takes the next port from Ports.
	Port int

	// Ports allocates server ports. Defaults to a package-wide allocator, so
	// Sims opened in one program never share a port.
	Ports *process.PortAllocator

	// Launcher starts the engine process.
	Launcher process.Launcher

	// AutoFinish is passed to the engine and to the controller.
	AutoFinish bool

	// RequestTimeout bounds each request to the engine. Defaults to
	// transport/http.DefaultTimeout.
	RequestTimeout time.Duration

	// Controller options are applied after the ones Open derives.
	Controller []func(o *sim.Options)

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

var defaultPorts = process.NewPortAllocator(0)

// Sim is an open model: a running engine process and the controller bound
// to it. Sims are independent of each other and may be used in parallel,
// but a single Sim is driven by one caller at a time.
type Sim struct {
	*sim.Controller

	model   *process.ModelPackage
	process *process.Process
	logger  logging.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open resolves the model at modelPath (a model.jar, an exported .zip or a
// directory holding model.jar), starts its engine server and returns a Sim
// ready for Reset.
func Open(ctx context.Context, modelPath string, optFns ...func(o *Options)) (*Sim, error) {
	opts := Options{
		Ports:  defaultPorts,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)

	pkg, err := process.ResolveModel(modelPath)
	if err != nil {
		return nil, err
	}
	cleanup := func(err error) error {
		return errors.Join(err, pkg.Cleanup())
	}

	port := opts.Port
	if port == 0 {
		if opts.Ports == nil {
			opts.Ports = defaultPorts
		}
		if port, err = opts.Ports.Next(); err != nil {
			return nil, cleanup(err)
		}
	}

	launcher := opts.Launcher
	launcher.AutoFinish = launcher.AutoFinish || opts.AutoFinish
	if launcher.Logger == nil {
		launcher.Logger = logger
	}
	proc, err := launcher.Start(ctx, pkg, port)
	if err != nil {
		return nil, cleanup(err)
	}
	stop := func(err error) error {
		return cleanup(errors.Join(err, proc.Stop(context.Background())))
	}

	ch, err := transport.New(proc.Endpoint(), func(o *transport.Options) {
		o.Done = proc.Done()
		o.Timeout = opts.RequestTimeout
		o.Logger = logger
	})
	if err != nil {
		return nil, stop(err)
	}

	ctrlOpts := append([]func(o *sim.Options){func(o *sim.Options) {
		o.AutoFinish = opts.AutoFinish
		o.Logger = logger
	}}, opts.Controller...)
	ctrl, err := sim.New(ctx, ch, ctrlOpts...)
	if err != nil {
		return nil, stop(errors.Join(err, ch.Close()))
	}

	logger.Info("Model opened", "model", pkg.Jar, "endpoint", proc.Endpoint(), "controller", ctrl.ID())
	return &Sim{Controller: ctrl, model: pkg, process: proc, logger: logger}, nil
}

// Model returns the resolved model package.
func (s *Sim) Model() *process.ModelPackage { return s.model }

// Process returns the engine process.
func (s *Sim) Process() *process.Process { return s.process }

// Close shuts the engine server down, stops its process and removes the
// extracted model, if any. It is safe to call more than once.
func (s *Sim) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.Controller.Close(); err != nil {
			errs = append(errs, fmt.Errorf("shutdown request: %w", err))
		}
		if err := s.process.Stop(context.Background()); err != nil {
			errs = append(errs, err)
		}
		if err := s.model.Cleanup(); err != nil {
			errs = append(errs, fmt.Errorf("remove extracted model: %w", err))
		}
		s.closeErr = errors.Join(errs...)
		s.logger.Info("Model closed", "controller", s.ID())
	})
	return s.closeErr
}

// Run resets s with cfg and then calls step with the resulting status until
// the run leaves the ready-to-act state or step returns no action. It
// returns the last status. The engine's ERROR state ends the loop like any
// other terminal state; callers inspect the returned status.
func (s *Sim) Run(ctx context.Context, cfg core.Args, step func(status core.Status) (core.Args, bool)) (core.Status, error) {
	p, err := s.Reset(ctx, cfg)
	if err != nil {
		return core.Status{}, err
	}
	status, err := p.Wait(ctx)
	for err == nil && status.State == core.StatePaused {
		action, ok := step(status)
		if !ok {
			break
		}
		if p, err = s.TakeAction(ctx, action); err != nil {
			break
		}
		status, err = p.Wait(ctx)
	}
	return status, err
}
