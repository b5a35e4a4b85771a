package simulator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/hupe1980/simlink/analysis"
	"github.com/hupe1980/simlink/clock"
	"github.com/hupe1980/simlink/core"
	"github.com/hupe1980/simlink/internal/util"
	"github.com/hupe1980/simlink/logging"
)

// ErrClosed is returned by every request after Close.
var ErrClosed = errors.New("simulator closed")

// Config defines the timing of the emulated engine.
//
// Every accepted reset or action starts a run segment:
//
//	PLEASE_WAIT (TransitionDelay) → RUNNING (RunDelay) → PLEASE_WAIT (TransitionDelay) → PAUSED | FINISHED
//
// Model time advances by StepTime during each RUNNING phase.
type Config struct {
	// TransitionDelay is how long the engine reports PLEASE_WAIT when
	// entering or leaving RUNNING.
	TransitionDelay time.Duration

	// RunDelay is how long the engine reports RUNNING per segment.
	RunDelay time.Duration

	// StepTime is the model time, in model time units, that passes per
	// segment.
	StepTime float64

	// AutoFinish finishes the run as soon as the model's stop condition is
	// set, instead of pausing with Stop reported.
	AutoFinish bool
}

// DefaultConfig keeps segments short enough for tests and examples.
var DefaultConfig = Config{
	TransitionDelay: 2 * time.Millisecond,
	RunDelay:        10 * time.Millisecond,
	StepTime:        1,
}

// Options configures a Simulator.
type Options struct {
	Config Config
	Clock  clock.Clock
	Logger logging.Logger
}

// Record is one request the simulator accepted.
type Record struct {
	Op       string
	RunID    string
	Sequence int64
	Episode  int64
	Step     int64
	// Values is the configuration of a reset or the action of a step.
	Values *core.Space
	// Settings is set for resets only.
	Settings *core.Space
}

// Simulator is an in-process engine implementing core.Channel and
// core.Finisher. State transitions happen on a background goroutine, so a
// caller observes RUNNING and PLEASE_WAIT exactly as with a real engine
// process.
//
// A Simulator is safe for concurrent use.
type Simulator struct {
	schema *core.Schema
	model  Model
	config Config
	clock  clock.Clock
	logger logging.Logger

	mu       sync.Mutex
	state    core.EngineState
	runID    string
	seq      int64
	episode  int64
	step     int64
	run      runClock
	settings *core.Space
	message  string
	events   int64
	history  []Record
	cancel   context.CancelFunc
	closed   bool

	wg sync.WaitGroup
}

var (
	_ core.Channel  = (*Simulator)(nil)
	_ core.Finisher = (*Simulator)(nil)
)

// New creates a Simulator serving schema and driving model. It starts in
// IDLE.
func New(schema *core.Schema, model Model, optFns ...func(o *Options)) *Simulator {
	opts := Options{
		Config: DefaultConfig,
		Clock:  clock.New(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	schema.Normalize()

	return &Simulator{
		schema: schema,
		model:  model,
		config: opts.Config,
		clock:  clock.OrReal(opts.Clock),
		logger: logging.Scoped(logging.OrNoOp(opts.Logger), "simulator", ""),
		state:  core.StateIdle,
		run:    newRunClock(schema.EngineSettings.Defaults()),
	}
}

// Schema implements core.Channel.
func (s *Simulator) Schema(context.Context) (*core.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.schema, nil
}

// Reset implements core.Channel. It is accepted in every state and
// abandons a segment in progress. A model that fails to reset leaves the
// engine in ERROR; the request itself succeeds.
func (s *Simulator) Reset(_ context.Context, req core.ResetRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.stopSegment()

	settings := req.EngineSettings
	if settings == nil {
		settings = s.schema.EngineSettings.Defaults()
	}
	cfg := req.Configuration
	if cfg == nil {
		cfg = s.schema.Configuration.Defaults()
	}

	s.runID = util.NewID()
	s.seq++
	s.episode++
	s.step = 0
	s.message = ""
	s.settings = freeze(settings)
	s.run = newRunClock(settings)
	s.record("reset", cfg, settings)

	if err := s.model.Reset(cfg, settings); err != nil {
		s.fail(fmt.Errorf("reset: %w", err))
		return nil
	}
	s.startSegment(false)
	return nil
}

// Act implements core.Channel. Actions are accepted in PAUSED only; in any
// other state the request is refused with an *core.EngineError.
func (s *Simulator) Act(_ context.Context, action *core.Space) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.state != core.StatePaused {
		return s.refuse(fmt.Sprintf("cannot take action in state %s", s.state))
	}

	s.seq++
	s.step++
	s.record("action", action, nil)

	if err := s.model.Act(action); err != nil {
		s.fail(fmt.Errorf("action: %w", err))
		return nil
	}
	s.startSegment(false)
	return nil
}

// Finish implements core.Finisher: a paused run moves to FINISHED. Finishing
// a run that already ended is a no-op.
func (s *Simulator) Finish(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	switch s.state {
	case core.StateFinished, core.StateError:
		return nil
	case core.StatePaused:
	default:
		return s.refuse(fmt.Sprintf("cannot finish in state %s", s.state))
	}
	s.record("finish", nil, nil)
	s.startSegment(true)
	return nil
}

// Status implements core.Channel.
func (s *Simulator) Status(context.Context) (core.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.Status{}, ErrClosed
	}

	obs := s.schema.Observation.Defaults()
	if s.episode > 0 {
		for name, v := range s.model.Observe() {
			if err := obs.Set(name, v); err != nil {
				return core.Status{}, fmt.Errorf("observation: %w", err)
			}
		}
	}

	date := s.run.date()
	return core.Status{
		State:       s.state,
		Observation: obs.Freeze(),
		Stop:        s.episode > 0 && s.model.Stop(),
		SequenceID:  s.seq,
		EpisodeNum:  s.episode,
		StepNum:     s.step,
		Time:        s.run.now,
		Date:        &date,
		Progress:    s.run.progress(),
		Message:     s.message,
	}, nil
}

// Outputs implements core.Channel. Names the model does not report keep
// their template default.
func (s *Simulator) Outputs(_ context.Context, names []string) (*core.Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	values := s.model.Outputs()
	out := core.NewSpace(s.schema.Outputs)
	for _, name := range names {
		f, ok := s.schema.Outputs.Field(name)
		if !ok {
			return nil, &core.EngineError{Status: http.StatusNotFound, Err: http.StatusText(http.StatusNotFound), Message: fmt.Sprintf("no output named %q", name), Path: "/outputs"}
		}
		v, ok := values[name]
		if !ok {
			v = f.Default
		}
		if err := out.Set(name, v); err != nil {
			return nil, err
		}
	}
	return out.Freeze(), nil
}

// Engine implements core.Channel.
func (s *Simulator) Engine(context.Context) (core.EngineInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.EngineInfo{}, ErrClosed
	}

	settings := s.settings
	if settings == nil {
		settings = s.schema.EngineSettings.Defaults().Freeze()
	}
	date := s.run.date()
	next := math.Inf(1)
	if s.state == core.StateRunning || s.state == core.StatePleaseWait {
		next = s.run.now + s.config.StepTime
	}
	return core.EngineInfo{
		State:           s.state,
		EngineEvents:    s.events,
		EngineSteps:     0,
		NextEngineStep:  math.Inf(1),
		NextEngineEvent: next,
		Time:            s.run.now,
		Date:            &date,
		Progress:        s.run.progress(),
		Message:         s.message,
		Settings:        settings,
	}, nil
}

// Close stops the background goroutine. Later requests fail with ErrClosed.
func (s *Simulator) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopSegment()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Debug("Simulator closed")
	return nil
}

// State returns the current engine state.
func (s *Simulator) State() core.EngineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns every accepted request in arrival order.
func (s *Simulator) History() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.history...)
}

// must hold mu
func (s *Simulator) record(op string, values, settings *core.Space) {
	s.history = append(s.history, Record{
		Op:       op,
		RunID:    s.runID,
		Sequence: s.seq,
		Episode:  s.episode,
		Step:     s.step,
		Values:   freeze(values),
		Settings: freeze(settings),
	})
}

// must hold mu
func (s *Simulator) refuse(msg string) error {
	s.logger.Warn("Request refused", "state", s.state.String(), "message", msg)
	return &core.EngineError{Status: http.StatusBadRequest, Err: http.StatusText(http.StatusBadRequest), Message: msg, Path: "/rl"}
}

// must hold mu
func (s *Simulator) fail(err error) {
	s.message = err.Error()
	s.transition(core.StateError)
}

// must hold mu
func (s *Simulator) transition(to core.EngineState) {
	if s.state == to {
		return
	}
	s.logger.Debug("State changed", "from", s.state.String(), "to", to.String(), "run_id", s.runID)
	s.state = to
}

// must hold mu
func (s *Simulator) stopSegment() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// startSegment moves to PLEASE_WAIT and lets the background goroutine
// advance the run. must hold mu.
func (s *Simulator) startSegment(finishing bool) {
	s.stopSegment()
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.transition(core.StatePleaseWait)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if finishing {
			if s.sleep(ctx, s.config.TransitionDelay) {
				s.apply(ctx, func() { s.transition(core.StateFinished) })
			}
			return
		}
		s.segment(ctx)
	}()
}

func (s *Simulator) segment(ctx context.Context) {
	if !s.sleep(ctx, s.config.TransitionDelay) {
		return
	}
	s.apply(ctx, func() { s.transition(core.StateRunning) })

	if !s.sleep(ctx, s.config.RunDelay) {
		return
	}
	var next core.EngineState
	s.apply(ctx, func() {
		s.events++
		s.run.advance(s.config.StepTime)
		next = core.StatePaused
		if s.model.Done() || s.run.expired() || (s.config.AutoFinish && s.model.Stop()) {
			next = core.StateFinished
		}
		s.transition(core.StatePleaseWait)
	})

	if !s.sleep(ctx, s.config.TransitionDelay) {
		return
	}
	s.apply(ctx, func() { s.transition(next) })
}

// apply runs fn under mu unless the segment was abandoned.
func (s *Simulator) apply(ctx context.Context, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	fn()
}

func (s *Simulator) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(d):
		return ctx.Err() == nil
	}
}

func freeze(sp *core.Space) *core.Space {
	if sp == nil {
		return nil
	}
	return sp.Clone().Freeze()
}

// runClock tracks model time for one run.
type runClock struct {
	units     analysis.Unit
	start     float64
	stop      float64
	now       float64
	startDate time.Time
}

func newRunClock(settings *core.Space) runClock {
	rc := runClock{units: analysis.Second, stop: math.Inf(1)}
	if v, ok := settings.Get(core.SettingUnits); ok {
		if u, ok := v.(analysis.Unit); ok && !u.IsZero() {
			rc.units = u
		}
	}
	if v, err := settings.Float(core.SettingStartTime); err == nil {
		rc.start = v
	}
	rc.now = rc.start
	if v, err := settings.Time(core.SettingStartDate); err == nil {
		rc.startDate = v
	}
	if v, err := settings.Float(core.SettingStopTime); err == nil {
		rc.stop = v
	}
	if v, err := settings.Time(core.SettingStopDate); err == nil {
		if d, err := analysis.Second.Convert(v.Sub(rc.startDate).Seconds(), rc.units); err == nil {
			rc.stop = rc.start + d
		}
	}
	return rc
}

func (rc *runClock) advance(dt float64) {
	rc.now = math.Min(rc.now+dt, rc.stop)
}

func (rc *runClock) expired() bool { return rc.now >= rc.stop }

func (rc *runClock) progress() float64 {
	if math.IsInf(rc.stop, 1) || rc.stop <= rc.start {
		return -1
	}
	return math.Min(1, (rc.now-rc.start)/(rc.stop-rc.start))
}

func (rc *runClock) date() time.Time {
	secs, err := rc.units.Convert(rc.now-rc.start, analysis.Second)
	if err != nil {
		return rc.startDate
	}
	return rc.startDate.Add(time.Duration(secs * float64(time.Second)))
}
