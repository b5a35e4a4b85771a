package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/simlink/clock"
	"github.com/hupe1980/simlink/core"
)

// Phase is one segment of a state script: the engine reports State for
// For, then moves on to the next phase. The last phase lasts forever.
type Phase struct {
	State core.EngineState
	For   time.Duration
}

// ScriptedChannel is a core.Channel whose reported state follows a script
// measured on a clock. Reset and Act record the request and restart the
// timeline with the corresponding script, if one is set.
type ScriptedChannel struct {
	mu    sync.Mutex
	clock clock.Clock

	schema  *core.Schema
	script  []Phase
	started time.Time

	// OnReset and OnAct replace the script when a request arrives.
	OnReset []Phase
	OnAct   []Phase

	// StatusErr, when set, fails every status poll.
	StatusErr error
	// ActErr, when set, fails every action.
	ActErr error
	// Stop is reported as the stop condition of every status.
	Stop bool
	// Observe, when set, produces the observation values of each status.
	Observe func() map[string]any
	// OutputValues backs Outputs.
	OutputValues map[string]any

	resets  []core.ResetRequest
	actions []*core.Space
	polls   int
	times   []time.Time
	closed  bool
}

// NewScriptedChannel returns a channel serving schema whose timeline starts
// now on c.
func NewScriptedChannel(c clock.Clock, schema *core.Schema, script ...Phase) *ScriptedChannel {
	if len(script) == 0 {
		script = []Phase{{State: core.StateIdle}}
	}
	return &ScriptedChannel{clock: c, schema: schema, script: script, started: c.Now()}
}

// Script replaces the timeline, starting now.
func (s *ScriptedChannel) Script(phases ...Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restart(phases)
}

// must hold mu
func (s *ScriptedChannel) restart(phases []Phase) {
	if len(phases) == 0 {
		return
	}
	s.script = phases
	s.started = s.clock.Now()
}

// must hold mu
func (s *ScriptedChannel) current() core.EngineState {
	elapsed := s.clock.Now().Sub(s.started)
	for _, p := range s.script[:len(s.script)-1] {
		if elapsed < p.For {
			return p.State
		}
		elapsed -= p.For
	}
	return s.script[len(s.script)-1].State
}

// Schema implements core.Channel.
func (s *ScriptedChannel) Schema(context.Context) (*core.Schema, error) { return s.schema, nil }

// Reset implements core.Channel.
func (s *ScriptedChannel) Reset(_ context.Context, req core.ResetRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("channel closed")
	}
	s.resets = append(s.resets, req)
	s.restart(s.OnReset)
	return nil
}

// Act implements core.Channel.
func (s *ScriptedChannel) Act(_ context.Context, action *core.Space) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("channel closed")
	}
	if s.ActErr != nil {
		return s.ActErr
	}
	s.actions = append(s.actions, action)
	s.restart(s.OnAct)
	return nil
}

// Status implements core.Channel.
func (s *ScriptedChannel) Status(context.Context) (core.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	s.times = append(s.times, s.clock.Now())
	if s.StatusErr != nil {
		return core.Status{}, s.StatusErr
	}
	obs := s.schema.Observation.Defaults()
	if s.Observe != nil {
		for k, v := range s.Observe() {
			if err := obs.Set(k, v); err != nil {
				return core.Status{}, err
			}
		}
	}
	return core.Status{
		State:       s.current(),
		Observation: obs.Freeze(),
		Stop:        s.Stop,
		SequenceID:  int64(len(s.resets) + len(s.actions)),
		EpisodeNum:  int64(len(s.resets)),
		StepNum:     int64(len(s.actions)),
		Time:        s.clock.Now().Sub(s.started).Seconds(),
		Progress:    -1,
	}, nil
}

// Outputs implements core.Channel.
func (s *ScriptedChannel) Outputs(_ context.Context, names []string) (*core.Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := core.NewSpace(s.schema.Outputs)
	for _, n := range names {
		v, ok := s.OutputValues[n]
		if !ok {
			f, _ := s.schema.Outputs.Field(n)
			v = f.Default
		}
		if err := out.Set(n, v); err != nil {
			return nil, err
		}
	}
	return out.Freeze(), nil
}

// Engine implements core.Channel.
func (s *ScriptedChannel) Engine(context.Context) (core.EngineInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.EngineInfo{State: s.current(), Progress: -1, Settings: s.schema.EngineSettings.Defaults().Freeze()}, nil
}

// Close implements core.Channel.
func (s *ScriptedChannel) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Resets returns the recorded reset requests.
func (s *ScriptedChannel) Resets() []core.ResetRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ResetRequest(nil), s.resets...)
}

// Actions returns the recorded actions.
func (s *ScriptedChannel) Actions() []*core.Space {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*core.Space(nil), s.actions...)
}

// Polls returns the number of status queries served.
func (s *ScriptedChannel) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

// PollTimes returns the clock time of every status query.
func (s *ScriptedChannel) PollTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.times...)
}

// Closed reports whether Close was called.
func (s *ScriptedChannel) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
