package core

import (
	"fmt"
	"time"
)

// Status is an immutable snapshot of one engine run, produced fresh for
// every query. A status observed while the engine is RUNNING (or in
// PLEASE_WAIT) is transient: the engine has already moved on by the time the
// caller reads it.
type Status struct {
	State       EngineState `json:"state"`
	Observation *Space      `json:"observation"`
	// Stop mirrors the model's stop condition for the current episode.
	Stop       bool       `json:"stop"`
	SequenceID int64      `json:"sequence_id"`
	EpisodeNum int64      `json:"episode_num"`
	StepNum    int64      `json:"step_num"`
	Time       float64    `json:"time"`
	Date       *time.Time `json:"date,omitempty"`
	// Progress is in [0,1] when the run has a stop time or date, negative otherwise.
	Progress float64 `json:"progress"`
	Message  string  `json:"message,omitempty"`
}

// HasProgress reports whether Progress is defined.
func (s Status) HasProgress() bool { return s.Progress >= 0 }

// Transient reports whether the snapshot was taken while the engine was
// advancing and is therefore not authoritative.
func (s Status) Transient() bool {
	return s.State == StateRunning || s.State == StatePleaseWait
}

// Counters returns the request counters keyed by their engine names.
func (s Status) Counters() map[string]int64 {
	return map[string]int64{
		"sequence_id": s.SequenceID,
		"episode_num": s.EpisodeNum,
		"step_num":    s.StepNum,
	}
}

// String renders a one-line summary.
func (s Status) String() string {
	progress := "n/a"
	if s.HasProgress() {
		progress = fmt.Sprintf("%.0f%%", s.Progress*100)
	}
	return fmt.Sprintf("%s seq=%d episode=%d step=%d time=%g progress=%s stop=%t obs=%s",
		s.State, s.SequenceID, s.EpisodeNum, s.StepNum, s.Time, progress, s.Stop, s.Observation.summaryOrEmpty())
}

func (s *Space) summaryOrEmpty() string {
	if s == nil {
		return "{}"
	}
	return s.Summary()
}

// EngineInfo reports the internals of the engine driving a run. It is
// intended for debugging.
type EngineInfo struct {
	State           EngineState `json:"state"`
	EngineEvents    int64       `json:"engine_events"`
	EngineSteps     int64       `json:"engine_steps"`
	NextEngineStep  float64     `json:"next_engine_step"`
	NextEngineEvent float64     `json:"next_engine_event"`
	Time            float64     `json:"time"`
	Date            *time.Time  `json:"date,omitempty"`
	Progress        float64     `json:"progress"`
	Message         string      `json:"message,omitempty"`
	Settings        *Space      `json:"settings"`
}

// Schema holds the templates a model declares. It is immutable once built.
type Schema struct {
	Inputs         *Template
	Outputs        *Template
	Configuration  *Template
	EngineSettings *Template
	Observation    *Template
	Action         *Template
}

// Template returns the template for the named space, or nil.
func (s *Schema) Template(name SpaceName) *Template {
	switch name {
	case SpaceInputs:
		return s.Inputs
	case SpaceOutputs:
		return s.Outputs
	case SpaceConfiguration:
		return s.Configuration
	case SpaceEngineSettings:
		return s.EngineSettings
	case SpaceObservation:
		return s.Observation
	case SpaceAction:
		return s.Action
	}
	return nil
}

// Normalize replaces missing templates with empty ones so callers never
// have to nil-check.
func (s *Schema) Normalize() *Schema {
	fill := func(t **Template, name SpaceName) {
		if *t == nil {
			*t = MustTemplate(name)
		}
	}
	fill(&s.Inputs, SpaceInputs)
	fill(&s.Outputs, SpaceOutputs)
	fill(&s.Configuration, SpaceConfiguration)
	fill(&s.EngineSettings, SpaceEngineSettings)
	fill(&s.Observation, SpaceObservation)
	fill(&s.Action, SpaceAction)
	return s
}
