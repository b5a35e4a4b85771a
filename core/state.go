package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EngineState is the single concrete state an engine reports at any instant.
// Combinable predicates are expressed with StateMask, never with EngineState.
type EngineState uint8

// Concrete engine states.
const (
	// StateUnknown is the zero value; a healthy engine never reports it.
	StateUnknown EngineState = iota
	// StateIdle: process started, no run configured yet.
	StateIdle
	// StatePaused: run suspended awaiting an action; observation and outputs are safe to read.
	StatePaused
	// StateRunning: engine is advancing simulated time; anything read now is transient.
	StateRunning
	// StateFinished: run reached a terminal stopping point.
	StateFinished
	// StateError: unrecoverable run-time fault inside the engine.
	StateError
	// StatePleaseWait: uninterruptible internal transition into or out of RUNNING.
	StatePleaseWait
)

var stateNames = [...]string{
	StateUnknown:    "UNKNOWN",
	StateIdle:       "IDLE",
	StatePaused:     "PAUSED",
	StateRunning:    "RUNNING",
	StateFinished:   "FINISHED",
	StateError:      "ERROR",
	StatePleaseWait: "PLEASE_WAIT",
}

// States lists every concrete state in declaration order.
func States() []EngineState {
	return []EngineState{StateIdle, StatePaused, StateRunning, StateFinished, StateError, StatePleaseWait}
}

// String implements fmt.Stringer.
func (s EngineState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("EngineState(%d)", uint8(s))
}

// ParseEngineState converts an engine state name (case-insensitive) into an EngineState.
func ParseEngineState(name string) (EngineState, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for _, s := range States() {
		if stateNames[s] == n {
			return s, nil
		}
	}
	return StateUnknown, fmt.Errorf("unknown engine state %q", name)
}

// Mask returns the single-member mask for s.
func (s EngineState) Mask() StateMask {
	if s == StateUnknown || int(s) >= len(stateNames) {
		return 0
	}
	return StateMask(1 << (s - 1))
}

// In reports whether s is a member of m.
func (s EngineState) In(m StateMask) bool { return m.Contains(s) }

// MarshalJSON encodes the state by name.
func (s EngineState) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// UnmarshalJSON decodes a state name.
func (s *EngineState) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	parsed, err := ParseEngineState(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// StateMask is an immutable set of engine states used to express "any of
// these states" as one predicate.
type StateMask uint8

// MaskOf builds a mask from the given states.
func MaskOf(states ...EngineState) StateMask {
	var m StateMask
	for _, s := range states {
		m |= s.Mask()
	}
	return m
}

// Ready is the mask of states that require caller action or acknowledgment:
// PAUSED|FINISHED|ERROR.
func Ready() StateMask { return MaskOf(StatePaused, StateFinished, StateError) }

// AnyState is the mask containing every concrete state.
func AnyState() StateMask { return MaskOf(States()...) }

// Or returns the union of m and other.
func (m StateMask) Or(other StateMask) StateMask { return m | other }

// Without returns m with the members of other removed.
func (m StateMask) Without(other StateMask) StateMask { return m &^ other }

// Contains reports whether s is a member of m.
func (m StateMask) Contains(s EngineState) bool {
	bit := s.Mask()
	return bit != 0 && m&bit != 0
}

// IsEmpty reports whether the mask has no members.
func (m StateMask) IsEmpty() bool { return m&AnyState() == 0 }

// States lists the members of m in declaration order.
func (m StateMask) States() []EngineState {
	var out []EngineState
	for _, s := range States() {
		if m.Contains(s) {
			out = append(out, s)
		}
	}
	return out
}

// Names lists the member names of m in declaration order.
func (m StateMask) Names() []string {
	states := m.States()
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = s.String()
	}
	return names
}

// String renders the mask as "PAUSED|FINISHED|ERROR".
func (m StateMask) String() string {
	if m.IsEmpty() {
		return "NONE"
	}
	return strings.Join(m.Names(), "|")
}

// ParseStateMask parses state names separated by "|" or "," into a mask.
func ParseStateMask(s string) (StateMask, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' })
	var m StateMask
	for _, f := range fields {
		st, err := ParseEngineState(f)
		if err != nil {
			return 0, err
		}
		m |= st.Mask()
	}
	if m.IsEmpty() {
		return 0, fmt.Errorf("empty state mask %q", s)
	}
	return m, nil
}
