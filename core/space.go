package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tidwall/sjson"

	"github.com/hupe1980/simlink/analysis"
)

// ErrFrozen is returned when mutating a space received from the engine.
var ErrFrozen = errors.New("space is frozen")

// Space is an ordered key/value container bound to a Template. Keys keep
// insertion order, which for engine replies and resolved requests is the
// template or request order.
type Space struct {
	tmpl   *Template
	keys   []string
	vals   map[string]any
	frozen bool
}

func newSpace(t *Template) *Space {
	return &Space{tmpl: t, vals: make(map[string]any, t.Len())}
}

// NewSpace returns an empty mutable space bound to t.
func NewSpace(t *Template) *Space { return newSpace(t) }

func (s *Space) put(name string, v any) {
	if _, ok := s.vals[name]; !ok {
		s.keys = append(s.keys, name)
	}
	s.vals[name] = v
}

// Template returns the template the space is bound to.
func (s *Space) Template() *Template { return s.tmpl }

// Name returns the space's name.
func (s *Space) Name() SpaceName {
	if s == nil || s.tmpl == nil {
		return ""
	}
	return s.tmpl.name
}

// Set coerces v to the declared type of name and stores it.
func (s *Space) Set(name string, v any) error {
	if s.frozen {
		return fmt.Errorf("set %s.%s: %w", s.Name(), name, ErrFrozen)
	}
	f, ok := s.tmpl.Field(name)
	if !ok {
		return s.tmpl.unknown(name)
	}
	c, err := Coerce(f.Type, v)
	if err != nil {
		return &ValidationError{Space: s.Name(), Field: name, Value: v, Message: err.Error()}
	}
	s.put(name, c)
	return nil
}

// Get returns the value stored under name.
func (s *Space) Get(name string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.vals[name]
	return v, ok
}

// Has reports whether name is present.
func (s *Space) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Int returns name as int64, accepting any integral representation.
func (s *Space) Int(name string) (int64, error) {
	v, err := s.lookup(name)
	if err != nil {
		return 0, err
	}
	if u, ok := v.(analysis.UnitValue); ok {
		v = u.Value
	}
	i, ok := promoteInt(v)
	if !ok {
		return 0, fmt.Errorf("%s.%s: %T is not an integer", s.Name(), name, v)
	}
	return i, nil
}

// Float returns name as float64, accepting any numeric representation.
func (s *Space) Float(name string) (float64, error) {
	v, err := s.lookup(name)
	if err != nil {
		return 0, err
	}
	if u, ok := v.(analysis.UnitValue); ok {
		return u.Value, nil
	}
	f, ok := promoteFloat(v)
	if !ok {
		return 0, fmt.Errorf("%s.%s: %T is not a number", s.Name(), name, v)
	}
	return f, nil
}

// Bool returns name as bool.
func (s *Space) Bool(name string) (bool, error) {
	v, err := s.lookup(name)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s.%s: %T is not a bool", s.Name(), name, v)
	}
	return b, nil
}

// String returns name as string.
func (s *Space) String(name string) (string, error) {
	v, err := s.lookup(name)
	if err != nil {
		return "", err
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s.%s: %T is not a string", s.Name(), name, v)
	}
	return str, nil
}

// Time returns name as time.Time.
func (s *Space) Time(name string) (time.Time, error) {
	v, err := s.lookup(name)
	if err != nil {
		return time.Time{}, err
	}
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("%s.%s: %T is not a time", s.Name(), name, v)
	}
	return t, nil
}

func (s *Space) lookup(name string) (any, error) {
	v, ok := s.Get(name)
	if !ok {
		return nil, fmt.Errorf("%s: no value for %q", s.Name(), name)
	}
	return v, nil
}

// Keys returns the keys in order.
func (s *Space) Keys() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of stored values.
func (s *Space) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Map returns an unordered copy of the contents.
func (s *Space) Map() map[string]any {
	out := make(map[string]any, s.Len())
	if s == nil {
		return out
	}
	for k, v := range s.vals {
		out[k] = v
	}
	return out
}

// Clone returns a mutable copy.
func (s *Space) Clone() *Space {
	c := newSpace(s.tmpl)
	for _, k := range s.keys {
		c.put(k, s.vals[k])
	}
	return c
}

// Freeze makes the space read-only and returns it.
func (s *Space) Freeze() *Space {
	s.frozen = true
	return s
}

// Frozen reports whether Set is disabled.
func (s *Space) Frozen() bool { return s.frozen }

// Summary renders the space as "{a: 1, b: 2}" in key order.
func (s *Space) Summary() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range s.Keys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %v", k, s.vals[k])
	}
	sb.WriteByte('}')
	return sb.String()
}

// MarshalJSON encodes the space as a JSON object in key order, using the
// engine's wire representation for dates, units and non-finite numbers.
func (s *Space) MarshalJSON() ([]byte, error) {
	out := []byte("{}")
	var err error
	for _, k := range s.Keys() {
		out, err = sjson.SetBytes(out, EscapePath(k), WireValue(s.vals[k]))
		if err != nil {
			return nil, fmt.Errorf("encode %s.%s: %w", s.Name(), k, err)
		}
	}
	return out, nil
}

// EscapePath escapes the sjson/gjson path metacharacters in a literal key.
func EscapePath(key string) string {
	var sb strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', ':', '!', '=', '<', '>', '%':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// WireValue converts a native value into its engine wire representation.
func WireValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return FormatDate(x)
	case analysis.Unit:
		if x.IsZero() {
			return nil
		}
		return x.Name()
	case analysis.UnitValue:
		return wireFloat(x.Value)
	case float64:
		return wireFloat(x)
	case float32:
		return wireFloat32(x)
	case []float64:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = wireFloat(f)
		}
		return out
	case []float32:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = wireFloat32(f)
		}
		return out
	case []time.Time:
		out := make([]string, len(x))
		for i, t := range x {
			out[i] = FormatDate(t)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = WireValue(e)
		}
		return out
	}
	return v
}

func wireFloat(f float64) any {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case math.IsNaN(f):
		return "NaN"
	}
	return f
}

func wireFloat32(f float32) any {
	if w, ok := wireFloat(float64(f)).(string); ok {
		return w
	}
	return f
}
