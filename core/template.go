package core

import (
	"fmt"
	"sort"
	"time"

	"github.com/hupe1980/simlink/analysis"
)

// SpaceName identifies one of the typed field schemas a model declares.
type SpaceName string

// Spaces exchanged with the engine.
const (
	SpaceConfiguration  SpaceName = "configuration"
	SpaceObservation    SpaceName = "observation"
	SpaceAction         SpaceName = "action"
	SpaceOutputs        SpaceName = "outputs"
	SpaceEngineSettings SpaceName = "engine_settings"
	SpaceInputs         SpaceName = "inputs"
)

// Field is one typed entry of a space: declared type, default value and an
// optional unit name.
type Field struct {
	Name    string `json:"name"`
	Type    Type   `json:"type"`
	Default any    `json:"value,omitempty"`
	Units   string `json:"units,omitempty"`
}

// Unit returns the field's unit, if it names a known one.
func (f Field) Unit() (analysis.Unit, bool) {
	if f.Units == "" {
		return analysis.Unit{}, false
	}
	return analysis.LookupUnit(f.Units)
}

// Template is the ordered, immutable schema of one space.
type Template struct {
	name   SpaceName
	fields []Field
	index  map[string]int
}

// NewTemplate builds a template from fields in declaration order. Names must
// be unique and defaults must be compatible with the declared types. A nil
// default on a primitive type is replaced by the kind's zero value.
func NewTemplate(name SpaceName, fields ...Field) (*Template, error) {
	t := &Template{
		name:   name,
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if f.Name == "" {
			return nil, &ValidationError{Space: name, Message: "field name cannot be empty"}
		}
		if _, dup := t.index[f.Name]; dup {
			return nil, &ValidationError{Space: name, Field: f.Name, Message: "duplicate field name"}
		}
		if f.Default == nil && !f.Type.Boxed && !f.Type.IsArray() {
			f.Default = zeroValue(f.Type.Kind)
		}
		def, err := Coerce(f.Type, f.Default)
		if err != nil {
			return nil, &ValidationError{Space: name, Field: f.Name, Value: f.Default, Message: "invalid default: " + err.Error()}
		}
		f.Default = def
		t.index[f.Name] = len(t.fields)
		t.fields = append(t.fields, f)
	}
	return t, nil
}

// MustTemplate is like NewTemplate but panics on error. Intended for
// statically known schemas.
func MustTemplate(name SpaceName, fields ...Field) *Template {
	t, err := NewTemplate(name, fields...)
	if err != nil {
		panic(err)
	}
	return t
}

func zeroValue(k Kind) any {
	switch k {
	case KindInt32:
		return int32(0)
	case KindInt64:
		return int64(0)
	case KindFloat32:
		return float32(0)
	case KindFloat64:
		return float64(0)
	case KindBool:
		return false
	case KindString:
		return ""
	case KindDate:
		return time.Time{}
	case KindTimeUnits:
		return analysis.Second
	}
	return nil
}

// Name returns which space the template describes.
func (t *Template) Name() SpaceName { return t.name }

// Len returns the number of fields.
func (t *Template) Len() int { return len(t.fields) }

// Has reports whether the template declares name.
func (t *Template) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Field returns the declaration for name.
func (t *Template) Field(name string) (Field, bool) {
	i, ok := t.index[name]
	if !ok {
		return Field{}, false
	}
	return t.fields[i], true
}

// Fields returns a copy of the declarations in order.
func (t *Template) Fields() []Field {
	out := make([]Field, len(t.fields))
	copy(out, t.fields)
	return out
}

// Names returns the field names in order.
func (t *Template) Names() []string {
	out := make([]string, len(t.fields))
	for i, f := range t.fields {
		out[i] = f.Name
	}
	return out
}

// Defaults returns a mutable space filled with the declared defaults.
func (t *Template) Defaults() *Space {
	s := newSpace(t)
	for _, f := range t.fields {
		s.put(f.Name, f.Default)
	}
	return s
}

// Validate checks that every name in args is declared. Values are not
// resolved, so generators are not invoked.
func (t *Template) Validate(args Args) error {
	for _, name := range sortedKeys(args) {
		if !t.Has(name) {
			return t.unknown(name)
		}
	}
	return nil
}

// Select checks names against the template and returns them in the given
// order. No names selects every field.
func (t *Template) Select(names ...string) ([]string, error) {
	if len(names) == 0 {
		return t.Names(), nil
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !t.Has(n) {
			return nil, t.unknown(n)
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out, nil
}

// Resolve builds the effective space for one request: template defaults,
// then each layer in order with later layers winning. Every surviving
// generator is invoked exactly once and every value is coerced to its
// declared type. On error nothing is returned, so a request is never
// partially applied.
func (t *Template) Resolve(layers ...Args) (*Space, error) {
	merged := Merge(layers...)
	if err := t.Validate(merged); err != nil {
		return nil, err
	}
	s := t.Defaults()
	for _, f := range t.fields {
		v, ok := merged[f.Name]
		if !ok {
			continue
		}
		raw := v.Resolve()
		c, err := Coerce(f.Type, raw)
		if err != nil {
			return nil, &ValidationError{Space: t.name, Field: f.Name, Value: raw, Message: err.Error()}
		}
		s.put(f.Name, c)
	}
	return s, nil
}

func (t *Template) unknown(name string) error {
	return &ValidationError{Space: t.name, Field: name, Message: fmt.Sprintf("unknown field; expected one of %v", t.Names())}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
