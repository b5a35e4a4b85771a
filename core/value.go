package core

import "fmt"

// Value is either a literal or a zero-argument generator. Generators are
// invoked at the point a request is sent, once per request, never earlier.
// The zero Value is unset.
type Value struct {
	literal   any
	generator func() any
	set       bool
}

// Literal wraps a fixed value. Literal(nil) is a set value holding nil.
func Literal(v any) Value { return Value{literal: v, set: true} }

// Generator wraps a function that produces a fresh value for every request.
func Generator(fn func() any) Value { return Value{generator: fn, set: fn != nil} }

// IsSet reports whether v was built with Literal or Generator.
func (v Value) IsSet() bool { return v.set }

// IsGenerator reports whether v is generator-backed.
func (v Value) IsGenerator() bool { return v.generator != nil }

// Resolve returns the literal, or invokes the generator.
func (v Value) Resolve() any {
	if v.generator != nil {
		return v.generator()
	}
	return v.literal
}

// String implements fmt.Stringer without invoking generators.
func (v Value) String() string {
	if !v.set {
		return "<unset>"
	}
	if v.generator != nil {
		return "<generator>"
	}
	return fmt.Sprint(v.literal)
}

// Args maps field names to values for one request.
type Args map[string]Value

// Values lifts plain Go values to Args. Values that already are a Value are
// kept; func() any is treated as a generator; anything else is a literal.
func Values(m map[string]any) Args {
	if m == nil {
		return nil
	}
	out := make(Args, len(m))
	for k, v := range m {
		out[k] = ValueOf(v)
	}
	return out
}

// ValueOf lifts a single Go value. See Values.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case Value:
		return x
	case func() any:
		return Generator(x)
	}
	return Literal(v)
}

// Merge returns a new Args with the layers applied in order, later layers
// winning. Unset values never override.
func Merge(layers ...Args) Args {
	out := Args{}
	for _, l := range layers {
		for k, v := range l {
			if v.IsSet() {
				out[k] = v
			}
		}
	}
	return out
}
