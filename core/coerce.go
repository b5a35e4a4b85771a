package core

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/hupe1980/simlink/analysis"
)

// Coerce checks v against the declared type t and converts it into the
// declared representation.
//
// Numeric literals are first promoted to the widest kind of their family
// (any integer to int64, any float to float64) and then narrowed to the
// declared kind, failing if the value does not fit. Integers are accepted for
// real kinds; integral-valued floats are accepted for integer kinds. nil is
// accepted only for boxed types and arrays.
func Coerce(t Type, v any) (any, error) {
	if v == nil {
		if t.Boxed || t.IsArray() {
			return nil, nil
		}
		return nil, fmt.Errorf("nil is not allowed for primitive type %s", t.Name)
	}
	if t.IsArray() {
		return coerceArray(t, v)
	}
	return coerceScalar(t, v)
}

func coerceScalar(t Type, v any) (any, error) {
	switch t.Kind {
	case KindInt32:
		i, ok := promoteInt(v)
		if !ok {
			return nil, kindMismatch(t, v)
		}
		if i < math.MinInt32 || i > math.MaxInt32 {
			return nil, fmt.Errorf("value %d overflows %s", i, t.Name)
		}
		return int32(i), nil
	case KindInt64:
		i, ok := promoteInt(v)
		if !ok {
			return nil, kindMismatch(t, v)
		}
		return i, nil
	case KindFloat32:
		f, ok := promoteFloat(v)
		if !ok {
			return nil, kindMismatch(t, v)
		}
		if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
			return nil, fmt.Errorf("value %g overflows %s", f, t.Name)
		}
		return float32(f), nil
	case KindFloat64:
		f, ok := promoteFloat(v)
		if !ok {
			return nil, kindMismatch(t, v)
		}
		return f, nil
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, kindMismatch(t, v)
		}
		return b, nil
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, kindMismatch(t, v)
		}
		return s, nil
	case KindDate:
		switch d := v.(type) {
		case time.Time:
			return d, nil
		case *time.Time:
			if d == nil {
				return nil, nil
			}
			return *d, nil
		case string:
			parsed, err := ParseDate(d)
			if err != nil {
				return nil, err
			}
			return parsed, nil
		}
		return nil, kindMismatch(t, v)
	case KindTimeUnits:
		switch u := v.(type) {
		case analysis.Unit:
			if u.Dimension() != analysis.DimensionTime {
				return nil, fmt.Errorf("unit %s is not a time unit", u.Name())
			}
			return u, nil
		case string:
			found, ok := analysis.LookupUnit(u)
			if !ok || found.Dimension() != analysis.DimensionTime {
				return nil, fmt.Errorf("unknown time unit %q", u)
			}
			return found, nil
		}
		return nil, kindMismatch(t, v)
	case KindMap:
		if reflect.ValueOf(v).Kind() != reflect.Map {
			return nil, kindMismatch(t, v)
		}
		return v, nil
	case KindList:
		switch reflect.ValueOf(v).Kind() {
		case reflect.Slice, reflect.Array:
			return v, nil
		}
		return nil, kindMismatch(t, v)
	default:
		// analysis records and unknown engine classes are passed through as-is
		return v, nil
	}
}

func coerceArray(t Type, v any) (any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, kindMismatch(t, v)
	}
	elem := t.Elem()
	out := make([]any, rv.Len())
	for i := range out {
		c, err := Coerce(elem, rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = c
	}
	return typedSlice(elem, out), nil
}

// typedSlice converts a slice of already-coerced scalar elements into the
// natural Go slice type of the element kind. Nested or nullable element
// arrays stay []any.
func typedSlice(elem Type, vals []any) any {
	if elem.IsArray() {
		return vals
	}
	for _, v := range vals {
		if v == nil {
			return vals
		}
	}
	switch elem.Kind {
	case KindInt32:
		return convertSlice[int32](vals)
	case KindInt64:
		return convertSlice[int64](vals)
	case KindFloat32:
		return convertSlice[float32](vals)
	case KindFloat64:
		return convertSlice[float64](vals)
	case KindBool:
		return convertSlice[bool](vals)
	case KindString:
		return convertSlice[string](vals)
	case KindDate:
		return convertSlice[time.Time](vals)
	}
	return vals
}

func convertSlice[T any](vals []any) []T {
	out := make([]T, len(vals))
	for i, v := range vals {
		out[i] = v.(T)
	}
	return out
}

func promoteInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return floatToInt(f)
		}
	}
	return 0, false
}

// floatToInt accepts integral-valued floats, which is what JSON and YAML
// decoders hand back for whole numbers.
func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func promoteFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := promoteInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

func kindMismatch(t Type, v any) error {
	return fmt.Errorf("expected %s (%s), got %T", t.Name, t.Kind, v)
}
