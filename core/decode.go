package core

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/simlink/analysis"
	"github.com/hupe1980/simlink/internal/util"
)

// Decode maps an engine JSON value to the natural Go representation of its
// declared type. Numbers with a known unit become analysis.UnitValue. A JSON
// null (or a missing value) decodes to nil.
func Decode(t Type, units string, r gjson.Result) (any, error) {
	if !r.Exists() || r.Type == gjson.Null {
		return nil, nil
	}
	if t.IsArray() {
		if !r.IsArray() {
			return nil, fmt.Errorf("expected array for %s, got %s", t.Name, r.Type)
		}
		elem := t.Elem()
		items := r.Array()
		out := make([]any, len(items))
		for i, item := range items {
			v, err := Decode(elem, units, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = v
		}
		return typedSlice(elem, out), nil
	}

	switch t.Kind {
	case KindInt32, KindInt64, KindFloat32, KindFloat64:
		v, err := decodeNumber(t, r)
		if err != nil {
			return nil, err
		}
		if units != "" {
			if u, ok := analysis.LookupUnit(units); ok {
				f, _ := promoteFloat(v)
				return analysis.UnitValue{Value: f, Unit: u}, nil
			}
		}
		return v, nil
	case KindBool:
		switch r.Type {
		case gjson.True, gjson.False:
			return r.Bool(), nil
		case gjson.String:
			b, err := strconv.ParseBool(r.Str)
			if err != nil {
				return nil, fmt.Errorf("invalid boolean %q", r.Str)
			}
			return b, nil
		}
		return nil, fmt.Errorf("expected boolean for %s, got %s", t.Name, r.Type)
	case KindString:
		return r.String(), nil
	case KindDate:
		switch r.Type {
		case gjson.Number:
			return EpochMillis(r.Int()), nil
		case gjson.String:
			return ParseDate(r.Str)
		}
		return nil, fmt.Errorf("expected date for %s, got %s", t.Name, r.Type)
	case KindTimeUnits:
		u, ok := analysis.LookupUnit(r.String())
		if !ok {
			return nil, fmt.Errorf("unknown time unit %q", r.String())
		}
		return u, nil
	case KindStatisticsDiscrete:
		return analysis.DecodeStatisticsDiscrete(r), nil
	case KindStatisticsContinuous:
		return analysis.DecodeStatisticsContinuous(r), nil
	case KindDataSet:
		return analysis.DecodeDataSet(r), nil
	case KindHistogramSimple:
		return analysis.DecodeHistogramSimpleData(r), nil
	case KindHistogramSmart:
		return analysis.DecodeHistogramSmartData(r), nil
	case KindHistogram2D:
		return analysis.DecodeHistogram2DData(r), nil
	case KindMap:
		if !r.IsObject() {
			return nil, fmt.Errorf("expected object for %s, got %s", t.Name, r.Type)
		}
		return r.Value(), nil
	case KindList:
		if !r.IsArray() {
			return nil, fmt.Errorf("expected array for %s, got %s", t.Name, r.Type)
		}
		return r.Value(), nil
	}
	return r.Value(), nil
}

func decodeNumber(t Type, r gjson.Result) (any, error) {
	var f float64
	switch r.Type {
	case gjson.Number:
		if t.Kind == KindInt64 {
			// avoid the float64 round trip for large longs
			if i, err := strconv.ParseInt(r.Raw, 10, 64); err == nil {
				return i, nil
			}
		}
		f = r.Num
	case gjson.String:
		parsed, err := util.ParseNumber(r.Str)
		if err != nil {
			return nil, err
		}
		f = parsed
	default:
		return nil, fmt.Errorf("expected number for %s, got %s", t.Name, r.Type)
	}
	switch t.Kind {
	case KindInt32:
		i, ok := floatToInt(f)
		if !ok || i < math.MinInt32 || i > math.MaxInt32 {
			return nil, fmt.Errorf("value %g is not a valid %s", f, t.Name)
		}
		return int32(i), nil
	case KindInt64:
		i, ok := floatToInt(f)
		if !ok {
			return nil, fmt.Errorf("value %g is not a valid %s", f, t.Name)
		}
		return i, nil
	case KindFloat32:
		return float32(f), nil
	}
	return f, nil
}

// DecodeField decodes a {name, type, value, units} descriptor.
func DecodeField(r gjson.Result) (Field, error) {
	f := Field{
		Name:  r.Get("name").String(),
		Type:  ParseType(r.Get("type").String()),
		Units: r.Get("units").String(),
	}
	// defaults are plain values, never unit-bearing
	v, err := Decode(f.Type, "", r.Get("value"))
	if err != nil {
		return Field{}, fmt.Errorf("field %q: %w", f.Name, err)
	}
	f.Default = v
	return f, nil
}

// DecodeTemplate decodes a JSON array of field descriptors.
func DecodeTemplate(name SpaceName, r gjson.Result) (*Template, error) {
	var fields []Field
	for _, item := range r.Array() {
		f, err := DecodeField(item)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		fields = append(fields, f)
	}
	return NewTemplate(name, fields...)
}

// DecodeSchema decodes the engine's schema document, which holds one field
// descriptor array per space.
func DecodeSchema(r gjson.Result) (*Schema, error) {
	s := &Schema{}
	for _, slot := range []struct {
		name SpaceName
		dst  **Template
	}{
		{SpaceInputs, &s.Inputs},
		{SpaceOutputs, &s.Outputs},
		{SpaceConfiguration, &s.Configuration},
		{SpaceEngineSettings, &s.EngineSettings},
		{SpaceObservation, &s.Observation},
		{SpaceAction, &s.Action},
	} {
		t, err := DecodeTemplate(slot.name, r.Get(string(slot.name)))
		if err != nil {
			return nil, err
		}
		*slot.dst = t
	}
	return s, nil
}

// DecodeSpace decodes a {name: value} object against t. Keys keep the
// template order; names the template does not declare are ignored.
func DecodeSpace(t *Template, r gjson.Result) (*Space, error) {
	s := newSpace(t)
	if !r.Exists() || r.Type == gjson.Null {
		return s.Freeze(), nil
	}
	if !r.IsObject() {
		return nil, fmt.Errorf("%s: expected object, got %s", t.Name(), r.Type)
	}
	for _, f := range t.fields {
		raw := r.Get(EscapePath(f.Name))
		if !raw.Exists() {
			continue
		}
		v, err := Decode(f.Type, f.Units, raw)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name(), f.Name, err)
		}
		s.put(f.Name, v)
	}
	return s.Freeze(), nil
}

// DecodeOutputs decodes a list of field descriptors carrying values, keeping
// only names and in the order given. Types and units come from the reply.
func DecodeOutputs(t *Template, names []string, r gjson.Result) (*Space, error) {
	byName := make(map[string]gjson.Result)
	for _, item := range r.Array() {
		byName[item.Get("name").String()] = item
	}
	s := newSpace(t)
	for _, n := range names {
		item, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("%s: missing value for %q", t.Name(), n)
		}
		typ := ParseType(item.Get("type").String())
		units := item.Get("units").String()
		if f, ok := t.Field(n); ok && typ.Name == "" {
			typ, units = f.Type, f.Units
		}
		v, err := Decode(typ, units, item.Get("value"))
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name(), n, err)
		}
		s.put(n, v)
	}
	return s.Freeze(), nil
}

// DecodeStatus decodes a status document; the observation is read against
// the observation template.
func DecodeStatus(obs *Template, r gjson.Result) (Status, error) {
	state, err := ParseEngineState(r.Get("state").String())
	if err != nil {
		return Status{}, err
	}
	space, err := DecodeSpace(obs, r.Get("observation"))
	if err != nil {
		return Status{}, err
	}
	st := Status{
		State:       state,
		Observation: space,
		Stop:        r.Get("stop").Bool(),
		SequenceID:  r.Get("sequence_id").Int(),
		EpisodeNum:  r.Get("episode_num").Int(),
		StepNum:     r.Get("step_num").Int(),
		Time:        analysis.Number(r.Get("time"), 0),
		Progress:    analysis.Number(r.Get("progress"), -1),
		Message:     r.Get("message").String(),
	}
	if st.Date, err = decodeDate(r.Get("date")); err != nil {
		return Status{}, err
	}
	return st, nil
}

// DecodeEngineInfo decodes an engine document; settings are read against
// the engine settings template.
func DecodeEngineInfo(settings *Template, r gjson.Result) (EngineInfo, error) {
	state, err := ParseEngineState(r.Get("state").String())
	if err != nil {
		return EngineInfo{}, err
	}
	info := EngineInfo{
		State:           state,
		EngineEvents:    r.Get("engine_events").Int(),
		EngineSteps:     r.Get("engine_steps").Int(),
		NextEngineStep:  analysis.Number(r.Get("next_engine_step"), math.Inf(1)),
		NextEngineEvent: analysis.Number(r.Get("next_engine_event"), math.Inf(1)),
		Time:            analysis.Number(r.Get("time"), 0),
		Progress:        analysis.Number(r.Get("progress"), -1),
		Message:         r.Get("message").String(),
	}
	if info.Date, err = decodeDate(r.Get("date")); err != nil {
		return EngineInfo{}, err
	}
	if info.Settings, err = DecodeSpace(settings, r.Get("settings")); err != nil {
		return EngineInfo{}, err
	}
	return info, nil
}

func decodeDate(r gjson.Result) (*time.Time, error) {
	v, err := Decode(Type{Name: "Date", Kind: KindDate, Boxed: true}, "", r)
	if err != nil || v == nil {
		return nil, err
	}
	t := v.(time.Time)
	return &t, nil
}
