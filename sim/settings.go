package sim

import (
	"fmt"
	"time"

	"github.com/hupe1980/simlink/analysis"
	"github.com/hupe1980/simlink/core"
)

func (e EngineOverrides) entries() []struct {
	name string
	val  core.Value
} {
	return []struct {
		name string
		val  core.Value
	}{
		{core.SettingUnits, e.Units},
		{core.SettingStartTime, e.StartTime},
		{core.SettingStartDate, e.StartDate},
		{core.SettingStopTime, e.StopTime},
		{core.SettingStopDate, e.StopDate},
		{core.SettingSeed, e.Seed},
	}
}

func (e EngineOverrides) validate(tmpl *core.Template) error {
	if e.StopTime.IsSet() && e.StopDate.IsSet() {
		return &core.ValidationError{Space: core.SpaceEngineSettings, Field: core.SettingStopDate, Message: "stop_time and stop_date are mutually exclusive"}
	}
	for _, en := range e.entries() {
		if en.val.IsSet() && !tmpl.Has(en.name) {
			return &core.ValidationError{Space: core.SpaceEngineSettings, Field: en.name, Message: "engine does not declare this setting"}
		}
	}
	return nil
}

// resolveSettings builds the engine settings for one reset. Generators are
// invoked here, once each. Only one stop condition is sent: the overridden
// one, or the model's stop time.
func resolveSettings(tmpl *core.Template, o EngineOverrides) (*core.Space, error) {
	defaults := tmpl.Defaults()
	values := make(map[string]any, tmpl.Len())
	for _, name := range defaults.Keys() {
		values[name], _ = defaults.Get(name)
	}

	invalid := func(name string, v any, err error) error {
		return &core.ValidationError{Space: core.SpaceEngineSettings, Field: name, Value: v, Message: err.Error()}
	}

	units := analysis.Second
	if o.Units.IsSet() {
		values[core.SettingUnits] = o.Units.Resolve()
	}
	if raw := values[core.SettingUnits]; raw != nil {
		c, err := core.Coerce(core.ParseType("TimeUnits"), raw)
		if err != nil {
			return nil, invalid(core.SettingUnits, raw, err)
		}
		units = c.(analysis.Unit)
		values[core.SettingUnits] = units
	}

	for _, en := range []struct {
		name string
		val  core.Value
	}{{core.SettingStartTime, o.StartTime}, {core.SettingStopTime, o.StopTime}} {
		if !en.val.IsSet() {
			continue
		}
		raw := en.val.Resolve()
		t, err := modelTime(raw, units)
		if err != nil {
			return nil, invalid(en.name, raw, err)
		}
		values[en.name] = t
	}
	if o.StartDate.IsSet() {
		values[core.SettingStartDate] = o.StartDate.Resolve()
	}
	if o.StopDate.IsSet() {
		values[core.SettingStopDate] = o.StopDate.Resolve()
	}
	if o.Seed.IsSet() {
		values[core.SettingSeed] = o.Seed.Resolve()
	}

	skip := core.SettingStopDate
	if o.StopDate.IsSet() {
		skip = core.SettingStopTime
	}
	s := core.NewSpace(tmpl)
	for _, name := range []string{core.SettingUnits, core.SettingStartTime, core.SettingStartDate, core.SettingSeed, core.SettingStopTime, core.SettingStopDate} {
		if name == skip || !tmpl.Has(name) {
			continue
		}
		if err := s.Set(name, values[name]); err != nil {
			return nil, err
		}
	}
	// settings the engine declares beyond the well-known ones keep their defaults
	for _, name := range tmpl.Names() {
		if !s.Has(name) && name != skip {
			if err := s.Set(name, values[name]); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// modelTime converts a time override into a number of model time units.
func modelTime(v any, units analysis.Unit) (any, error) {
	switch t := v.(type) {
	case analysis.UnitValue:
		return t.In(units)
	case time.Duration:
		return analysis.Second.Convert(t.Seconds(), units)
	case nil:
		return nil, fmt.Errorf("time cannot be nil")
	}
	return v, nil
}
