package testutil

import (
	"time"

	"github.com/hupe1980/simlink/analysis"
	"github.com/hupe1980/simlink/core"
)

// SchemaBuilder helps construct model schemas with fluent chaining for tests.
// Example:
//
//	schema := NewSchemaBuilder().Config("num_workers", "int", 0).Action("speed", "double", 0.0).Build()
type SchemaBuilder struct {
	fields   map[core.SpaceName][]core.Field
	units    analysis.Unit
	settings *core.Template
}

// NewSchemaBuilder creates a builder whose engine settings use minutes as the
// model time unit.
func NewSchemaBuilder() *SchemaBuilder {
	return &SchemaBuilder{fields: map[core.SpaceName][]core.Field{}, units: analysis.Minute}
}

func (b *SchemaBuilder) add(space core.SpaceName, name, typ string, def any, units string) *SchemaBuilder {
	b.fields[space] = append(b.fields[space], core.Field{Name: name, Type: core.ParseType(typ), Default: def, Units: units})
	return b
}

// Config adds a configuration field (chainable).
func (b *SchemaBuilder) Config(name, typ string, def any) *SchemaBuilder {
	return b.add(core.SpaceConfiguration, name, typ, def, "")
}

// Observation adds an observation field (chainable).
func (b *SchemaBuilder) Observation(name, typ string, def any) *SchemaBuilder {
	return b.add(core.SpaceObservation, name, typ, def, "")
}

// Action adds an action field (chainable).
func (b *SchemaBuilder) Action(name, typ string, def any) *SchemaBuilder {
	return b.add(core.SpaceAction, name, typ, def, "")
}

// Output adds an output field with an optional unit name (chainable).
func (b *SchemaBuilder) Output(name, typ string, def any, units string) *SchemaBuilder {
	return b.add(core.SpaceOutputs, name, typ, def, units)
}

// Units sets the model time unit of the engine settings (chainable).
func (b *SchemaBuilder) Units(u analysis.Unit) *SchemaBuilder {
	b.units = u
	return b
}

// EngineSettings replaces the engine settings template (chainable).
func (b *SchemaBuilder) EngineSettings(t *core.Template) *SchemaBuilder {
	b.settings = t
	return b
}

// Build returns the schema. It panics on an invalid field declaration.
func (b *SchemaBuilder) Build() *core.Schema {
	settings := b.settings
	if settings == nil {
		settings = core.EngineSettingsTemplate(b.units, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	}
	s := &core.Schema{
		Configuration:  core.MustTemplate(core.SpaceConfiguration, b.fields[core.SpaceConfiguration]...),
		Observation:    core.MustTemplate(core.SpaceObservation, b.fields[core.SpaceObservation]...),
		Action:         core.MustTemplate(core.SpaceAction, b.fields[core.SpaceAction]...),
		Outputs:        core.MustTemplate(core.SpaceOutputs, b.fields[core.SpaceOutputs]...),
		EngineSettings: settings,
	}
	return s.Normalize()
}
