package core

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configTemplate(t *testing.T) *Template {
	t.Helper()
	tmpl, err := NewTemplate(SpaceConfiguration,
		Field{Name: "num_workers", Type: ParseType("int")},
		Field{Name: "arrival_rate", Type: ParseType("double"), Default: 1.5},
		Field{Name: "label", Type: ParseType("String"), Default: "base"},
	)
	require.NoError(t, err)
	return tmpl
}

func TestNewTemplate(t *testing.T) {
	tmpl := configTemplate(t)

	assert.Equal(t, []string{"num_workers", "arrival_rate", "label"}, tmpl.Names())
	f, ok := tmpl.Field("num_workers")
	require.True(t, ok)
	assert.Equal(t, int32(0), f.Default)

	_, err := NewTemplate(SpaceAction, Field{Name: "x", Type: ParseType("int")}, Field{Name: "x", Type: ParseType("int")})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = NewTemplate(SpaceAction, Field{Name: "x", Type: ParseType("int"), Default: "nope"})
	assert.True(t, errors.Is(err, ErrValidation))

	assert.Panics(t, func() { MustTemplate(SpaceAction, Field{Type: ParseType("int")}) })
}

func TestTemplate_ResolveDefaults(t *testing.T) {
	tmpl := configTemplate(t)

	s, err := tmpl.Resolve()
	require.NoError(t, err)

	want := map[string]any{"num_workers": int32(0), "arrival_rate": 1.5, "label": "base"}
	if diff := cmp.Diff(want, s.Map()); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, tmpl.Names(), s.Keys())
}

func TestTemplate_ResolveLayering(t *testing.T) {
	tmpl := configTemplate(t)

	instance := Args{"num_workers": Literal(4), "label": Literal("instance")}
	call := Args{"num_workers": Literal(10)}

	s, err := tmpl.Resolve(instance, call)
	require.NoError(t, err)

	n, err := s.Int("num_workers")
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	label, err := s.String("label")
	require.NoError(t, err)
	assert.Equal(t, "instance", label)
}

func TestTemplate_ResolveGenerators(t *testing.T) {
	tmpl := configTemplate(t)

	calls := 0
	gen := Generator(func() any {
		calls++
		return calls * 2
	})

	first, err := tmpl.Resolve(Args{"num_workers": gen})
	require.NoError(t, err)
	second, err := tmpl.Resolve(Args{"num_workers": gen})
	require.NoError(t, err)

	a, _ := first.Get("num_workers")
	b, _ := second.Get("num_workers")
	assert.Equal(t, int32(2), a)
	assert.Equal(t, int32(4), b)
	assert.Equal(t, 2, calls)

	// an overridden generator is never invoked
	_, err = tmpl.Resolve(Args{"num_workers": gen}, Args{"num_workers": Literal(1)})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestTemplate_ResolveValidation(t *testing.T) {
	tmpl := configTemplate(t)

	_, err := tmpl.Resolve(Args{"bogus": Literal(1)})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, SpaceConfiguration, ve.Space)
	assert.Equal(t, "bogus", ve.Field)

	_, err = tmpl.Resolve(Args{"num_workers": Literal(2.5)})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "num_workers", ve.Field)
	assert.Equal(t, 2.5, ve.Value)

	assert.NoError(t, tmpl.Validate(Args{"label": Generator(func() any { panic("not invoked") })}))
}

func TestTemplate_Select(t *testing.T) {
	tmpl := configTemplate(t)

	names, err := tmpl.Select("label", "num_workers", "label")
	require.NoError(t, err)
	assert.Equal(t, []string{"label", "num_workers"}, names)

	names, err = tmpl.Select()
	require.NoError(t, err)
	assert.Equal(t, tmpl.Names(), names)

	_, err = tmpl.Select("missing")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestSpace_SetAndFreeze(t *testing.T) {
	tmpl := configTemplate(t)
	s := tmpl.Defaults()

	require.NoError(t, s.Set("arrival_rate", 3))
	f, err := s.Float("arrival_rate")
	require.NoError(t, err)
	assert.Equal(t, 3.0, f)

	assert.True(t, errors.Is(s.Set("label", 1), ErrValidation))
	assert.True(t, errors.Is(s.Set("nope", 1), ErrValidation))

	clone := s.Clone()
	s.Freeze()
	assert.True(t, errors.Is(s.Set("label", "x"), ErrFrozen))
	assert.NoError(t, clone.Set("label", "x"))

	_, err = s.Bool("label")
	assert.Error(t, err)
	_, err = s.Int("unknown")
	assert.Error(t, err)
}

func TestSpace_MarshalJSONKeepsOrder(t *testing.T) {
	tmpl := MustTemplate(SpaceAction,
		Field{Name: "z.speed", Type: ParseType("double")},
		Field{Name: "a", Type: ParseType("int[]")},
		Field{Name: "limit", Type: ParseType("double")},
	)
	s, err := tmpl.Resolve(Args{
		"z.speed": Literal(0.5),
		"a":       Literal([]int{1, 2}),
		"limit":   Literal(math.Inf(1)),
	})
	require.NoError(t, err)

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `{"z.speed":0.5,"a":[1,2],"limit":"Infinity"}`, string(b))
	assert.Equal(t, "{z.speed: 0.5, a: [1 2], limit: +Inf}", s.Summary())
}

func TestValues(t *testing.T) {
	gen := func() any { return 1 }
	args := Values(map[string]any{"a": 1, "b": gen, "c": Literal("x")})

	assert.False(t, args["a"].IsGenerator())
	assert.True(t, args["b"].IsGenerator())
	assert.Equal(t, "x", args["c"].Resolve())
	assert.Equal(t, "<generator>", args["b"].String())
	assert.Nil(t, Values(nil))
}
