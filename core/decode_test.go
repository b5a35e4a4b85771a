package core

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/hupe1980/simlink/analysis"
)

const schemaDoc = `{
  "inputs": [{"name": "arrivalRate", "type": "double", "value": 1.0}],
  "outputs": [
    {"name": "meanDelay", "type": "double", "value": 0, "units": "MINUTE"},
    {"name": "delays", "type": "StatisticsDiscrete", "value": null}
  ],
  "configuration": [
    {"name": "num_workers", "type": "int", "value": 0},
    {"name": "arrival_rate", "type": "double", "value": 1.5}
  ],
  "engine_settings": [
    {"name": "units", "type": "TimeUnits", "value": "MINUTE"},
    {"name": "start_time", "type": "double", "value": 0},
    {"name": "start_date", "type": "Date", "value": "2024-01-01T00:00:00.000Z"},
    {"name": "stop_time", "type": "double", "value": "Infinity"},
    {"name": "stop_date", "type": "Date", "value": null},
    {"name": "seed", "type": "Long", "value": 1}
  ],
  "observation": [
    {"name": "queue", "type": "int", "value": 0},
    {"name": "utilization", "type": "double[]", "value": null}
  ],
  "action": [{"name": "speed", "type": "double", "value": 0}]
}`

func TestDecodeSchema(t *testing.T) {
	s, err := DecodeSchema(gjson.Parse(schemaDoc))
	require.NoError(t, err)

	assert.Equal(t, []string{"num_workers", "arrival_rate"}, s.Configuration.Names())
	assert.Equal(t, SpaceEngineSettings, s.EngineSettings.Name())
	assert.Same(t, s.Action, s.Template(SpaceAction))

	stop, ok := s.EngineSettings.Field("stop_time")
	require.True(t, ok)
	assert.True(t, math.IsInf(stop.Default.(float64), 1))

	units, _ := s.EngineSettings.Field("units")
	assert.Equal(t, analysis.Minute, units.Default)

	start, _ := s.EngineSettings.Field("start_date")
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start.Default)

	delay, _ := s.Outputs.Field("meanDelay")
	u, ok := delay.Unit()
	require.True(t, ok)
	assert.Equal(t, analysis.Minute, u)
}

func TestDecodeStatus(t *testing.T) {
	s, err := DecodeSchema(gjson.Parse(schemaDoc))
	require.NoError(t, err)

	doc := `{"state":"PAUSED","observation":{"utilization":[0.5,"Infinity"],"queue":3,"extra":1},
	  "stop":true,"sequence_id":4,"episode_num":1,"step_num":3,"time":12.5,"date":1704067200000,
	  "progress":-1,"message":null}`

	st, err := DecodeStatus(s.Observation, gjson.Parse(doc))
	require.NoError(t, err)

	assert.Equal(t, StatePaused, st.State)
	assert.True(t, st.Stop)
	assert.False(t, st.HasProgress())
	assert.False(t, st.Transient())
	assert.Equal(t, map[string]int64{"sequence_id": 4, "episode_num": 1, "step_num": 3}, st.Counters())
	require.NotNil(t, st.Date)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *st.Date)

	assert.Equal(t, []string{"queue", "utilization"}, st.Observation.Keys())
	assert.True(t, st.Observation.Frozen())
	q, _ := st.Observation.Get("queue")
	assert.Equal(t, int32(3), q)
	util, _ := st.Observation.Get("utilization")
	assert.Equal(t, []float64{0.5, math.Inf(1)}, util)

	_, err = DecodeStatus(s.Observation, gjson.Parse(`{"state":"WHATEVER"}`))
	assert.Error(t, err)
}

func TestDecodeOutputs(t *testing.T) {
	s, err := DecodeSchema(gjson.Parse(schemaDoc))
	require.NoError(t, err)

	doc := `[
	  {"name":"delays","type":"StatisticsDiscrete","value":{"count":2,"mean":1.5,"min":1,"max":2,"deviation":0.7,"sum":3}},
	  {"name":"meanDelay","type":"double","value":2.5,"units":"MINUTE"}
	]`
	out, err := DecodeOutputs(s.Outputs, []string{"meanDelay", "delays"}, gjson.Parse(doc))
	require.NoError(t, err)

	assert.Equal(t, []string{"meanDelay", "delays"}, out.Keys())
	md, _ := out.Get("meanDelay")
	assert.Equal(t, analysis.UnitValue{Value: 2.5, Unit: analysis.Minute}, md)

	d, _ := out.Get("delays")
	stats := d.(analysis.StatisticsDiscrete)
	assert.Equal(t, int64(2), stats.Count)
	assert.Equal(t, 3.0, stats.Sum)
	assert.True(t, math.IsInf(stats.Confidence, 1))

	_, err = DecodeOutputs(s.Outputs, []string{"missing"}, gjson.Parse(doc))
	assert.Error(t, err)
}

func TestDecode_Scalars(t *testing.T) {
	tests := []struct {
		typ  string
		raw  string
		want any
	}{
		{"long", `9007199254740993`, int64(9007199254740993)},
		{"float", `0.5`, float32(0.5)},
		{"boolean", `"true"`, true},
		{"String", `"x"`, "x"},
		{"Date", `"2024-05-06"`, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)},
		{"HashMap", `{"a":1}`, map[string]any{"a": float64(1)}},
		{"ArrayList", `[1,"b"]`, []any{float64(1), "b"}},
		{"Integer", `null`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			v, err := Decode(ParseType(tt.typ), "", gjson.Parse(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}

	_, err := Decode(ParseType("int"), "", gjson.Parse(`1.5`))
	assert.Error(t, err)
	_, err = Decode(ParseType("double[]"), "", gjson.Parse(`1`))
	assert.Error(t, err)
}

func TestDecodeEngineInfo(t *testing.T) {
	s, err := DecodeSchema(gjson.Parse(schemaDoc))
	require.NoError(t, err)

	doc := `{"state":"RUNNING","engine_events":10,"engine_steps":2,"next_engine_step":"Infinity",
	  "next_engine_event":3.5,"time":3,"date":"2024-01-01T00:03:00.000Z","progress":0.25,
	  "settings":{"units":"MINUTE","seed":42}}`
	info, err := DecodeEngineInfo(s.EngineSettings, gjson.Parse(doc))
	require.NoError(t, err)

	assert.Equal(t, StateRunning, info.State)
	assert.True(t, math.IsInf(info.NextEngineStep, 1))
	assert.Equal(t, 0.25, info.Progress)
	seed, err := info.Settings.Int("seed")
	require.NoError(t, err)
	assert.Equal(t, int64(42), seed)
}
