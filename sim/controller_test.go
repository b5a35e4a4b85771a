package sim

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/simlink/analysis"
	"github.com/hupe1980/simlink/core"
	"github.com/hupe1980/simlink/internal/testutil"
	"github.com/hupe1980/simlink/internal/util"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// engine timeline after every request: busy, running, then paused
var toPaused = []testutil.Phase{
	{State: core.StatePleaseWait, For: 200 * time.Millisecond},
	{State: core.StateRunning, For: time.Second},
	{State: core.StatePaused},
}

func testSchema() *core.Schema {
	return testutil.NewSchemaBuilder().
		Config("num_workers", "int", 0).
		Config("label", "String", "base").
		Observation("queue", "int", 0).
		Action("speed", "double", 0.0).
		Action("route", "int", 1).
		Output("meanDelay", "double", 0.0, "MINUTE").
		Output("served", "int", 0, "").
		Output("name", "String", "model", "").
		Build()
}

func newController(t *testing.T, optFns ...func(o *Options)) (*Controller, *testutil.ScriptedChannel, *testutil.StepClock) {
	t.Helper()
	clk := testutil.NewStepClock(epoch)
	ch := testutil.NewScriptedChannel(clk, testSchema())
	ch.OnReset = toPaused
	ch.OnAct = toPaused

	opts := append([]func(o *Options){func(o *Options) { o.Clock = clk }}, optFns...)
	c, err := New(context.Background(), ch, opts...)
	require.NoError(t, err)
	return c, ch, clk
}

func configValue(t *testing.T, req core.ResetRequest, name string) any {
	t.Helper()
	v, ok := req.Configuration.Get(name)
	require.True(t, ok, "configuration has no %q", name)
	return v
}

func TestNew_Defaults(t *testing.T) {
	c, _, _ := newController(t)

	opts := c.Options()
	assert.True(t, opts.AutoLock)
	assert.False(t, opts.AutoFinish)
	assert.Equal(t, core.Ready(), opts.LockDefaults.Mask)
	assert.Equal(t, 30*time.Second, opts.LockDefaults.Timeout)
	assert.NotEmpty(t, c.ID())
	assert.Equal(t, []string{"num_workers", "label"}, c.Schema().Configuration.Names())
}

func TestNew_ValidatesOptions(t *testing.T) {
	clk := testutil.NewStepClock(epoch)
	tests := []struct {
		name string
		fn   func(o *Options)
	}{
		{"unknown config default", func(o *Options) { o.ConfigDefaults = core.Args{"bogus": core.Literal(1)} }},
		{"empty lock mask", func(o *Options) { o.LockDefaults.Mask = core.StatePleaseWait.Mask() }},
		{"zero lock timeout", func(o *Options) { o.LockDefaults.Timeout = 0 }},
		{"both stop conditions", func(o *Options) {
			o.EngineOverrides.StopTime = core.Literal(10)
			o.EngineOverrides.StopDate = core.Literal(epoch)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := testutil.NewScriptedChannel(clk, testSchema())
			_, err := New(context.Background(), ch, func(o *Options) { o.Clock = clk }, tt.fn)
			assert.True(t, errors.Is(err, core.ErrValidation))
		})
	}
}

func TestReset_NumWorkersScenario(t *testing.T) {
	c, ch, _ := newController(t)
	ctx := context.Background()

	_, err := c.Reset(ctx, core.Args{"num_workers": core.Literal(10)})
	require.NoError(t, err)
	_, err = c.Reset(ctx)
	require.NoError(t, err)

	resets := ch.Resets()
	require.Len(t, resets, 2)
	assert.Equal(t, int32(10), configValue(t, resets[0], "num_workers"))
	assert.Equal(t, int32(0), configValue(t, resets[1], "num_workers"))
}

func TestReset_LayersInstanceDefaults(t *testing.T) {
	c, ch, _ := newController(t, func(o *Options) {
		o.ConfigDefaults = core.Args{"num_workers": core.Literal(4), "label": core.Literal("instance")}
	})
	ctx := context.Background()

	_, err := c.Reset(ctx)
	require.NoError(t, err)
	_, err = c.Reset(ctx, core.Args{"num_workers": core.Literal(7)}, core.Args{"label": core.Literal("call")})
	require.NoError(t, err)

	resets := ch.Resets()
	assert.Equal(t, int32(4), configValue(t, resets[0], "num_workers"))
	assert.Equal(t, "instance", configValue(t, resets[0], "label"))
	assert.Equal(t, int32(7), configValue(t, resets[1], "num_workers"))
	assert.Equal(t, "call", configValue(t, resets[1], "label"))
}

func TestReset_GeneratorsInvokedPerCall(t *testing.T) {
	counter, err := util.NewCounter(1, 1)
	require.NoError(t, err)

	c, ch, _ := newController(t, func(o *Options) {
		o.ConfigDefaults = core.Args{"num_workers": core.Generator(func() any { return counter.Next() })}
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Reset(ctx, core.Args{"label": core.Literal("fixed")})
		require.NoError(t, err)
	}

	resets := ch.Resets()
	require.Len(t, resets, 3)
	for i, r := range resets {
		assert.Equal(t, int32(i+1), configValue(t, r, "num_workers"))
		assert.Equal(t, "fixed", configValue(t, r, "label"))
	}
}

func TestReset_ValidationSendsNothing(t *testing.T) {
	c, ch, _ := newController(t)
	ctx := context.Background()

	_, err := c.Reset(ctx, core.Args{"bogus": core.Literal(1)})
	var ve *core.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "bogus", ve.Field)

	_, err = c.Reset(ctx, core.Args{"num_workers": core.Literal("ten")})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, core.SpaceConfiguration, ve.Space)

	assert.Empty(t, ch.Resets())
	assert.Equal(t, 0, ch.Polls())
}

func TestReset_ValidFromEveryState(t *testing.T) {
	for _, state := range core.States() {
		t.Run(state.String(), func(t *testing.T) {
			c, ch, _ := newController(t)
			ch.Script(testutil.Phase{State: state})

			p, err := c.Reset(context.Background())
			require.NoError(t, err)

			st, ok := p.Status()
			require.True(t, ok)
			assert.True(t, st.State.In(core.Ready()))
			assert.Equal(t, int64(1), st.EpisodeNum)
		})
	}
}

func TestReset_AutoLockReturnsResolvedStatus(t *testing.T) {
	c, ch, clk := newController(t)

	p, err := c.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "reset", p.Op())

	st, ok := p.Status()
	require.True(t, ok)
	assert.Equal(t, core.StatePaused, st.State)
	assert.Equal(t, 1200*time.Millisecond, clk.Now().Sub(epoch))

	polls := ch.Polls()
	again, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, st, again)
	assert.Equal(t, polls, ch.Polls())
}

func TestReset_WithoutAutoLock(t *testing.T) {
	c, ch, _ := newController(t, func(o *Options) { o.AutoLock = false })

	p, err := c.Reset(context.Background())
	require.NoError(t, err)

	_, ok := p.Status()
	assert.False(t, ok)
	assert.Equal(t, 0, ch.Polls())

	st, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.StatePaused, st.State)

	resolved, ok := p.Status()
	require.True(t, ok)
	assert.Equal(t, st, resolved)
}

func TestPending_CachedStatusOutsideMaskWaitsAgain(t *testing.T) {
	c, _, _ := newController(t, func(o *Options) { o.AutoLock = false })

	p, err := c.Reset(context.Background())
	require.NoError(t, err)

	running, err := p.WaitFor(context.Background(), core.MaskOf(core.StateRunning), 0)
	require.NoError(t, err)
	assert.Equal(t, core.StateRunning, running.State)

	st, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.StatePaused, st.State)

	// the ready status now satisfies a narrower wait without polling
	again, err := p.WaitFor(context.Background(), core.MaskOf(core.StatePaused), 0)
	require.NoError(t, err)
	assert.Equal(t, st, again)
}

func TestReset_LockTimeout(t *testing.T) {
	c, ch, _ := newController(t, func(o *Options) {
		o.LockDefaults = LockDefaults{Mask: core.Ready(), Timeout: 5 * time.Second}
	})
	ch.OnReset = []testutil.Phase{
		{State: core.StatePleaseWait, For: 500 * time.Millisecond},
		{State: core.StateRunning, For: 5500 * time.Millisecond},
		{State: core.StatePaused},
	}

	p, err := c.Reset(context.Background())
	require.Error(t, err)
	require.NotNil(t, p)

	var te *core.TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Contains(t, []core.EngineState{core.StateRunning, core.StatePleaseWait}, te.Last)
	assert.GreaterOrEqual(t, te.Elapsed, 5*time.Second)

	// a longer wait on the same request succeeds
	st, err := p.WaitFor(context.Background(), core.Ready(), 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, core.StatePaused, st.State)
}

func TestTakeAction_FallsBackToTemplateDefaults(t *testing.T) {
	c, ch, _ := newController(t)
	ctx := context.Background()

	_, err := c.Reset(ctx)
	require.NoError(t, err)
	_, err = c.TakeAction(ctx, core.Args{"speed": core.Literal(0.5), "route": core.Literal(3)})
	require.NoError(t, err)
	p, err := c.TakeAction(ctx)
	require.NoError(t, err)
	assert.Equal(t, "action", p.Op())

	actions := ch.Actions()
	require.Len(t, actions, 2)
	speed, _ := actions[0].Float("speed")
	assert.Equal(t, 0.5, speed)

	speed, _ = actions[1].Float("speed")
	assert.Equal(t, 0.0, speed)
	route, _ := actions[1].Int("route")
	assert.Equal(t, int64(1), route)

	st, _ := p.Status()
	assert.Equal(t, int64(2), st.StepNum)
}

func TestTakeAction_TransportError(t *testing.T) {
	c, ch, _ := newController(t)
	ch.ActErr = &core.EngineError{Status: 400, Err: "Bad Request", Message: "engine not paused", Path: "/rl"}

	_, err := c.TakeAction(context.Background(), core.Args{"speed": core.Literal(1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrTransport))

	var ee *core.EngineError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "engine not paused", ee.Message)
}

func TestTakeAction_Validation(t *testing.T) {
	c, ch, _ := newController(t)

	_, err := c.TakeAction(context.Background(), core.Args{"speed": core.Literal(true)})
	assert.True(t, errors.Is(err, core.ErrValidation))
	assert.Empty(t, ch.Actions())
}

func TestOutputs(t *testing.T) {
	c, ch, _ := newController(t)
	ch.OutputValues = map[string]any{"served": 12, "meanDelay": 3.5}
	ctx := context.Background()

	out, err := c.Outputs(ctx, "served", "meanDelay")
	require.NoError(t, err)
	assert.Equal(t, []string{"served", "meanDelay"}, out.Keys())

	all, err := c.Outputs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"meanDelay", "served", "name"}, all.Keys())

	_, err = c.Outputs(ctx, "served", "missing")
	assert.True(t, errors.Is(err, core.ErrValidation))
}

func TestStatusAndObservation(t *testing.T) {
	c, ch, _ := newController(t)
	ch.Observe = func() map[string]any { return map[string]any{"queue": 5} }
	ch.Script(testutil.Phase{State: core.StateRunning})

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Transient())

	obs, err := c.Observation(context.Background())
	require.NoError(t, err)
	q, err := obs.Int("queue")
	require.NoError(t, err)
	assert.Equal(t, int64(5), q)
	assert.True(t, obs.Frozen())

	ch.StatusErr = errors.New("broken pipe")
	_, err = c.Status(context.Background())
	assert.True(t, errors.Is(err, core.ErrTransport))
}

func TestEngineOverrides(t *testing.T) {
	counter, err := util.NewCounter(100, 1)
	require.NoError(t, err)

	c, ch, _ := newController(t, func(o *Options) {
		o.EngineOverrides = EngineOverrides{
			Units:     core.Literal("HOUR"),
			StartTime: core.Literal(analysis.UnitValue{Value: 30, Unit: analysis.Minute}),
			StopTime:  core.Literal(48 * time.Hour),
			Seed:      core.Generator(func() any { return counter.Next() }),
		}
	})
	ctx := context.Background()

	_, err = c.Reset(ctx)
	require.NoError(t, err)
	_, err = c.Reset(ctx)
	require.NoError(t, err)

	resets := ch.Resets()
	s := resets[0].EngineSettings
	assert.Equal(t, []string{"units", "start_time", "start_date", "seed", "stop_time"}, s.Keys())

	units, _ := s.Get("units")
	assert.Equal(t, analysis.Hour, units)
	start, _ := s.Float("start_time")
	assert.InDelta(t, 0.5, start, 1e-9)
	stop, _ := s.Float("stop_time")
	assert.InDelta(t, 48.0, stop, 1e-9)

	seed0, _ := resets[0].EngineSettings.Int("seed")
	seed1, _ := resets[1].EngineSettings.Int("seed")
	assert.Equal(t, int64(100), seed0)
	assert.Equal(t, int64(101), seed1)
}

func TestEngineOverrides_StopDateReplacesStopTime(t *testing.T) {
	stop := epoch.Add(72 * time.Hour)
	c, ch, _ := newController(t, func(o *Options) {
		o.EngineOverrides.StopDate = core.Literal(stop)
	})

	_, err := c.Reset(context.Background())
	require.NoError(t, err)

	s := ch.Resets()[0].EngineSettings
	assert.False(t, s.Has("stop_time"))
	got, err := s.Time("stop_date")
	require.NoError(t, err)
	assert.Equal(t, stop, got)
}

func TestEngineOverrides_Defaults(t *testing.T) {
	c, ch, _ := newController(t)

	_, err := c.Reset(context.Background())
	require.NoError(t, err)

	s := ch.Resets()[0].EngineSettings
	stop, _ := s.Float("stop_time")
	assert.True(t, math.IsInf(stop, 1))
	seed, ok := s.Get("seed")
	assert.True(t, ok)
	assert.Nil(t, seed)
	assert.False(t, s.Has("stop_date"))
}

func TestEngineOverrides_InvalidValue(t *testing.T) {
	c, ch, _ := newController(t, func(o *Options) {
		o.EngineOverrides.StopTime = core.Literal(analysis.UnitValue{Value: 1, Unit: analysis.Meter})
	})

	_, err := c.Reset(context.Background())
	var ve *core.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, core.SpaceEngineSettings, ve.Space)
	assert.Equal(t, "stop_time", ve.Field)
	assert.Empty(t, ch.Resets())
}

// finishingChannel adds core.Finisher to a scripted channel.
type finishingChannel struct {
	*testutil.ScriptedChannel
	mock.Mock
}

func (f *finishingChannel) Finish(ctx context.Context) error {
	args := f.Called(ctx)
	f.Script(testutil.Phase{State: core.StatePleaseWait, For: 100 * time.Millisecond}, testutil.Phase{State: core.StateFinished})
	return args.Error(0)
}

func TestAutoFinish(t *testing.T) {
	clk := testutil.NewStepClock(epoch)
	sc := testutil.NewScriptedChannel(clk, testSchema())
	sc.OnReset = toPaused
	sc.Stop = true
	ch := &finishingChannel{ScriptedChannel: sc}
	ch.On("Finish", mock.Anything).Return(nil).Once()

	c, err := New(context.Background(), ch, func(o *Options) {
		o.Clock = clk
		o.AutoFinish = true
	})
	require.NoError(t, err)

	p, err := c.Reset(context.Background())
	require.NoError(t, err)

	st, _ := p.Status()
	assert.Equal(t, core.StateFinished, st.State)
	ch.AssertExpectations(t)
}

func TestAutoFinish_PausedOnlyMask(t *testing.T) {
	clk := testutil.NewStepClock(epoch)
	sc := testutil.NewScriptedChannel(clk, testSchema())
	sc.OnReset = toPaused
	sc.Stop = true
	ch := &finishingChannel{ScriptedChannel: sc}

	c, err := New(context.Background(), ch, func(o *Options) {
		o.Clock = clk
		o.AutoFinish = true
		o.AutoLock = false
	})
	require.NoError(t, err)

	_, err = c.Reset(context.Background())
	require.NoError(t, err)

	st, err := c.Lock(context.Background(), core.MaskOf(core.StatePaused), 0)
	require.NoError(t, err)
	assert.Equal(t, core.StatePaused, st.State)
	assert.True(t, st.Stop)
	ch.AssertNotCalled(t, "Finish", mock.Anything)
}

func TestAutoFinishOff_StopIsInformational(t *testing.T) {
	clk := testutil.NewStepClock(epoch)
	sc := testutil.NewScriptedChannel(clk, testSchema())
	sc.OnReset = toPaused
	sc.Stop = true
	ch := &finishingChannel{ScriptedChannel: sc}

	c, err := New(context.Background(), ch, func(o *Options) { o.Clock = clk })
	require.NoError(t, err)

	p, err := c.Reset(context.Background())
	require.NoError(t, err)

	st, _ := p.Status()
	assert.Equal(t, core.StatePaused, st.State)
	assert.True(t, st.Stop)
	ch.AssertNotCalled(t, "Finish", mock.Anything)
}

func TestControllersAreIndependent(t *testing.T) {
	a, chA, _ := newController(t)
	b, chB, _ := newController(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, c := range []*Controller{a, b} {
		wg.Add(1)
		go func(i int, c *Controller) {
			defer wg.Done()
			for n := 0; n < 5; n++ {
				if _, err := c.Reset(context.Background(), core.Args{"num_workers": core.Literal(i*100 + n)}); err != nil {
					errs[i] = err
					return
				}
			}
		}(i, c)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	assert.NotEqual(t, a.ID(), b.ID())
	for n, r := range chA.Resets() {
		assert.Equal(t, int32(n), configValue(t, r, "num_workers"))
	}
	for n, r := range chB.Resets() {
		assert.Equal(t, int32(100+n), configValue(t, r, "num_workers"))
	}
	stA, _ := a.Status(context.Background())
	assert.Equal(t, int64(5), stA.EpisodeNum)
}

func TestClose(t *testing.T) {
	c, ch, _ := newController(t)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, ch.Closed())

	_, err := c.Reset(context.Background())
	assert.True(t, errors.Is(err, core.ErrTransport))
}

func TestEngineInfo(t *testing.T) {
	c, _, _ := newController(t)

	info, err := c.Engine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.StateIdle, info.State)
	units, _ := info.Settings.Get("units")
	assert.Equal(t, analysis.Minute, units)
}
