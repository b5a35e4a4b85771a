package simulator

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/hupe1980/simlink/analysis"
	"github.com/hupe1980/simlink/core"
)

// ServiceDeskSchema declares the spaces of the service desk model. Model
// time is in minutes; every action covers one minute.
func ServiceDeskSchema() *core.Schema {
	field := func(name, typ string, def any) core.Field {
		return core.Field{Name: name, Type: core.ParseType(typ), Default: def}
	}
	return (&core.Schema{
		Configuration: core.MustTemplate(core.SpaceConfiguration,
			field("arrival_rate", "double", 1.0),
			field("capacity", "int", 20),
			field("horizon", "int", 60),
		),
		Observation: core.MustTemplate(core.SpaceObservation,
			field("queue", "int", 0),
			field("clerks", "int", 0),
		),
		Action: core.MustTemplate(core.SpaceAction,
			field("clerks", "int", 1),
		),
		Outputs: core.MustTemplate(core.SpaceOutputs,
			field("served", "int", 0),
			field("balked", "int", 0),
			core.Field{Name: "mean_queue", Type: core.ParseType("double"), Default: 0.0, Units: "MINUTE"},
		),
		EngineSettings: core.EngineSettingsTemplate(analysis.Minute, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)),
	}).Normalize()
}

// ServiceDesk is a small queueing model for demos and tests. Customers
// arrive at arrival_rate per minute; each clerk staffed by the last action
// serves one customer per minute. Customers finding capacity people waiting
// leave. The model stops when the queue is full and is done after horizon
// minutes.
type ServiceDesk struct {
	rng      *rand.Rand
	rate     float64
	capacity int64
	horizon  int64

	minute   int64
	queue    int64
	clerks   int64
	served   int64
	balked   int64
	queueSum int64
}

var _ Model = (*ServiceDesk)(nil)

// NewServiceDesk returns the model in its pre-reset state.
func NewServiceDesk() *ServiceDesk { return &ServiceDesk{} }

// Reset implements Model. The random stream follows the seed setting; a nil
// seed draws a fresh one.
func (d *ServiceDesk) Reset(cfg, settings *core.Space) error {
	rate, err := cfg.Float("arrival_rate")
	if err != nil {
		return err
	}
	capacity, err := cfg.Int("capacity")
	if err != nil {
		return err
	}
	horizon, err := cfg.Int("horizon")
	if err != nil {
		return err
	}
	if rate < 0 || capacity < 1 || horizon < 1 {
		return fmt.Errorf("invalid configuration: arrival_rate=%g capacity=%d horizon=%d", rate, capacity, horizon)
	}

	seed := rand.Uint64()
	if v, ok := settings.Get(core.SettingSeed); ok && v != nil {
		s, err := settings.Int(core.SettingSeed)
		if err != nil {
			return err
		}
		seed = uint64(s)
	}

	*d = ServiceDesk{
		rng:      rand.New(rand.NewPCG(seed, 0x5eed)),
		rate:     rate,
		capacity: capacity,
		horizon:  horizon,
	}
	return nil
}

// Act implements Model. It staffs the desk and advances one minute.
func (d *ServiceDesk) Act(action *core.Space) error {
	if d.rng == nil {
		return fmt.Errorf("model not reset")
	}
	clerks, err := action.Int("clerks")
	if err != nil {
		return err
	}
	if clerks < 0 {
		return fmt.Errorf("clerks must not be negative, got %d", clerks)
	}
	d.clerks = clerks

	for n := d.arrivals(); n > 0; n-- {
		if d.queue >= d.capacity {
			d.balked++
			continue
		}
		d.queue++
	}
	done := min(d.queue, d.clerks)
	d.queue -= done
	d.served += done
	d.queueSum += d.queue
	d.minute++
	return nil
}

// arrivals draws the number of customers arriving in one minute: the whole
// part of the rate always, plus one more with the fractional part as
// probability.
func (d *ServiceDesk) arrivals() int64 {
	whole := int64(d.rate)
	if d.rng.Float64() < d.rate-float64(whole) {
		whole++
	}
	return whole
}

// Observe implements Model.
func (d *ServiceDesk) Observe() map[string]any {
	return map[string]any{"queue": d.queue, "clerks": d.clerks}
}

// Stop implements Model.
func (d *ServiceDesk) Stop() bool { return d.capacity > 0 && d.queue >= d.capacity }

// Done implements Model.
func (d *ServiceDesk) Done() bool { return d.horizon > 0 && d.minute >= d.horizon }

// Outputs implements Model.
func (d *ServiceDesk) Outputs() map[string]any {
	mean := 0.0
	if d.minute > 0 {
		mean = float64(d.queueSum) / float64(d.minute)
	}
	return map[string]any{"served": d.served, "balked": d.balked, "mean_queue": mean}
}
