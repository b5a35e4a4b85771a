package sim

import (
	"time"

	"github.com/hupe1980/simlink/clock"
	"github.com/hupe1980/simlink/core"
	"github.com/hupe1980/simlink/lock"
	"github.com/hupe1980/simlink/logging"
)

// DefaultLockTimeout bounds locks that do not specify a timeout.
const DefaultLockTimeout = 30 * time.Second

// LockDefaults is the mask and timeout used by auto-lock, by Pending.Wait and
// by Lock calls that pass zero values.
type LockDefaults struct {
	Mask    core.StateMask
	Timeout time.Duration
}

// EngineOverrides replaces engine settings for every reset. Unset values keep
// the model's own setting. StartTime and StopTime accept a number in model
// time units, an analysis.UnitValue or a time.Duration. Only one of StopTime
// and StopDate may be set; setting both is a ValidationError rather than
// letting the later one win.
type EngineOverrides struct {
	Units     core.Value
	StartTime core.Value
	StartDate core.Value
	StopTime  core.Value
	StopDate  core.Value
	Seed      core.Value
}

// Options configures a Controller.
type Options struct {
	// AutoLock makes Reset and TakeAction wait on LockDefaults before
	// returning. Defaults to true.
	AutoLock bool

	// AutoFinish turns a reported stop condition into a FINISHED run. The
	// engine launcher passes the engine-side flag; additionally, a paused
	// status with Stop set is finished through the channel when it
	// implements core.Finisher.
	AutoFinish bool

	// LockDefaults defaults to core.Ready() and DefaultLockTimeout.
	LockDefaults LockDefaults

	// ConfigDefaults sits between the model's configuration defaults and the
	// per-call overrides of Reset.
	ConfigDefaults core.Args

	EngineOverrides EngineOverrides

	// PollInterval is the pause between status polls while locking.
	PollInterval time.Duration

	Clock  clock.Clock
	Logger logging.Logger
}

// DefaultOptions returns the options New starts from.
func DefaultOptions() Options {
	return Options{
		AutoLock:     true,
		LockDefaults: LockDefaults{Mask: core.Ready(), Timeout: DefaultLockTimeout},
		PollInterval: lock.DefaultPollInterval,
		Clock:        clock.New(),
		Logger:       logging.NoOpLogger{},
	}
}

func (o *Options) validate(schema *core.Schema) error {
	if o.LockDefaults.Mask.Without(core.StatePleaseWait.Mask()).IsEmpty() {
		return &core.ValidationError{Field: "lock_defaults.mask", Value: o.LockDefaults.Mask.String(), Message: "mask must contain at least one state other than PLEASE_WAIT"}
	}
	if o.LockDefaults.Timeout <= 0 {
		return &core.ValidationError{Field: "lock_defaults.timeout", Value: o.LockDefaults.Timeout, Message: "timeout must be positive"}
	}
	if err := schema.Configuration.Validate(o.ConfigDefaults); err != nil {
		return err
	}
	return o.EngineOverrides.validate(schema.EngineSettings)
}
