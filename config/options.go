package config

import (
	"github.com/hupe1980/simlink"
	"github.com/hupe1980/simlink/logging"
	"github.com/hupe1980/simlink/sim"
)

// ControllerOptions returns the controller settings as an option function.
// Settings left out of the file keep the controller defaults.
func (f *File) ControllerOptions() (func(o *sim.Options), error) {
	mask, err := f.LockMask()
	if err != nil {
		return nil, err
	}
	overrides, err := f.Overrides()
	if err != nil {
		return nil, err
	}
	defaults := f.Defaults()

	return func(o *sim.Options) {
		if f.AutoLock != nil {
			o.AutoLock = *f.AutoLock
		}
		o.AutoFinish = f.AutoFinish
		if !mask.IsEmpty() {
			o.LockDefaults.Mask = mask
		}
		if f.Lock.Timeout > 0 {
			o.LockDefaults.Timeout = f.Lock.Timeout
		}
		if f.PollInterval > 0 {
			o.PollInterval = f.PollInterval
		}
		o.ConfigDefaults = defaults
		o.EngineOverrides = overrides
	}, nil
}

// Options returns the settings for simlink.Open. The model path is not part
// of them; pass f.Model to Open.
func (f *File) Options(logger logging.Logger) (func(o *simlink.Options), error) {
	ctrl, err := f.ControllerOptions()
	if err != nil {
		return nil, err
	}
	launcher := f.Launcher()
	launcher.Logger = logger

	return func(o *simlink.Options) {
		o.Port = f.Port
		o.Launcher = launcher
		o.AutoFinish = f.AutoFinish
		o.RequestTimeout = f.RequestTimeout
		o.Logger = logger
		o.Controller = append(o.Controller, ctrl)
	}, nil
}
