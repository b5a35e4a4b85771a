// Package config loads simlink settings from a YAML file and the
// environment.
//
// A minimal file:
//
//	model: ./exports/warehouse.zip
//	lock:
//	  states: [PAUSED, FINISHED, ERROR]
//	  timeout: 30s
//	config_defaults:
//	  num_workers: 4
//	engine_overrides:
//	  seed: next
//	  stop_time: 8h
//
// Environment variables override the file; see the Env constants.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/simlink/analysis"
	"github.com/hupe1980/simlink/core"
	"github.com/hupe1980/simlink/internal/util"
	"github.com/hupe1980/simlink/logging"
	"github.com/hupe1980/simlink/process"
	"github.com/hupe1980/simlink/sim"
)

// Environment variables read by ApplyEnv.
const (
	EnvModel      = "SIMLINK_MODEL"
	EnvPort       = "SIMLINK_PORT"
	EnvLogLevel   = "SIMLINK_LOG_LEVEL"
	EnvJava       = "SIMLINK_JAVA"
	EnvServerPath = "SIMLINK_SERVER_PATH"
)

// Seed keywords accepted by engine_overrides.seed.
const (
	// SeedNext gives every reset the next value of a counter starting at 1.
	SeedNext = "next"
	// SeedRandom lets the engine choose a seed on every reset.
	SeedRandom = "random"
)

// File is the YAML configuration.
type File struct {
	Model           string         `yaml:"model"`
	Port            int            `yaml:"port"`
	AutoLock        *bool          `yaml:"auto_lock"`
	AutoFinish      bool           `yaml:"auto_finish"`
	Lock            LockConfig     `yaml:"lock"`
	PollInterval    time.Duration  `yaml:"poll_interval"`
	RequestTimeout  time.Duration  `yaml:"request_timeout"`
	ConfigDefaults  map[string]any `yaml:"config_defaults"`
	EngineOverrides OverrideConfig `yaml:"engine_overrides"`
	Logging         LogConfig      `yaml:"logging"`
	Java            JavaConfig     `yaml:"java"`
}

// LockConfig sets the lock defaults.
type LockConfig struct {
	States  []string      `yaml:"states"`
	Timeout time.Duration `yaml:"timeout"`
}

// OverrideConfig holds engine setting overrides. StartTime and StopTime
// take a number of model time units, a duration such as "90m" or an amount
// with a unit such as "2 HOUR".
type OverrideConfig struct {
	Seed      any        `yaml:"seed"`
	Units     string     `yaml:"units"`
	StartTime any        `yaml:"start_time"`
	StopTime  any        `yaml:"stop_time"`
	StartDate *time.Time `yaml:"start_date"`
	StopDate  *time.Time `yaml:"stop_date"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// JavaConfig configures the engine process.
type JavaConfig struct {
	Path         string        `yaml:"path"`
	Args         []string      `yaml:"args"`
	ServerPath   string        `yaml:"server_path"`
	LogLevel     string        `yaml:"log_level"`
	StartTimeout time.Duration `yaml:"start_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() *File {
	return &File{
		Logging: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the file at path, applies the environment and validates the
// result. An empty path loads only the defaults and the environment.
func Load(path string) (*File, error) {
	f := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if f, err = Parse(data); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := f.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Parse decodes YAML on top of the defaults. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	f := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return f, nil
}

// ApplyEnv overrides fields from the environment variables that lookup
// reports as set.
func (f *File) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvModel); ok {
		f.Model = v
	}
	if v, ok := lookup(EnvPort); ok {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		f.Port = port
	}
	if v, ok := lookup(EnvLogLevel); ok {
		f.Logging.Level = v
	}
	if v, ok := lookup(EnvJava); ok {
		f.Java.Path = v
	}
	if v, ok := lookup(EnvServerPath); ok {
		f.Java.ServerPath = v
	}
	return nil
}

// Validate checks the values that can be checked without the model schema.
// Names in config_defaults and engine_overrides are checked when the
// controller is created.
func (f *File) Validate() error {
	if f.Port < 0 || f.Port > 65535 {
		return fmt.Errorf("port %d out of range", f.Port)
	}
	if _, err := f.LockMask(); err != nil {
		return fmt.Errorf("lock.states: %w", err)
	}
	if f.Lock.Timeout < 0 {
		return fmt.Errorf("lock.timeout must not be negative")
	}
	if _, err := logging.ParseLevel(f.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch f.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format: unknown format %q", f.Logging.Format)
	}
	if f.Java.LogLevel != "" {
		if _, err := process.ParseJavaLevel(f.Java.LogLevel); err != nil {
			return fmt.Errorf("java.log_level: %w", err)
		}
	}
	if f.EngineOverrides.StopTime != nil && f.EngineOverrides.StopDate != nil {
		return fmt.Errorf("engine_overrides: stop_time and stop_date are mutually exclusive")
	}
	if _, err := f.Overrides(); err != nil {
		return fmt.Errorf("engine_overrides: %w", err)
	}
	return nil
}

// LockMask returns the configured lock states; zero when none are set.
func (f *File) LockMask() (core.StateMask, error) {
	if len(f.Lock.States) == 0 {
		return 0, nil
	}
	return core.ParseStateMask(strings.Join(f.Lock.States, "|"))
}

// Defaults lifts config_defaults to controller arguments.
func (f *File) Defaults() core.Args {
	return core.Values(f.ConfigDefaults)
}

// Overrides converts engine_overrides. Every call with seed "next" starts a
// new counter.
func (f *File) Overrides() (sim.EngineOverrides, error) {
	var (
		o   = f.EngineOverrides
		out sim.EngineOverrides
		err error
	)
	if o.Units != "" {
		out.Units = core.Literal(o.Units)
	}
	if out.StartTime, err = timeValue(o.StartTime); err != nil {
		return out, fmt.Errorf("start_time: %w", err)
	}
	if out.StopTime, err = timeValue(o.StopTime); err != nil {
		return out, fmt.Errorf("stop_time: %w", err)
	}
	if o.StartDate != nil {
		out.StartDate = core.Literal(*o.StartDate)
	}
	if o.StopDate != nil {
		out.StopDate = core.Literal(*o.StopDate)
	}
	if out.Seed, err = seedValue(o.Seed); err != nil {
		return out, fmt.Errorf("seed: %w", err)
	}
	return out, nil
}

func seedValue(v any) (core.Value, error) {
	switch s := v.(type) {
	case nil:
		return core.Value{}, nil
	case int:
		return core.Literal(int64(s)), nil
	case string:
		switch strings.ToLower(strings.TrimSpace(s)) {
		case SeedNext:
			counter, err := util.NewCounter(1, 1)
			if err != nil {
				return core.Value{}, err
			}
			return core.Generator(func() any { return counter.Next() }), nil
		case SeedRandom:
			return core.Literal(nil), nil
		}
	}
	return core.Value{}, fmt.Errorf("expected an integer, %q or %q, got %v", SeedNext, SeedRandom, v)
}

func timeValue(v any) (core.Value, error) {
	switch t := v.(type) {
	case nil:
		return core.Value{}, nil
	case int:
		return core.Literal(float64(t)), nil
	case float64:
		return core.Literal(t), nil
	case string:
		s := strings.TrimSpace(t)
		if amount, unit, ok := strings.Cut(s, " "); ok {
			n, err := strconv.ParseFloat(amount, 64)
			if err != nil {
				return core.Value{}, err
			}
			u, found := analysis.LookupUnit(strings.TrimSpace(unit))
			if !found {
				return core.Value{}, fmt.Errorf("unknown unit %q", unit)
			}
			return core.Literal(analysis.UnitValue{Value: n, Unit: u}), nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return core.Value{}, err
		}
		return core.Literal(d), nil
	}
	return core.Value{}, fmt.Errorf("unsupported value %v", v)
}

// LogLevel returns the parsed logging level.
func (f *File) LogLevel() logging.LogLevel {
	lvl, _ := logging.ParseLevel(f.Logging.Level)
	return lvl
}

// Logger builds the configured logger writing to out.
func (f *File) Logger(out io.Writer) logging.Logger {
	cfg := logging.DefaultLoggerConfig()
	cfg.Level = f.LogLevel()
	if f.Logging.Format != "" {
		cfg.Format = f.Logging.Format
	}
	if out != nil {
		cfg.Output = out
	}
	return logging.NewLogger(cfg)
}

// Launcher returns the process launcher settings. The engine's log level
// follows logging.level unless java.log_level is set.
func (f *File) Launcher() process.Launcher {
	level := process.JavaLevel(f.LogLevel())
	if f.Java.LogLevel != "" {
		level, _ = process.ParseJavaLevel(f.Java.LogLevel)
	}
	return process.Launcher{
		Java:         f.Java.Path,
		JavaArgs:     append([]string(nil), f.Java.Args...),
		ServerPath:   f.Java.ServerPath,
		LogLevel:     level,
		AutoFinish:   f.AutoFinish,
		StartTimeout: f.Java.StartTimeout,
	}
}
