package core

import (
	"math"
	"time"

	"github.com/hupe1980/simlink/analysis"
)

// Engine setting names.
const (
	SettingUnits     = "units"
	SettingStartTime = "start_time"
	SettingStartDate = "start_date"
	SettingStopTime  = "stop_time"
	SettingStopDate  = "stop_date"
	SettingSeed      = "seed"
)

// EngineSettingsTemplate builds the engine settings schema every engine
// declares: model time units, start time and date, an unbounded stop time,
// no stop date and a random (nil) seed.
func EngineSettingsTemplate(units analysis.Unit, startDate time.Time) *Template {
	return MustTemplate(SpaceEngineSettings,
		Field{Name: SettingUnits, Type: ParseType("TimeUnits"), Default: units},
		Field{Name: SettingStartTime, Type: ParseType("double"), Default: 0.0},
		Field{Name: SettingStartDate, Type: ParseType("Date"), Default: startDate},
		Field{Name: SettingStopTime, Type: ParseType("double"), Default: math.Inf(1)},
		Field{Name: SettingStopDate, Type: ParseType("Date")},
		Field{Name: SettingSeed, Type: ParseType("Long")},
	)
}
