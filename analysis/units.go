package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Dimension groups units that can be converted into one another.
type Dimension string

// Supported unit dimensions.
const (
	DimensionTime          Dimension = "time"
	DimensionAmount        Dimension = "amount"
	DimensionLength        Dimension = "length"
	DimensionAngle         Dimension = "angle"
	DimensionArea          Dimension = "area"
	DimensionRate          Dimension = "rate"
	DimensionSpeed         Dimension = "speed"
	DimensionAcceleration  Dimension = "acceleration"
	DimensionFlowRate      Dimension = "flow_rate"
	DimensionRotationSpeed Dimension = "rotation_speed"
)

// Unit is an engine unit constant (e.g. MINUTE, KILOMETER, KPH). Factor is
// the multiplier into the dimension's SI base unit. The zero Unit means
// "no unit".
type Unit struct {
	name   string
	symbol string
	dim    Dimension
	factor float64
}

// Name returns the engine constant name, e.g. "MINUTE".
func (u Unit) Name() string { return u.name }

// Symbol returns the short display label, e.g. "min".
func (u Unit) Symbol() string { return u.symbol }

// Dimension returns the unit family.
func (u Unit) Dimension() Dimension { return u.dim }

// IsZero reports whether u is the empty unit.
func (u Unit) IsZero() bool { return u.name == "" }

// String implements fmt.Stringer.
func (u Unit) String() string { return u.name }

// Convert expresses amount (given in u) in the unit to.
func (u Unit) Convert(amount float64, to Unit) (float64, error) {
	if u.IsZero() || to.IsZero() {
		return 0, fmt.Errorf("cannot convert between empty units")
	}
	if u.dim != to.dim {
		return 0, fmt.Errorf("cannot convert %s (%s) to %s (%s)", u.name, u.dim, to.name, to.dim)
	}
	return amount * u.factor / to.factor, nil
}

// MarshalJSON encodes the unit by its engine name.
func (u Unit) MarshalJSON() ([]byte, error) {
	if u.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(u.name)
}

// UnmarshalJSON decodes a unit from its engine name.
func (u *Unit) UnmarshalJSON(b []byte) error {
	var name *string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	if name == nil {
		*u = Unit{}
		return nil
	}
	found, ok := LookupUnit(*name)
	if !ok {
		return fmt.Errorf("unknown unit %q", *name)
	}
	*u = found
	return nil
}

var registry = map[string]Unit{}

func register(name, symbol string, dim Dimension, factor float64) Unit {
	u := Unit{name: name, symbol: symbol, dim: dim, factor: factor}
	registry[name] = u
	return u
}

// LookupUnit finds a unit by its engine constant name.
func LookupUnit(name string) (Unit, bool) {
	u, ok := registry[name]
	return u, ok
}

// Units lists the registered units of a dimension sorted by name.
func Units(dim Dimension) []Unit {
	var out []Unit
	for _, u := range registry {
		if u.dim == dim {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Time units.
var (
	Millisecond = register("MILLISECOND", "ms", DimensionTime, 0.001)
	Second      = register("SECOND", "sec", DimensionTime, 1)
	Minute      = register("MINUTE", "min", DimensionTime, 60)
	Hour        = register("HOUR", "hr", DimensionTime, 3600)
	Day         = register("DAY", "day", DimensionTime, 86400)
	Week        = register("WEEK", "wk", DimensionTime, 604800)
	Month       = register("MONTH", "mn", DimensionTime, 2592000)
	Year        = register("YEAR", "yr", DimensionTime, 3.1536e7)
)

// Amount units.
var (
	Liter      = register("LITER", "L", DimensionAmount, 0.001)
	OilBarrel  = register("OIL_BARREL", "barrels", DimensionAmount, 0.158987295)
	CubicMeter = register("CUBIC_METER", "m3", DimensionAmount, 1)
	Kilogram   = register("KILOGRAM", "kg", DimensionAmount, 1)
	Ton        = register("TON", "ton", DimensionAmount, 1000)
)

// Length units.
var (
	Millimeter   = register("MILLIMETER", "mm", DimensionLength, 0.001)
	Centimeter   = register("CENTIMETER", "cm", DimensionLength, 0.01)
	Meter        = register("METER", "m", DimensionLength, 1)
	Kilometer    = register("KILOMETER", "km", DimensionLength, 1000)
	Inch         = register("INCH", "in", DimensionLength, 0.0254)
	Foot         = register("FOOT", "ft", DimensionLength, 0.3048)
	Yard         = register("YARD", "yd", DimensionLength, 0.9144)
	Mile         = register("MILE", "mi", DimensionLength, 1609.344)
	NauticalMile = register("NAUTICAL_MILE", "nm", DimensionLength, 1853.184)
)

// Angle units.
var (
	Turn   = register("TURN", "turn", DimensionAngle, 2*math.Pi)
	Radian = register("RADIAN", "rad", DimensionAngle, 1)
	Degree = register("DEGREE", "deg", DimensionAngle, math.Pi/180)
)

func init() {
	for _, l := range []struct {
		name, symbol string
		length       Unit
	}{
		{"SQ_MILLIMETER", "mm2", Millimeter},
		{"SQ_CENTIMETER", "cm2", Centimeter},
		{"SQ_METER", "m2", Meter},
		{"SQ_KILOMETER", "km2", Kilometer},
		{"SQ_INCH", "in2", Inch},
		{"SQ_FOOT", "ft2", Foot},
		{"SQ_YARD", "yard2", Yard},
		{"SQ_MILE", "mile2", Mile},
		{"SQ_NAUTICAL_MILE", "nautmile2", NauticalMile},
	} {
		register(l.name, l.symbol, DimensionArea, l.length.factor*l.length.factor)
	}

	for _, r := range []struct {
		name, symbol string
		per          Unit
	}{
		{"PER_MILLISECOND", "per ms", Millisecond},
		{"PER_SECOND", "per sec", Second},
		{"PER_MINUTE", "per min", Minute},
		{"PER_HOUR", "per hr", Hour},
		{"PER_DAY", "per day", Day},
		{"PER_WEEK", "per wk", Week},
		{"PER_MONTH", "per month", Month},
		{"PER_YEAR", "per year", Year},
	} {
		register(r.name, r.symbol, DimensionRate, 1/r.per.factor)
	}

	for _, c := range []struct {
		name, symbol string
		dim          Dimension
		num, per     Unit
		squared      bool
	}{
		{"MPS", "meters per second", DimensionSpeed, Meter, Second, false},
		{"KPH", "kilometers per hour", DimensionSpeed, Kilometer, Hour, false},
		{"FPS", "feet per second", DimensionSpeed, Foot, Second, false},
		{"FPM", "feet per minute", DimensionSpeed, Foot, Minute, false},
		{"MPH", "miles per hour", DimensionSpeed, Mile, Hour, false},
		{"KN", "knots", DimensionSpeed, NauticalMile, Hour, false},
		{"MPS_SQ", "mps2", DimensionAcceleration, Meter, Second, true},
		{"FPS_SQ", "fps2", DimensionAcceleration, Foot, Second, true},
		{"LITER_PER_SECOND", "liter per second", DimensionFlowRate, Liter, Second, false},
		{"OIL_BARREL_PER_SECOND", "oil barrel per second", DimensionFlowRate, OilBarrel, Second, false},
		{"CUBIC_METER_PER_SECOND", "meter3 per second", DimensionFlowRate, CubicMeter, Second, false},
		{"KILOGRAM_PER_SECOND", "kilogram per second", DimensionFlowRate, Kilogram, Second, false},
		{"TON_PER_SECOND", "ton per second", DimensionFlowRate, Ton, Second, false},
		{"RPM", "rotations per minute", DimensionRotationSpeed, Turn, Minute, false},
		{"RAD_PER_SECOND", "radians per second", DimensionRotationSpeed, Radian, Second, false},
		{"DEG_PER_SECOND", "degrees per second", DimensionRotationSpeed, Degree, Second, false},
	} {
		denom := c.per.factor
		if c.squared {
			denom *= c.per.factor
		}
		register(c.name, c.symbol, c.dim, c.num.factor/denom)
	}
}

// UnitValue is a number carrying an engine unit.
type UnitValue struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

// In converts the value into another unit of the same dimension.
func (v UnitValue) In(to Unit) (float64, error) {
	return v.Unit.Convert(v.Value, to)
}

// String implements fmt.Stringer.
func (v UnitValue) String() string {
	return fmt.Sprintf("%g %s", v.Value, v.Unit.Symbol())
}
