package core

import (
	"encoding/json"
	"strings"
)

// Kind classifies the engine-declared type of a field.
type Kind uint8

// Field kinds. Numeric kinds are ordered by precision within their family.
const (
	KindUnknown Kind = iota
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindBool
	KindString
	KindDate
	KindTimeUnits
	KindMap
	KindList
	KindStatisticsDiscrete
	KindStatisticsContinuous
	KindDataSet
	KindHistogramSimple
	KindHistogramSmart
	KindHistogram2D
)

var kindNames = map[Kind]string{
	KindUnknown:              "unknown",
	KindInt32:                "int32",
	KindInt64:                "int64",
	KindFloat32:              "float32",
	KindFloat64:              "float64",
	KindBool:                 "bool",
	KindString:               "string",
	KindDate:                 "date",
	KindTimeUnits:            "time_units",
	KindMap:                  "map",
	KindList:                 "list",
	KindStatisticsDiscrete:   "statistics_discrete",
	KindStatisticsContinuous: "statistics_continuous",
	KindDataSet:              "data_set",
	KindHistogramSimple:      "histogram_simple",
	KindHistogramSmart:       "histogram_smart",
	KindHistogram2D:          "histogram_2d",
}

// String implements fmt.Stringer.
func (k Kind) String() string { return kindNames[k] }

// IsIntegral reports whether k is an integer kind.
func (k Kind) IsIntegral() bool { return k == KindInt32 || k == KindInt64 }

// IsReal reports whether k is a floating point kind.
func (k Kind) IsReal() bool { return k == KindFloat32 || k == KindFloat64 }

// IsNumeric reports whether k is integral or real.
func (k Kind) IsNumeric() bool { return k.IsIntegral() || k.IsReal() }

// IsAnalysis reports whether k is one of the structured analysis records.
func (k Kind) IsAnalysis() bool { return k >= KindStatisticsDiscrete && k <= KindHistogram2D }

// engine simple class name -> kind
var javaKinds = map[string]Kind{
	"int":                  KindInt32,
	"Integer":              KindInt32,
	"short":                KindInt32,
	"Short":                KindInt32,
	"byte":                 KindInt32,
	"Byte":                 KindInt32,
	"long":                 KindInt64,
	"Long":                 KindInt64,
	"float":                KindFloat32,
	"Float":                KindFloat32,
	"double":               KindFloat64,
	"Double":               KindFloat64,
	"boolean":              KindBool,
	"Boolean":              KindBool,
	"String":               KindString,
	"char":                 KindString,
	"Character":            KindString,
	"Date":                 KindDate,
	"TimeUnits":            KindTimeUnits,
	"Map":                  KindMap,
	"HashMap":              KindMap,
	"TreeMap":              KindMap,
	"LinkedHashMap":        KindMap,
	"List":                 KindList,
	"ArrayList":            KindList,
	"LinkedList":           KindList,
	"Set":                  KindList,
	"HashSet":              KindList,
	"TreeSet":              KindList,
	"LinkedHashSet":        KindList,
	"StatisticsDiscrete":   KindStatisticsDiscrete,
	"StatisticsContinuous": KindStatisticsContinuous,
	"DataSet":              KindDataSet,
	"HistogramSimpleData":  KindHistogramSimple,
	"HistogramSmartData":   KindHistogramSmart,
	"Histogram2DData":      KindHistogram2D,
}

// Type is a parsed engine type declaration such as "double", "Integer" or
// "int[][]".
type Type struct {
	// Name is the raw simple class name reported by the engine.
	Name string
	// Kind is the element kind; for arrays this is the kind of the innermost element.
	Kind Kind
	// Dims is the number of array dimensions (0 for scalars).
	Dims int
	// Boxed is false for primitive types that cannot hold a null.
	Boxed bool
}

// ParseType parses an engine simple class name. Generic parameters
// ("ArrayList<Integer>") are ignored; unknown names yield KindUnknown.
func ParseType(name string) Type {
	t := Type{Name: name}
	base := strings.TrimSpace(name)
	if i := strings.IndexByte(base, '<'); i >= 0 {
		base = base[:i]
	}
	for strings.HasSuffix(base, "[]") {
		t.Dims++
		base = strings.TrimSuffix(base, "[]")
	}
	t.Kind = javaKinds[base]
	t.Boxed = base == "" || base[0] < 'a' || base[0] > 'z'
	return t
}

// IsArray reports whether the type has at least one array dimension.
func (t Type) IsArray() bool { return t.Dims > 0 }

// Elem returns the element type of an array type.
func (t Type) Elem() Type {
	if t.Dims == 0 {
		return t
	}
	e := t
	e.Dims--
	e.Name = strings.TrimSuffix(t.Name, "[]")
	if e.Dims == 0 {
		// array elements of a primitive array are themselves primitive
		e.Boxed = t.Boxed
	}
	return e
}

// String returns the raw engine name.
func (t Type) String() string { return t.Name }

// MarshalJSON encodes the type by its raw engine name.
func (t Type) MarshalJSON() ([]byte, error) { return json.Marshal(t.Name) }

// UnmarshalJSON parses the raw engine name.
func (t *Type) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	*t = ParseType(name)
	return nil
}
