package util

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseNumber converts the textual number encodings emitted by the engine
// ("Infinity", "-Infinity", "NaN") as well as plain decimal strings into a
// float64.
func ParseNumber(s string) (float64, error) {
	switch strings.TrimSpace(s) {
	case "Infinity", "+Infinity", "inf", "+inf":
		return math.Inf(1), nil
	case "-Infinity", "-inf":
		return math.Inf(-1), nil
	case "NaN", "nan":
		return math.NaN(), nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("unrecognized number %q", s)
	}
	return f, nil
}
