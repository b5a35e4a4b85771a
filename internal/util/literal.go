package util

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseLiteral interprets a command line value using YAML scalar rules so
// that "10" becomes an int, "0.5" a float64, "true" a bool and "[1, 2]" a
// list. Anything that does not parse is returned as the raw string.
func ParseLiteral(s string) any {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	return v
}

// ParseAssignment splits "name=value" and parses the value with ParseLiteral.
func ParseAssignment(s string) (string, any, error) {
	name, raw, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", nil, fmt.Errorf("invalid assignment %q: expected name=value", s)
	}
	return name, ParseLiteral(raw), nil
}
