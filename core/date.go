package core

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the layout used when sending dates to the engine.
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	time.RFC1123,
	time.RFC1123Z,
	"Mon Jan 02 15:04:05 MST 2006",
}

// ParseDate parses the date formats the engine and users commonly write.
// Strings without zone information are read as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// FormatDate renders t in DateLayout.
func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// EpochMillis converts an engine epoch timestamp in milliseconds to UTC time.
func EpochMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
