package models

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the canonical form of every timestamp the tap emits:
// UTC, whole seconds, trailing Z.
const TimestampLayout = "2006-01-02T15:04:05Z"

var parseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// FormatTimestamp renders t in the canonical layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimestampLayout)
}

// ParseTimestamp parses the ISO-8601 variants seen in config, state and API
// responses. Values without an offset are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// NormalizeTimestamp converts time values and parseable timestamp strings to
// the canonical string. Anything else is returned unchanged, so applying it
// twice gives the same result as applying it once.
func NormalizeTimestamp(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return FormatTimestamp(t)
	case *time.Time:
		if t == nil {
			return nil
		}
		return FormatTimestamp(*t)
	case string:
		parsed, err := ParseTimestamp(t)
		if err != nil {
			return t
		}
		return FormatTimestamp(parsed)
	default:
		return v
	}
}
