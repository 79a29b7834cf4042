package memory

import (
	"strings"
	"time"
)

// TimeOutcome reports how a timestamp parse went, so callers can tell a
// nominal value from a defaulted one.
type TimeOutcome int

const (
	TimeOK TimeOutcome = iota
	TimeMissing
	TimeMalformed
)

func (o TimeOutcome) String() string {
	switch o {
	case TimeOK:
		return "ok"
	case TimeMissing:
		return "missing"
	default:
		return "malformed"
	}
}

// timestamp layouts accepted from stores and import files. Naive layouts
// are interpreted as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 style timestamp.
func ParseTimestamp(s string) (time.Time, TimeOutcome) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, TimeMissing
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, TimeOK
		}
	}
	return time.Time{}, TimeMalformed
}

// FormatTimestamp renders t in the canonical stored form.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// NormalizeTimestamp rewrites a parsable timestamp into canonical form and
// leaves anything else untouched.
func NormalizeTimestamp(s string) string {
	t, outcome := ParseTimestamp(s)
	if outcome != TimeOK {
		return s
	}
	return FormatTimestamp(t)
}

// AgeDays returns the whole days elapsed between t and now.
func AgeDays(now, t time.Time) int {
	return int(now.Sub(t).Hours() / 24)
}
