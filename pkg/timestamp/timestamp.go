// Package timestamp provides standardized UTC timestamp handling utilities.
//
// Wire timestamps in the retry envelope are RFC3339 strings. Upstream
// runtimes sometimes emit timestamps without explicit time-zone
// information; this package interprets those as UTC rather than local
// time, which keeps expiry arithmetic stable across hosts.
//
// Zero Value Semantics:
//   - A zero time.Time means "not set" and formats as the empty string
package timestamp

import (
	"time"
)

// layouts accepted by ParseTime, in the order they are tried. The
// zone-less layouts are interpreted as UTC.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Now returns the current time in UTC truncated to millisecond
// precision, the resolution carried on the wire.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// ParseTime converts an RFC3339-style string to a UTC time.Time.
// Strings without zone information are interpreted as UTC. Returns the
// zero time for empty or unparseable input.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Format converts a time.Time to an RFC3339 UTC string with millisecond
// precision. Returns the empty string for the zero time.
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// ToUnixMs converts a time.Time to Unix milliseconds. Returns 0 for the
// zero time.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to a UTC time.Time. Returns the
// zero time if ms is 0.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
