// Package util provides small parsing helpers shared by the command handlers and the HTTP API.
package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fieldtrack/trackcheck/pkg/core"
)

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// CleanArg normalizes one raw command argument.
func CleanArg(s string) string {
	return FixEscapeQuotes(TrimQuotes(strings.TrimSpace(s)))
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseTimestamp accepts RFC3339, the "2006-01-02 15:04:05" database
// layout (read as UTC) or integer Unix seconds.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// ParseDay validates a calendar day in core.DayLayout.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(core.DayLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// DayBounds returns the half-open UTC interval [start, end) covering day.
func DayBounds(day string) (start, end time.Time, err error) {
	start, err = ParseDay(day)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 0, 1), nil
}

// DayOf returns the UTC calendar day of t.
func DayOf(t time.Time) string {
	return t.UTC().Format(core.DayLayout)
}

// ParseUint parses a positive identifier.
func ParseUint(s string) (uint, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	if v == 0 {
		return 0, fmt.Errorf("invalid id %q: must be positive", s)
	}
	return uint(v), nil
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFilename replaces anything outside [A-Za-z0-9._-] with underscores.
func SanitizeFilename(name string) string {
	cleaned := unsafeFilename.ReplaceAllString(strings.TrimSpace(name), "_")
	cleaned = strings.Trim(cleaned, "._")
	if cleaned == "" {
		return "unnamed"
	}
	return cleaned
}
