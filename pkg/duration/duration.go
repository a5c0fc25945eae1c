// Package duration provides human-readable duration parsing and formatting.
//
// Parse extends Go's standard time.ParseDuration with calendar-scale units:
// days (d), weeks (w), months (mo, 30 days) and years (y, 365 days). Full-word
// spellings ("30 seconds", "2 weeks") and whitespace between segments are
// accepted, so configuration values like "7d" or "1 week 12 hours" both work.
package duration

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Calendar-scale units. Month and Year are fixed civil approximations
// (30 and 365 days), not calendar arithmetic.
const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
	Year  = 365 * Day
)

// units maps every accepted unit spelling to its duration. Sub-hour units
// mirror time.ParseDuration so mixed strings like "1d12h30m" parse whole.
var units = map[string]time.Duration{
	"ns": time.Nanosecond, "nano": time.Nanosecond, "nanos": time.Nanosecond,
	"nanosecond": time.Nanosecond, "nanoseconds": time.Nanosecond,
	"us": time.Microsecond, "µs": time.Microsecond, "micro": time.Microsecond,
	"micros": time.Microsecond, "microsecond": time.Microsecond, "microseconds": time.Microsecond,
	"ms": time.Millisecond, "milli": time.Millisecond, "millis": time.Millisecond,
	"millisecond": time.Millisecond, "milliseconds": time.Millisecond,
	"s": time.Second, "sec": time.Second, "secs": time.Second,
	"second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute,
	"minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour,
	"hour": time.Hour, "hours": time.Hour,
	"d": Day, "day": Day, "days": Day,
	"w": Week, "wk": Week, "wks": Week, "week": Week, "weeks": Week,
	"mo": Month, "mos": Month, "month": Month, "months": Month,
	"y": Year, "yr": Year, "yrs": Year, "year": Year, "years": Year,
}

// Parse parses a human-readable duration string. A duration is a sequence of
// value+unit segments; whitespace between and inside segments is ignored.
//
// Examples:
//   - "7d"          = 7 days
//   - "2 weeks"     = 14 days
//   - "1w2d12h"     = 1 week, 2 days, 12 hours
//   - "90m"         = 90 minutes
//   - "1.5h"        = 90 minutes
func Parse(s string) (time.Duration, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("duration: empty input")
	}

	negative := strings.HasPrefix(trimmed, "-")
	if negative {
		trimmed = strings.TrimSpace(trimmed[1:])
	}
	if trimmed == "0" {
		return 0, nil
	}

	var total time.Duration
	rest := trimmed
	for rest != "" {
		rest = strings.TrimSpace(rest)

		// Scan the numeric part (integer or decimal).
		i := 0
		for i < len(rest) && (unicode.IsDigit(rune(rest[i])) || rest[i] == '.') {
			i++
		}
		if i == 0 {
			return 0, fmt.Errorf("duration: expected number in %q", s)
		}
		var value float64
		if _, err := fmt.Sscanf(rest[:i], "%g", &value); err != nil {
			return 0, fmt.Errorf("duration: invalid value %q: %w", rest[:i], err)
		}
		rest = strings.TrimSpace(rest[i:])

		// Scan the unit part.
		j := 0
		for j < len(rest) && (unicode.IsLetter(rune(rest[j])) || rest[j] == 'µ') {
			j++
		}
		if j == 0 {
			return 0, fmt.Errorf("duration: missing unit after %q in %q", rest, s)
		}
		unit, ok := units[strings.ToLower(rest[:j])]
		if !ok {
			return 0, fmt.Errorf("duration: unknown unit %q in %q", rest[:j], s)
		}
		rest = rest[j:]

		total += time.Duration(value * float64(unit))
	}

	if negative {
		total = -total
	}
	return total, nil
}

// Format converts a duration to a compact human-readable string, decomposing
// into weeks, days, hours, minutes and seconds. Zero components are omitted:
// 26h becomes "1d2h", 90s becomes "1m30s".
func Format(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	var sb strings.Builder
	if d < 0 {
		sb.WriteByte('-')
		d = -d
	}

	for _, part := range []struct {
		unit time.Duration
		name string
	}{
		{Week, "w"},
		{Day, "d"},
		{time.Hour, "h"},
		{time.Minute, "m"},
	} {
		if d >= part.unit {
			fmt.Fprintf(&sb, "%d%s", d/part.unit, part.name)
			d %= part.unit
		}
	}

	if d > 0 {
		// Render the sub-minute remainder the way time.Duration does,
		// so fractional seconds stay readable ("1.5s", "250ms").
		sb.WriteString(d.String())
	}

	return sb.String()
}
