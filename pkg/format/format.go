// Package format renders values for humans: dashboard fields, log
// attributes, and other places where "1.5 GB" reads better than 1610612736.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// byteUnits indexed by power of 1024. EB is as far as an int64 reaches.
var byteUnits = []string{"KB", "MB", "GB", "TB", "PB", "EB"}

// Bytes renders a byte count with one decimal: Bytes(1536) == "1.5 KB".
func Bytes(n int64) string {
	if n > -1024 && n < 1024 {
		return strconv.FormatInt(n, 10) + " B"
	}
	value, exp := float64(n), -1
	for value >= 1024 || value <= -1024 {
		value /= 1024
		exp++
	}
	return fmt.Sprintf("%.1f %s", value, byteUnits[exp])
}

// english inserts thousands separators when rendering counts.
var english = message.NewPrinter(language.English)

// Number renders n with thousand separators: Number(1234567) == "1,234,567".
func Number(n int64) string {
	return english.Sprintf("%d", n)
}

// Percent renders a percentage with one decimal: Percent(45.67) == "45.7%".
func Percent(value float64) string {
	return strconv.FormatFloat(value, 'f', 1, 64) + "%"
}

// Uptime formats a duration as a coarse uptime string.
// Example: Uptime(50*time.Hour) => "2d 2h"
func Uptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	case mins > 0:
		return fmt.Sprintf("%dm", mins)
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}

// RelativeTime renders how long ago t was, coarsely. The zero time reads
// "never", the future reads "soon".
func RelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	since := time.Since(t)
	switch {
	case since < 0:
		return "soon"
	case since < time.Minute:
		return "now"
	case since < time.Hour:
		return strconv.Itoa(int(since.Minutes())) + "m ago"
	case since < 24*time.Hour:
		return strconv.Itoa(int(since.Hours())) + "h ago"
	default:
		return strconv.Itoa(int(since.Hours())/24) + "d ago"
	}
}

var dayNames = [...]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// CronDescription renders a six-field cron expression (seconds first) as a
// short English phrase: "Daily at 4AM", "Every 15 minutes", "Sundays at
// 3AM". Expressions it cannot phrase come back verbatim.
func CronDescription(expr string) string {
	fields := strings.Fields(expr)
	if len(fields) != 6 {
		return expr
	}
	minute, hour, weekday := fields[1], fields[2], fields[5]

	if n, ok := interval(minute); ok && hour == "*" {
		return fmt.Sprintf("Every %d minutes", n)
	}
	if n, ok := interval(hour); ok {
		if n == 1 {
			return "Every hour"
		}
		return fmt.Sprintf("Every %d hours", n)
	}

	h, herr := strconv.Atoi(hour)
	m, merr := strconv.Atoi(minute)

	if hour == "*" && merr == nil {
		if m == 0 {
			return "Every hour"
		}
		return fmt.Sprintf("Every hour at :%02d", m)
	}
	if herr != nil || merr != nil {
		return expr
	}

	at := clockTime(h, m)
	if weekday == "*" {
		return "Daily at " + at
	}
	if d, err := strconv.Atoi(weekday); err == nil && d >= 0 && d <= 6 {
		return dayNames[d] + "s at " + at
	}
	return expr
}

// interval extracts n from a */n cron field.
func interval(field string) (int, bool) {
	rest, ok := strings.CutPrefix(field, "*/")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	return n, err == nil
}

// clockTime renders an hour and minute the way schedules read aloud:
// "midnight", "noon", "6AM", "2:30AM".
func clockTime(hour, minute int) string {
	if minute == 0 {
		switch hour {
		case 0:
			return "midnight"
		case 12:
			return "noon"
		}
	}

	display, suffix := hour, "AM"
	if hour >= 12 {
		display, suffix = hour-12, "PM"
	}
	if display == 0 {
		display = 12
	}

	if minute == 0 {
		return fmt.Sprintf("%d%s", display, suffix)
	}
	return fmt.Sprintf("%d:%02d%s", display, minute, suffix)
}
