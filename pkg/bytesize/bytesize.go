// Package bytesize parses and renders byte counts the way people write
// them in config files: "64KB", "1.5 GB", "2g". The binary (1024) base is
// used throughout, a bare number means bytes, and unit spellings are
// case-insensitive with KiB-style forms accepted as aliases.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
)

// Size is a byte count.
type Size int64

const (
	B  Size = 1
	KB Size = 1024
	MB Size = 1024 * KB
	GB Size = 1024 * MB
	TB Size = 1024 * GB
	PB Size = 1024 * TB
)

// suffixes in descending match-length order so "kib" wins over "k" and
// "b" does not swallow the tail of "kb".
var suffixes = []struct {
	unit string
	mult Size
}{
	{"bytes", B}, {"byte", B},
	{"kib", KB}, {"mib", MB}, {"gib", GB}, {"tib", TB}, {"pib", PB},
	{"kb", KB}, {"mb", MB}, {"gb", GB}, {"tb", TB}, {"pb", PB},
	{"k", KB}, {"m", MB}, {"g", GB}, {"t", TB}, {"p", PB},
	{"b", B},
}

// Parse converts a human-written size to a Size. Integer and fractional
// values both work, whitespace around the unit is ignored, and a string
// with no unit at all is read as bytes.
func Parse(s string) (Size, error) {
	trimmed := strings.TrimSpace(strings.ToLower(s))
	if trimmed == "" {
		return 0, fmt.Errorf("bytesize: empty input")
	}

	mult := B
	for _, sfx := range suffixes {
		if strings.HasSuffix(trimmed, sfx.unit) {
			mult = sfx.mult
			trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, sfx.unit))
			break
		}
	}

	if trimmed == "" {
		return 0, fmt.Errorf("bytesize: %q has a unit but no value", s)
	}
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: cannot parse %q: %w", s, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("bytesize: size %q is negative", s)
	}

	return Size(value * float64(mult)), nil
}

// units for Format, largest first.
var units = []struct {
	mult  Size
	label string
}{
	{PB, "PB"}, {TB, "TB"}, {GB, "GB"}, {MB, "MB"}, {KB, "KB"},
}

// Format renders s with the largest unit that keeps the value at or
// above one, trimming the fraction to at most two decimals.
func Format(s Size) string {
	if s < 0 {
		return "-" + Format(-s)
	}
	for _, u := range units {
		if s >= u.mult {
			return trimZeros(float64(s)/float64(u.mult)) + u.label
		}
	}
	return strconv.FormatInt(int64(s), 10) + "B"
}

func (s Size) String() string { return Format(s) }

func trimZeros(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	out := strconv.FormatFloat(value, 'f', 2, 64)
	out = strings.TrimRight(out, "0")
	return strings.TrimRight(out, ".")
}
