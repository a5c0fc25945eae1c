package config

import (
	"time"

	"github.com/jmylchreest/recast/pkg/bytesize"
	"github.com/jmylchreest/recast/pkg/duration"
)

// The lineup file and the REST API favour human-readable scalars: "64KB"
// over 65536, "90s" over 90000000000. ByteSize and Duration carry those
// through YAML, JSON and viper alike. Both keep an integer underlying
// type, so bare numbers (bytes, nanoseconds) still decode.

// ByteSize is a byte count that parses with units, e.g. "64KB" or "1.5 MB".
type ByteSize int64

// Bytes returns the count as a plain int64.
func (b ByteSize) Bytes() int64 { return int64(b) }

func (b ByteSize) String() string { return bytesize.Format(bytesize.Size(b)) }

// MarshalText renders the size with its largest whole unit.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText accepts "64KB", "1.5 MB" or a bare digit string of bytes.
func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := bytesize.Parse(string(text))
	if err != nil {
		return err
	}
	*b = ByteSize(n)
	return nil
}

// Duration wraps time.Duration with the calendar units ("7d", "2w") that
// time.ParseDuration rejects.
type Duration time.Duration

// Std returns the value as a standard time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return duration.Format(time.Duration(d)) }

// MarshalText renders the duration compactly, e.g. "90s" or "1d12h".
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText accepts standard Go durations plus day and week units.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := duration.Parse(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}
