package ffmpeg

import (
	"math"
	"time"
)

// RetryConfig bounds how a live source is reopened after a transient
// failure. The stream proxy and the ffmpeg-backed modes share the same
// schedule.
type RetryConfig struct {
	// MaxAttempts is the number of reopen attempts before giving up.
	MaxAttempts int
	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
	// BackoffFactor multiplies the delay after each attempt.
	BackoffFactor float64
	// MinRunTime resets the attempt counter: a source that streamed at
	// least this long before failing counts as having recovered.
	MinRunTime time.Duration
}

// DefaultRetryConfig returns the standard schedule for live sources.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		MinRunTime:    5 * time.Second,
	}
}

// Delay reports how long to wait before the given attempt. The first
// retry is attempt 1.
func (rc RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(rc.InitialDelay) * math.Pow(rc.BackoffFactor, float64(attempt-1))
	if rc.MaxDelay > 0 && d > float64(rc.MaxDelay) {
		d = float64(rc.MaxDelay)
	}
	return time.Duration(d)
}
