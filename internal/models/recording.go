package models

import "time"

// RecordingStatus tracks a recording through its lifecycle.
type RecordingStatus string

// Recording statuses.
const (
	RecordingStatusRecording RecordingStatus = "recording"
	RecordingStatusCompleted RecordingStatus = "completed"
	RecordingStatusFailed    RecordingStatus = "failed"
)

// Recording is one captured program in the recordings catalog. The capture
// file on disk is named after the recording's ULID.
type Recording struct {
	Model

	// ChannelID and ChannelName identify what was tuned.
	ChannelID   string `gorm:"index" json:"channel_id"`
	ChannelName string `json:"channel_name"`

	// Title is the caller-supplied program title. Falls back to the
	// channel name when the commit request carries none.
	Title string `json:"title"`

	// Receiver is the name of the receiver that captured the stream.
	Receiver string `json:"receiver"`

	// SourceURL is the encoder URL the capture read from. May embed
	// credentials; the logging layer redacts it, the catalog keeps it
	// verbatim for diagnostics.
	SourceURL string `json:"source_url,omitempty"`

	// FilePath is the absolute path of the MPEG-TS capture on disk.
	FilePath string `json:"file_path"`

	// DurationSeconds is the requested capture length.
	DurationSeconds int `json:"duration_seconds"`

	Status RecordingStatus `gorm:"index;default:recording" json:"status"`

	// Error holds the failure cause for failed recordings.
	Error string `json:"error,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// SizeBytes is the final file size; zero while the capture is running.
	SizeBytes int64 `json:"size_bytes"`
}

// TableName returns the table name for recordings.
func (Recording) TableName() string {
	return "recordings"
}

// InProgress reports whether the capture is still running.
func (r *Recording) InProgress() bool {
	return r.Status == RecordingStatusRecording
}

// Duration returns the requested capture length as a time.Duration.
func (r *Recording) Duration() time.Duration {
	return time.Duration(r.DurationSeconds) * time.Second
}
