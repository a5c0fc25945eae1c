package ffmpeg

import (
	"cmp"
	"strconv"
	"time"
)

// OutputPipe directs ffmpeg output to stdout so the caller can stream it.
const OutputPipe = "pipe:1"

// AudioReencode re-encodes the audio track while the video passes
// through untouched. HDMI encoders commonly ship AC-3 or PCM audio that
// some DVR clients refuse to play, so the stream path can swap it for
// AAC.
type AudioReencode struct {
	Codec    string
	Bitrate  string // empty keeps the encoder default
	Channels int    // 0 keeps the source layout
}

// Invocation describes one ffmpeg run. recast drives ffmpeg in exactly
// two shapes, live remux to stdout and timed capture to disk, and both
// emit MPEG-TS, so the whole argv is assembled in one place instead of
// behind per-flag builder methods. The startup banner is always
// suppressed.
type Invocation struct {
	Source     string
	Reconnect  bool           // retry dropped network sources in place
	Audio      *AudioReencode // nil copies every stream as-is
	Duration   time.Duration  // stop writing after this long when positive
	LowLatency bool           // flush each muxed packet and zero the mux delay
	Overwrite  bool
	Output     string // file path, or OutputPipe
	LogLevel   string // ffmpeg -loglevel, "error" when empty
}

// Command assembles the argv for the invocation.
//
// The MPEG-TS packet identifiers match the ones the pre-roll filler
// announces, so a client that joined during the pre-roll keeps decoding
// seamlessly once the live stream takes over.
func (iv Invocation) Command(binary string) *Command {
	args := []string{"-hide_banner", "-loglevel", cmp.Or(iv.LogLevel, "error")}
	if iv.Overwrite {
		args = append(args, "-y")
	}
	if iv.Reconnect {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}
	args = append(args, "-i", iv.Source)

	if a := iv.Audio; a != nil {
		args = append(args, "-c:v", "copy", "-c:a", a.Codec)
		if a.Bitrate != "" {
			args = append(args, "-b:a", a.Bitrate)
		}
		if a.Channels > 0 {
			args = append(args, "-ac", strconv.Itoa(a.Channels))
		}
	} else {
		args = append(args, "-c", "copy")
	}
	if iv.Duration > 0 {
		args = append(args, "-t", strconv.FormatFloat(iv.Duration.Seconds(), 'f', -1, 64))
	}

	args = append(args,
		"-f", "mpegts",
		"-mpegts_copyts", "1",
		"-avoid_negative_ts", "disabled",
		"-mpegts_start_pid", "256",
		"-mpegts_pmt_start_pid", "4096",
	)
	if iv.LowLatency {
		args = append(args, "-flush_packets", "1", "-muxdelay", "0")
	}

	return &Command{Binary: binary, Args: append(args, iv.Output)}
}
