package stream

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jmylchreest/recast/internal/ffmpeg"
)

// streamFFmpeg runs the source through ffmpeg and copies its stdout to
// the client. Used by the remux and reencode modes.
func (c *Coordinator) streamFFmpeg(ctx context.Context, source string, mode Mode, w io.Writer, flush func()) error {
	cmd := c.buildFFmpegCommand(source, mode)
	c.logger.Debug("starting ffmpeg", "mode", mode, "source", redactURL(source))

	if err := cmd.Start(ctx); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	stdout, err := cmd.Stdout()
	if err != nil {
		_ = cmd.Kill()
		_ = cmd.Wait()
		return err
	}

	copyErr := copyChunks(ctx, stdout, w, flush, c.chunkSize())
	if copyErr != nil {
		_ = cmd.Kill()
	}
	waitErr := cmd.Wait()

	if copyErr != nil {
		return copyErr
	}
	if waitErr != nil {
		return fmt.Errorf("pipeline exited: %w", waitErr)
	}
	return nil
}

func (c *Coordinator) buildFFmpegCommand(source string, mode Mode) *ffmpeg.Command {
	iv := ffmpeg.Invocation{
		Source:     source,
		Reconnect:  strings.HasPrefix(source, "http"),
		LowLatency: true,
		Output:     ffmpeg.OutputPipe,
	}
	if mode == ModeReencode {
		iv.Audio = &ffmpeg.AudioReencode{
			Codec:    "aac",
			Bitrate:  c.cfg.AudioBitrate,
			Channels: audioChannelCount(c.cfg.AudioChannels),
		}
	}
	return iv.Command(c.ffmpegBin)
}

// audioChannelCount maps a layout name to a channel count. Raw counts
// pass through; anything unrecognised falls back to stereo.
func audioChannelCount(layout string) int {
	switch layout {
	case "5.1":
		return 6
	case "7.1":
		return 8
	}
	if n, err := strconv.Atoi(layout); err == nil && n > 0 {
		return n
	}
	return 2
}
