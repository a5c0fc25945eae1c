package stream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/asticode/go-astits"
)

const (
	// fillerVideoPID matches the start PID the ffmpeg modes announce,
	// so a decoder primed by the filler keeps working when real
	// packets arrive.
	fillerVideoPID = 256

	// fillerInterval paces filler emission during the pre-roll.
	fillerInterval = 100 * time.Millisecond
)

// fillerUnit is the synthetic PAT+PMT unit sent while a receiver is
// still tuning. Built once; DVR clients give up on a stream that sends
// nothing at all, valid-but-empty tables keep them waiting.
var fillerUnit = sync.OnceValues(buildFillerUnit)

func buildFillerUnit() ([]byte, error) {
	var buf bytes.Buffer

	muxer := astits.NewMuxer(context.Background(), &buf)
	if err := muxer.AddElementaryStream(astits.PMTElementaryStream{
		ElementaryPID: fillerVideoPID,
		StreamType:    astits.StreamTypeH264Video,
	}); err != nil {
		return nil, fmt.Errorf("adding elementary stream: %w", err)
	}
	muxer.SetPCRPID(fillerVideoPID)

	if _, err := muxer.WriteTables(); err != nil {
		return nil, fmt.Errorf("writing tables: %w", err)
	}

	return buf.Bytes(), nil
}

// preroll emits the filler unit every tick until the duration elapses,
// flushing each write so the client sees bytes immediately.
func (c *Coordinator) preroll(ctx context.Context, d time.Duration, w io.Writer, flush func()) error {
	filler, err := fillerUnit()
	if err != nil {
		return fmt.Errorf("building filler unit: %w", err)
	}

	ticker := time.NewTicker(fillerInterval)
	defer ticker.Stop()
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case <-ticker.C:
			if _, err := w.Write(filler); err != nil {
				return fmt.Errorf("%w: %v", errClientGone, err)
			}
			flush()
		}
	}
}
