package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Handle is one open stream bound to an allocated receiver. Stream may
// be called at most once; Release is safe to call any number of times
// from any goroutine.
type Handle struct {
	ID        string
	Receiver  string
	Source    string
	Mode      Mode
	Preroll   time.Duration
	StartedAt time.Time

	coord       *Coordinator
	release     func()
	releaseOnce sync.Once
	bytes       atomic.Int64
}

// BytesWritten reports how many bytes have reached the client so far.
func (h *Handle) BytesWritten() int64 {
	return h.bytes.Load()
}

// Stream runs the pipeline, writing MPEG-TS into w until the source
// ends, the consumer disconnects, or something breaks. The receiver is
// released exactly once on every path, including panics.
func (h *Handle) Stream(ctx context.Context, w io.Writer) error {
	defer h.Release()

	flush := flusherFor(w)
	cw := &countingWriter{w: w, count: &h.bytes}

	err := h.run(ctx, cw, flush)

	reason := "eof"
	switch {
	case err == nil:
	case errors.Is(err, errClientGone) || ctx.Err() != nil:
		reason = "disconnect"
	default:
		reason = "error"
	}

	attrs := []any{
		"id", h.ID,
		"receiver", h.Receiver,
		"mode", h.Mode,
		"bytes", h.BytesWritten(),
		"duration", time.Since(h.StartedAt).Round(time.Millisecond),
		"reason", reason,
	}
	if reason == "error" {
		attrs = append(attrs, "error", err)
	}
	h.coord.logger.Info("stream closed", attrs...)

	return err
}

func (h *Handle) run(ctx context.Context, w io.Writer, flush func()) error {
	if h.Preroll > 0 {
		if err := h.coord.preroll(ctx, h.Preroll, w, flush); err != nil {
			return err
		}
	}

	switch h.Mode {
	case ModeProxy:
		return h.coord.streamProxy(ctx, h.Source, w, flush)
	case ModeRemux, ModeReencode:
		return h.coord.streamFFmpeg(ctx, h.Source, h.Mode, w, flush)
	default:
		return fmt.Errorf("unknown pipeline mode %q", h.Mode)
	}
}

// Release runs the handle's release function and removes it from the
// active set. Idempotent.
func (h *Handle) Release() {
	h.releaseOnce.Do(func() {
		h.coord.drop(h.ID)
		if h.release != nil {
			h.release()
		}
	})
}

// countingWriter tracks delivered bytes without hiding write errors.
type countingWriter struct {
	w     io.Writer
	count *atomic.Int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.count.Add(int64(n))
	return n, err
}

// flusherFor pushes bytes to the client as soon as they are written,
// when the writer supports it. Must inspect the original writer before
// any wrapping.
func flusherFor(w io.Writer) func() {
	if f, ok := w.(http.Flusher); ok {
		return f.Flush
	}
	return func() {}
}
