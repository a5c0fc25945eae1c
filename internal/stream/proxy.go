package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// errClientGone marks a failed write to the consumer. Not worth a
// source reopen; the only party that wanted the bytes has left.
var errClientGone = errors.New("client disconnected")

// streamProxy copies the source body verbatim, reopening the GET with
// backoff when the source side fails. A source that streamed for at
// least MinRunTime before failing resets the attempt counter.
func (c *Coordinator) streamProxy(ctx context.Context, source string, w io.Writer, flush func()) error {
	attempts := 0
	for {
		started := time.Now()
		err := c.copySource(ctx, source, w, flush)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, errClientGone) {
			return err
		}

		if time.Since(started) >= c.retry.MinRunTime {
			attempts = 0
		}
		attempts++
		if attempts > c.retry.MaxAttempts {
			return fmt.Errorf("source failed after %d reopen attempts: %w", c.retry.MaxAttempts, err)
		}

		delay := c.retry.Delay(attempts)
		c.logger.Warn("reopening source",
			"source", redactURL(source),
			"attempt", attempts,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// copySource performs one GET lifecycle against the source.
func (c *Coordinator) copySource(ctx context.Context, source string, w io.Writer, flush func()) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return fmt.Errorf("building source request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("source returned %s", resp.Status)
	}

	return copyChunks(ctx, resp.Body, w, flush, c.chunkSize())
}

// copyChunks moves bytes until EOF, classifying which side broke.
// Writer failures are the client's, wrapped as errClientGone; reader
// failures belong to the source and may be retried by the caller.
func copyChunks(ctx context.Context, r io.Reader, w io.Writer, flush func(), chunkSize int) error {
	buf := make([]byte, chunkSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return fmt.Errorf("%w: %v", errClientGone, werr)
			}
			flush()
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading source: %w", rerr)
		}
	}
}
