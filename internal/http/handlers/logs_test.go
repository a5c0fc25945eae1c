package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/recast/internal/logbuffer"
)

func TestLogsHandler_GetRecentLogs(t *testing.T) {
	buf := logbuffer.New()
	h := NewLogsHandler(buf).WithLogger(discardLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		buf.Add(logbuffer.Entry{Level: "info", Message: fmt.Sprintf("msg %d", i), Component: "pool"})
	}
	buf.Add(logbuffer.Entry{Level: "error", Message: "boom", Component: "stream"})

	resp, err := h.GetRecentLogs(ctx, &GetLogsInput{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, resp.Body.Logs, 6)

	t.Run("limit keeps the newest", func(t *testing.T) {
		resp, err := h.GetRecentLogs(ctx, &GetLogsInput{Limit: 2})
		require.NoError(t, err)
		require.Len(t, resp.Body.Logs, 2)
		assert.Equal(t, "msg 4", resp.Body.Logs[0].Message)
		assert.Equal(t, "boom", resp.Body.Logs[1].Message)
	})

	t.Run("level filter", func(t *testing.T) {
		resp, err := h.GetRecentLogs(ctx, &GetLogsInput{Limit: 100, Level: "error"})
		require.NoError(t, err)
		require.Len(t, resp.Body.Logs, 1)
		assert.Equal(t, "boom", resp.Body.Logs[0].Message)
	})

	t.Run("zero limit falls back to the default", func(t *testing.T) {
		resp, err := h.GetRecentLogs(ctx, &GetLogsInput{})
		require.NoError(t, err)
		assert.Len(t, resp.Body.Logs, 6)
	})
}

func TestLogsHandler_GetStats(t *testing.T) {
	buf := logbuffer.New()
	h := NewLogsHandler(buf).WithLogger(discardLogger())

	buf.Add(logbuffer.Entry{Level: "info", Message: "fine", Component: "pool"})
	buf.Add(logbuffer.Entry{Level: "error", Message: "boom", Component: "stream"})

	resp, err := h.GetStats(context.Background(), &GetLogStatsInput{})
	require.NoError(t, err)

	assert.Equal(t, int64(2), resp.Body.TotalEntries)
	assert.Equal(t, "2", resp.Body.TotalHuman)
	assert.Equal(t, int64(1), resp.Body.ByLevel["info"])
	assert.Equal(t, int64(1), resp.Body.ByLevel["error"])
	assert.Equal(t, int64(1), resp.Body.ByComponent["pool"])
	require.Len(t, resp.Body.RecentErrors, 1)
	assert.Equal(t, "boom", resp.Body.RecentErrors[0].Message)
}

func TestReplayCount(t *testing.T) {
	assert.Equal(t, 50, replayCount(""), "absent parameter")
	assert.Equal(t, 0, replayCount("0"), "explicit zero disables replay")
	assert.Equal(t, 10, replayCount("10"))
	assert.Equal(t, 500, replayCount("9999"), "clamped to the ring size bound")
	assert.Equal(t, 50, replayCount("-3"))
	assert.Equal(t, 50, replayCount("soon"))
}

func TestLogsHandler_SSEStream(t *testing.T) {
	buf := logbuffer.New()
	h := NewLogsHandler(buf).WithLogger(discardLogger())
	h.heartbeatInterval = 50 * time.Millisecond

	buf.Add(logbuffer.Entry{Level: "info", Message: "first"})
	buf.Add(logbuffer.Entry{Level: "info", Message: "second"})

	router := chi.NewRouter()
	h.RegisterChiRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/logs/stream?initial=10", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	type result struct {
		messages []string
		err      error
	}
	results := make(chan result, 1)
	go func() {
		var messages []string
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var entry logbuffer.Entry
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &entry); err != nil {
				results <- result{err: err}
				return
			}
			messages = append(messages, entry.Message)
			switch len(messages) {
			case 2:
				// Replay delivered; push one live entry.
				buf.Add(logbuffer.Entry{Level: "warn", Message: "third"})
			case 3:
				results <- result{messages: messages}
				return
			}
		}
		results <- result{err: scanner.Err()}
	}()

	select {
	case res := <-results:
		require.NoError(t, res.err)
		assert.Equal(t, []string{"first", "second", "third"}, res.messages)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for SSE events")
	}
}
