// Package logbuffer captures recent log output in memory so the HTTP API can
// serve log history and live tails without touching files on disk.
package logbuffer

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/recast/internal/observability"
)

const (
	// DefaultMaxEntries is the maximum number of entries retained in memory.
	DefaultMaxEntries = 1000
	// DefaultSubscriberBuffer is the per-subscriber event buffer size.
	DefaultSubscriberBuffer = 100
	// HeartbeatInterval is how often live-tail connections receive a heartbeat.
	HeartbeatInterval = 30 * time.Second

	maxRecentErrors = 10
)

// Entry is a single captured log record.
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Receiver  string         `json:"receiver,omitempty"`
	Channel   string         `json:"channel,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Stats summarizes the captured log stream.
type Stats struct {
	TotalEntries  int64            `json:"total_entries"`
	ByLevel       map[string]int64 `json:"by_level"`
	ByComponent   map[string]int64 `json:"by_component"`
	RecentErrors  []Entry          `json:"recent_errors"`
	RatePerMinute float64          `json:"rate_per_minute"`
	Oldest        *time.Time       `json:"oldest_timestamp,omitempty"`
	Newest        *time.Time       `json:"newest_timestamp,omitempty"`
}

// Subscriber receives entries as they are captured.
type Subscriber struct {
	ID     string
	Events chan *Entry
	Done   chan struct{}
}

// Buffer is a bounded in-memory log store with live subscribers.
type Buffer struct {
	mu          sync.RWMutex
	entries     []Entry
	maxEntries  int
	subscribers map[string]*Subscriber
	total       int64
	byLevel     map[string]int64
	byComponent map[string]int64
	recent      []Entry
	startTime   time.Time
}

// New creates an empty buffer.
func New() *Buffer {
	return &Buffer{
		entries:     make([]Entry, 0, DefaultMaxEntries),
		maxEntries:  DefaultMaxEntries,
		subscribers: make(map[string]*Subscriber),
		byLevel:     make(map[string]int64),
		byComponent: make(map[string]int64),
		startTime:   time.Now(),
	}
}

// WrapHandler returns a slog.Handler that captures every record into the
// buffer and then delegates to the wrapped handler. Level filtering follows
// the wrapped handler, so the buffer only sees what actually gets logged.
func (b *Buffer) WrapHandler(handler slog.Handler) slog.Handler {
	return &captureHandler{buffer: b, wrapped: handler}
}

// Add records an entry, updates statistics, and broadcasts it to subscribers.
// Broadcast is non-blocking; slow subscribers miss entries rather than stall
// the logger.
func (b *Buffer) Add(entry Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	b.total++
	b.byLevel[entry.Level]++
	if entry.Component != "" {
		b.byComponent[entry.Component]++
	}

	if entry.Level == "error" {
		b.recent = append(b.recent, entry)
		if len(b.recent) > maxRecentErrors {
			b.recent = b.recent[1:]
		}
	}

	if len(b.entries) >= b.maxEntries {
		b.entries = b.entries[1:]
	}
	b.entries = append(b.entries, entry)

	for _, sub := range b.subscribers {
		select {
		case sub.Events <- &entry:
		default:
		}
	}
}

// Subscribe registers a live-tail subscriber. The subscription ends when the
// context is cancelled or Done is closed.
func (b *Buffer) Subscribe(ctx context.Context) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscriber{
		ID:     ulid.Make().String(),
		Events: make(chan *Entry, DefaultSubscriberBuffer),
		Done:   make(chan struct{}),
	}
	b.subscribers[sub.ID] = sub

	go func() {
		select {
		case <-ctx.Done():
		case <-sub.Done:
		}
		b.Unsubscribe(sub.ID)
	}()

	return sub
}

// Unsubscribe removes a subscriber and closes its event channel.
func (b *Buffer) Unsubscribe(subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[subscriberID]; ok {
		close(sub.Events)
		delete(b.subscribers, subscriberID)
	}
}

// Recent returns the newest entries up to limit, oldest first. A limit of
// zero or less returns everything retained.
func (b *Buffer) Recent(limit int) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if limit <= 0 || limit > len(b.entries) {
		limit = len(b.entries)
	}
	return slices.Clone(b.entries[len(b.entries)-limit:])
}

// Stats returns a snapshot of the stream statistics.
func (b *Buffer) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := Stats{
		TotalEntries: b.total,
		ByLevel:      make(map[string]int64),
		ByComponent:  make(map[string]int64),
		RecentErrors: make([]Entry, len(b.recent)),
	}

	maps.Copy(stats.ByLevel, b.byLevel)
	for _, level := range levelLabels {
		if _, ok := stats.ByLevel[level]; !ok {
			stats.ByLevel[level] = 0
		}
	}
	maps.Copy(stats.ByComponent, b.byComponent)
	copy(stats.RecentErrors, b.recent)

	if elapsed := time.Since(b.startTime).Minutes(); elapsed > 0 {
		stats.RatePerMinute = float64(b.total) / elapsed
	}

	if len(b.entries) > 0 {
		oldest := b.entries[0].Timestamp
		newest := b.entries[len(b.entries)-1].Timestamp
		stats.Oldest = &oldest
		stats.Newest = &newest
	}

	return stats
}

// SubscriberCount reports how many live tails are attached.
func (b *Buffer) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// presetAttr is an attribute added via Logger.With, remembered together with
// the group path that was open when it was added.
type presetAttr struct {
	groups []string
	attr   slog.Attr
}

// captureHandler tees records into the buffer before the wrapped handler
// writes them.
type captureHandler struct {
	buffer  *Buffer
	wrapped slog.Handler
	preset  []presetAttr
	groups  []string
}

func (h *captureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.wrapped.Enabled(ctx, level)
}

func (h *captureHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := Entry{
		ID:        ulid.Make().String(),
		Timestamp: r.Time,
		Level:     levelLabel(r.Level),
		Message:   r.Message,
		Fields:    make(map[string]any),
	}

	for _, p := range h.preset {
		addAttr(&entry, p.groups, p.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(&entry, h.groups, a)
		return true
	})

	if len(entry.Fields) == 0 {
		entry.Fields = nil
	}

	h.buffer.Add(entry)
	return h.wrapped.Handle(ctx, r)
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	preset := make([]presetAttr, len(h.preset), len(h.preset)+len(attrs))
	copy(preset, h.preset)
	for _, a := range attrs {
		preset = append(preset, presetAttr{groups: h.groups, attr: a})
	}
	return &captureHandler{
		buffer:  h.buffer,
		wrapped: h.wrapped.WithAttrs(attrs),
		preset:  preset,
		groups:  h.groups,
	}
}

func (h *captureHandler) WithGroup(name string) slog.Handler {
	groups := make([]string, len(h.groups)+1)
	copy(groups, h.groups)
	groups[len(h.groups)] = name
	return &captureHandler{
		buffer:  h.buffer,
		wrapped: h.wrapped.WithGroup(name),
		preset:  h.preset,
		groups:  groups,
	}
}

// addAttr flattens an attribute into the entry. Group members get dotted
// keys. Credentials are masked here as well, since the buffer sees records
// before the output handler's redaction runs.
func addAttr(entry *Entry, groups []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	attr.Value = attr.Value.Resolve()

	if attr.Value.Kind() == slog.KindGroup {
		nested := append(append([]string{}, groups...), attr.Key)
		for _, member := range attr.Value.Group() {
			addAttr(entry, nested, member)
		}
		return
	}

	attr = observability.RedactAttr(groups, attr)

	if len(groups) == 0 {
		switch attr.Key {
		case "component":
			if s, ok := attr.Value.Any().(string); ok {
				entry.Component = s
				return
			}
		case "receiver":
			if s, ok := attr.Value.Any().(string); ok {
				entry.Receiver = s
				return
			}
		case "channel":
			if s, ok := attr.Value.Any().(string); ok {
				entry.Channel = s
				return
			}
		}
	}

	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + attr.Key
	}
	entry.Fields[key] = attr.Value.Any()
}

// levelLabels holds every level name the API reports, in severity order.
var levelLabels = []string{"trace", "debug", "info", "warn", "error"}

// levelLabel converts a slog.Level to the level names used by the API.
func levelLabel(level slog.Level) string {
	switch {
	case level < slog.LevelDebug:
		return "trace"
	case level < slog.LevelInfo:
		return "debug"
	case level < slog.LevelWarn:
		return "info"
	case level < slog.LevelError:
		return "warn"
	default:
		return "error"
	}
}
