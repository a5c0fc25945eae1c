// Package recorder captures committed sessions to disk and maintains
// the recordings catalog. A capture owns its receiver from the moment
// the hand-off succeeds until the ffmpeg process exits, then releases
// it through the standard pool path.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/recast/internal/config"
	"github.com/jmylchreest/recast/internal/ffmpeg"
	"github.com/jmylchreest/recast/internal/models"
	"github.com/jmylchreest/recast/internal/pool"
	"github.com/jmylchreest/recast/internal/repository"
	"github.com/jmylchreest/recast/internal/session"
	"github.com/jmylchreest/recast/pkg/format"
)

// ErrNotFound is returned when a recording id is not in the catalog.
var ErrNotFound = errors.New("recording not found")

// ErrInProgress is returned when deleting a recording whose capture is
// still running. Stop the session first.
var ErrInProgress = errors.New("recording in progress")

// sweepParser accepts 6-field cron expressions (seconds resolution) and
// @-descriptors.
var sweepParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Status describes one active capture for the status surface.
type Status struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Receiver        string    `json:"receiver"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds int       `json:"duration_seconds"`
	SizeBytes       int64     `json:"size_bytes"`
	CPUPercent      float64   `json:"cpu_percent"`
	MemoryRSS       uint64    `json:"memory_rss"`
}

type capture struct {
	recording *models.Recording
	cmd       *ffmpeg.Command
}

// Recorder runs bounded ffmpeg captures and the retention sweeper.
type Recorder struct {
	cfg       config.RecordingsConfig
	repo      repository.RecordingRepository
	pool      *pool.Pool
	ffmpegBin string
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]*capture
}

// New creates a recorder. Captures started later are bound to the
// recorder's lifetime and killed by Stop.
func New(cfg config.RecordingsConfig, repo repository.RecordingRepository, p *pool.Pool, ffmpegBin string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Recorder{
		cfg:       cfg,
		repo:      repo,
		pool:      p,
		ffmpegBin: ffmpegBin,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		active:    make(map[string]*capture),
	}
}

// Record begins capturing the receiver's source for the given length.
// On a nil return the recording workflow owns the receiver and releases
// it when the capture ends; on error ownership stays with the caller.
func (r *Recorder) Record(receiver *pool.Receiver, duration time.Duration, title string) error {
	if duration <= 0 {
		return fmt.Errorf("duration must be positive, got %v", duration)
	}
	if receiver.Source == "" {
		return fmt.Errorf("receiver %s has no source url", receiver.Name)
	}
	if err := os.MkdirAll(r.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("creating recordings dir: %w", err)
	}
	if title == "" {
		title = "Untitled recording"
	}

	id := models.NewULID()
	rec := &models.Recording{
		Model:           models.Model{ID: id},
		Title:           title,
		Receiver:        receiver.Name,
		SourceURL:       receiver.Source,
		FilePath:        filepath.Join(r.cfg.Dir, id.String()+".ts"),
		DurationSeconds: int(duration.Seconds()),
		Status:          models.RecordingStatusRecording,
		StartedAt:       time.Now(),
	}
	if err := r.repo.Create(r.ctx, rec); err != nil {
		return fmt.Errorf("creating catalog row: %w", err)
	}

	cmd := r.buildCaptureCommand(receiver.Source, duration, rec.FilePath)
	if err := cmd.Start(r.ctx); err != nil {
		r.fail(rec, err)
		return fmt.Errorf("starting capture: %w", err)
	}

	c := &capture{recording: rec, cmd: cmd}
	r.mu.Lock()
	r.active[id.String()] = c
	r.mu.Unlock()

	r.wg.Add(1)
	go r.watch(c)

	r.logger.Info("recording started",
		"id", id.String(),
		"receiver", receiver.Name,
		"title", title,
		"duration", duration,
		"file", rec.FilePath)
	return nil
}

// watch waits for the capture to finish, finalizes the catalog row, and
// releases the receiver last so the row is settled before the receiver
// can be re-allocated.
func (r *Recorder) watch(c *capture) {
	defer r.wg.Done()
	rec := c.recording
	defer r.pool.Release(rec.Receiver)

	err := c.cmd.Wait()

	r.mu.Lock()
	delete(r.active, rec.ID.String())
	r.mu.Unlock()

	now := time.Now()
	rec.CompletedAt = &now
	if info, statErr := os.Stat(rec.FilePath); statErr == nil {
		rec.SizeBytes = info.Size()
	}
	if err != nil {
		rec.Status = models.RecordingStatusFailed
		rec.Error = err.Error()
	} else {
		rec.Status = models.RecordingStatusCompleted
	}

	// Deliberately not r.ctx: the final row update must land even
	// during shutdown.
	if uerr := r.repo.Update(context.Background(), rec); uerr != nil {
		r.logger.Error("updating recording row", "id", rec.ID.String(), "error", uerr)
	}

	if err != nil {
		r.logger.Warn("recording failed",
			"id", rec.ID.String(),
			"receiver", rec.Receiver,
			"error", err)
		return
	}
	r.logger.Info("recording completed",
		"id", rec.ID.String(),
		"receiver", rec.Receiver,
		"bytes", rec.SizeBytes,
		"file", rec.FilePath)
}

func (r *Recorder) fail(rec *models.Recording, cause error) {
	now := time.Now()
	rec.CompletedAt = &now
	rec.Status = models.RecordingStatusFailed
	rec.Error = cause.Error()
	if err := r.repo.Update(context.Background(), rec); err != nil {
		r.logger.Error("updating recording row", "id", rec.ID.String(), "error", err)
	}
}

func (r *Recorder) buildCaptureCommand(source string, d time.Duration, path string) *ffmpeg.Command {
	return ffmpeg.Invocation{
		Source:    source,
		Reconnect: strings.HasPrefix(source, "http"),
		Duration:  d,
		Overwrite: true,
		Output:    path,
	}.Command(r.ffmpegBin)
}

// Active returns the running captures, oldest first.
func (r *Recorder) Active() []Status {
	r.mu.Lock()
	captures := make([]*capture, 0, len(r.active))
	for _, c := range r.active {
		captures = append(captures, c)
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(captures))
	for _, c := range captures {
		rec := c.recording
		s := Status{
			ID:              rec.ID.String(),
			Title:           rec.Title,
			Receiver:        rec.Receiver,
			StartedAt:       rec.StartedAt,
			DurationSeconds: rec.DurationSeconds,
		}
		if info, err := os.Stat(rec.FilePath); err == nil {
			s.SizeBytes = info.Size()
		}
		if stats, ok := c.cmd.Stats(); ok {
			s.CPUPercent = stats.CPUPercent
			s.MemoryRSS = stats.MemoryRSS
		}
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Remove deletes a recording's capture file and catalog row. Running
// captures must be stopped first.
func (r *Recorder) Remove(ctx context.Context, id models.ULID) error {
	rec, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNotFound
	}
	if rec.InProgress() {
		return ErrInProgress
	}

	if rec.FilePath != "" {
		if err := os.Remove(rec.FilePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing capture file: %w", err)
		}
	}
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.logger.Info("recording removed", "id", id.String())
	return nil
}

// Start launches the retention sweeper. An empty schedule or
// non-positive retention disables sweeping.
func (r *Recorder) Start() error {
	if r.cfg.SweepSchedule == "" || r.cfg.Retention <= 0 {
		return nil
	}
	sched, err := sweepParser.Parse(r.cfg.SweepSchedule)
	if err != nil {
		return fmt.Errorf("parsing sweep schedule %q: %w", r.cfg.SweepSchedule, err)
	}

	r.wg.Add(1)
	go r.sweepLoop(sched)

	r.logger.Info("retention sweeper started",
		"cron", r.cfg.SweepSchedule,
		"schedule", format.CronDescription(r.cfg.SweepSchedule),
		"retention", r.cfg.Retention)
	return nil
}

func (r *Recorder) sweepLoop(sched cron.Schedule) {
	defer r.wg.Done()
	for {
		next := sched.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-r.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.sweep()
		}
	}
}

// sweep removes finished recordings older than the retention window,
// file first so a failed unlink keeps the row visible for the next run.
func (r *Recorder) sweep() {
	cutoff := time.Now().Add(-r.cfg.Retention)
	rows, err := r.repo.GetFinishedBefore(r.ctx, cutoff)
	if err != nil {
		r.logger.Error("listing expired recordings", "error", err)
		return
	}

	removed, freed := 0, int64(0)
	for _, rec := range rows {
		if rec.FilePath != "" {
			if err := os.Remove(rec.FilePath); err != nil && !os.IsNotExist(err) {
				r.logger.Warn("removing expired capture file",
					"id", rec.ID.String(),
					"error", err)
				continue
			}
		}
		if err := r.repo.Delete(r.ctx, rec.ID); err != nil {
			r.logger.Warn("deleting expired catalog row",
				"id", rec.ID.String(),
				"error", err)
			continue
		}
		removed++
		freed += rec.SizeBytes
	}

	if removed > 0 {
		r.logger.Info("retention sweep complete",
			"removed", removed,
			"freed", format.Bytes(freed),
			"cutoff", cutoff)
	}
}

// Stop cancels active captures and the sweeper, waiting up to ctx for
// catalog updates to land.
func (r *Recorder) Stop(ctx context.Context) error {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ session.Recorder = (*Recorder)(nil)
