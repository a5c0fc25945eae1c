// Package tuner drives a receiver's Roku to the requested channel in
// the background while the streaming pipeline is already serving
// filler. Tuning is best effort: a failed tune leaves the viewer on
// whatever screen the app reached, never a broken stream.
package tuner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/recast/internal/config"
	"github.com/jmylchreest/recast/internal/ecp"
	"github.com/jmylchreest/recast/internal/pool"
)

const (
	defaultSettleDelay  = 8 * time.Second
	defaultConfirmKey   = "Select"
	defaultConfirmDelay = 3 * time.Second
	defaultMediaType    = "live"
)

// Step is one unit of a tuning script: either a keypress or an inline
// pause. Exactly one of Key or Wait is meaningful.
type Step struct {
	Key  string
	Wait time.Duration
}

// Plugin builds a scripted step sequence for channels whose apps need
// guide navigation instead of a deep link.
type Plugin interface {
	BuildSteps(receiver *pool.Receiver, channel config.Channel) ([]Step, error)
}

// Registry maps plugin names to implementations.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

// NewRegistry returns a registry with the built-in plugins registered.
func NewRegistry() *Registry {
	r := &Registry{plugins: make(map[string]Plugin)}
	r.Register("fubo", FuboPlugin{})
	return r
}

// Register adds or replaces a plugin.
func (r *Registry) Register(name string, p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[name] = p
}

// Get looks up a plugin by name.
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// Names returns the registered plugin names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tuner executes the launch-settle-navigate routine against receivers.
type Tuner struct {
	cfg     config.TuningConfig
	fleet   *ecp.Fleet
	plugins *Registry
	logger  *slog.Logger
}

// New creates a tuner. A nil registry gets the built-in plugins.
func New(cfg config.TuningConfig, fleet *ecp.Fleet, plugins *Registry, logger *slog.Logger) *Tuner {
	if plugins == nil {
		plugins = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tuner{
		cfg:     cfg,
		fleet:   fleet,
		plugins: plugins,
		logger:  logger,
	}
}

// Tune launches the channel's app on the receiver, waits for it to
// settle, then runs exactly one navigation strategy: scripted plugin,
// literal key sequence, or deep link, in that order of preference. Runs
// on its own goroutine, never on the streaming path.
func (t *Tuner) Tune(ctx context.Context, receiver *pool.Receiver, channel config.Channel) error {
	started := time.Now()
	client := t.fleet.Client(receiver.Control)

	t.logger.Info("tuning receiver",
		"receiver", receiver.Name,
		"channel", channel.ID,
		"app_id", channel.AppID)

	if err := client.Launch(ctx, channel.AppID); err != nil {
		return fmt.Errorf("launching app %s: %w", channel.AppID, err)
	}
	if err := sleepCtx(ctx, t.settleDelay()); err != nil {
		return err
	}

	strategy, err := t.runStrategy(ctx, client, receiver, channel)
	if err != nil {
		return fmt.Errorf("%s strategy: %w", strategy, err)
	}

	if channel.Confirm {
		if err := sleepCtx(ctx, t.confirmDelay()); err != nil {
			return err
		}
		if err := client.Keypress(ctx, t.confirmKey()); err != nil {
			return fmt.Errorf("confirm keypress: %w", err)
		}
	}

	t.logger.Info("tune complete",
		"receiver", receiver.Name,
		"channel", channel.ID,
		"strategy", strategy,
		"took", time.Since(started).Round(time.Millisecond))
	return nil
}

func (t *Tuner) runStrategy(ctx context.Context, client *ecp.Client, receiver *pool.Receiver, channel config.Channel) (string, error) {
	switch {
	case channel.Plugin != "":
		plugin, ok := t.plugins.Get(channel.Plugin)
		if !ok {
			return "plugin", fmt.Errorf("unknown plugin %q", channel.Plugin)
		}
		steps, err := plugin.BuildSteps(receiver, channel)
		if err != nil {
			return "plugin", fmt.Errorf("building steps: %w", err)
		}
		return "plugin", t.runSteps(ctx, client, steps)

	case len(channel.KeySequence) > 0:
		steps, err := ParseSequence(channel.KeySequence)
		if err != nil {
			return "sequence", err
		}
		return "sequence", t.runSteps(ctx, client, steps)

	case channel.ContentID != "":
		mediaType := channel.MediaType
		if mediaType == "" {
			mediaType = defaultMediaType
		}
		return "deeplink", client.LaunchContent(ctx, channel.AppID, channel.ContentID, mediaType)
	}

	// The app launch itself was the whole tune.
	return "launch", nil
}

// runSteps consumes waits inline. There is no implicit delay between
// keys; sequences that need pacing carry explicit waits.
func (t *Tuner) runSteps(ctx context.Context, client *ecp.Client, steps []Step) error {
	for _, step := range steps {
		if step.Wait > 0 {
			if err := sleepCtx(ctx, step.Wait); err != nil {
				return err
			}
			continue
		}
		if err := client.Keypress(ctx, step.Key); err != nil {
			return fmt.Errorf("keypress %s: %w", step.Key, err)
		}
	}
	return nil
}

func (t *Tuner) settleDelay() time.Duration {
	if t.cfg.SettleDelay > 0 {
		return t.cfg.SettleDelay
	}
	return defaultSettleDelay
}

func (t *Tuner) confirmKey() string {
	if t.cfg.ConfirmKey != "" {
		return t.cfg.ConfirmKey
	}
	return defaultConfirmKey
}

func (t *Tuner) confirmDelay() time.Duration {
	if t.cfg.ConfirmDelay > 0 {
		return t.cfg.ConfirmDelay
	}
	return defaultConfirmDelay
}

// ParseSequence converts a literal key sequence into steps. Entries are
// key names, except "wait:SECONDS" which pauses inline (fractional
// seconds allowed).
func ParseSequence(seq []string) ([]Step, error) {
	steps := make([]Step, 0, len(seq))
	for _, entry := range seq {
		if rest, ok := strings.CutPrefix(entry, "wait:"); ok {
			secs, err := strconv.ParseFloat(rest, 64)
			if err != nil || secs < 0 {
				return nil, fmt.Errorf("invalid wait entry %q", entry)
			}
			steps = append(steps, Step{Wait: time.Duration(secs * float64(time.Second))})
			continue
		}
		if entry == "" {
			return nil, errors.New("empty key in sequence")
		}
		steps = append(steps, Step{Key: entry})
	}
	return steps, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
