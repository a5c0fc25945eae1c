package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// stderrTailLines bounds the diagnostic tail kept per process.
const stderrTailLines = 100

// waitDelay bounds how long Wait blocks on I/O after the process is
// cancelled, so a reader holding the stdout pipe cannot wedge teardown.
const waitDelay = 5 * time.Second

// Command is a single ffmpeg process, usually assembled from an
// Invocation. Start it once, then call Wait exactly once to reap it.
type Command struct {
	Binary string
	Args   []string

	mu         sync.Mutex
	cmd        *exec.Cmd
	stdout     io.ReadCloser
	stderr     *tailBuffer
	stderrDone chan struct{}
	monitor    *Monitor
	started    bool
	finished   bool
	startedAt  time.Time
}

// Start launches the process. When the output is OutputPipe the stdout
// pipe is available from Stdout after Start returns. A cancelled ctx
// kills the process.
func (c *Command) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return errors.New("ffmpeg: command already started")
	}

	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)
	cmd.WaitDelay = waitDelay

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if c.writesToPipe() {
		c.stdout, err = cmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("stdout pipe: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", c.Binary, err)
	}

	c.cmd = cmd
	c.started = true
	c.startedAt = time.Now()
	c.stderr = newTailBuffer(stderrTailLines)
	c.stderrDone = make(chan struct{})
	go c.captureStderr(stderr)

	c.monitor = NewMonitor(cmd.Process.Pid)
	c.monitor.Start()

	return nil
}

// Wait blocks until the process exits, then reports its status. Exit
// errors carry the last stderr line for diagnostics. Wait also stops
// the process monitor.
func (c *Command) Wait() error {
	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()

	if cmd == nil {
		return errors.New("ffmpeg: command not started")
	}

	err := cmd.Wait()
	<-c.stderrDone
	c.monitor.Stop()

	c.mu.Lock()
	c.finished = true
	c.mu.Unlock()

	if err != nil {
		if last := c.stderr.last(); last != "" {
			return fmt.Errorf("ffmpeg: %w: %s", err, last)
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

// Kill terminates the process immediately. Safe to call at any point in
// the lifecycle; the caller still has to Wait.
func (c *Command) Kill() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd == nil || c.cmd.Process == nil || c.finished {
		return nil
	}
	if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing ffmpeg: %w", err)
	}
	return nil
}

// Stdout returns the pipe carrying the muxed output. Only valid after
// Start, and only when the command writes to OutputPipe.
func (c *Command) Stdout() (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil, errors.New("ffmpeg: command not started")
	}
	if c.stdout == nil {
		return nil, errors.New("ffmpeg: command does not write to pipe:1")
	}
	return c.stdout, nil
}

// Running reports whether the process has been started and not yet
// reaped by Wait.
func (c *Command) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && !c.finished
}

// Duration returns how long the process has been running.
func (c *Command) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return 0
	}
	return time.Since(c.startedAt)
}

// Stats returns the latest monitor sample. The second return is false
// before Start.
func (c *Command) Stats() (ProcessStats, bool) {
	c.mu.Lock()
	monitor := c.monitor
	c.mu.Unlock()

	if monitor == nil {
		return ProcessStats{}, false
	}
	return monitor.Stats(), true
}

// StderrTail returns the most recent stderr lines.
func (c *Command) StderrTail() []string {
	c.mu.Lock()
	stderr := c.stderr
	c.mu.Unlock()

	if stderr == nil {
		return nil
	}
	return stderr.tail()
}

// String returns the full command line for logging.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// writesToPipe must be called with c.mu held.
func (c *Command) writesToPipe() bool {
	return len(c.Args) > 0 && c.Args[len(c.Args)-1] == OutputPipe
}

func (c *Command) captureStderr(r io.Reader) {
	defer close(c.stderrDone)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		c.stderr.add(scanner.Text())
	}
}

// tailBuffer keeps the last max lines written to it.
type tailBuffer struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		b.lines = b.lines[1:]
	}
}

func (b *tailBuffer) tail() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

func (b *tailBuffer) last() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) == 0 {
		return ""
	}
	return b.lines[len(b.lines)-1]
}
