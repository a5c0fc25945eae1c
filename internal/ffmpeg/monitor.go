package ffmpeg

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// monitorInterval is how often a running process is sampled.
const monitorInterval = time.Second

// ProcessStats is a point-in-time sample of a running capture or
// transcode process.
type ProcessStats struct {
	PID           int32     `json:"pid"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryRSS     uint64    `json:"memory_rss"`
	MemoryPercent float32   `json:"memory_percent"`
	StartedAt     time.Time `json:"started_at"`
	SampledAt     time.Time `json:"sampled_at"`
}

// Monitor periodically samples CPU and memory usage of one process.
type Monitor struct {
	pid       int32
	proc      *process.Process
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	stats ProcessStats
}

// NewMonitor creates a monitor for the given PID. A PID that cannot be
// inspected (already exited, restricted /proc) yields a monitor that
// only reports identity, never usage.
func NewMonitor(pid int) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		pid:       int32(pid),
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	if proc, err := process.NewProcess(m.pid); err == nil {
		m.proc = proc
	}
	m.stats = ProcessStats{PID: m.pid, StartedAt: m.startedAt}
	return m
}

// Start begins sampling in the background.
func (m *Monitor) Start() {
	if m.proc == nil {
		return
	}
	m.wg.Add(1)
	go m.loop()
}

// Stop ends sampling and waits for the sampler to exit.
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Stats returns the latest sample.
func (m *Monitor) Stats() ProcessStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	m.sample()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	if m.proc == nil {
		return
	}

	s := ProcessStats{
		PID:       m.pid,
		StartedAt: m.startedAt,
		SampledAt: time.Now(),
	}

	if cpu, err := m.proc.CPUPercentWithContext(m.ctx); err == nil {
		s.CPUPercent = cpu
	}
	if mem, err := m.proc.MemoryInfoWithContext(m.ctx); err == nil && mem != nil {
		s.MemoryRSS = mem.RSS
	}
	if pct, err := m.proc.MemoryPercentWithContext(m.ctx); err == nil {
		s.MemoryPercent = pct
	}

	m.mu.Lock()
	m.stats = s
	m.mu.Unlock()
}
