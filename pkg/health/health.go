// Package health runs periodic heartbeat probes over registered
// components and aggregates them into an overall status.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Component statuses.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const (
	defaultInterval    = 60 * time.Second
	defaultHistorySize = 24
	probeTimeout       = 10 * time.Second
)

// Probe checks one component. It should return quickly; the monitor
// enforces a deadline through ctx.
type Probe func(ctx context.Context) ComponentStatus

// ComponentStatus is one probe outcome.
type ComponentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Snapshot is one full heartbeat: per-component statuses plus the
// aggregate.
type Snapshot struct {
	Overall    string                     `json:"overall"`
	Components map[string]ComponentStatus `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
	DurationMS int64                      `json:"duration_ms"`
}

// Monitor owns the probe registry and a bounded snapshot history.
type Monitor struct {
	interval    time.Duration
	historySize int

	mu      sync.Mutex
	probes  map[string]Probe
	history []Snapshot
	latest  *Snapshot
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// New creates a monitor. Zero values fall back to a 60s interval and 24
// history entries.
func New(interval time.Duration, historySize int) *Monitor {
	if interval <= 0 {
		interval = defaultInterval
	}
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	return &Monitor{
		interval:    interval,
		historySize: historySize,
		probes:      make(map[string]Probe),
	}
}

// Register adds or replaces a probe under a component name.
func (m *Monitor) Register(name string, probe Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[name] = probe
}

// Start launches the heartbeat loop. Idempotent.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.loop()
	slog.Info("Heartbeat monitor started", "interval", m.interval)
}

// Stop halts the loop and joins it. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	done := m.done
	m.mu.Unlock()

	<-done
	slog.Info("Heartbeat monitor stopped")
}

func (m *Monitor) loop() {
	defer close(m.done)

	m.CheckNow(context.Background())

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.CheckNow(context.Background())
		}
	}
}

// CheckNow runs every probe once and records the snapshot.
func (m *Monitor) CheckNow(ctx context.Context) Snapshot {
	m.mu.Lock()
	probes := make(map[string]Probe, len(m.probes))
	for name, p := range m.probes {
		probes[name] = p
	}
	m.mu.Unlock()

	start := time.Now()
	components := make(map[string]ComponentStatus, len(probes))
	for name, probe := range probes {
		components[name] = runProbe(ctx, name, probe)
	}

	snapshot := Snapshot{
		Overall:    aggregate(components),
		Components: components,
		Timestamp:  start.UTC(),
		DurationMS: time.Since(start).Milliseconds(),
	}

	m.mu.Lock()
	m.latest = &snapshot
	m.history = append(m.history, snapshot)
	if len(m.history) > m.historySize {
		m.history = m.history[len(m.history)-m.historySize:]
	}
	m.mu.Unlock()

	if snapshot.Overall != StatusHealthy {
		slog.Warn("Heartbeat reported problems", "overall", snapshot.Overall,
			"failing", failingComponents(components))
	}
	return snapshot
}

// Status returns the latest snapshot, running a check first if none
// exists yet.
func (m *Monitor) Status(ctx context.Context) Snapshot {
	m.mu.Lock()
	latest := m.latest
	m.mu.Unlock()
	if latest == nil {
		return m.CheckNow(ctx)
	}
	return *latest
}

// History returns up to limit most recent snapshots, oldest first.
func (m *Monitor) History(limit int) []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.history
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]Snapshot, len(history))
	copy(out, history)
	return out
}

// runProbe executes one probe under a deadline, turning panics and
// timeouts into unhealthy results.
func runProbe(ctx context.Context, name string, probe Probe) (status ComponentStatus) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	result := make(chan ComponentStatus, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- ComponentStatus{
					Status:  StatusUnhealthy,
					Message: fmt.Sprintf("probe panicked: %v", r),
				}
			}
		}()
		result <- probe(ctx)
	}()

	select {
	case status = <-result:
		return status
	case <-ctx.Done():
		slog.Warn("Health probe timed out", "component", name)
		return ComponentStatus{Status: StatusUnhealthy, Message: "probe timed out"}
	}
}

// aggregate maps component statuses to the overall value: healthy when
// everything is healthy, unhealthy when anything is, degraded otherwise.
func aggregate(components map[string]ComponentStatus) string {
	if len(components) == 0 {
		return StatusHealthy
	}
	overall := StatusHealthy
	for _, c := range components {
		switch c.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

func failingComponents(components map[string]ComponentStatus) []string {
	var failing []string
	for name, c := range components {
		if c.Status != StatusHealthy {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)
	return failing
}

// Healthy is a convenience result for probes with nothing to report.
func Healthy() ComponentStatus { return ComponentStatus{Status: StatusHealthy} }

// Degraded builds a degraded result with a reason.
func Degraded(format string, args ...any) ComponentStatus {
	return ComponentStatus{Status: StatusDegraded, Message: fmt.Sprintf(format, args...)}
}

// Unhealthy builds an unhealthy result with a reason.
func Unhealthy(format string, args ...any) ComponentStatus {
	return ComponentStatus{Status: StatusUnhealthy, Message: fmt.Sprintf(format, args...)}
}
