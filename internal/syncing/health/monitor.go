package health

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vietddude/metalsync/internal/core/domain"
)

// checkInterval bounds how often a full report is rebuilt.
const checkInterval = 10 * time.Second

// Engine is the part of the sync engine the monitor reads.
type Engine interface {
	Last() (domain.BatchResult, bool)
	Frequency() time.Duration
	IsUpdating() bool
	InFlight() bool
}

// LifecycleReporter reports the current lifecycle phase.
type LifecycleReporter interface {
	State() domain.AppState
}

// Monitor aggregates health status from the engine's last cycle.
type Monitor struct {
	engine    Engine
	lifecycle LifecycleReporter
	clock     clockwork.Clock

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *HealthReport
}

// NewMonitor creates a new health monitor. lifecycle may be nil.
func NewMonitor(engine Engine, lifecycle LifecycleReporter, clock clockwork.Clock) *Monitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Monitor{
		engine:    engine,
		lifecycle: lifecycle,
		clock:     clock,
	}
}

// CheckHealth builds a health report, reusing the previous one for checkInterval.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if m.lastReport != nil && now.Sub(m.lastCheck) < checkInterval {
		return *m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Scheduler: SchedulerHealth{
			Updating:  m.engine.IsUpdating(),
			InFlight:  m.engine.InFlight(),
			Frequency: m.engine.Frequency(),
		},
		Symbols: make(map[string]SymbolHealth),
	}
	if m.lifecycle != nil {
		report.Scheduler.Lifecycle = string(m.lifecycle.State())
	}

	batch, ok := m.engine.Last()
	if !ok {
		// Nothing refreshed yet.
		report.SystemStatus = StatusDegraded
		m.store(now, report)
		return report
	}

	report.CycleID = batch.CycleID
	report.LastCycleAt = batch.CompletedAt

	for symbol, item := range batch.Items {
		h := SymbolHealth{
			Symbol:     string(symbol),
			SyncStatus: string(item.Status),
			Age:        item.Age,
			Reason:     string(item.Reason),
		}
		switch item.Status {
		case domain.SyncStatusFailed:
			h.Status = StatusCritical
		case domain.SyncStatusStale:
			h.Status = StatusDegraded
		default:
			h.Status = StatusHealthy
		}
		report.Symbols[string(symbol)] = h
		report.SystemStatus = worst(report.SystemStatus, h.Status)
	}

	// A live loop that missed several periods is stalled.
	if report.Scheduler.Updating && now.Sub(batch.CompletedAt) > 3*report.Scheduler.Frequency {
		report.SystemStatus = worst(report.SystemStatus, StatusDegraded)
	}

	m.store(now, report)
	return report
}

func (m *Monitor) store(now time.Time, report HealthReport) {
	m.lastCheck = now
	m.lastReport = &report
}

func worst(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
