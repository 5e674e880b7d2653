// Package health provides sync engine health reporting and the HTTP control surface.
package health

import "time"

// SystemStatus represents the overall health state of the engine or a symbol.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// SymbolHealth is the health of one tracked symbol, taken from the last cycle.
type SymbolHealth struct {
	Symbol     string        `json:"symbol"`
	Status     SystemStatus  `json:"status"`
	SyncStatus string        `json:"sync_status"`
	Age        time.Duration `json:"age,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

// SchedulerHealth describes the refresh loop.
type SchedulerHealth struct {
	Updating  bool          `json:"updating"`
	InFlight  bool          `json:"in_flight"`
	Frequency time.Duration `json:"frequency"`
	Lifecycle string        `json:"lifecycle,omitempty"`
}

// HealthReport contains the full engine health report.
type HealthReport struct {
	SystemStatus SystemStatus            `json:"system_status"`
	CycleID      string                  `json:"cycle_id,omitempty"`
	LastCycleAt  time.Time               `json:"last_cycle_at,omitzero"`
	Scheduler    SchedulerHealth         `json:"scheduler"`
	Symbols      map[string]SymbolHealth `json:"symbols"`
}
