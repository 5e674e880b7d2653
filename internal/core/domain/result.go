package domain

import "time"

// SyncStatus discriminates a SyncResult.
type SyncStatus string

const (
	SyncStatusFresh  SyncStatus = "fresh"
	SyncStatusStale  SyncStatus = "stale"
	SyncStatusFailed SyncStatus = "failed"
)

// SyncResult is the outcome of one refresh for one symbol.
// Build it with Fresh, Stale or Failed; the zero value is not meaningful.
type SyncResult struct {
	Symbol    Symbol        `json:"symbol"`
	Status    SyncStatus    `json:"status"`
	Quote     *Quote        `json:"quote,omitempty"`
	Timestamp time.Time     `json:"timestamp,omitzero"`
	Age       time.Duration `json:"age,omitempty"`
	Reason    ErrorKind     `json:"reason,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// Fresh wraps a quote fetched during this cycle.
func Fresh(q Quote, at time.Time) SyncResult {
	return SyncResult{
		Symbol:    q.Symbol,
		Status:    SyncStatusFresh,
		Quote:     &q,
		Timestamp: at,
	}
}

// Stale wraps a cached quote served because the fetch failed.
func Stale(q Quote, age time.Duration, reason ErrorKind, message string) SyncResult {
	return SyncResult{
		Symbol:  q.Symbol,
		Status:  SyncStatusStale,
		Quote:   &q,
		Age:     age,
		Reason:  reason,
		Message: message,
	}
}

// Failed reports a symbol with neither fresh nor usable cached data.
func Failed(symbol Symbol, kind ErrorKind, message string) SyncResult {
	return SyncResult{
		Symbol:  symbol,
		Status:  SyncStatusFailed,
		Reason:  kind,
		Message: message,
	}
}

// HasData reports whether the result carries a price to render.
func (r SyncResult) HasData() bool {
	return r.Quote != nil
}

// BatchResult is the element-wise combination of one refresh cycle.
type BatchResult struct {
	CycleID     string                `json:"cycle_id"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt time.Time             `json:"completed_at"`
	Items       map[Symbol]SyncResult `json:"items"`
}

// Count returns how many items have the given status.
func (b BatchResult) Count(status SyncStatus) int {
	n := 0
	for _, item := range b.Items {
		if item.Status == status {
			n++
		}
	}
	return n
}

// Status aggregates the batch: any failure wins over stale, stale over fresh.
func (b BatchResult) Status() SyncStatus {
	status := SyncStatusFresh
	for _, item := range b.Items {
		switch item.Status {
		case SyncStatusFailed:
			return SyncStatusFailed
		case SyncStatusStale:
			status = SyncStatusStale
		}
	}
	return status
}
