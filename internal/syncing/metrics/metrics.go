package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal tracks refresh cycles by aggregate outcome (fresh, stale, failed)
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metalsync_cycles_total",
			Help: "Total number of completed refresh cycles",
		},
		[]string{"outcome"},
	)

	// CyclesDropped counts ticks that arrived while a refresh was in flight
	CyclesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "metalsync_cycles_dropped_total",
			Help: "Total number of scheduler ticks dropped because a refresh was in flight",
		},
	)

	// CycleDuration tracks refresh cycle latency
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "metalsync_cycle_duration_seconds",
			Help:    "Refresh cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ItemResults tracks per-symbol results
	ItemResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metalsync_item_results_total",
			Help: "Total number of per-symbol sync results",
		},
		[]string{"symbol", "status"},
	)

	// FetchRetries tracks retries by classified error kind
	FetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metalsync_fetch_retries_total",
			Help: "Total number of fetch retries",
		},
		[]string{"kind"},
	)

	// CacheFallbacks counts failures served from the cache
	CacheFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metalsync_cache_fallbacks_total",
			Help: "Total number of failed fetches served from cache",
		},
		[]string{"symbol", "kind"},
	)

	SchedulerFrequency = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "metalsync_scheduler_frequency_seconds",
			Help: "Current refresh frequency in seconds",
		},
	)

	// DBConnectionPoolUsage is open connections as a percentage of the pool limit
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "metalsync_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
