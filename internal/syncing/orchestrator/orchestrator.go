// Package orchestrator runs refresh cycles: each tick fetches every tracked
// symbol through the retry executor, caches successes and falls back to the
// cache on failure, producing one BatchResult per cycle.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/vietddude/metalsync/internal/core/domain"
	"github.com/vietddude/metalsync/internal/syncing/cache"
	"github.com/vietddude/metalsync/internal/syncing/classify"
	"github.com/vietddude/metalsync/internal/syncing/metrics"
	"github.com/vietddude/metalsync/internal/syncing/retry"
)

var (
	// ErrRefreshInFlight is returned by Refresh while another cycle is running.
	ErrRefreshInFlight = errors.New("refresh already in flight")
	// ErrStopped is returned by Refresh when the engine stopped mid-cycle.
	ErrStopped = errors.New("sync engine stopped")
)

// DefaultMaxAge is how old a cached quote may be and still be served.
const DefaultMaxAge = 10 * time.Minute

// Fetcher fetches one symbol from the price source.
type Fetcher interface {
	Fetch(ctx context.Context, symbol domain.Symbol) (domain.Quote, error)
}

// Prober reports network connectivity.
type Prober interface {
	Online(ctx context.Context) bool
}

// Scheduler drives ticks.
type Scheduler interface {
	Start(callback func(), frequency time.Duration)
	Stop()
	Trigger()
	SetFrequency(frequency time.Duration)
	Frequency() time.Duration
	IsUpdating() bool
}

// InteractionRecorder is implemented by schedulers that adapt to user activity.
type InteractionRecorder interface {
	RecordInteraction()
}

// Config holds orchestrator configuration.
type Config struct {
	Symbols []domain.Symbol
	MaxAge  time.Duration
}

// Deps are the orchestrator collaborators. Probe, Clock and Logger are optional.
type Deps struct {
	Fetcher   Fetcher
	Executor  *retry.Executor
	Store     *cache.Store[domain.Quote]
	Scheduler Scheduler
	Probe     Prober
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

// Orchestrator is the sync engine.
type Orchestrator struct {
	cfg       Config
	fetcher   Fetcher
	executor  *retry.Executor
	store     *cache.Store[domain.Quote]
	scheduler Scheduler
	probe     Prober
	clock     clockwork.Clock
	logger    *slog.Logger

	inFlight   atomic.Bool
	generation atomic.Uint64
	// applyMu orders cache writes and deliveries against Start and Stop: once
	// Stop returns, no cycle from an older generation can write or deliver.
	applyMu  sync.RWMutex
	onResult func(domain.BatchResult)
	wg       sync.WaitGroup
	last     atomic.Pointer[domain.BatchResult]

	mu      sync.Mutex
	running bool
	ctx     context.Context
}

// New creates an orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = domain.DefaultSymbols
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Executor == nil {
		deps.Executor = retry.NewExecutor(retry.DefaultPolicy, retry.WithClock(deps.Clock))
	}

	o := &Orchestrator{
		cfg:       cfg,
		fetcher:   deps.Fetcher,
		store:     deps.Store,
		scheduler: deps.Scheduler,
		probe:     deps.Probe,
		clock:     deps.Clock,
		logger:    deps.Logger,
		ctx:       context.Background(),
	}
	o.executor = deps.Executor.WithOnRetry(func(attempt int, err error, kind domain.ErrorKind, delay time.Duration) {
		metrics.FetchRetries.WithLabelValues(string(kind)).Inc()
		o.logger.Warn("Fetch failed, retrying",
			"attempt", attempt+1,
			"kind", kind,
			"delay", delay,
			"error", err,
		)
	})
	return o
}

// Start registers onResult and starts the scheduler. ctx bounds every cycle
// started afterwards; Stop does not cancel it.
func (o *Orchestrator) Start(ctx context.Context, onResult func(domain.BatchResult), frequency time.Duration) {
	o.mu.Lock()
	o.ctx = ctx
	o.running = true
	o.mu.Unlock()

	o.applyMu.Lock()
	o.onResult = onResult
	o.generation.Add(1)
	o.applyMu.Unlock()

	o.scheduler.Start(o.tick, frequency)
	o.logger.Info("Sync engine started", "symbols", len(o.cfg.Symbols), "frequency", frequency)
}

// Stop disarms the scheduler. A cycle already in flight keeps running but
// neither writes the cache nor surfaces its result.
func (o *Orchestrator) Stop() {
	o.scheduler.Stop()

	o.mu.Lock()
	o.running = false
	o.mu.Unlock()

	o.applyMu.Lock()
	o.onResult = nil
	o.generation.Add(1)
	o.applyMu.Unlock()

	o.logger.Info("Sync engine stopped")
}

// Wait blocks until scheduled cycles started so far have returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Trigger requests an immediate scheduled refresh.
func (o *Orchestrator) Trigger() {
	o.scheduler.Trigger()
}

// SetFrequency changes the refresh period.
func (o *Orchestrator) SetFrequency(frequency time.Duration) {
	o.scheduler.SetFrequency(frequency)
}

// Frequency returns the current refresh period.
func (o *Orchestrator) Frequency() time.Duration {
	return o.scheduler.Frequency()
}

// RecordInteraction forwards user activity to an adaptive scheduler.
func (o *Orchestrator) RecordInteraction() {
	if r, ok := o.scheduler.(InteractionRecorder); ok {
		r.RecordInteraction()
	}
}

// IsUpdating reports whether periodic refresh is live.
func (o *Orchestrator) IsUpdating() bool {
	return o.scheduler.IsUpdating()
}

// InFlight reports whether a cycle is currently running.
func (o *Orchestrator) InFlight() bool {
	return o.inFlight.Load()
}

// Last returns the most recent completed batch.
func (o *Orchestrator) Last() (domain.BatchResult, bool) {
	b := o.last.Load()
	if b == nil {
		return domain.BatchResult{}, false
	}
	return *b, true
}

// ClearCache removes every cached quote.
func (o *Orchestrator) ClearCache(ctx context.Context) {
	o.store.Clear(ctx)
	o.logger.Info("Cache cleared")
}

// Refresh runs one cycle synchronously and returns its result. The result
// is also delivered to the registered callback when the engine is running.
func (o *Orchestrator) Refresh(ctx context.Context) (domain.BatchResult, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		return domain.BatchResult{}, ErrRefreshInFlight
	}
	defer o.inFlight.Store(false)

	gen := o.generation.Load()
	batch, ok := o.runCycle(ctx, gen)
	if !ok {
		return domain.BatchResult{}, ErrStopped
	}
	o.deliver(gen, batch)
	return batch, nil
}

// tick is the scheduler callback. Ticks arriving while a cycle is in flight
// are dropped, never queued.
func (o *Orchestrator) tick() {
	if !o.inFlight.CompareAndSwap(false, true) {
		metrics.CyclesDropped.Inc()
		o.logger.Debug("Refresh in flight, dropping tick")
		return
	}

	o.mu.Lock()
	ctx, running := o.ctx, o.running
	o.mu.Unlock()
	if !running {
		o.inFlight.Store(false)
		return
	}

	gen := o.generation.Load()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.inFlight.Store(false)

		if batch, ok := o.runCycle(ctx, gen); ok {
			o.deliver(gen, batch)
		}
	}()
}

// deliver publishes batch if gen is still current. The callback runs outside
// the lock so it may call back into the engine.
func (o *Orchestrator) deliver(gen uint64, batch domain.BatchResult) {
	o.applyMu.RLock()
	if o.generation.Load() != gen {
		o.applyMu.RUnlock()
		return
	}
	o.last.Store(&batch)
	onResult := o.onResult
	o.applyMu.RUnlock()

	if onResult != nil {
		onResult(batch)
	}
}

// runCycle returns false when the engine was stopped mid-cycle.
func (o *Orchestrator) runCycle(ctx context.Context, gen uint64) (domain.BatchResult, bool) {
	batch := domain.BatchResult{
		CycleID:   uuid.NewString(),
		StartedAt: o.clock.Now(),
		Items:     make(map[domain.Symbol]domain.SyncResult, len(o.cfg.Symbols)),
	}
	log := o.logger.With("cycle_id", batch.CycleID)

	online := o.probe == nil || o.probe.Online(ctx)
	if !online {
		log.Warn("Device is offline, serving cached prices")
	}

	for _, symbol := range o.cfg.Symbols {
		var (
			quote domain.Quote
			err   = domain.ErrOffline
		)
		if online {
			quote, err = retry.Do(ctx, o.executor, func(ctx context.Context) (domain.Quote, error) {
				return o.fetcher.Fetch(ctx, symbol)
			})
		}

		result, ok := o.apply(ctx, gen, symbol, quote, err)
		if !ok {
			log.Info("Engine stopped, discarding in-flight refresh")
			return domain.BatchResult{}, false
		}
		if result.Status != domain.SyncStatusFresh {
			log.Warn("Fetch failed",
				"symbol", symbol,
				"status", result.Status,
				"kind", result.Reason,
				"error", err,
			)
		}
		metrics.ItemResults.WithLabelValues(string(symbol), string(result.Status)).Inc()
		batch.Items[symbol] = result
	}

	batch.CompletedAt = o.clock.Now()
	duration := batch.CompletedAt.Sub(batch.StartedAt)
	metrics.CycleDuration.Observe(duration.Seconds())
	metrics.CyclesTotal.WithLabelValues(string(batch.Status())).Inc()

	log.Info("Refresh cycle completed",
		"status", batch.Status(),
		"fresh", batch.Count(domain.SyncStatusFresh),
		"stale", batch.Count(domain.SyncStatusStale),
		"failed", batch.Count(domain.SyncStatusFailed),
		"duration", duration,
	)
	return batch, true
}

// apply turns one fetch outcome into a result, writing or reading the cache.
// It returns false if the generation moved on.
func (o *Orchestrator) apply(
	ctx context.Context,
	gen uint64,
	symbol domain.Symbol,
	quote domain.Quote,
	err error,
) (domain.SyncResult, bool) {
	o.applyMu.RLock()
	defer o.applyMu.RUnlock()

	if o.generation.Load() != gen {
		return domain.SyncResult{}, false
	}

	if err == nil {
		o.store.Write(ctx, string(symbol), quote)
		return domain.Fresh(quote, o.clock.Now()), true
	}

	kind := classify.Classify(err)
	if entry, ok := o.store.Read(ctx, string(symbol), o.cfg.MaxAge); ok {
		metrics.CacheFallbacks.WithLabelValues(string(symbol), string(kind)).Inc()
		return domain.Stale(entry.Payload, entry.Age(o.clock.Now()), kind, err.Error()), true
	}
	return domain.Failed(symbol, kind, err.Error()), true
}
