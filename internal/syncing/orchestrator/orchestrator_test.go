package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/metalsync/internal/core/domain"
	"github.com/vietddude/metalsync/internal/infra/storage/memory"
	"github.com/vietddude/metalsync/internal/syncing/cache"
	"github.com/vietddude/metalsync/internal/syncing/retry"
)

type statusError struct{ code int }

func (e *statusError) Error() string   { return fmt.Sprintf("api error: %d", e.code) }
func (e *statusError) HTTPStatus() int { return e.code }

// fakeFetcher returns scripted errors per symbol, then a quote.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[domain.Symbol]int
	errs    map[domain.Symbol][]error
	always  map[domain.Symbol]error
	rates   map[domain.Symbol]float64
	block   chan struct{}
	started chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls:  make(map[domain.Symbol]int),
		errs:   make(map[domain.Symbol][]error),
		always: make(map[domain.Symbol]error),
		rates:  make(map[domain.Symbol]float64),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, symbol domain.Symbol) (domain.Quote, error) {
	f.mu.Lock()
	f.calls[symbol]++
	block, started := f.block, f.started
	var err error
	if e, ok := f.always[symbol]; ok {
		err = e
	} else if queue := f.errs[symbol]; len(queue) > 0 {
		err, f.errs[symbol] = queue[0], queue[1:]
	}
	rate := f.rates[symbol]
	f.mu.Unlock()

	if block != nil {
		if started != nil {
			started <- struct{}{}
		}
		<-block
	}
	if err != nil {
		return domain.Quote{}, err
	}
	return domain.Quote{Symbol: symbol, Name: symbol.Name(), Base: "USD", Rate: rate}, nil
}

func (f *fakeFetcher) Calls(symbol domain.Symbol) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

type fakeScheduler struct {
	mu           sync.Mutex
	callback     func()
	frequency    time.Duration
	started      bool
	interactions int
}

func (s *fakeScheduler) Start(cb func(), f time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback, s.frequency, s.started = cb, f, true
}

func (s *fakeScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
}

func (s *fakeScheduler) Trigger() {
	s.mu.Lock()
	cb, started := s.callback, s.started
	s.mu.Unlock()
	if started {
		cb()
	}
}

func (s *fakeScheduler) SetFrequency(f time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frequency = f
}

func (s *fakeScheduler) Frequency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frequency
}

func (s *fakeScheduler) IsUpdating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *fakeScheduler) RecordInteraction() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions++
}

type staticProbe bool

func (p staticProbe) Online(context.Context) bool { return bool(p) }

type harness struct {
	orch    *Orchestrator
	fetcher *fakeFetcher
	sched   *fakeScheduler
	store   *cache.Store[domain.Quote]
	kv      *memory.KV
	clock   *clockwork.FakeClock
}

func newHarness(t *testing.T, symbols []domain.Symbol, probe Prober) *harness {
	t.Helper()
	clock := clockwork.NewFakeClock()
	kv := memory.NewKV()
	store := cache.NewStore[domain.Quote](kv, cache.WithClock(clock))
	fetcher := newFakeFetcher()
	sched := &fakeScheduler{}

	// Zero base delay: retries never wait on the clock.
	policy, err := retry.NewPolicy(3, 0)
	require.NoError(t, err)

	orch := New(Config{Symbols: symbols, MaxAge: 10 * time.Minute}, Deps{
		Fetcher:   fetcher,
		Executor:  retry.NewExecutor(policy, retry.WithClock(clock)),
		Store:     store,
		Scheduler: sched,
		Probe:     probe,
		Clock:     clock,
	})
	return &harness{orch: orch, fetcher: fetcher, sched: sched, store: store, kv: kv, clock: clock}
}

func TestRefresh_FreshOnFirstSuccess(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []domain.Symbol{domain.SymbolGold}, nil)
	h.fetcher.rates[domain.SymbolGold] = 60.0

	batch, err := h.orch.Refresh(ctx)
	require.NoError(t, err)

	item := batch.Items[domain.SymbolGold]
	assert.Equal(t, domain.SyncStatusFresh, item.Status)
	require.NotNil(t, item.Quote)
	assert.Equal(t, 60.0, item.Quote.Rate)
	assert.Equal(t, 1, h.fetcher.Calls(domain.SymbolGold))
	assert.NotEmpty(t, batch.CycleID)

	entry, ok := h.store.Read(ctx, "XAU", time.Minute)
	require.True(t, ok)
	assert.Equal(t, 60.0, entry.Payload.Rate)

	last, ok := h.orch.Last()
	require.True(t, ok)
	assert.Equal(t, batch.CycleID, last.CycleID)
}

func TestRefresh_StaleAfterExhaustedRetries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []domain.Symbol{domain.SymbolGold}, nil)

	h.store.Write(ctx, "XAU", domain.Quote{Symbol: domain.SymbolGold, Rate: 58.5})
	h.clock.Advance(2 * time.Minute)
	h.fetcher.always[domain.SymbolGold] = &statusError{code: 503}

	batch, err := h.orch.Refresh(ctx)
	require.NoError(t, err)

	item := batch.Items[domain.SymbolGold]
	assert.Equal(t, domain.SyncStatusStale, item.Status)
	assert.Equal(t, domain.ErrorKindServer, item.Reason)
	assert.Equal(t, 2*time.Minute, item.Age)
	require.NotNil(t, item.Quote)
	assert.Equal(t, 58.5, item.Quote.Rate)
	assert.Equal(t, "api error: 503", item.Message)
	assert.Equal(t, 4, h.fetcher.Calls(domain.SymbolGold), "maxAttempts+1 invocations")
}

func TestRefresh_RecoversWithinBudget(t *testing.T) {
	h := newHarness(t, []domain.Symbol{domain.SymbolSilver}, nil)
	h.fetcher.rates[domain.SymbolSilver] = 0.9
	h.fetcher.errs[domain.SymbolSilver] = []error{
		errors.New("network unreachable"),
		&statusError{code: 502},
	}

	batch, err := h.orch.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusFresh, batch.Items[domain.SymbolSilver].Status)
	assert.Equal(t, 3, h.fetcher.Calls(domain.SymbolSilver))
}

func TestRefresh_FailedWithoutCache(t *testing.T) {
	h := newHarness(t, []domain.Symbol{domain.SymbolPlatinum}, nil)
	h.fetcher.always[domain.SymbolPlatinum] = &statusError{code: 401}

	batch, err := h.orch.Refresh(context.Background())
	require.NoError(t, err)

	item := batch.Items[domain.SymbolPlatinum]
	assert.Equal(t, domain.SyncStatusFailed, item.Status)
	assert.Equal(t, domain.ErrorKindAuth, item.Reason)
	assert.Nil(t, item.Quote)
	assert.Equal(t, 1, h.fetcher.Calls(domain.SymbolPlatinum), "auth errors are not retried")
}

func TestRefresh_ExpiredCacheIsNotServed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []domain.Symbol{domain.SymbolGold}, nil)

	h.store.Write(ctx, "XAU", domain.Quote{Symbol: domain.SymbolGold, Rate: 1})
	h.clock.Advance(11 * time.Minute)
	h.fetcher.always[domain.SymbolGold] = errors.New("unexpected end of JSON input")

	batch, err := h.orch.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusFailed, batch.Items[domain.SymbolGold].Status)
	assert.Equal(t, domain.ErrorKindDataParsing, batch.Items[domain.SymbolGold].Reason)
	assert.Equal(t, 0, h.kv.Len())
}

func TestRefresh_PerItemIndependence(t *testing.T) {
	ctx := context.Background()
	symbols := []domain.Symbol{domain.SymbolGold, domain.SymbolSilver, domain.SymbolPlatinum}
	h := newHarness(t, symbols, nil)

	h.store.Write(ctx, "XAG", domain.Quote{Symbol: domain.SymbolSilver, Rate: 0.8})
	h.fetcher.rates[domain.SymbolGold] = 61
	h.fetcher.always[domain.SymbolSilver] = &statusError{code: 500}
	h.fetcher.always[domain.SymbolPlatinum] = &statusError{code: 500}

	batch, err := h.orch.Refresh(ctx)
	require.NoError(t, err)

	require.Len(t, batch.Items, 3)
	assert.Equal(t, domain.SyncStatusFresh, batch.Items[domain.SymbolGold].Status)
	assert.Equal(t, domain.SyncStatusStale, batch.Items[domain.SymbolSilver].Status)
	assert.Equal(t, domain.SyncStatusFailed, batch.Items[domain.SymbolPlatinum].Status)
	assert.Equal(t, domain.SyncStatusFailed, batch.Status())

	_, ok := h.store.Read(ctx, "XAU", time.Minute)
	assert.True(t, ok)
}

func TestRefresh_OfflineSkipsFetch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []domain.Symbol{domain.SymbolGold, domain.SymbolSilver}, staticProbe(false))
	h.store.Write(ctx, "XAU", domain.Quote{Symbol: domain.SymbolGold, Rate: 60})

	batch, err := h.orch.Refresh(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, h.fetcher.Calls(domain.SymbolGold))
	assert.Equal(t, domain.SyncStatusStale, batch.Items[domain.SymbolGold].Status)
	assert.Equal(t, domain.ErrorKindOffline, batch.Items[domain.SymbolGold].Reason)
	assert.Equal(t, domain.SyncStatusFailed, batch.Items[domain.SymbolSilver].Status)
	assert.Equal(t, domain.ErrorKindOffline, batch.Items[domain.SymbolSilver].Reason)
}

func TestTick_DeliversBatch(t *testing.T) {
	h := newHarness(t, []domain.Symbol{domain.SymbolGold}, staticProbe(true))
	h.fetcher.rates[domain.SymbolGold] = 60

	results := make(chan domain.BatchResult, 1)
	h.orch.Start(context.Background(), func(b domain.BatchResult) { results <- b }, time.Minute)
	defer h.orch.Stop()

	assert.True(t, h.orch.IsUpdating())
	assert.Equal(t, time.Minute, h.orch.Frequency())

	h.orch.Trigger()
	select {
	case b := <-results:
		assert.Equal(t, domain.SyncStatusFresh, b.Status())
	case <-time.After(time.Second):
		t.Fatal("no batch delivered")
	}
}

func TestTick_DroppedWhileInFlight(t *testing.T) {
	h := newHarness(t, []domain.Symbol{domain.SymbolGold}, nil)
	h.fetcher.block = make(chan struct{})
	h.fetcher.started = make(chan struct{}, 1)

	var mu sync.Mutex
	var delivered int
	h.orch.Start(context.Background(), func(domain.BatchResult) {
		mu.Lock()
		delivered++
		mu.Unlock()
	}, time.Minute)
	defer h.orch.Stop()

	h.sched.Trigger()
	<-h.fetcher.started
	assert.True(t, h.orch.InFlight())

	h.sched.Trigger() // dropped
	_, err := h.orch.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrRefreshInFlight)

	close(h.fetcher.block)
	h.orch.Wait()

	assert.Equal(t, 1, h.fetcher.Calls(domain.SymbolGold))
	assert.False(t, h.orch.InFlight())
	mu.Lock()
	assert.Equal(t, 1, delivered)
	mu.Unlock()
}

func TestStop_DiscardsInFlightCycle(t *testing.T) {
	h := newHarness(t, []domain.Symbol{domain.SymbolGold}, nil)
	h.fetcher.rates[domain.SymbolGold] = 60
	h.fetcher.block = make(chan struct{})
	h.fetcher.started = make(chan struct{}, 1)

	var delivered bool
	h.orch.Start(context.Background(), func(domain.BatchResult) { delivered = true }, time.Minute)

	h.sched.Trigger()
	<-h.fetcher.started

	h.orch.Stop()
	assert.False(t, h.orch.IsUpdating())
	close(h.fetcher.block)
	h.orch.Wait()

	assert.False(t, delivered)
	assert.Equal(t, 0, h.kv.Len(), "stopped engine must not write the cache")
	_, ok := h.orch.Last()
	assert.False(t, ok)
}

func TestDeliver_RestartDoesNotLeakOldBatch(t *testing.T) {
	h := newHarness(t, []domain.Symbol{domain.SymbolGold}, nil)
	ctx := context.Background()

	var oldCalls, newCalls int
	h.orch.Start(ctx, func(domain.BatchResult) { oldCalls++ }, time.Minute)
	gen := h.orch.generation.Load()

	// A cycle finished under gen but was not yet delivered when the
	// engine restarted with a new callback.
	h.orch.Stop()
	h.orch.Start(ctx, func(domain.BatchResult) { newCalls++ }, time.Minute)
	defer h.orch.Stop()

	h.orch.deliver(gen, domain.BatchResult{CycleID: "stale-generation"})

	assert.Zero(t, oldCalls)
	assert.Zero(t, newCalls)
	_, ok := h.orch.Last()
	assert.False(t, ok)

	h.orch.deliver(h.orch.generation.Load(), domain.BatchResult{CycleID: "current"})
	assert.Equal(t, 1, newCalls)
	last, ok := h.orch.Last()
	require.True(t, ok)
	assert.Equal(t, "current", last.CycleID)
}

func TestStop_RefreshReturnsErrStopped(t *testing.T) {
	h := newHarness(t, []domain.Symbol{domain.SymbolGold}, nil)
	h.fetcher.block = make(chan struct{})
	h.fetcher.started = make(chan struct{}, 1)

	errc := make(chan error, 1)
	go func() {
		_, err := h.orch.Refresh(context.Background())
		errc <- err
	}()
	<-h.fetcher.started
	h.orch.Stop()
	close(h.fetcher.block)

	assert.ErrorIs(t, <-errc, ErrStopped)
	assert.Equal(t, 0, h.kv.Len())
}

func TestRecordInteraction_ForwardsToAdaptiveScheduler(t *testing.T) {
	h := newHarness(t, []domain.Symbol{domain.SymbolGold}, nil)
	h.orch.RecordInteraction()
	h.orch.SetFrequency(2 * time.Minute)

	assert.Equal(t, 1, h.sched.interactions)
	assert.Equal(t, 2*time.Minute, h.orch.Frequency())
}

func TestClearCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []domain.Symbol{domain.SymbolGold}, nil)
	h.fetcher.rates[domain.SymbolGold] = 60

	_, err := h.orch.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, h.kv.Len())

	h.orch.ClearCache(ctx)
	assert.Equal(t, 0, h.kv.Len())
}
