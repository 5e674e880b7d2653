package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/metalsync/internal/core/config"
	"github.com/vietddude/metalsync/internal/core/domain"
	"github.com/vietddude/metalsync/internal/infra/lifecycle"
	"github.com/vietddude/metalsync/internal/infra/pricing"
	redisclient "github.com/vietddude/metalsync/internal/infra/redis"
	"github.com/vietddude/metalsync/internal/infra/storage"
	"github.com/vietddude/metalsync/internal/infra/storage/memory"
	"github.com/vietddude/metalsync/internal/infra/storage/postgres"
	"github.com/vietddude/metalsync/internal/syncing/cache"
	"github.com/vietddude/metalsync/internal/syncing/health"
	"github.com/vietddude/metalsync/internal/syncing/orchestrator"
	"github.com/vietddude/metalsync/internal/syncing/retry"
	"github.com/vietddude/metalsync/internal/syncing/scheduler"
)

const (
	shutdownTimeout    = 15 * time.Second
	defaultHistoryDays = 7
)

// App owns the sync engine and everything around it.
type App struct {
	cfg          Config
	clock        clockwork.Clock
	engine       *orchestrator.Orchestrator
	scheduler    *scheduler.AdaptiveScheduler
	lifecycle    *lifecycle.Manual
	store        *cache.Store[domain.Quote]
	prices       *pricing.Client
	executor     *retry.Executor
	healthMon    *health.Monitor
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	ephemeral    bool
	onResult     func(domain.BatchResult)
	log          *slog.Logger
}

// Config holds the application configuration.
type Config struct {
	Port      int
	Storage   config.StorageConfig
	Redis     redisclient.Config
	Database  postgres.Config
	Provider  config.ProviderConfig
	Retry     config.RetryConfig
	Cache     config.CacheConfig
	Scheduler config.SchedulerConfig
}

// ConfigFrom maps the file configuration onto the application configuration.
func ConfigFrom(cfg *config.AppConfig) Config {
	return Config{
		Port:      cfg.Server.Port,
		Storage:   cfg.Storage,
		Redis:     cfg.Redis,
		Database:  cfg.Database,
		Provider:  cfg.Provider,
		Retry:     cfg.Retry,
		Cache:     cfg.Cache,
		Scheduler: cfg.Scheduler,
	}
}

// Option customizes App construction.
type Option func(*options)

type options struct {
	clock    clockwork.Clock
	fetcher  orchestrator.Fetcher
	prober   orchestrator.Prober
	kv       storage.KV
	onResult func(domain.BatchResult)
}

// WithClock sets the clock shared by every component.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithFetcher replaces the HTTP price client.
func WithFetcher(f orchestrator.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithProber replaces the HTTP connectivity probe.
func WithProber(p orchestrator.Prober) Option {
	return func(o *options) { o.prober = p }
}

// WithKV bypasses the configured storage backend.
func WithKV(kv storage.KV) Option {
	return func(o *options) { o.kv = kv }
}

// WithResultHandler receives every delivered batch.
func WithResultHandler(fn func(domain.BatchResult)) Option {
	return func(o *options) { o.onResult = fn }
}

// New creates an App with all dependencies initialized.
func New(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		cfg:   cfg,
		clock: o.clock,
		log:   slog.Default().With("component", "metalsync"),
	}

	// 1. Initialize Storage
	kv := o.kv
	if kv == nil {
		var err error
		if kv, err = a.openStorage(ctx); err != nil {
			return nil, err
		}
	}

	_, a.ephemeral = kv.(*memory.KV)

	symbols := make([]string, len(cfg.Provider.Symbols))
	for i, s := range cfg.Provider.Symbols {
		symbols[i] = string(s)
	}
	a.store = cache.NewStore[domain.Quote](kv,
		cache.WithClock(a.clock),
		cache.WithPrefix(cfg.Storage.KeyPrefix),
		cache.WithManagedKeys(symbols...),
	)

	// 2. Price source
	a.prices = pricing.NewClient(pricing.Config{
		BaseURL:      cfg.Provider.BaseURL,
		APIKey:       cfg.Provider.APIKey,
		Timeout:      cfg.Provider.Timeout,
		BaseCurrency: cfg.Provider.BaseCurrency,
		WithChange:   cfg.Provider.PriceChange,
	}, pricing.WithClock(a.clock))
	var fetcher orchestrator.Fetcher = a.prices
	if o.fetcher != nil {
		fetcher = o.fetcher
	}
	prober := o.prober
	if prober == nil && cfg.Provider.ProbeURL != "" {
		prober = pricing.NewProber(cfg.Provider.ProbeURL, 5*time.Second)
	}

	// 3. Retry policy
	maxAttempts := retry.DefaultPolicy.MaxAttempts
	if cfg.Retry.MaxAttempts != nil {
		maxAttempts = *cfg.Retry.MaxAttempts
	}
	policy, err := retry.NewPolicy(maxAttempts, cfg.Retry.BaseDelay)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}
	a.executor = retry.NewExecutor(policy, retry.WithClock(a.clock))

	// 4. Scheduler and engine
	a.lifecycle = lifecycle.NewManual(domain.AppStateForeground)
	a.scheduler = scheduler.NewAdaptive(a.clock, a.lifecycle, scheduler.AdaptiveConfig{
		MaxFrequency:      cfg.Scheduler.MaxFrequency,
		InteractionWindow: cfg.Scheduler.InteractionWindow,
		SupervisorPeriod:  cfg.Scheduler.SupervisorPeriod,
	}, a.log)

	a.engine = orchestrator.New(orchestrator.Config{
		Symbols: cfg.Provider.Symbols,
		MaxAge:  cfg.Cache.MaxAge,
	}, orchestrator.Deps{
		Fetcher:   fetcher,
		Executor:  a.executor,
		Store:     a.store,
		Scheduler: a.scheduler,
		Probe:     prober,
		Clock:     a.clock,
		Logger:    a.log,
	})

	a.onResult = o.onResult
	if a.onResult == nil {
		a.onResult = a.logResult
	}

	// 5. Health
	a.healthMon = health.NewMonitor(a.engine, a.lifecycle, a.clock)
	a.healthServer = health.NewServer(a.healthMon, a.engine, a.lifecycle, cfg.Port)

	return a, nil
}

func (a *App) openStorage(ctx context.Context) (storage.KV, error) {
	switch a.cfg.Storage.Backend {
	case storage.BackendRedis:
		client, err := redisclient.NewClient(a.cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		a.redisClient = client
		a.log.Info("Using Redis storage")
		return client, nil

	case storage.BackendPostgres:
		db, err := postgres.NewDB(ctx, a.cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		a.db = db
		a.log.Info("Using PostgreSQL storage")
		return postgres.NewKV(db), nil

	case storage.BackendMemory, "":
		a.log.Info("Using Memory storage")
		return memory.NewKV(), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}
}

// Engine returns the sync engine.
func (a *App) Engine() *orchestrator.Orchestrator { return a.engine }

// Store returns the quote cache.
func (a *App) Store() *cache.Store[domain.Quote] { return a.store }

// Lifecycle returns the lifecycle source driving the scheduler.
func (a *App) Lifecycle() *lifecycle.Manual { return a.lifecycle }

// History returns the daily rates of symbol over the last days days,
// retried under the configured policy.
func (a *App) History(ctx context.Context, symbol domain.Symbol, days int) (domain.History, error) {
	if days <= 0 {
		days = defaultHistoryDays
	}
	end := a.clock.Now().UTC()
	start := end.AddDate(0, 0, -days)
	return retry.Do(ctx, a.executor, func(ctx context.Context) (domain.History, error) {
		return a.prices.Timeframe(ctx, symbol, start, end)
	})
}

// Convert returns symbol priced in currency, retried under the configured policy.
func (a *App) Convert(ctx context.Context, symbol domain.Symbol, currency string) (domain.Conversion, error) {
	return retry.Do(ctx, a.executor, func(ctx context.Context) (domain.Conversion, error) {
		return a.prices.Convert(ctx, symbol, currency)
	})
}

// Ephemeral reports whether cached prices live only in this process.
func (a *App) Ephemeral() bool {
	return a.ephemeral
}

// Start starts the engine and its background helpers. It does not block.
func (a *App) Start(ctx context.Context) {
	lifecycle.NotifySignals(ctx, a.lifecycle)

	// Start DB Metrics Collector
	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	a.engine.Start(ctx, a.onResult, a.cfg.Scheduler.BaseFrequency)
	// Populate the cache right away instead of waiting a full period.
	a.engine.Trigger()
}

// Run starts the app and the health server and blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	a.Start(ctx)

	g.Go(func() error {
		a.log.Info("Health server listening", "port", a.cfg.Port)
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.Stop(shutdownCtx)
	})

	return g.Wait()
}

// Stop stops the engine, waits for an in-flight cycle and closes resources.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping metalsync...")

	a.engine.Stop()

	done := make(chan struct{})
	go func() {
		a.engine.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("In-flight refresh did not finish before shutdown")
	}

	err := a.healthServer.Stop(ctx)
	a.close()
	return err
}

// Close releases storage connections. Use it for one-shot commands that
// never call Run.
func (a *App) Close() {
	a.close()
}

func (a *App) close() {
	// Close Redis
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
		a.redisClient = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
		a.db = nil
	}
}

// logResult is the default result handler.
func (a *App) logResult(batch domain.BatchResult) {
	for symbol, item := range batch.Items {
		attrs := []any{"cycle_id", batch.CycleID, "symbol", symbol, "status", item.Status}
		if item.Quote != nil {
			attrs = append(attrs, "rate", item.Quote.Rate)
		}
		switch item.Status {
		case domain.SyncStatusStale:
			attrs = append(attrs, "age", item.Age.Round(time.Second), "reason", item.Reason)
			a.log.Warn("Serving cached price", attrs...)
		case domain.SyncStatusFailed:
			attrs = append(attrs, "reason", item.Reason, "error", item.Message)
			a.log.Error("Price unavailable", attrs...)
		default:
			a.log.Debug("Price updated", attrs...)
		}
	}
}
