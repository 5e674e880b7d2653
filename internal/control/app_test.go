package control

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/metalsync/internal/core/config"
	"github.com/vietddude/metalsync/internal/core/domain"
	redisclient "github.com/vietddude/metalsync/internal/infra/redis"
	"github.com/vietddude/metalsync/internal/syncing/cache"
)

func priceServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		symbol := r.URL.Query().Get("currencies")
		fmt.Fprintf(w, `{"success":true,"timestamp":1700000000,"base":"USD","rates":{"USD%s":42.5}}`, symbol)
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(baseURL string) Config {
	cfg := ConfigFrom(config.Default())
	cfg.Port = 0
	cfg.Provider.BaseURL = baseURL
	cfg.Provider.Symbols = []domain.Symbol{domain.SymbolGold, domain.SymbolSilver}
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Scheduler.BaseFrequency = time.Hour
	cfg.Scheduler.MaxFrequency = 2 * time.Hour
	return cfg
}

func TestApp_Run(t *testing.T) {
	server := priceServer(t, http.StatusOK)

	results := make(chan domain.BatchResult, 4)
	app, err := New(context.Background(), testConfig(server.URL),
		WithResultHandler(func(b domain.BatchResult) { results <- b }))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- app.Run(ctx) }()

	select {
	case b := <-results:
		assert.Equal(t, domain.SyncStatusFresh, b.Status())
		assert.Len(t, b.Items, 2)
		assert.Equal(t, 42.5, b.Items[domain.SymbolGold].Quote.Rate)
	case <-time.After(5 * time.Second):
		t.Fatal("no batch delivered")
	}
	assert.True(t, app.Engine().IsUpdating())

	entry, ok := app.Store().Read(context.Background(), "XAG", time.Minute)
	require.True(t, ok)
	assert.Equal(t, 42.5, entry.Payload.Rate)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, app.Engine().IsUpdating())
}

func TestApp_FallsBackToCache(t *testing.T) {
	server := priceServer(t, http.StatusServiceUnavailable)
	cfg := testConfig(server.URL)
	zero := 0
	cfg.Retry.MaxAttempts = &zero

	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()
	assert.True(t, app.Ephemeral())

	ctx := context.Background()
	app.Store().Write(ctx, "XAU", domain.Quote{Symbol: domain.SymbolGold, Rate: 40})

	batch, err := app.Engine().Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusStale, batch.Items[domain.SymbolGold].Status)
	assert.Equal(t, domain.ErrorKindServer, batch.Items[domain.SymbolGold].Reason)
	assert.Equal(t, domain.SyncStatusFailed, batch.Items[domain.SymbolSilver].Status)
}

func TestApp_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	server := priceServer(t, http.StatusOK)

	cfg := testConfig(server.URL)
	cfg.Storage.Backend = "redis"
	cfg.Redis = redisclient.Config{URL: "redis://" + mr.Addr()}

	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()
	assert.False(t, app.Ephemeral())

	_, err = app.Engine().Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, mr.Exists(cache.DefaultPrefix+"XAU"))

	app.Engine().ClearCache(context.Background())
	assert.False(t, mr.Exists(cache.DefaultPrefix+"XAU"))
}

func TestApp_HistoryAndConvert(t *testing.T) {
	var timeframeCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/timeframe":
			// First call fails to exercise the retry policy.
			if timeframeCalls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			assert.Equal(t, "2026-03-01", q.Get("start_date"))
			assert.Equal(t, "2026-03-08", q.Get("end_date"))
			_, _ = w.Write([]byte(`{"success":true,"base":"USD","rates":{"2026-03-01":{"USDXAU":2000},"2026-03-08":{"USDXAU":2100}}}`))
		case "/latest":
			assert.Equal(t, "XAU,INR", q.Get("currencies"))
			_, _ = w.Write([]byte(`{"success":true,"timestamp":1,"base":"USD","rates":{"USDXAU":2000,"USDINR":83}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(server.URL)
	cfg.Retry.BaseDelay = 0
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC))

	app, err := New(context.Background(), cfg, WithClock(clock))
	require.NoError(t, err)
	defer app.Close()

	history, err := app.History(context.Background(), domain.SymbolGold, 7)
	require.NoError(t, err)
	assert.Equal(t, int32(2), timeframeCalls.Load())
	require.Len(t, history.Points, 2)
	assert.Equal(t, 2100.0, history.Points[1].Rate)

	conv, err := app.Convert(context.Background(), domain.SymbolGold, "INR")
	require.NoError(t, err)
	assert.Equal(t, 166000.0, conv.Converted)
}

func TestApp_InvalidConfig(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:0")

	cfg.Storage.Backend = "etcd"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)

	cfg.Storage.Backend = "redis"
	cfg.Redis = redisclient.Config{URL: "redis://127.0.0.1:1"}
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)

	cfg.Storage.Backend = "memory"
	negative := -1
	cfg.Retry.MaxAttempts = &negative
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}
