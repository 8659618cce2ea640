package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/colinkwatch/internal/config"
	"github.com/alanyoungcy/colinkwatch/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /api/pools/state", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pools":[{"label":"COPX/COL","baseLiquidity":100,"quoteLiquidity":250,"lastUpdated":"2024-01-02T00:00:00Z"}]}`))
	})
	mux.HandleFunc("GET /api/swaps/recent", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":7,"amount_in":"5","status":"success","ts":"2024-01-01T00:00:00Z"}]`))
	})
	mux.HandleFunc("GET /api/sim/meta", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"phase":"running","lastUpdated":"2024-01-01T12:00:00Z"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func headlessConfig(baseURL string) *config.Config {
	cfg := config.Defaults()
	cfg.Mode = "headless"
	cfg.Backend.BaseURL = baseURL
	cfg.Push.Enabled = false
	cfg.Server.Enabled = false
	cfg.Poller.Interval.Duration = 50 * time.Millisecond
	cfg.Monitor.Interval.Duration = 50 * time.Millisecond
	return &cfg
}

func TestHeadlessModeReconcilesBackend(t *testing.T) {
	backend := fakeBackend(t)
	cfg := headlessConfig(backend.URL)
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, cleanup, err := Wire(ctx, cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()
	assert.Nil(t, deps.Push)
	assert.Nil(t, deps.Mirror)

	a := New(cfg, testLogger())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx, deps) }()

	require.Eventually(t, func() bool {
		v := deps.Reconciler.View()
		return v.Ready && len(v.Pools) == 1 && len(v.Swaps) == 1
	}, 3*time.Second, 20*time.Millisecond)

	v := deps.Reconciler.View()
	assert.Equal(t, domain.ConnectionOnline, v.Connection)
	assert.Equal(t, "COPX/COL", v.Pools[0].Key)
	assert.Equal(t, "7", v.Swaps[0].ID)
	assert.Equal(t, domain.SwapStatusConfirmed, v.Swaps[0].Status)
	assert.Equal(t, "running", v.Meta.Fields["phase"])

	ts, ok := deps.Reconciler.DisplayTimestamp()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), ts.UTC())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("headless mode did not stop")
	}
}

func TestUnsupportedMode(t *testing.T) {
	cfg := headlessConfig("http://127.0.0.1:1")
	cfg.Mode = "trade"
	a := New(cfg, testLogger())

	err := a.run(context.Background(), &Dependencies{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported mode")
}

func TestWireFailsWhenRedisUnreachable(t *testing.T) {
	cfg := headlessConfig("http://127.0.0.1:1")
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"
	cfg.Redis.MaxRetries = -1

	_, _, err := Wire(context.Background(), cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wire: redis")
}

func TestCloseRunsClosersInReverse(t *testing.T) {
	a := New(headlessConfig("http://127.0.0.1:1"), testLogger())
	var order []int
	a.closers = append(a.closers, func() { order = append(order, 1) }, func() { order = append(order, 2) })

	a.Close()
	a.Close()
	assert.Equal(t, []int{2, 1}, order)
}
