package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/colinkwatch/internal/domain"
	"github.com/alanyoungcy/colinkwatch/internal/metrics"
	"github.com/alanyoungcy/colinkwatch/internal/reconcile"
	"github.com/alanyoungcy/colinkwatch/internal/server/handler"
)

type fakeGate struct {
	status domain.ConnectionStatus
}

func (g *fakeGate) Ready() bool                     { return g.status == domain.ConnectionOnline }
func (g *fakeGate) Status() domain.ConnectionStatus { return g.status }

type fakeRefresher struct {
	mu        sync.Mutex
	refreshed int
	triggered int
	err       error
}

func (f *fakeRefresher) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed++
	return f.err
}

func (f *fakeRefresher) Trigger() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered++
}

type fakeSwapLog struct {
	msgs []domain.StreamMessage
	err  error
}

func (f *fakeSwapLog) ReadSwaps(_ context.Context, lastID string, count int) ([]domain.StreamMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.msgs, nil
}

type fixture struct {
	rec     *reconcile.Reconciler
	gate    *fakeGate
	refresh *fakeRefresher
	swaps   *fakeSwapLog
	srv     *Server
}

func newFixture(t *testing.T, apiKey string) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(nil)
	f := &fixture{
		rec:     reconcile.New(logger, reconcile.Options{Metrics: m}),
		gate:    &fakeGate{status: domain.ConnectionConnecting},
		refresh: &fakeRefresher{},
		swaps:   &fakeSwapLog{},
	}
	t.Cleanup(f.rec.Close)

	f.srv = NewServer(Config{APIKey: apiKey}, Handlers{
		Health:  handler.NewHealthHandler(f.gate, logger),
		State:   handler.NewStateHandler(f.rec, logger),
		History: handler.NewHistoryHandler(f.rec, logger),
		Refresh: handler.NewRefreshHandler(f.refresh, logger),
		Swaps:   handler.NewSwapStreamHandler(f.swaps, logger),
		Metrics: m.Handler(),
	}, nil, logger)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = f.do(t, http.MethodGet, "/api/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, false, decode(t, w)["ready"])

	f.gate.status = domain.ConnectionOnline
	w = f.do(t, http.MethodGet, "/api/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "online", decode(t, w)["connection"])
}

func TestStateDisplayTimestamp(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(t, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, handler.Unavailable, decode(t, w)["displayTimestamp"])

	f.rec.ApplySnapshot(domain.Snapshot{
		Pools: []domain.PoolState{{
			Key: "COPX/COL", BaseLiquidity: 1, QuoteLiquidity: 2,
			LastUpdated: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		}},
		HasPools:  true,
		StartedAt: time.Now(),
	})

	w = f.do(t, http.MethodGet, "/api/state", nil)
	body := decode(t, w)
	assert.Equal(t, "2024-01-02T00:00:00Z", body["displayTimestamp"])
	pools, ok := body["pools"].([]any)
	require.True(t, ok)
	require.Len(t, pools, 1)
	assert.Equal(t, true, pools[0].(map[string]any)["changed"])
}

func TestHistoryEndpoints(t *testing.T) {
	f := newFixture(t, "")
	f.rec.ApplySnapshot(domain.Snapshot{
		Pools:     []domain.PoolState{{Key: "XRP/USD", BaseLiquidity: 10, QuoteLiquidity: 20}},
		HasPools:  true,
		StartedAt: time.Now(),
	})

	w := f.do(t, http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w)["series"], reconcile.PoolSeries("XRP/USD"))

	w = f.do(t, http.MethodGet, "/api/history/pool:XRP/USD", nil)
	require.Equal(t, http.StatusOK, w.Code)
	samples := decode(t, w)["samples"].([]any)
	require.Len(t, samples, 1)
	assert.Equal(t, []any{10.0, 20.0}, samples[0].(map[string]any)["values"])

	w = f.do(t, http.MethodGet, "/api/history/pool:nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	f.rec.RecordLatency(12500 * time.Microsecond)
	w = f.do(t, http.MethodGet, "/api/history/health:latency", nil)
	require.Equal(t, http.StatusOK, w.Code)
	samples = decode(t, w)["samples"].([]any)
	require.Len(t, samples, 1)
	assert.Equal(t, []any{12.5}, samples[0].(map[string]any)["values"])
}

func TestRefresh(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(t, http.MethodPost, "/api/refresh", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, f.refresh.triggered)

	w = f.do(t, http.MethodPost, "/api/refresh?wait=true", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.refresh.refreshed)

	f.refresh.err = errors.New("colink: all portions failed")
	w = f.do(t, http.MethodPost, "/api/refresh?wait=true", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = f.do(t, http.MethodGet, "/api/refresh", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestSwapStream(t *testing.T) {
	f := newFixture(t, "")
	f.swaps.msgs = []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"id":"7","status":"confirmed","amountIn":5}`)},
		{ID: "2-0", Payload: []byte(`not json`)},
	}

	w := f.do(t, http.MethodGet, "/api/swaps/stream?after=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "2-0", body["next"])
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "1-0", entries[0].(map[string]any)["id"])

	f.swaps.err = errors.New("redis down")
	w = f.do(t, http.MethodGet, "/api/swaps/stream", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestAPIKey(t *testing.T) {
	f := newFixture(t, "s3cret")

	tests := []struct {
		name   string
		path   string
		header http.Header
		want   int
	}{
		{"health is public", "/api/health", nil, http.StatusOK},
		{"metrics is public", "/metrics", nil, http.StatusOK},
		{"state needs key", "/api/state", nil, http.StatusUnauthorized},
		{"wrong key", "/api/state", http.Header{"X-Api-Key": {"nope"}}, http.StatusUnauthorized},
		{"header key", "/api/state", http.Header{"X-Api-Key": {"s3cret"}}, http.StatusOK},
		{"bearer", "/api/state", http.Header{"Authorization": {"Bearer s3cret"}}, http.StatusOK},
		{"query ignored without upgrade", "/api/state?api_key=s3cret", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodGet, tt.path, tt.header)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, "")
	f.rec.ApplySnapshot(domain.Snapshot{
		Pools:     []domain.PoolState{{Key: "A", BaseLiquidity: 1, QuoteLiquidity: 1}},
		HasPools:  true,
		StartedAt: time.Now(),
	})

	w := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "colinkwatch_commits_total"))
}

func TestRunShutsDownOnCancel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := reconcile.New(logger, reconcile.Options{})
	defer rec.Close()
	srv := NewServer(Config{Port: 0}, Handlers{
		Health:  handler.NewHealthHandler(nil, logger),
		State:   handler.NewStateHandler(rec, logger),
		History: handler.NewHistoryHandler(rec, logger),
	}, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
