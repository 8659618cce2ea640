package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/colinkwatch/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type captureSender struct {
	name string
	err  error

	mu     sync.Mutex
	titles []string
}

func (c *captureSender) Send(_ context.Context, title, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles = append(c.titles, title)
	return c.err
}

func (c *captureSender) Name() string { return c.name }

func (c *captureSender) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.titles...)
}

func TestNotifierFilter(t *testing.T) {
	tests := []struct {
		name    string
		events  []string
		event   string
		deliver bool
	}{
		{"empty filter allows all", nil, EventBackendOffline, true},
		{"listed event", []string{" backend_offline ", "live_disconnected"}, EventBackendOffline, true},
		{"unlisted event", []string{"live_disconnected"}, EventBackendOnline, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &captureSender{name: "capture"}
			n := NewNotifier([]Sender{s}, tt.events, testLogger())
			require.NoError(t, n.Notify(context.Background(), tt.event, "title", "msg"))
			assert.Equal(t, tt.deliver, len(s.sent()) == 1)
		})
	}
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	boom := errors.New("boom")
	bad := &captureSender{name: "bad", err: boom}
	good := &captureSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.Notify(context.Background(), EventBackendOnline, "t", "m")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, good.sent(), 1, "a failing sender does not block the others")
}

func TestAlertsBackendTransitions(t *testing.T) {
	s := &captureSender{name: "capture"}
	a := NewAlerts(NewNotifier([]Sender{s}, nil, testLogger()), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Run(ctx) }()

	// Startup failures and the first success are not outages.
	a.BackendStatus(domain.ConnectionConnecting, domain.ConnectionOffline)
	a.BackendStatus(domain.ConnectionOffline, domain.ConnectionOnline)
	a.BackendStatus(domain.ConnectionOnline, domain.ConnectionOffline)
	a.BackendStatus(domain.ConnectionOffline, domain.ConnectionOnline)

	require.Eventually(t, func() bool { return len(s.sent()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Backend offline", "Backend online"}, s.sent())
}

func TestAlertsLiveTransitions(t *testing.T) {
	s := &captureSender{name: "capture"}
	a := NewAlerts(NewNotifier([]Sender{s}, nil, testLogger()), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Run(ctx) }()

	a.LiveState(domain.LiveConnecting, domain.LiveConnected)
	a.LiveState(domain.LiveConnected, domain.LiveDisconnected)
	a.LiveState(domain.LiveDisconnected, domain.LiveConnecting)
	a.LiveState(domain.LiveConnecting, domain.LiveDisconnected)
	a.LiveState(domain.LiveDisconnected, domain.LiveConnecting)
	a.LiveState(domain.LiveConnecting, domain.LiveConnected)

	require.Eventually(t, func() bool { return len(s.sent()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Live feed disconnected", "Live feed reconnected"}, s.sent())
}

func TestAlertsRespectFilterAndNoSenders(t *testing.T) {
	a := NewAlerts(NewNotifier(nil, nil, testLogger()), testLogger())
	a.BackendStatus(domain.ConnectionOnline, domain.ConnectionOffline)
	assert.Len(t, a.queue, 0)

	s := &captureSender{name: "capture"}
	a = NewAlerts(NewNotifier([]Sender{s}, []string{EventLiveDisconnected}, testLogger()), testLogger())
	a.BackendStatus(domain.ConnectionOnline, domain.ConnectionOffline)
	assert.Len(t, a.queue, 0)
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiBase = srv.URL
	require.NoError(t, s.Send(context.Background(), "Backend offline", "down"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Backend offline*\ndown", got["text"])
}

func TestDiscordSenderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, "bad webhook")
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
}
