package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/colinkwatch/internal/domain"
)

const (
	alertQueueSize = 16
	sendTimeout    = 10 * time.Second
)

type alert struct {
	event, title, message string
}

// Alerts turns status transitions into notifications. Listener methods never
// block: alerts are queued and delivered by Run, and dropped when the queue
// is full.
type Alerts struct {
	notifier *Notifier
	queue    chan alert
	logger   *slog.Logger
	now      func() time.Time

	mu            sync.Mutex
	wasOnline     bool
	liveDropped   bool
	liveDroppedAt time.Time
}

// NewAlerts creates an Alerts dispatcher for n.
func NewAlerts(n *Notifier, logger *slog.Logger) *Alerts {
	return &Alerts{
		notifier: n,
		queue:    make(chan alert, alertQueueSize),
		logger:   logger.With(slog.String("component", "alerts")),
		now:      time.Now,
	}
}

// Run delivers queued alerts until ctx is cancelled.
func (a *Alerts) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case al := <-a.queue:
			sctx, cancel := context.WithTimeout(ctx, sendTimeout)
			_ = a.notifier.Notify(sctx, al.event, al.title, al.message)
			cancel()
		}
	}
}

// BackendStatus is a health status listener. The first offline report
// before the backend was ever online is not an outage and stays silent.
func (a *Alerts) BackendStatus(prev, next domain.ConnectionStatus) {
	a.mu.Lock()
	wasOnline := a.wasOnline
	if next == domain.ConnectionOnline {
		a.wasOnline = true
	}
	a.mu.Unlock()

	switch {
	case next == domain.ConnectionOffline && prev == domain.ConnectionOnline:
		a.enqueue(EventBackendOffline, "Backend offline",
			fmt.Sprintf("Health probe failing since %s", a.now().UTC().Format(time.RFC3339)))
	case next == domain.ConnectionOnline && wasOnline:
		a.enqueue(EventBackendOnline, "Backend online", "Health probe succeeded again")
	}
}

// LiveState is a push channel state listener. Repeated failed reconnects
// produce a single disconnect alert.
func (a *Alerts) LiveState(prev, next domain.LiveState) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case next == domain.LiveDisconnected && prev == domain.LiveConnected:
		a.liveDropped = true
		a.liveDroppedAt = a.now()
		a.enqueueLocked(EventLiveDisconnected, "Live feed disconnected", "Reconnecting to the backend websocket")
	case next == domain.LiveConnected && a.liveDropped:
		down := a.now().Sub(a.liveDroppedAt).Round(time.Second)
		a.liveDropped = false
		a.enqueueLocked(EventLiveReconnected, "Live feed reconnected", fmt.Sprintf("Live updates resumed after %s", down))
	}
}

func (a *Alerts) enqueue(event, title, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enqueueLocked(event, title, message)
}

func (a *Alerts) enqueueLocked(event, title, message string) {
	if !a.notifier.Enabled() || !a.notifier.Allows(event) {
		return
	}
	select {
	case a.queue <- alert{event: event, title: title, message: message}:
	default:
		a.logger.Warn("alert queue full, dropping", slog.String("event", event))
	}
}
