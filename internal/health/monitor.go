// Package health probes backend liveness and gates readiness on it.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/colinkwatch/internal/domain"
	"github.com/alanyoungcy/colinkwatch/internal/metrics"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 3 * time.Second
)

// StatusSink receives every status change.
type StatusSink interface {
	SetConnectionStatus(status domain.ConnectionStatus)
}

// LatencySink receives the round trip of every successful probe. A
// StatusSink that also implements it is fed automatically.
type LatencySink interface {
	RecordLatency(d time.Duration)
}

// StatusListener observes connection status transitions.
type StatusListener func(prev, next domain.ConnectionStatus)

// Config tunes a Monitor. FailureThreshold above 1 requires that many
// consecutive failures before an online backend is reported offline; it
// never delays the first transition to online.
type Config struct {
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold int
}

// Monitor probes the backend on an interval and maintains the readiness
// gate.
type Monitor struct {
	prober    domain.HealthProber
	sink      StatusSink
	latency   LatencySink
	interval  time.Duration
	timeout   time.Duration
	threshold int
	logger    *slog.Logger
	metrics   *metrics.Recorder

	mu        sync.Mutex
	status    domain.ConnectionStatus
	failures  int
	readyCh   chan struct{}
	listeners []StatusListener
}

// NewMonitor creates a Monitor in the connecting state.
func NewMonitor(prober domain.HealthProber, sink StatusSink, cfg Config, logger *slog.Logger, rec *metrics.Recorder) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	latency, _ := sink.(LatencySink)
	return &Monitor{
		prober:    prober,
		sink:      sink,
		latency:   latency,
		interval:  cfg.Interval,
		timeout:   cfg.Timeout,
		threshold: cfg.FailureThreshold,
		logger:    logger.With(slog.String("component", "health_monitor")),
		metrics:   rec,
		status:    domain.ConnectionConnecting,
		readyCh:   make(chan struct{}),
	}
}

// OnChange registers a listener called on every status transition.
func (m *Monitor) OnChange(fn StatusListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Run probes immediately and then every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.Probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Probe runs one health check and applies its outcome. The result of a probe
// interrupted by ctx cancellation is discarded.
func (m *Monitor) Probe(ctx context.Context) domain.ConnectionStatus {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	start := time.Now()
	err := m.prober.Probe(pctx)
	rtt := time.Since(start)
	cancel()

	if ctx.Err() != nil {
		return m.Status()
	}
	m.metrics.Probe(err == nil)
	if err == nil && m.latency != nil {
		m.latency.RecordLatency(rtt)
	}

	m.mu.Lock()
	prev := m.status
	next := prev
	if err == nil {
		m.failures = 0
		next = domain.ConnectionOnline
	} else {
		m.failures++
		if prev != domain.ConnectionOnline || m.failures >= m.threshold {
			next = domain.ConnectionOffline
		}
	}
	if next == prev {
		m.mu.Unlock()
		if err != nil {
			m.logger.DebugContext(ctx, "health probe failed",
				slog.Int("consecutive", m.failures),
				slog.String("error", err.Error()),
			)
		}
		return next
	}

	m.status = next
	if next == domain.ConnectionOnline {
		close(m.readyCh)
	} else if prev == domain.ConnectionOnline {
		m.readyCh = make(chan struct{})
	}
	listeners := m.listeners
	m.mu.Unlock()

	attrs := []any{slog.String("from", string(prev)), slog.String("to", string(next))}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		m.logger.WarnContext(ctx, "backend status changed", attrs...)
	} else {
		m.logger.InfoContext(ctx, "backend status changed", attrs...)
	}

	m.sink.SetConnectionStatus(next)
	for _, fn := range listeners {
		fn(prev, next)
	}
	return next
}

// Status returns the current connection status.
func (m *Monitor) Status() domain.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Ready reports whether the readiness gate is open.
func (m *Monitor) Ready() bool {
	return m.Status() == domain.ConnectionOnline
}

// WaitReady blocks until the gate is open or ctx ends.
func (m *Monitor) WaitReady(ctx context.Context) error {
	for {
		m.mu.Lock()
		if m.status == domain.ConnectionOnline {
			m.mu.Unlock()
			return nil
		}
		ch := m.readyCh
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}
