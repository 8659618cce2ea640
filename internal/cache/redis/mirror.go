package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/colinkwatch/internal/domain"
	"github.com/alanyoungcy/colinkwatch/internal/metrics"
	"github.com/alanyoungcy/colinkwatch/internal/reconcile"
)

// ViewSource yields committed views.
type ViewSource interface {
	Subscribe() (<-chan domain.View, func())
}

// MirrorEvent is the payload published on the views channel. It carries only
// the records that differ from the previously mirrored view.
type MirrorEvent struct {
	Revision    uint64                  `json:"revision"`
	CommittedAt time.Time               `json:"committedAt"`
	Connection  domain.ConnectionStatus `json:"connection"`
	Live        domain.LiveState        `json:"live"`
	Ready       bool                    `json:"ready"`
	Stale       bool                    `json:"stale"`
	Pools       []domain.PoolState      `json:"pools"`
	Swaps       []domain.SwapEvent      `json:"swaps"`
	Removed     []string                `json:"removedPools,omitempty"`
	Meta        domain.RunMeta          `json:"meta"`
}

// Mirror publishes committed views to a SignalBus. Diffs are computed
// against the last mirrored view so nothing is lost when views are
// conflated.
type Mirror struct {
	bus     domain.SignalBus
	source  ViewSource
	prefix  string
	logger  *slog.Logger
	metrics *metrics.Recorder

	lastPools []domain.PoolState
	lastSwaps []domain.SwapEvent
}

// NewMirror creates a Mirror writing under the given key prefix.
func NewMirror(bus domain.SignalBus, source ViewSource, prefix string, logger *slog.Logger, rec *metrics.Recorder) *Mirror {
	if prefix == "" {
		prefix = "colinkwatch"
	}
	return &Mirror{
		bus:     bus,
		source:  source,
		prefix:  prefix,
		logger:  logger.With(slog.String("component", "redis_mirror")),
		metrics: rec,
	}
}

// ViewsChannel is the Pub/Sub channel carrying MirrorEvents.
func (m *Mirror) ViewsChannel() string { return m.prefix + ":views" }

// SwapsStream is the stream holding every new or changed swap.
func (m *Mirror) SwapsStream() string { return m.prefix + ":swaps" }

// Run mirrors views until ctx is cancelled or the source closes.
func (m *Mirror) Run(ctx context.Context) error {
	views, cancel := m.source.Subscribe()
	defer cancel()

	m.logger.InfoContext(ctx, "redis mirror started",
		slog.String("channel", m.ViewsChannel()),
		slog.String("stream", m.SwapsStream()),
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v, ok := <-views:
			if !ok {
				return nil
			}
			if err := m.mirror(ctx, v); err != nil {
				m.metrics.MirrorError()
				m.logger.WarnContext(ctx, "mirror failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ReadSwaps returns mirrored swap entries after lastID.
func (m *Mirror) ReadSwaps(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error) {
	if lastID == "" {
		lastID = "0"
	}
	return m.bus.StreamRead(ctx, m.SwapsStream(), lastID, count)
}

func (m *Mirror) mirror(ctx context.Context, v domain.View) error {
	pools := make([]domain.PoolState, len(v.Pools))
	for i, p := range v.Pools {
		pools[i] = p.PoolState
	}
	swaps := make([]domain.SwapEvent, len(v.Swaps))
	for i, s := range v.Swaps {
		swaps[i] = s.SwapEvent
	}

	ev := MirrorEvent{
		Revision:    v.Revision,
		CommittedAt: v.CommittedAt,
		Connection:  v.Connection,
		Live:        v.Live,
		Ready:       v.Ready,
		Stale:       v.Stale,
		Pools:       changed(m.lastPools, pools, func(p domain.PoolState) string { return p.Key }, domain.PoolState.Equal),
		Swaps:       changed(m.lastSwaps, swaps, func(s domain.SwapEvent) string { return s.ID }, domain.SwapEvent.Equal),
		Meta:        v.Meta,
	}
	present := make(map[string]struct{}, len(pools))
	for _, p := range pools {
		present[p.Key] = struct{}{}
	}
	for _, p := range m.lastPools {
		if _, ok := present[p.Key]; !ok {
			ev.Removed = append(ev.Removed, p.Key)
		}
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal view %d: %w", v.Revision, err)
	}
	if err := m.bus.Publish(ctx, m.ViewsChannel(), payload); err != nil {
		return err
	}
	m.lastPools = pools

	// Oldest first so stream order follows swap time. Each appended swap
	// joins the baseline at once so a retry resumes after it.
	for i := len(ev.Swaps) - 1; i >= 0; i-- {
		data, err := json.Marshal(ev.Swaps[i])
		if err != nil {
			return fmt.Errorf("redis: marshal swap %s: %w", ev.Swaps[i].ID, err)
		}
		if err := m.bus.StreamAppend(ctx, m.SwapsStream(), data); err != nil {
			return err
		}
		m.lastSwaps = upsertSwap(m.lastSwaps, ev.Swaps[i])
	}

	m.lastSwaps = swaps
	return nil
}

func upsertSwap(list []domain.SwapEvent, s domain.SwapEvent) []domain.SwapEvent {
	for i := range list {
		if list[i].ID == s.ID {
			out := make([]domain.SwapEvent, len(list))
			copy(out, list)
			out[i] = s
			return out
		}
	}
	return append(list[:len(list):len(list)], s)
}

func changed[T any](prev, next []T, key func(T) string, equal func(a, b T) bool) []T {
	out := make([]T, 0)
	for _, f := range reconcile.Detect(prev, next, key, equal) {
		if f.Changed {
			out = append(out, f.Item)
		}
	}
	return out
}
