package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/colinkwatch/internal/domain"
	"github.com/alanyoungcy/colinkwatch/internal/metrics"
)

const (
	// DefaultPollInterval is the time between snapshot cycles.
	DefaultPollInterval = 5 * time.Second

	// DefaultPollTimeout bounds one cycle's fetches.
	DefaultPollTimeout = 10 * time.Second
)

// SnapshotSink receives committed pull cycles.
type SnapshotSink interface {
	ApplySnapshot(snap domain.Snapshot)
}

// PollerConfig tunes a Poller. Zero values select defaults.
type PollerConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Poller fetches pools, swaps and meta on an interval and on demand, and
// hands each cycle's results to the sink.
type Poller struct {
	source   domain.SnapshotSource
	sink     SnapshotSink
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Recorder
	now      func() time.Time
	trigger  chan struct{}
}

// NewPoller creates a Poller.
func NewPoller(source domain.SnapshotSource, sink SnapshotSink, cfg PollerConfig, logger *slog.Logger, rec *metrics.Recorder) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPollTimeout
	}
	return &Poller{
		source:   source,
		sink:     sink,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		logger:   logger.With(slog.String("component", "poller")),
		metrics:  rec,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
	}
}

// Run polls immediately and then every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "poller started", slog.Duration("interval", p.interval))

	_ = p.cycle(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = p.cycle(ctx)
		case <-p.trigger:
			_ = p.cycle(ctx)
		}
	}
}

// Refresh runs one cycle synchronously. It returns an error only when no
// portion of the snapshot could be fetched or ctx was cancelled.
func (p *Poller) Refresh(ctx context.Context) error {
	return p.cycle(ctx)
}

// Trigger asks the Run loop for an extra cycle without waiting for it.
// Requests made while one is already pending are coalesced.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

func (p *Poller) cycle(ctx context.Context) error {
	started := p.now()
	snap := domain.Snapshot{StartedAt: started}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// Portions fail independently, so a plain Group is used: one failed
	// fetch must not cancel the others.
	var g errgroup.Group
	var poolsErr, swapsErr, metaErr error

	g.Go(func() error {
		pools, err := p.source.FetchPools(cctx)
		if err != nil {
			poolsErr = err
			return nil
		}
		snap.Pools, snap.HasPools = pools, true
		return nil
	})
	g.Go(func() error {
		swaps, err := p.source.FetchSwaps(cctx)
		if err != nil {
			swapsErr = err
			return nil
		}
		snap.Swaps, snap.HasSwaps = swaps, true
		return nil
	})
	g.Go(func() error {
		meta, err := p.source.FetchMeta(cctx)
		if err != nil {
			metaErr = err
			return nil
		}
		snap.Meta, snap.HasMeta = meta, true
		return nil
	})
	_ = g.Wait()

	elapsed := time.Since(started).Seconds()

	if ctx.Err() != nil {
		p.metrics.PollCycle("discarded", elapsed)
		return ctx.Err()
	}

	failed := errors.Join(poolsErr, swapsErr, metaErr)
	if snap.Empty() {
		p.metrics.PollCycle("failed", elapsed)
		p.logger.WarnContext(ctx, "snapshot cycle failed, keeping previous state",
			slog.String("error", failed.Error()),
		)
		return fmt.Errorf("feed: poll: %w", failed)
	}

	if failed != nil {
		p.metrics.PollCycle("partial", elapsed)
		p.logger.WarnContext(ctx, "snapshot cycle partially failed",
			slog.Bool("pools", snap.HasPools),
			slog.Bool("swaps", snap.HasSwaps),
			slog.Bool("meta", snap.HasMeta),
			slog.String("error", failed.Error()),
		)
	} else {
		p.metrics.PollCycle("ok", elapsed)
	}

	p.sink.ApplySnapshot(snap)
	return nil
}
