// Package reconcile owns the view model. Every producer hands its candidate
// updates to a single Reconciler, which merges them, flags changes, feeds the
// history buffers and publishes immutable views to subscribers.
package reconcile

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/colinkwatch/internal/domain"
	"github.com/alanyoungcy/colinkwatch/internal/history"
	"github.com/alanyoungcy/colinkwatch/internal/metrics"
)

const (
	// DefaultMaxSwaps bounds the swap collection.
	DefaultMaxSwaps = 200

	// VolumeSeries holds [total amount in, swap count] samples.
	VolumeSeries = "swaps:volume"

	// LatencySeries holds [probe round trip in milliseconds] samples.
	LatencySeries = "health:latency"

	poolSeriesPrefix = "pool:"
)

// PoolSeries returns the history series key for a pool. Samples hold
// [base liquidity, quote liquidity].
func PoolSeries(key string) string {
	return poolSeriesPrefix + key
}

// Options configures a Reconciler. Zero values select defaults.
type Options struct {
	MaxSwaps       int
	StaleAfter     time.Duration
	PoolHistory    int
	VolumeHistory  int
	LatencyHistory int
	Metrics       *metrics.Recorder
	Now           func() time.Time
}

// Reconciler is the single writer of the view model. All mutators are safe
// for concurrent use; commits are serialized by one mutex.
type Reconciler struct {
	logger     *slog.Logger
	metrics    *metrics.Recorder
	now        func() time.Time
	maxSwaps   int
	staleAfter time.Duration

	poolHist    *history.Buffer
	volumeHist  *history.Buffer
	latencyHist *history.Buffer

	mu             sync.Mutex
	closed         bool
	revision       uint64
	pools          []domain.PoolState
	swaps          []domain.SwapEvent
	meta           domain.RunMeta
	view           domain.View
	lastSnapshotAt time.Time
	connection     domain.ConnectionStatus
	live           domain.LiveState

	// Commit times of the latest push per record, used to keep a push
	// update from being overwritten by a snapshot fetched before it.
	poolPushed map[string]time.Time
	swapPushed map[string]time.Time
	metaPushed time.Time

	subs map[string]chan domain.View
}

// New creates an empty Reconciler.
func New(logger *slog.Logger, opts Options) *Reconciler {
	if opts.MaxSwaps <= 0 {
		opts.MaxSwaps = DefaultMaxSwaps
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Reconciler{
		logger:     logger.With(slog.String("component", "reconciler")),
		metrics:    opts.Metrics,
		now:        opts.Now,
		maxSwaps:   opts.MaxSwaps,
		staleAfter: opts.StaleAfter,
		poolHist:    history.New(opts.PoolHistory),
		volumeHist:  history.New(opts.VolumeHistory),
		latencyHist: history.New(opts.LatencyHistory),
		connection: domain.ConnectionConnecting,
		live:       domain.LiveConnecting,
		poolPushed: make(map[string]time.Time),
		swapPushed: make(map[string]time.Time),
		subs:       make(map[string]chan domain.View),
	}
	r.view = domain.View{
		Pools:      []domain.PoolView{},
		Swaps:      []domain.SwapView{},
		Connection: r.connection,
		Live:       r.live,
		Stale:      true,
	}
	return r
}

// ApplySnapshot merges one pull cycle. Portions whose fetch failed are left
// untouched; a snapshot with no successful portion commits nothing.
func (r *Reconciler) ApplySnapshot(snap domain.Snapshot) {
	if snap.Empty() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	pools := r.pools
	if snap.HasPools {
		pools = r.mergeSnapshotPools(snap.Pools, snap.StartedAt)
	}
	swaps := r.swaps
	if snap.HasSwaps {
		swaps = r.mergeSnapshotSwaps(snap.Swaps, snap.StartedAt)
	}
	meta := r.meta
	if snap.HasMeta {
		meta = r.mergeSnapshotMeta(snap.Meta, snap.StartedAt)
	}

	now := r.now()
	r.lastSnapshotAt = now
	r.commitLocked("snapshot", now, pools, swaps, meta, "", "")

	if snap.HasPools {
		for _, p := range pools {
			r.appendPoolSample(now, p)
		}
	}
	if snap.HasSwaps {
		r.appendVolumeSample(now)
	}
}

// ApplyPush merges one live-channel message. Invalid messages are dropped.
func (r *Reconciler) ApplyPush(msg domain.PushMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	switch msg.Kind {
	case domain.PushSwap:
		r.applySwapPush(msg.Swap)
	case domain.PushPoolUpdate:
		r.applyPoolPush(msg.Pool)
	case domain.PushMeta:
		if msg.Meta == nil {
			r.drop("meta", "empty meta payload")
			return
		}
		now := r.now()
		r.metaPushed = now
		r.commitLocked("push", now, r.pools, r.swaps, r.meta.Merge(*msg.Meta), "", "")
	default:
		r.drop("message", "unknown push kind "+string(msg.Kind))
	}
}

func (r *Reconciler) applySwapPush(in *domain.SwapEvent) {
	if in == nil {
		r.drop("swap", "empty swap payload")
		return
	}
	if err := in.Validate(); err != nil {
		r.drop("swap", err.Error())
		return
	}

	idx := -1
	for i, s := range r.swaps {
		if s.ID == in.ID {
			idx = i
			break
		}
	}

	var swaps []domain.SwapEvent
	if idx >= 0 {
		swaps = make([]domain.SwapEvent, len(r.swaps))
		copy(swaps, r.swaps)
		swaps[idx] = r.swaps[idx].Merge(*in)
	} else {
		swaps = make([]domain.SwapEvent, 0, len(r.swaps)+1)
		swaps = append(swaps, *in)
		swaps = append(swaps, r.swaps...)
	}
	swaps = r.capSwaps(swaps)

	now := r.now()
	r.swapPushed[in.ID] = now
	r.commitLocked("push", now, r.pools, swaps, r.meta, "", in.ID)
	r.appendVolumeSample(now)
}

func (r *Reconciler) applyPoolPush(patch *domain.PoolPatch) {
	if patch == nil || patch.Key == "" {
		r.drop("pool", "pool update without key")
		return
	}

	idx := -1
	for i, p := range r.pools {
		if p.Key == patch.Key {
			idx = i
			break
		}
	}

	var pools []domain.PoolState
	var updated domain.PoolState
	if idx >= 0 {
		updated = patch.Apply(r.pools[idx])
		pools = make([]domain.PoolState, len(r.pools))
		copy(pools, r.pools)
		pools[idx] = updated
	} else {
		if !patch.Complete() {
			r.drop("pool", "update for unknown pool "+patch.Key+" is not a full record")
			return
		}
		updated = patch.Apply(domain.PoolState{Key: patch.Key})
		if err := updated.Validate(); err != nil {
			r.drop("pool", err.Error())
			return
		}
		pools = make([]domain.PoolState, 0, len(r.pools)+1)
		pools = append(pools, r.pools...)
		pools = append(pools, updated)
	}

	now := r.now()
	r.poolPushed[patch.Key] = now
	r.commitLocked("push", now, pools, r.swaps, r.meta, patch.Key, "")
	r.appendPoolSample(now, updated)
}

// SetConnectionStatus records the backend liveness. Readiness follows it.
func (r *Reconciler) SetConnectionStatus(status domain.ConnectionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.connection == status {
		return
	}
	r.connection = status
	r.commitStatusLocked()
}

// SetLiveState records the push channel state.
func (r *Reconciler) SetLiveState(state domain.LiveState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.live == state {
		return
	}
	r.live = state
	r.commitStatusLocked()
}

// View returns the latest committed view.
func (r *Reconciler) View() domain.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked(r.now())
}

// DisplayTimestamp returns the most recent known instant of the committed
// state, or false when no record carries one.
func (r *Reconciler) DisplayTimestamp() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view.DisplayAt, !r.view.DisplayAt.IsZero()
}

// RecordLatency appends one backend round trip to LatencySeries. It does not
// commit a revision.
func (r *Reconciler) RecordLatency(d time.Duration) {
	r.latencyHist.Append(LatencySeries, domain.Sample{
		T:      r.now(),
		Values: []float64{float64(d.Microseconds()) / 1000},
	})
}

// History returns a copy of the named series, oldest first.
func (r *Reconciler) History(series string) []domain.Sample {
	switch series {
	case VolumeSeries:
		return r.volumeHist.Read(series)
	case LatencySeries:
		return r.latencyHist.Read(series)
	default:
		return r.poolHist.Read(series)
	}
}

// HistorySeries lists every series that has samples.
func (r *Reconciler) HistorySeries() []string {
	out := r.poolHist.Series()
	out = append(out, r.volumeHist.Series()...)
	return append(out, r.latencyHist.Series()...)
}

// Subscribe returns a channel that always holds the latest committed view.
// A slow reader skips intermediate views instead of blocking commits. The
// returned function unsubscribes and closes the channel.
func (r *Reconciler) Subscribe() (<-chan domain.View, func()) {
	ch := make(chan domain.View, 1)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := uuid.NewString()
	r.subs[id] = ch
	if r.revision > 0 {
		ch <- r.viewLocked(r.now())
	}
	n := len(r.subs)
	r.mu.Unlock()
	r.metrics.Subscribers(n)

	return ch, func() {
		r.mu.Lock()
		if c, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(c)
		}
		n := len(r.subs)
		r.mu.Unlock()
		r.metrics.Subscribers(n)
	}
}

// Close discards every later commit and closes all subscriber channels.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
	r.metrics.Subscribers(0)
}

// commitLocked publishes a new data revision. forcedPool and forcedSwap
// name a record whose flag is set regardless of equality.
func (r *Reconciler) commitLocked(source string, now time.Time, pools []domain.PoolState, swaps []domain.SwapEvent, meta domain.RunMeta, forcedPool, forcedSwap string) {
	poolViews := make([]domain.PoolView, len(pools))
	changedPools := 0
	for i, f := range Detect(r.pools, pools, poolKey, poolsEqual) {
		changed := f.Changed || (forcedPool != "" && f.Item.Key == forcedPool)
		poolViews[i] = domain.PoolView{PoolState: f.Item, Changed: changed}
		if changed {
			changedPools++
		}
	}

	swapViews := make([]domain.SwapView, len(swaps))
	changedSwaps := 0
	for i, f := range Detect(r.swaps, swaps, swapKey, swapsEqual) {
		changed := f.Changed || (forcedSwap != "" && f.Item.ID == forcedSwap)
		swapViews[i] = domain.SwapView{SwapEvent: f.Item, Changed: changed}
		if changed {
			changedSwaps++
		}
	}

	r.pools = pools
	r.swaps = swaps
	r.meta = meta
	r.revision++

	displayAt, _ := displayTimestamp(meta, pools, swaps)
	r.view = domain.View{
		Revision:       r.revision,
		CommittedAt:    now,
		LastSnapshotAt: r.lastSnapshotAt,
		DisplayAt:      displayAt,
		Pools:          poolViews,
		Swaps:          swapViews,
		Meta:           meta,
		Connection:     r.connection,
		Live:           r.live,
		Ready:          r.connection == domain.ConnectionOnline,
	}

	r.logger.Debug("view committed",
		slog.String("source", source),
		slog.Uint64("revision", r.revision),
		slog.Int("pools_changed", changedPools),
		slog.Int("swaps_changed", changedSwaps),
	)
	r.metrics.Commit(source, r.revision, len(pools), len(swaps))
	r.publishLocked(now)
}

// commitStatusLocked publishes a status-only revision. No record was merged,
// so every change flag is cleared.
func (r *Reconciler) commitStatusLocked() {
	now := r.now()
	r.revision++
	v := r.view
	v.Pools = make([]domain.PoolView, len(r.view.Pools))
	for i, p := range r.view.Pools {
		v.Pools[i] = domain.PoolView{PoolState: p.PoolState}
	}
	v.Swaps = make([]domain.SwapView, len(r.view.Swaps))
	for i, s := range r.view.Swaps {
		v.Swaps[i] = domain.SwapView{SwapEvent: s.SwapEvent}
	}
	v.Revision = r.revision
	v.CommittedAt = now
	v.Connection = r.connection
	v.Live = r.live
	v.Ready = r.connection == domain.ConnectionOnline
	r.view = v

	r.metrics.Commit("status", r.revision, len(r.pools), len(r.swaps))
	r.publishLocked(now)
}

func (r *Reconciler) publishLocked(now time.Time) {
	v := r.viewLocked(now)
	for _, ch := range r.subs {
		select {
		case ch <- v:
		default:
			// Replace the unread view with the newer one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

func (r *Reconciler) viewLocked(now time.Time) domain.View {
	v := r.view
	v.Stale = r.staleLocked(now)
	return v
}

func (r *Reconciler) staleLocked(now time.Time) bool {
	if r.lastSnapshotAt.IsZero() {
		return true
	}
	return r.staleAfter > 0 && now.Sub(r.lastSnapshotAt) > r.staleAfter
}

func (r *Reconciler) appendPoolSample(now time.Time, p domain.PoolState) {
	r.poolHist.Append(PoolSeries(p.Key), domain.Sample{
		T:      now,
		Values: []float64{p.BaseLiquidity, p.QuoteLiquidity},
	})
}

func (r *Reconciler) appendVolumeSample(now time.Time) {
	var total float64
	for _, s := range r.swaps {
		total += s.AmountIn
	}
	r.volumeHist.Append(VolumeSeries, domain.Sample{
		T:      now,
		Values: []float64{total, float64(len(r.swaps))},
	})
}

func (r *Reconciler) capSwaps(swaps []domain.SwapEvent) []domain.SwapEvent {
	if len(swaps) <= r.maxSwaps {
		return swaps
	}
	for _, s := range swaps[r.maxSwaps:] {
		delete(r.swapPushed, s.ID)
	}
	return swaps[:r.maxSwaps]
}

func (r *Reconciler) drop(kind, reason string) {
	r.logger.Warn("update dropped", slog.String("kind", kind), slog.String("reason", reason))
	r.metrics.Dropped(kind, 1)
}
