package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/colinkwatch/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	poolsErr, swapsErr, metaErr error
	block                       bool
	calls                       atomic.Int32
}

func (f *fakeSource) wait(ctx context.Context) error {
	if !f.block {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeSource) FetchPools(ctx context.Context) ([]domain.PoolState, error) {
	f.calls.Add(1)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.poolsErr != nil {
		return nil, f.poolsErr
	}
	return []domain.PoolState{{Key: "COPX/COL", BaseLiquidity: 1, QuoteLiquidity: 2}}, nil
}

func (f *fakeSource) FetchSwaps(ctx context.Context) ([]domain.SwapEvent, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.swapsErr != nil {
		return nil, f.swapsErr
	}
	return []domain.SwapEvent{{ID: "1", AmountIn: 3}}, nil
}

func (f *fakeSource) FetchMeta(ctx context.Context) (domain.RunMeta, error) {
	if err := f.wait(ctx); err != nil {
		return domain.RunMeta{}, err
	}
	if f.metaErr != nil {
		return domain.RunMeta{}, f.metaErr
	}
	return domain.RunMeta{Fields: map[string]any{"phase": 3.0}}, nil
}

type snapshotRecorder struct {
	mu    sync.Mutex
	snaps []domain.Snapshot
}

func (r *snapshotRecorder) ApplySnapshot(s domain.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *snapshotRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *snapshotRecorder) last() domain.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

func TestPollerRefresh(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name               string
		source             *fakeSource
		wantErr            bool
		pools, swaps, meta bool
		committed          bool
	}{
		{"all portions succeed", &fakeSource{}, false, true, true, true, true},
		{"pools fail", &fakeSource{poolsErr: boom}, false, false, true, true, true},
		{"only meta succeeds", &fakeSource{poolsErr: boom, swapsErr: boom}, false, false, false, true, true},
		{"everything fails", &fakeSource{poolsErr: boom, swapsErr: boom, metaErr: boom}, true, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &snapshotRecorder{}
			p := NewPoller(tt.source, sink, PollerConfig{}, testLogger(), nil)

			err := p.Refresh(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, boom)
			} else {
				require.NoError(t, err)
			}

			if !tt.committed {
				assert.Zero(t, sink.count())
				return
			}
			require.Equal(t, 1, sink.count())
			snap := sink.last()
			assert.Equal(t, tt.pools, snap.HasPools)
			assert.Equal(t, tt.swaps, snap.HasSwaps)
			assert.Equal(t, tt.meta, snap.HasMeta)
			assert.False(t, snap.StartedAt.IsZero())
		})
	}
}

func TestPollerDiscardsCancelledCycle(t *testing.T) {
	sink := &snapshotRecorder{}
	p := NewPoller(&fakeSource{block: true}, sink, PollerConfig{Timeout: time.Hour}, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := p.Refresh(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sink.count())
}

func TestPollerTimeoutIsAFailedCycle(t *testing.T) {
	sink := &snapshotRecorder{}
	p := NewPoller(&fakeSource{block: true}, sink, PollerConfig{Timeout: 20 * time.Millisecond}, testLogger(), nil)

	err := p.Refresh(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, sink.count())
}

func TestPollerRunPollsImmediatelyAndOnTrigger(t *testing.T) {
	sink := &snapshotRecorder{}
	src := &fakeSource{}
	p := NewPoller(src, sink, PollerConfig{Interval: time.Hour}, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	p.Trigger()
	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestPollerRunsOnInterval(t *testing.T) {
	sink := &snapshotRecorder{}
	p := NewPoller(&fakeSource{}, sink, PollerConfig{Interval: 10 * time.Millisecond}, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	assert.Eventually(t, func() bool { return sink.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
}
