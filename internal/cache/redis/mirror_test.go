package redis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/colinkwatch/internal/domain"
)

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streams   map[string][]domain.StreamMessage
	failPub   error
	// appendsLeft fails StreamAppend once it reaches zero; negative means
	// unlimited.
	appendsLeft int
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		published:   make(map[string][][]byte),
		streams:     make(map[string][]domain.StreamMessage),
		appendsLeft: -1,
	}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPub != nil {
		return b.failPub
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.appendsLeft == 0 {
		return errors.New("stream unavailable")
	}
	if b.appendsLeft > 0 {
		b.appendsLeft--
	}
	id := strconv.Itoa(len(b.streams[stream])+1) + "-0"
	b.streams[stream] = append(b.streams[stream], domain.StreamMessage{ID: id, Payload: payload})
	return nil
}

func (b *fakeBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.StreamMessage
	after := lastID == "0"
	for _, m := range b.streams[stream] {
		if after {
			out = append(out, m)
			if count > 0 && len(out) == count {
				break
			}
		}
		if m.ID == lastID {
			after = true
		}
	}
	return out, nil
}

func (b *fakeBus) events(t *testing.T, channel string) []MirrorEvent {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]MirrorEvent, 0, len(b.published[channel]))
	for _, raw := range b.published[channel] {
		var ev MirrorEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		out = append(out, ev)
	}
	return out
}

type chanSource struct {
	ch chan domain.View
}

func (s *chanSource) Subscribe() (<-chan domain.View, func()) {
	return s.ch, func() {}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func view(rev uint64, pools []domain.PoolState, swaps []domain.SwapEvent) domain.View {
	v := domain.View{Revision: rev, Connection: domain.ConnectionOnline, Ready: true}
	for _, p := range pools {
		v.Pools = append(v.Pools, domain.PoolView{PoolState: p})
	}
	for _, s := range swaps {
		v.Swaps = append(v.Swaps, domain.SwapView{SwapEvent: s})
	}
	return v
}

func TestMirrorPublishesOnlyChangedRecords(t *testing.T) {
	bus := newFakeBus()
	m := NewMirror(bus, &chanSource{}, "test", testLogger(), nil)
	ctx := context.Background()
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	poolA := domain.PoolState{Key: "XRP/USD", BaseLiquidity: 10, QuoteLiquidity: 20}
	poolB := domain.PoolState{Key: "XRP/EUR", BaseLiquidity: 5, QuoteLiquidity: 6}
	swap1 := domain.SwapEvent{ID: "1", AmountIn: 1, Status: domain.SwapStatusPending, Timestamp: ts}
	swap2 := domain.SwapEvent{ID: "2", AmountIn: 2, Status: domain.SwapStatusConfirmed, Timestamp: ts.Add(time.Minute)}

	require.NoError(t, m.mirror(ctx, view(1, []domain.PoolState{poolA, poolB}, []domain.SwapEvent{swap2, swap1})))

	poolA2 := poolA
	poolA2.BaseLiquidity = 11
	swap1c := swap1
	swap1c.Status = domain.SwapStatusConfirmed
	require.NoError(t, m.mirror(ctx, view(2, []domain.PoolState{poolA2}, []domain.SwapEvent{swap2, swap1c})))

	events := bus.events(t, "test:views")
	require.Len(t, events, 2)

	assert.Len(t, events[0].Pools, 2)
	assert.Len(t, events[0].Swaps, 2)

	require.Len(t, events[1].Pools, 1)
	assert.Equal(t, "XRP/USD", events[1].Pools[0].Key)
	require.Len(t, events[1].Swaps, 1)
	assert.Equal(t, domain.SwapStatusConfirmed, events[1].Swaps[0].Status)
	assert.Equal(t, []string{"XRP/EUR"}, events[1].Removed)

	msgs, err := m.ReadSwaps(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	var first domain.SwapEvent
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &first))
	assert.Equal(t, "1", first.ID, "stream is appended oldest first")

	tail, err := m.ReadSwaps(ctx, msgs[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, msgs[2].ID, tail[0].ID)
}

func TestMirrorFailureKeepsBaseline(t *testing.T) {
	bus := newFakeBus()
	bus.failPub = errors.New("connection refused")
	m := NewMirror(bus, &chanSource{}, "", testLogger(), nil)
	ctx := context.Background()

	pool := domain.PoolState{Key: "XRP/USD", BaseLiquidity: 1, QuoteLiquidity: 1}
	require.Error(t, m.mirror(ctx, view(1, []domain.PoolState{pool}, nil)))

	bus.failPub = nil
	require.NoError(t, m.mirror(ctx, view(2, []domain.PoolState{pool}, nil)))

	events := bus.events(t, "colinkwatch:views")
	require.Len(t, events, 1)
	assert.Len(t, events[0].Pools, 1, "records from the failed publish are sent again")
}

func TestMirrorPartialAppendResumes(t *testing.T) {
	bus := newFakeBus()
	bus.appendsLeft = 1
	m := NewMirror(bus, &chanSource{}, "", testLogger(), nil)
	ctx := context.Background()
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	pool := domain.PoolState{Key: "XRP/USD", BaseLiquidity: 1, QuoteLiquidity: 1}
	swap1 := domain.SwapEvent{ID: "1", AmountIn: 1, Timestamp: ts}
	swap2 := domain.SwapEvent{ID: "2", AmountIn: 2, Timestamp: ts.Add(time.Minute)}
	v := view(1, []domain.PoolState{pool}, []domain.SwapEvent{swap2, swap1})

	require.Error(t, m.mirror(ctx, v))

	bus.appendsLeft = -1
	require.NoError(t, m.mirror(ctx, v))

	msgs, err := m.ReadSwaps(ctx, "", 0)
	require.NoError(t, err)
	ids := make([]string, len(msgs))
	for i, msg := range msgs {
		var s domain.SwapEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &s))
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"1", "2"}, ids, "each swap is appended once")

	events := bus.events(t, "colinkwatch:views")
	require.Len(t, events, 2)
	assert.Empty(t, events[1].Pools, "published pools are not sent again")
	require.Len(t, events[1].Swaps, 1)
	assert.Equal(t, "2", events[1].Swaps[0].ID)
}

func TestMirrorRunStopsOnCancel(t *testing.T) {
	bus := newFakeBus()
	src := &chanSource{ch: make(chan domain.View, 1)}
	m := NewMirror(bus, src, "run", testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	src.ch <- view(1, []domain.PoolState{{Key: "A", BaseLiquidity: 1, QuoteLiquidity: 1}}, nil)
	require.Eventually(t, func() bool {
		return len(bus.events(t, "run:views")) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("mirror did not stop")
	}
}

func TestMirrorRunEndsWhenSourceCloses(t *testing.T) {
	src := &chanSource{ch: make(chan domain.View)}
	m := NewMirror(newFakeBus(), src, "", testLogger(), nil)
	close(src.ch)
	assert.NoError(t, m.Run(context.Background()))
}
