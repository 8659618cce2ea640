// Package history keeps bounded, time-stamped sample series for charting.
package history

import (
	"sort"
	"sync"

	"github.com/alanyoungcy/colinkwatch/internal/domain"
)

// DefaultCapacity is the number of samples retained per series when no
// positive capacity is given.
const DefaultCapacity = 20

// Buffer manages one fixed-capacity ring per series key. Appending to a full
// series evicts the oldest sample. It is safe for concurrent use.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	series   map[string]*ring
}

// ring is a fixed-size circular buffer of samples.
type ring struct {
	data  []domain.Sample
	head  int
	count int
}

// New creates a Buffer that keeps the most recent capacity samples per series.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		series:   make(map[string]*ring),
	}
}

// Capacity returns the per-series sample limit.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Append adds a sample to the named series, creating it on first use.
func (b *Buffer) Append(series string, s domain.Sample) {
	vals := make([]float64, len(s.Values))
	copy(vals, s.Values)
	s.Values = vals

	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.series[series]
	if !ok {
		r = &ring{data: make([]domain.Sample, b.capacity)}
		b.series[series] = r
	}
	r.push(s)
}

// Read returns a copy of the series, oldest first. An unknown series yields
// nil.
func (b *Buffer) Read(series string) []domain.Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.series[series]
	if !ok {
		return nil
	}
	return r.all()
}

// Len returns the number of samples currently held for a series.
func (b *Buffer) Len(series string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if r, ok := b.series[series]; ok {
		return r.count
	}
	return 0
}

// Delete forgets a series and its samples.
func (b *Buffer) Delete(series string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.series, series)
}

// Series returns the known series keys in sorted order.
func (b *Buffer) Series() []string {
	b.mu.RLock()
	keys := make([]string, 0, len(b.series))
	for k := range b.series {
		keys = append(keys, k)
	}
	b.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

func (r *ring) push(s domain.Sample) {
	r.data[r.head] = s
	r.head = (r.head + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

// all returns the stored samples in chronological order. Value slices are
// copied so callers cannot reach into the ring.
func (r *ring) all() []domain.Sample {
	if r.count == 0 {
		return nil
	}
	size := len(r.data)
	start := (r.head - r.count + size) % size

	out := make([]domain.Sample, r.count)
	for i := 0; i < r.count; i++ {
		s := r.data[(start+i)%size]
		vals := make([]float64, len(s.Values))
		copy(vals, s.Values)
		out[i] = domain.Sample{T: s.T, Values: vals}
	}
	return out
}
