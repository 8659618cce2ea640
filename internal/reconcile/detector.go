package reconcile

import "github.com/alanyoungcy/colinkwatch/internal/domain"

// Flagged pairs a record with its change flag for one display cycle.
type Flagged[T any] struct {
	Item    T
	Changed bool
}

// Detect flags each record of next as changed when its key was absent from
// prev or the stored record differs under equal. Records present only in
// prev are dropped. Output order follows next.
func Detect[K comparable, T any](prev, next []T, key func(T) K, equal func(a, b T) bool) []Flagged[T] {
	index := make(map[K]T, len(prev))
	for _, p := range prev {
		index[key(p)] = p
	}

	out := make([]Flagged[T], len(next))
	for i, n := range next {
		old, ok := index[key(n)]
		out[i] = Flagged[T]{Item: n, Changed: !ok || !equal(old, n)}
	}
	return out
}

func poolKey(p domain.PoolState) string { return p.Key }
func swapKey(s domain.SwapEvent) string { return s.ID }

func poolsEqual(a, b domain.PoolState) bool { return a.Equal(b) }
func swapsEqual(a, b domain.SwapEvent) bool { return a.Equal(b) }
