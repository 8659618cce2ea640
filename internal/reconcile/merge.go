package reconcile

import (
	"sort"
	"time"

	"github.com/alanyoungcy/colinkwatch/internal/domain"
)

// pushWins reports whether a record pushed at pushedAt must survive a
// snapshot fetched from startedAt whose value carries source time in, while
// the committed value carries cur.
func pushWins(pushedAt, startedAt, in, cur time.Time) bool {
	if !pushedAt.Before(startedAt) {
		return true
	}
	return !in.IsZero() && !cur.IsZero() && in.Before(cur)
}

func (r *Reconciler) mergeSnapshotPools(incoming []domain.PoolState, startedAt time.Time) []domain.PoolState {
	current := make(map[string]domain.PoolState, len(r.pools))
	for _, p := range r.pools {
		current[p.Key] = p
	}

	seen := make(map[string]struct{}, len(incoming))
	out := make([]domain.PoolState, 0, len(incoming))
	dropped := 0
	for _, p := range incoming {
		if err := p.Validate(); err != nil {
			dropped++
			continue
		}
		if _, dup := seen[p.Key]; dup {
			dropped++
			continue
		}
		seen[p.Key] = struct{}{}

		cur, ok := current[p.Key]
		if !ok {
			out = append(out, p)
			continue
		}
		if pushedAt, pushed := r.poolPushed[p.Key]; pushed && pushWins(pushedAt, startedAt, p.LastUpdated, cur.LastUpdated) {
			out = append(out, cur)
			continue
		}
		out = append(out, fillPool(cur, p))
	}
	r.metrics.Dropped("pool", dropped)

	if len(out) == 0 && len(incoming) > 0 {
		// Every record was rejected; treat the portion as failed.
		return r.pools
	}

	for _, cur := range r.pools {
		if _, ok := seen[cur.Key]; ok {
			continue
		}
		if pushedAt, ok := r.poolPushed[cur.Key]; ok && !pushedAt.Before(startedAt) {
			out = append(out, cur)
			continue
		}
		delete(r.poolPushed, cur.Key)
		r.poolHist.Delete(PoolSeries(cur.Key))
	}
	return out
}

// fillPool keeps known descriptive fields when the incoming record omits
// them.
func fillPool(cur, in domain.PoolState) domain.PoolState {
	if in.BaseSymbol == "" {
		in.BaseSymbol = cur.BaseSymbol
	}
	if in.QuoteSymbol == "" {
		in.QuoteSymbol = cur.QuoteSymbol
	}
	if in.LastUpdated.IsZero() {
		in.LastUpdated = cur.LastUpdated
	}
	return in
}

func (r *Reconciler) mergeSnapshotSwaps(incoming []domain.SwapEvent, startedAt time.Time) []domain.SwapEvent {
	current := make(map[string]domain.SwapEvent, len(r.swaps))
	for _, s := range r.swaps {
		current[s.ID] = s
	}

	seen := make(map[string]struct{}, len(incoming))
	out := make([]domain.SwapEvent, 0, len(incoming))
	dropped := 0
	for _, s := range incoming {
		if err := s.Validate(); err != nil {
			dropped++
			continue
		}
		if _, dup := seen[s.ID]; dup {
			dropped++
			continue
		}
		seen[s.ID] = struct{}{}

		cur, ok := current[s.ID]
		if !ok {
			out = append(out, s)
			continue
		}
		if pushedAt, pushed := r.swapPushed[s.ID]; pushed && pushWins(pushedAt, startedAt, s.Time(), cur.Time()) {
			out = append(out, cur)
			continue
		}
		out = append(out, cur.Merge(s))
	}
	r.metrics.Dropped("swap", dropped)

	if len(out) == 0 && len(incoming) > 0 {
		return r.swaps
	}

	for _, cur := range r.swaps {
		if _, ok := seen[cur.ID]; ok {
			continue
		}
		if pushedAt, ok := r.swapPushed[cur.ID]; ok && !pushedAt.Before(startedAt) {
			out = append(out, cur)
			continue
		}
		delete(r.swapPushed, cur.ID)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time().After(out[j].Time())
	})
	return r.capSwaps(out)
}

func (r *Reconciler) mergeSnapshotMeta(in domain.RunMeta, startedAt time.Time) domain.RunMeta {
	if !r.metaPushed.IsZero() && pushWins(r.metaPushed, startedAt, in.LastUpdated, r.meta.LastUpdated) {
		return r.meta
	}
	return r.meta.Merge(in)
}
