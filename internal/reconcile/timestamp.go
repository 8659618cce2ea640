package reconcile

import (
	"time"

	"github.com/alanyoungcy/colinkwatch/internal/domain"
)

// displayTimestamp returns the most recent known instant across the meta,
// every pool and every swap. The boolean is false when nothing carries a
// timestamp.
func displayTimestamp(meta domain.RunMeta, pools []domain.PoolState, swaps []domain.SwapEvent) (time.Time, bool) {
	var latest time.Time
	consider := func(t time.Time) {
		if !t.IsZero() && t.After(latest) {
			latest = t
		}
	}

	consider(meta.LastUpdated)
	for _, p := range pools {
		consider(p.LastUpdated)
	}
	for _, s := range swaps {
		consider(s.Time())
	}
	return latest, !latest.IsZero()
}
