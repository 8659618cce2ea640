package domain

import "time"

// PoolView is a pool together with its change flag for one display cycle.
type PoolView struct {
	PoolState
	Changed bool `json:"changed"`
}

// SwapView is a swap together with its change flag for one display cycle.
type SwapView struct {
	SwapEvent
	Changed bool `json:"changed"`
}

// View is an immutable committed view model. Slices are never mutated after
// publication; consumers may read them freely. Change flags describe the
// data commit that produced the revision and are all false on revisions that
// only changed Connection or Live. DisplayAt is the latest instant carried
// by the view's own records, zero when none has one.
type View struct {
	Revision       uint64           `json:"revision"`
	CommittedAt    time.Time        `json:"committedAt"`
	LastSnapshotAt time.Time        `json:"lastSnapshotAt,omitempty"`
	DisplayAt      time.Time        `json:"-"`
	Pools          []PoolView       `json:"pools"`
	Swaps          []SwapView       `json:"swaps"`
	Meta           RunMeta          `json:"meta"`
	Connection     ConnectionStatus `json:"connection"`
	Live           LiveState        `json:"live"`
	Ready          bool             `json:"ready"`
	Stale          bool             `json:"stale"`
}

// Pool returns the pool with the given key.
func (v View) Pool(key string) (PoolView, bool) {
	for _, p := range v.Pools {
		if p.Key == key {
			return p, true
		}
	}
	return PoolView{}, false
}

// Swap returns the swap with the given id.
func (v View) Swap(id string) (SwapView, bool) {
	for _, s := range v.Swaps {
		if s.ID == id {
			return s, true
		}
	}
	return SwapView{}, false
}

// Sample is one time-stamped point of a history series.
type Sample struct {
	T      time.Time `json:"t"`
	Values []float64 `json:"values"`
}
