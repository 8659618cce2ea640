package domain

import "time"

// Snapshot is one pull cycle's worth of candidate state. A portion whose
// fetch failed has its Has* flag unset and means "no change".
type Snapshot struct {
	Pools    []PoolState
	Swaps    []SwapEvent
	Meta     RunMeta
	HasPools bool
	HasSwaps bool
	HasMeta  bool

	// StartedAt is when the cycle began fetching. Push updates committed
	// after this instant take precedence over the snapshot's values.
	StartedAt time.Time
}

// Empty reports whether no portion of the snapshot succeeded.
func (s Snapshot) Empty() bool {
	return !s.HasPools && !s.HasSwaps && !s.HasMeta
}

// PushKind is the type tag of a live-channel message.
type PushKind string

const (
	PushSwap       PushKind = "swap"
	PushPoolUpdate PushKind = "pool_update"
	PushMeta       PushKind = "meta"
)

// PushMessage is a parsed live-channel message. Exactly one payload field
// is set, matching Kind.
type PushMessage struct {
	Kind PushKind
	Swap *SwapEvent
	Pool *PoolPatch
	Meta *RunMeta
}
