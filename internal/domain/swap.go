package domain

import (
	"fmt"
	"strings"
	"time"
)

// SwapStatus is the lifecycle status of a swap.
type SwapStatus string

const (
	SwapStatusPending   SwapStatus = "pending"
	SwapStatusConfirmed SwapStatus = "confirmed"
	SwapStatusFailed    SwapStatus = "failed"
)

// ParseSwapStatus normalizes a status string. Unknown values map to pending.
func ParseSwapStatus(s string) SwapStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "confirmed", "success", "tessuccess", "validated":
		return SwapStatusConfirmed
	case "failed", "error", "rejected":
		return SwapStatusFailed
	default:
		return SwapStatusPending
	}
}

// IsTerminal reports whether no further transition is expected.
func (s SwapStatus) IsTerminal() bool {
	return s == SwapStatusConfirmed || s == SwapStatusFailed
}

// SwapEvent is a single swap as reported by the backend. ID is immutable once
// assigned; numeric ids are carried in their decimal string form.
type SwapEvent struct {
	ID         string     `json:"id"`
	PoolKey    string     `json:"poolKey"`
	FromAsset  string     `json:"fromAsset"`
	ToAsset    string     `json:"toAsset"`
	AmountIn   float64    `json:"amountIn"`
	AmountOut  float64    `json:"amountOut"`
	Status     SwapStatus `json:"status"`
	Timestamp  time.Time  `json:"timestamp"`
	ExecutedAt time.Time  `json:"executedAt,omitempty"`
}

// Validate reports whether the swap satisfies the collection invariants.
func (s SwapEvent) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: swap id is empty", ErrInvalidRecord)
	}
	if s.AmountIn < 0 || s.AmountOut < 0 {
		return fmt.Errorf("%w: swap %s has a negative amount", ErrInvalidRecord, s.ID)
	}
	return nil
}

// Time returns the swap's display time: Timestamp, or ExecutedAt when the
// backend only reported the execution time.
func (s SwapEvent) Time() time.Time {
	if !s.Timestamp.IsZero() {
		return s.Timestamp
	}
	return s.ExecutedAt
}

// Equal compares every field of two swaps.
func (s SwapEvent) Equal(o SwapEvent) bool {
	return s.ID == o.ID &&
		s.PoolKey == o.PoolKey &&
		s.FromAsset == o.FromAsset &&
		s.ToAsset == o.ToAsset &&
		s.AmountIn == o.AmountIn &&
		s.AmountOut == o.AmountOut &&
		s.Status == o.Status &&
		s.Timestamp.Equal(o.Timestamp) &&
		s.ExecutedAt.Equal(o.ExecutedAt)
}

// Merge folds an incoming version of the same swap into s. Empty or zero
// incoming fields keep the known value, and a terminal status is never
// replaced by pending.
func (s SwapEvent) Merge(in SwapEvent) SwapEvent {
	out := s
	if in.PoolKey != "" {
		out.PoolKey = in.PoolKey
	}
	if in.FromAsset != "" {
		out.FromAsset = in.FromAsset
	}
	if in.ToAsset != "" {
		out.ToAsset = in.ToAsset
	}
	if in.AmountIn > 0 {
		out.AmountIn = in.AmountIn
	}
	if in.AmountOut > 0 {
		out.AmountOut = in.AmountOut
	}
	if in.Status != "" && !(s.Status.IsTerminal() && !in.Status.IsTerminal()) {
		out.Status = in.Status
	}
	if !in.Timestamp.IsZero() {
		out.Timestamp = in.Timestamp
	}
	if !in.ExecutedAt.IsZero() {
		out.ExecutedAt = in.ExecutedAt
	}
	return out
}
