package domain

import (
	"fmt"
	"time"
)

// MaxFeeBps is the upper bound for a pool fee expressed in basis points.
const MaxFeeBps = 10000

// PoolState is the reconciled state of a single liquidity pool. Key is the
// stable pool label (e.g. "COPX/COL") and is unique within a collection.
type PoolState struct {
	Key            string    `json:"key"`
	BaseSymbol     string    `json:"baseSymbol"`
	QuoteSymbol    string    `json:"quoteSymbol"`
	BaseLiquidity  float64   `json:"baseLiquidity"`
	QuoteLiquidity float64   `json:"quoteLiquidity"`
	LPSupply       float64   `json:"lpSupply"`
	FeeBps         int       `json:"feeBps"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

// Validate reports whether the pool satisfies the collection invariants.
func (p PoolState) Validate() error {
	if p.Key == "" {
		return fmt.Errorf("%w: pool key is empty", ErrInvalidRecord)
	}
	if p.BaseLiquidity < 0 || p.QuoteLiquidity < 0 || p.LPSupply < 0 {
		return fmt.Errorf("%w: pool %s has negative liquidity or supply", ErrInvalidRecord, p.Key)
	}
	if p.FeeBps < 0 || p.FeeBps > MaxFeeBps {
		return fmt.Errorf("%w: pool %s fee_bps %d out of range", ErrInvalidRecord, p.Key, p.FeeBps)
	}
	return nil
}

// Equal compares every field of two pools. Timestamps are compared as
// instants so that a location change alone is not a difference.
func (p PoolState) Equal(o PoolState) bool {
	return p.Key == o.Key &&
		p.BaseSymbol == o.BaseSymbol &&
		p.QuoteSymbol == o.QuoteSymbol &&
		p.BaseLiquidity == o.BaseLiquidity &&
		p.QuoteLiquidity == o.QuoteLiquidity &&
		p.LPSupply == o.LPSupply &&
		p.FeeBps == o.FeeBps &&
		p.LastUpdated.Equal(o.LastUpdated)
}

// PoolPatch is a partial pool update. Nil fields mean "not reported" and never
// overwrite a known value.
type PoolPatch struct {
	Key            string
	BaseSymbol     *string
	QuoteSymbol    *string
	BaseLiquidity  *float64
	QuoteLiquidity *float64
	LPSupply       *float64
	FeeBps         *int
	LastUpdated    *time.Time
}

// Apply returns a copy of p with every reported, valid field of the patch
// merged in. Invalid values (negative liquidity, out of range fee, empty
// symbol) are ignored field by field.
func (patch PoolPatch) Apply(p PoolState) PoolState {
	if p.Key == "" {
		p.Key = patch.Key
	}
	if patch.BaseSymbol != nil && *patch.BaseSymbol != "" {
		p.BaseSymbol = *patch.BaseSymbol
	}
	if patch.QuoteSymbol != nil && *patch.QuoteSymbol != "" {
		p.QuoteSymbol = *patch.QuoteSymbol
	}
	if patch.BaseLiquidity != nil && *patch.BaseLiquidity >= 0 {
		p.BaseLiquidity = *patch.BaseLiquidity
	}
	if patch.QuoteLiquidity != nil && *patch.QuoteLiquidity >= 0 {
		p.QuoteLiquidity = *patch.QuoteLiquidity
	}
	if patch.LPSupply != nil && *patch.LPSupply >= 0 {
		p.LPSupply = *patch.LPSupply
	}
	if patch.FeeBps != nil && *patch.FeeBps >= 0 && *patch.FeeBps <= MaxFeeBps {
		p.FeeBps = *patch.FeeBps
	}
	if patch.LastUpdated != nil && !patch.LastUpdated.IsZero() {
		p.LastUpdated = *patch.LastUpdated
	}
	return p
}

// Complete reports whether the patch carries enough fields to stand on its
// own as a new pool record.
func (patch PoolPatch) Complete() bool {
	return patch.Key != "" && patch.BaseLiquidity != nil && patch.QuoteLiquidity != nil
}
