package colink

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/alanyoungcy/colinkwatch/internal/domain"
)

// Field aliases seen across backend versions. The first present path wins.
var (
	poolKeyPaths     = []string{"label", "key", "pool", "pair", "name", "id"}
	baseSymbolPaths  = []string{"baseSymbol", "base_symbol", "base"}
	quoteSymbolPaths = []string{"quoteSymbol", "quote_symbol", "quote"}
	baseLiqPaths     = []string{"baseLiquidity", "base_liquidity", "baseReserve", "base_reserve", "reserve1"}
	quoteLiqPaths    = []string{"quoteLiquidity", "quote_liquidity", "quoteReserve", "quote_reserve", "reserve2"}
	lpSupplyPaths    = []string{"lpTokenSupply", "lpSupply", "lp_token_supply", "lp_supply"}
	feeBpsPaths      = []string{"feeBps", "fee_bps"}
	updatedPaths     = []string{"lastUpdated", "last_updated", "updatedAt", "updated_at", "ts", "timestamp"}

	swapIDPaths      = []string{"id", "swapId", "swap_id", "txHash", "tx_hash", "hash"}
	swapPoolPaths    = []string{"pool", "poolKey", "pool_key", "poolLabel", "label", "pair"}
	fromAssetPaths   = []string{"fromAsset", "from_asset", "from", "assetIn"}
	toAssetPaths     = []string{"toAsset", "to_asset", "to", "assetOut"}
	amountInPaths    = []string{"amountIn", "amount_in"}
	amountOutPaths   = []string{"amountOut", "amount_out"}
	swapTimePaths    = []string{"timestamp", "ts", "time", "createdAt", "created_at"}
	executedAtPaths  = []string{"executedAt", "executed_at"}
	metaUpdatedPaths = []string{"lastUpdated", "last_updated", "updatedAt", "updated_at", "timestamp", "ts"}
)

// naiveLayouts covers ISO timestamps emitted without a zone, read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func first(r gjson.Result, paths []string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

// number accepts JSON numbers and numeric strings.
func number(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Float(), true
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// text returns a trimmed string form; numbers keep their literal form so
// 7 and "7" normalize to the same id.
func text(r gjson.Result) string {
	switch r.Type {
	case gjson.String, gjson.Number:
		return strings.TrimSpace(r.String())
	default:
		return ""
	}
}

// timestamp parses RFC 3339, zone-less ISO, or unix seconds/milliseconds.
func timestamp(r gjson.Result) (time.Time, bool) {
	if f, ok := number(r); ok && (r.Type == gjson.Number || !strings.ContainsAny(r.Str, "-:")) {
		if f <= 0 {
			return time.Time{}, false
		}
		if f > 1e12 {
			return time.UnixMilli(int64(f)).UTC(), true
		}
		sec := int64(f)
		return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC(), true
	}
	if r.Type != gjson.String {
		return time.Time{}, false
	}
	s := strings.TrimSpace(r.Str)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// records unwraps a collection response: a bare array, an object holding the
// array under one of keys, or a single record object.
func records(body []byte, keys ...string) ([]gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json", domain.ErrMalformed)
	}
	root := gjson.ParseBytes(body)
	switch {
	case root.IsArray():
		return root.Array(), nil
	case root.IsObject():
		for _, k := range append(keys, "data", "items") {
			if v := root.Get(k); v.IsArray() {
				return v.Array(), nil
			}
		}
		return []gjson.Result{root}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected %s body", domain.ErrMalformed, root.Type)
	}
}

// poolFromJSON normalizes one pool record. Both liquidity sides are
// required.
func poolFromJSON(r gjson.Result) (domain.PoolState, error) {
	if !r.IsObject() {
		return domain.PoolState{}, fmt.Errorf("%w: pool record is not an object", domain.ErrMalformed)
	}
	p := domain.PoolState{
		Key:         text(first(r, poolKeyPaths)),
		BaseSymbol:  text(first(r, baseSymbolPaths)),
		QuoteSymbol: text(first(r, quoteSymbolPaths)),
	}
	var ok bool
	if p.BaseLiquidity, ok = number(first(r, baseLiqPaths)); !ok {
		return domain.PoolState{}, fmt.Errorf("%w: pool %q missing base liquidity", domain.ErrMalformed, p.Key)
	}
	if p.QuoteLiquidity, ok = number(first(r, quoteLiqPaths)); !ok {
		return domain.PoolState{}, fmt.Errorf("%w: pool %q missing quote liquidity", domain.ErrMalformed, p.Key)
	}
	p.LPSupply, _ = number(first(r, lpSupplyPaths))
	if fee, ok := number(first(r, feeBpsPaths)); ok {
		p.FeeBps = int(fee)
	}
	p.LastUpdated, _ = timestamp(first(r, updatedPaths))

	if err := p.Validate(); err != nil {
		return domain.PoolState{}, fmt.Errorf("%w: %w", domain.ErrMalformed, err)
	}
	return p, nil
}

// poolPatchFromJSON normalizes a partial pool update. Only the key is
// required; absent fields stay nil.
func poolPatchFromJSON(r gjson.Result) (domain.PoolPatch, error) {
	if !r.IsObject() {
		return domain.PoolPatch{}, fmt.Errorf("%w: pool update is not an object", domain.ErrMalformed)
	}
	patch := domain.PoolPatch{Key: text(first(r, poolKeyPaths))}
	if patch.Key == "" {
		return domain.PoolPatch{}, fmt.Errorf("%w: pool update without key", domain.ErrMalformed)
	}
	if s := text(first(r, baseSymbolPaths)); s != "" {
		patch.BaseSymbol = &s
	}
	if s := text(first(r, quoteSymbolPaths)); s != "" {
		patch.QuoteSymbol = &s
	}
	if f, ok := number(first(r, baseLiqPaths)); ok {
		patch.BaseLiquidity = &f
	}
	if f, ok := number(first(r, quoteLiqPaths)); ok {
		patch.QuoteLiquidity = &f
	}
	if f, ok := number(first(r, lpSupplyPaths)); ok {
		patch.LPSupply = &f
	}
	if f, ok := number(first(r, feeBpsPaths)); ok {
		fee := int(f)
		patch.FeeBps = &fee
	}
	if t, ok := timestamp(first(r, updatedPaths)); ok {
		patch.LastUpdated = &t
	}
	return patch, nil
}

// swapFromJSON normalizes one swap record.
func swapFromJSON(r gjson.Result) (domain.SwapEvent, error) {
	if !r.IsObject() {
		return domain.SwapEvent{}, fmt.Errorf("%w: swap record is not an object", domain.ErrMalformed)
	}
	s := domain.SwapEvent{
		ID:        text(first(r, swapIDPaths)),
		PoolKey:   text(first(r, swapPoolPaths)),
		FromAsset: text(first(r, fromAssetPaths)),
		ToAsset:   text(first(r, toAssetPaths)),
		Status:    domain.ParseSwapStatus(text(r.Get("status"))),
	}
	s.AmountIn, _ = number(first(r, amountInPaths))
	s.AmountOut, _ = number(first(r, amountOutPaths))
	s.Timestamp, _ = timestamp(first(r, swapTimePaths))
	s.ExecutedAt, _ = timestamp(first(r, executedAtPaths))
	if s.ID == "" {
		s.ID = derivedSwapID(s)
	}

	if err := s.Validate(); err != nil {
		return domain.SwapEvent{}, fmt.Errorf("%w: %w", domain.ErrMalformed, err)
	}
	return s, nil
}

// derivedSwapID names a swap the backend sent without an id. It needs a pool
// and a time so the same record maps to the same id on every poll.
func derivedSwapID(s domain.SwapEvent) string {
	t := s.Time()
	if s.PoolKey == "" || t.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s@%s#%s/%s", s.PoolKey, t.Format(time.RFC3339Nano),
		strconv.FormatFloat(s.AmountIn, 'f', -1, 64),
		strconv.FormatFloat(s.AmountOut, 'f', -1, 64))
}

// metaFromJSON keeps every top-level field for pass-through and lifts the
// update time out of them.
func metaFromJSON(r gjson.Result) (domain.RunMeta, error) {
	if !r.IsObject() {
		return domain.RunMeta{}, fmt.Errorf("%w: meta is not an object", domain.ErrMalformed)
	}
	m := domain.RunMeta{}
	m.LastUpdated, _ = timestamp(first(r, metaUpdatedPaths))

	fields, _ := r.Value().(map[string]any)
	for _, p := range metaUpdatedPaths {
		delete(fields, p)
	}
	if len(fields) > 0 {
		m.Fields = fields
	}
	return m, nil
}

// parsePools normalizes a pools response, dropping bad records. It fails
// only when the body is unusable or every record was rejected.
func parsePools(body []byte) ([]domain.PoolState, int, error) {
	recs, err := records(body, "pools")
	if err != nil {
		return nil, 0, err
	}
	out := make([]domain.PoolState, 0, len(recs))
	for _, r := range recs {
		p, err := poolFromJSON(r)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	dropped := len(recs) - len(out)
	if len(out) == 0 && dropped > 0 {
		return nil, dropped, fmt.Errorf("%w: all %d pool records rejected", domain.ErrMalformed, dropped)
	}
	return out, dropped, nil
}

// parseSwaps normalizes a swaps response the same way as parsePools.
func parseSwaps(body []byte) ([]domain.SwapEvent, int, error) {
	recs, err := records(body, "swaps")
	if err != nil {
		return nil, 0, err
	}
	out := make([]domain.SwapEvent, 0, len(recs))
	for _, r := range recs {
		s, err := swapFromJSON(r)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	dropped := len(recs) - len(out)
	if len(out) == 0 && dropped > 0 {
		return nil, dropped, fmt.Errorf("%w: all %d swap records rejected", domain.ErrMalformed, dropped)
	}
	return out, dropped, nil
}

func parseMeta(body []byte) (domain.RunMeta, error) {
	if !gjson.ValidBytes(body) {
		return domain.RunMeta{}, fmt.Errorf("%w: invalid json", domain.ErrMalformed)
	}
	root := gjson.ParseBytes(body)
	if m := root.Get("meta"); m.IsObject() {
		root = m
	}
	return metaFromJSON(root)
}

// ParseMessage decodes one live-channel frame of the form
// {"type": "...", "data": {...}}.
func ParseMessage(raw []byte) (domain.PushMessage, error) {
	if !gjson.ValidBytes(raw) {
		return domain.PushMessage{}, fmt.Errorf("%w: invalid json", domain.ErrMalformed)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return domain.PushMessage{}, fmt.Errorf("%w: frame is not an object", domain.ErrMalformed)
	}
	data := root.Get("data")
	if !data.Exists() {
		data = root.Get("payload")
	}

	kind := domain.PushKind(strings.ToLower(text(root.Get("type"))))
	switch kind {
	case domain.PushSwap:
		s, err := swapFromJSON(data)
		if err != nil {
			return domain.PushMessage{}, err
		}
		return domain.PushMessage{Kind: kind, Swap: &s}, nil
	case domain.PushPoolUpdate:
		p, err := poolPatchFromJSON(data)
		if err != nil {
			return domain.PushMessage{}, err
		}
		return domain.PushMessage{Kind: kind, Pool: &p}, nil
	case domain.PushMeta:
		m, err := metaFromJSON(data)
		if err != nil {
			return domain.PushMessage{}, err
		}
		return domain.PushMessage{Kind: kind, Meta: &m}, nil
	default:
		return domain.PushMessage{}, fmt.Errorf("%w: %q", domain.ErrUnknownMessage, kind)
	}
}
