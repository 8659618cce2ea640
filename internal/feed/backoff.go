package feed

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	// DefaultReconnectDelay is the fixed wait between live channel reconnects.
	DefaultReconnectDelay = 2 * time.Second

	// DefaultMaxReconnectDelay caps the exponential policy.
	DefaultMaxReconnectDelay = 60 * time.Second
)

// ReconnectPolicy decides how long to wait before reconnect attempt n
// (1-based). The zero value waits DefaultReconnectDelay every time.
type ReconnectPolicy struct {
	Delay       time.Duration
	Exponential bool
	MaxDelay    time.Duration
	// Jitter spreads each delay by up to this fraction in either direction.
	Jitter float64
}

// Next returns the wait before the given attempt.
func (p ReconnectPolicy) Next(attempt int) time.Duration {
	delay := p.Delay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}

	if p.Exponential {
		max := p.MaxDelay
		if max <= 0 {
			max = DefaultMaxReconnectDelay
		}
		for i := 1; i < attempt && delay < max; i++ {
			delay *= 2
		}
		if delay > max {
			delay = max
		}
	}

	if p.Jitter > 0 {
		j := p.Jitter
		if j > 1 {
			j = 1
		}
		spread := float64(delay) * j
		delay = time.Duration(float64(delay) - spread + rand.Float64()*2*spread)
	}
	return delay
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return false
	case <-timer.C:
		return true
	}
}
