package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectPolicyNext(t *testing.T) {
	tests := []struct {
		name     string
		policy   ReconnectPolicy
		attempts []int
		expected []time.Duration
	}{
		{
			name:     "zero value is a fixed two seconds",
			policy:   ReconnectPolicy{},
			attempts: []int{1, 2, 10},
			expected: []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second},
		},
		{
			name:     "fixed custom delay",
			policy:   ReconnectPolicy{Delay: 500 * time.Millisecond},
			attempts: []int{1, 5},
			expected: []time.Duration{500 * time.Millisecond, 500 * time.Millisecond},
		},
		{
			name:     "exponential with cap",
			policy:   ReconnectPolicy{Delay: time.Second, Exponential: true, MaxDelay: 5 * time.Second},
			attempts: []int{1, 2, 3, 4, 20},
			expected: []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second},
		},
		{
			name:     "exponential default cap",
			policy:   ReconnectPolicy{Exponential: true},
			attempts: []int{1, 100},
			expected: []time.Duration{2 * time.Second, DefaultMaxReconnectDelay},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i, a := range tt.attempts {
				assert.Equal(t, tt.expected[i], tt.policy.Next(a), "attempt %d", a)
			}
		})
	}
}

func TestReconnectPolicyJitterBounds(t *testing.T) {
	p := ReconnectPolicy{Delay: time.Second, Jitter: 0.2}
	for i := 0; i < 200; i++ {
		d := p.Next(1)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}

func TestSleepCtx(t *testing.T) {
	assert.True(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.False(t, sleepCtx(ctx, time.Hour))
	assert.Less(t, time.Since(start), time.Second)
}
