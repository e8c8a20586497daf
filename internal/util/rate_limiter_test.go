package util

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter("test", 0, 0)
	assert.Equal(t, DefaultRequestsPerSecond, rl.Rate())
	assert.Equal(t, "test", rl.Name())
}

func TestRateLimiter_WaitBurst(t *testing.T) {
	rl := NewRateLimiter("burst", 1, 3)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, rl.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond, "burst should not block")
}

func TestRateLimiter_WaitCancelled(t *testing.T) {
	rl := NewRateLimiter("slow", 0.1, 1)
	require.NoError(t, rl.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := rl.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slow")
}

func TestRateLimiter_OnRateLimitAndReset(t *testing.T) {
	rl := NewRateLimiter("backoff", 8, 1)

	backoff := rl.OnRateLimit(0)
	assert.Equal(t, 4.0, rl.Rate())
	assert.Equal(t, 250*time.Millisecond, backoff)

	backoff = rl.OnRateLimit(2 * time.Second)
	assert.Equal(t, 2*time.Second, backoff)

	for i := 0; i < 10; i++ {
		rl.OnRateLimit(0)
	}
	assert.Equal(t, 0.5, rl.Rate(), "rate never drops below a sixteenth of the base")

	rl.ResetRate()
	assert.Equal(t, 8.0, rl.Rate())
}

func TestLimiterRegistry(t *testing.T) {
	reg := NewLimiterRegistry(5, 2)
	a := reg.For("http://a")
	assert.Same(t, a, reg.For("http://a"))
	assert.NotSame(t, a, reg.For("http://b"))
	assert.Equal(t, 5.0, a.Rate())
}
