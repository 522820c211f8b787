package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowLimiter_EnforcesLimit(t *testing.T) {
	ctx := context.Background()
	limiter := NewSlidingWindowLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "key-1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := limiter.Allow(ctx, "key-1")
	require.NoError(t, err)
	assert.False(t, allowed, "fourth request inside the window must be denied")
}

func TestSlidingWindowLimiter_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	limiter := NewSlidingWindowLimiter(1, time.Minute)

	allowed, _ := limiter.Allow(ctx, "key-1")
	assert.True(t, allowed)
	allowed, _ = limiter.Allow(ctx, "key-1")
	assert.False(t, allowed)

	allowed, _ = limiter.Allow(ctx, "key-2")
	assert.True(t, allowed, "a saturated key must not affect other keys")
}

func TestSlidingWindowLimiter_WindowSlides(t *testing.T) {
	ctx := context.Background()
	limiter := NewSlidingWindowLimiter(1, 20*time.Millisecond)

	allowed, _ := limiter.Allow(ctx, "key-1")
	assert.True(t, allowed)
	allowed, _ = limiter.Allow(ctx, "key-1")
	assert.False(t, allowed)

	time.Sleep(30 * time.Millisecond)
	allowed, _ = limiter.Allow(ctx, "key-1")
	assert.True(t, allowed, "requests outside the window no longer count")
}

func TestSlidingWindowLimiter_Reset(t *testing.T) {
	ctx := context.Background()
	limiter := NewSlidingWindowLimiter(1, time.Minute)

	limiter.Allow(ctx, "key-1")
	allowed, _ := limiter.Allow(ctx, "key-1")
	require.False(t, allowed)

	require.NoError(t, limiter.Reset(ctx, "key-1"))
	allowed, _ = limiter.Allow(ctx, "key-1")
	assert.True(t, allowed)
}

func TestIPAndUserLimiters_UseDistinctKeyspaces(t *testing.T) {
	ctx := context.Background()
	ipLimiter := NewIPRateLimiter(1)
	userLimiter := NewUserRateLimiter(1)

	allowed, _ := ipLimiter.Allow(ctx, "10.0.0.1")
	assert.True(t, allowed)
	allowed, _ = userLimiter.Allow(ctx, "10.0.0.1")
	assert.True(t, allowed, "user limiter must not share state with the IP limiter")
}
