package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucket_StartsFull(t *testing.T) {
	bucket := NewTokenBucket(3, 1.0)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, bucket.Acquire(ctx))
	}
	assert.Less(t, bucket.Tokens(), 1.0)
}

func TestTokenBucket_BlocksWhenEmpty(t *testing.T) {
	bucket := NewTokenBucket(1, 100.0)

	var mu sync.Mutex
	var sleeps []time.Duration
	bucket.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
		// Simulate the passage of time by refilling directly.
		bucket.mu.Lock()
		bucket.tokens = 1
		bucket.mu.Unlock()
		return nil
	}

	ctx := context.Background()
	require.NoError(t, bucket.Acquire(ctx))
	require.NoError(t, bucket.Acquire(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, sleeps, "second acquire on an empty bucket must wait")
	// At 100 tokens/s a full token is 10ms away; jitter adds at most 25ms.
	assert.GreaterOrEqual(t, sleeps[0], time.Duration(0))
	assert.LessOrEqual(t, sleeps[0], 10*time.Millisecond+25*time.Millisecond)
}

func TestTokenBucket_RefillsOverTime(t *testing.T) {
	bucket := NewTokenBucket(2, 1000.0)

	ctx := context.Background()
	require.NoError(t, bucket.Acquire(ctx))
	require.NoError(t, bucket.Acquire(ctx))

	// At 1000 tokens/s the bucket refills well within this window.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, bucket.Acquire(ctx))
}

func TestTokenBucket_BurstOverflowDrainsWithoutStarvation(t *testing.T) {
	// Bucket of 2 with a fast refill: 5 overflow acquires beyond the burst
	// must all complete, each consuming exactly one token.
	bucket := NewTokenBucket(2, 500.0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < 7; i++ {
		require.NoError(t, bucket.Acquire(ctx), "acquire %d", i+1)
	}
}

func TestTokenBucket_NeverExceedsCapacity(t *testing.T) {
	bucket := NewTokenBucket(2, 1000.0)

	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, bucket.Tokens(), 2.0)
}

func TestTokenBucket_AcquireHonorsCancellation(t *testing.T) {
	bucket := NewTokenBucket(1, 0.001)

	ctx := context.Background()
	require.NoError(t, bucket.Acquire(ctx))

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()
	err := bucket.Acquire(cancelCtx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokenBucket_CancellationDuringWait(t *testing.T) {
	bucket := NewTokenBucket(1, 0.001)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, bucket.Acquire(ctx))

	start := time.Now()
	err := bucket.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second, "wait must abort at the deadline, not the refill")
}

func TestNewPair_IndependentBuckets(t *testing.T) {
	pair := NewPair(10, 5.0, 2, 1.0)

	ctx := context.Background()
	require.NoError(t, pair.Permissions.Acquire(ctx))
	require.NoError(t, pair.Permissions.Acquire(ctx))

	// Draining the permissions bucket leaves the general bucket untouched.
	assert.Less(t, pair.Permissions.Tokens(), 1.0)
	assert.Greater(t, pair.General.Tokens(), 9.0)
}
