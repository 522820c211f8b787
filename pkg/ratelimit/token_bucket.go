package ratelimit

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Limiter provides blocking rate limiting functionality
type Limiter interface {
	// Acquire blocks until a token is available, then consumes it.
	Acquire(ctx context.Context) error
}

// TokenBucket implements a blocking token bucket limiter. Acquire never
// rejects, it only delays. Tokens are fractional so sub-second refill rates
// accumulate correctly between calls.
type TokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time

	maxJitter time.Duration
	// sleep is swappable for tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTokenBucket creates a new token bucket limiter. The bucket starts full.
func NewTokenBucket(maxTokens int, refillRatePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:     float64(maxTokens),
		maxTokens:  float64(maxTokens),
		refillRate: refillRatePerSecond,
		lastRefill: time.Now(),
		maxJitter:  25 * time.Millisecond,
		sleep:      sleepCtx,
	}
}

// Acquire blocks the caller until a token is available, then consumes one.
// Waiting callers sleep just long enough for the next token plus a small
// random jitter so concurrent callers do not wake in lockstep.
func (b *TokenBucket) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait := b.tryConsume()
		if wait == 0 {
			return nil
		}

		jitter := time.Duration(rand.Int63n(int64(b.maxJitter) + 1))
		if err := b.sleep(ctx, wait+jitter); err != nil {
			return err
		}
	}
}

// tryConsume refills the bucket and consumes a token if one is available.
// It returns 0 on success, otherwise the time to wait before retrying.
func (b *TokenBucket) tryConsume() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(b.tokens+elapsed*b.refillRate, b.maxTokens)
		b.lastRefill = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return 0
	}

	waitMs := math.Ceil((1 - b.tokens) / b.refillRate * 1000)
	return time.Duration(waitMs) * time.Millisecond
}

// Tokens returns the current token count. Intended for tests and metrics.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Pair bundles the two independently configured buckets the portal uses:
// general API calls get a larger burst allowance than permission calls,
// which the vendor throttles more aggressively.
type Pair struct {
	General     *TokenBucket
	Permissions *TokenBucket
}

// NewPair creates the general and permissions buckets.
func NewPair(generalMax int, generalRate float64, permMax int, permRate float64) *Pair {
	return &Pair{
		General:     NewTokenBucket(generalMax, generalRate),
		Permissions: NewTokenBucket(permMax, permRate),
	}
}
