package retry

import (
	"context"
	"time"

	apperrors "qsportal-backend/pkg/errors"
)

// Policy bounds the retry behavior of an operation.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable decides whether an error is worth retrying. Defaults to
	// apperrors.IsRetryable when nil.
	Retryable func(error) bool
}

// DefaultPolicy matches the gateway contract: bounded attempts, bounded
// max delay.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// Do runs op, retrying transient failures with exponential backoff until the
// policy's attempt cap is exhausted. The last error is returned when all
// attempts fail. Context cancellation aborts the wait immediately.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	retryable := policy.Retryable
	if retryable == nil {
		retryable = apperrors.IsRetryable
	}

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := policy.BaseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}

	return apperrors.Wrapf(lastErr, "retries exhausted after %d attempts", attempts)
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, policy, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}
