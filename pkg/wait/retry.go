package wait

import (
	"context"
	"fmt"
	"time"
)

// Policy controls how Retry re-invokes a failing operation.
type Policy struct {
	// MaxAttempts is the total number of invocations, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// Backoff is the delay before the second attempt.
	Backoff time.Duration

	// Multiplier grows the delay after every failed attempt. Values <= 1 keep
	// the delay fixed.
	Multiplier float64

	// MaxBackoff caps the grown delay. Zero means no cap.
	MaxBackoff time.Duration

	// Retryable decides whether a failure may be retried. Nil retries every error.
	Retryable func(err error) bool

	// Scale adjusts the delay for a particular failure, e.g. to wait longer
	// after a network error. Nil leaves the delay unchanged.
	Scale func(err error, d time.Duration) time.Duration
}

func (p Policy) attempts() int {
	return max(p.MaxAttempts, 1)
}

func (p Policy) retryable(err error) bool {
	return p.Retryable == nil || p.Retryable(err)
}

// delay returns the wait that follows the given 1-based failed attempt.
func (p Policy) delay(attempt int, err error) time.Duration {
	d := p.Backoff
	for i := 1; i < attempt && p.Multiplier > 1; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if p.MaxBackoff > 0 && d > p.MaxBackoff {
			d = p.MaxBackoff
			break
		}
	}
	if p.Scale != nil {
		d = p.Scale(err, d)
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// Retry invokes op until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. It returns the last result, the number of
// invocations made and the last error. Cancellation of ctx is never retried.
func Retry[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	var (
		zero    T
		lastErr error
	)

	limit := p.attempts()
	for attempt := 1; attempt <= limit; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, attempt - 1, fmt.Errorf("retry cancelled after %d attempts: %w (last error: %v)", attempt-1, err, lastErr)
			}
			return zero, attempt - 1, err
		}

		result, err := op(ctx, attempt)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err

		if attempt == limit || !p.retryable(err) || ctx.Err() != nil {
			return zero, attempt, err
		}

		if sErr := Sleep(ctx, p.delay(attempt, err)); sErr != nil {
			return zero, attempt, fmt.Errorf("retry cancelled after %d attempts: %w (last error: %v)", attempt, sErr, lastErr)
		}
	}

	return zero, limit, lastErr
}

// WithRetry runs op up to maxAttempts times with a fixed backoff between
// attempts and returns the first success or the last failure.
func WithRetry[T any](ctx context.Context, maxAttempts int, backoff time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	result, _, err := Retry(ctx, Policy{MaxAttempts: maxAttempts, Backoff: backoff}, func(ctx context.Context, _ int) (T, error) {
		return op(ctx)
	})
	return result, err
}
