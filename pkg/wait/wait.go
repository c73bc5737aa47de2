// Package wait provides bounded polling and retry helpers for talking to
// slow or flaky external systems.
package wait

import (
	"context"
	"time"
)

// DefaultPollInterval is used when a caller passes a non-positive interval.
const DefaultPollInterval = 100 * time.Millisecond

// Condition reports whether the awaited state has been reached.
type Condition func(ctx context.Context) bool

// AwaitCondition polls predicate every poll until it returns true or timeout
// elapses. A timeout is an expected outcome and yields (false, nil). If ctx is
// cancelled the context error is returned.
func AwaitCondition(ctx context.Context, predicate Condition, timeout, poll time.Duration) (bool, error) {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	deadline := time.Now().Add(timeout)

	for {
		if predicate(ctx) {
			return true, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		if err := Sleep(ctx, min(poll, remaining)); err != nil {
			return false, err
		}
	}
}

// Sleep blocks for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
