package steps

import (
	"time"

	"github.com/systemstart/receiptflow/pkg/api"
	"github.com/systemstart/receiptflow/pkg/wait"
)

// RetryPolicy bounds how often a step operation is re-invoked after a
// retryable failure.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	Multiplier  float64
	MaxBackoff  time.Duration

	// NetworkFactor stretches the delay after Network failures.
	NetworkFactor float64
}

// NoRetry runs an operation exactly once.
var NoRetry = RetryPolicy{MaxAttempts: 1}

// DefaultRetryPolicy is used by steps that do not set their own.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		Backoff:       2 * time.Second,
		Multiplier:    2,
		MaxBackoff:    30 * time.Second,
		NetworkFactor: api.DefaultNetworkBackoffMul,
	}
}

// Override applies the non-zero fields of a configured override.
func (p RetryPolicy) Override(rc api.RetryConfig) RetryPolicy {
	if rc.MaxAttempts > 0 {
		p.MaxAttempts = rc.MaxAttempts
	}
	if rc.Backoff > 0 {
		p.Backoff = rc.Backoff
	}
	if rc.Multiplier > 0 {
		p.Multiplier = rc.Multiplier
	}
	if rc.MaxBackoff > 0 {
		p.MaxBackoff = rc.MaxBackoff
	}
	if rc.NetworkBackoffFactor > 0 {
		p.NetworkFactor = rc.NetworkBackoffFactor
	}
	return p
}

func (p RetryPolicy) waitPolicy() wait.Policy {
	return wait.Policy{
		MaxAttempts: p.MaxAttempts,
		Backoff:     p.Backoff,
		Multiplier:  p.Multiplier,
		MaxBackoff:  p.MaxBackoff,
		Retryable: func(err error) bool {
			return Classify(err).Retryable()
		},
		Scale: func(err error, d time.Duration) time.Duration {
			if p.NetworkFactor > 1 && Classify(err) == Network {
				return time.Duration(float64(d) * p.NetworkFactor)
			}
			return d
		},
	}
}
