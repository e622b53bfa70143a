package graph

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy controls how many times a failing node body is attempted
// within its round. Every attempt sees the same snapshot.
type RetryPolicy struct {
	MaxAttempts int // minimum 1 (1 = no retries)
	Backoff     Backoff
	ShouldRetry func(error) bool
}

// Backoff controls delay timing between attempts.
type Backoff struct {
	InitialDelay time.Duration
	Factor       float64
	MaxDelay     time.Duration
	Jitter       bool
}

// DelayForAttempt returns the delay before retry number attempt (0-indexed):
// InitialDelay * Factor^attempt, capped at MaxDelay. With Jitter the delay is
// drawn uniformly from [0, delay].
func (b Backoff) DelayForAttempt(attempt int) time.Duration {
	factor := b.Factor
	if factor <= 0 {
		factor = 1
	}

	delay := float64(b.InitialDelay) * math.Pow(factor, float64(attempt))
	if b.MaxDelay > 0 {
		delay = math.Min(delay, float64(b.MaxDelay))
	}

	if b.Jitter {
		delay = rand.Float64() * delay
	}

	return time.Duration(int64(delay))
}

// Attempts returns the effective number of attempts (at least 1).
func (p RetryPolicy) Attempts() int {
	return max(p.MaxAttempts, 1)
}

// Retryable reports whether err should trigger another attempt. Context
// errors from the caller never do.
func (p RetryPolicy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if p.ShouldRetry != nil {
		return p.ShouldRetry(err)
	}
	return DefaultShouldRetry(err)
}

// DefaultShouldRetry retries every non-nil error.
func DefaultShouldRetry(err error) bool {
	return err != nil
}

// RetryPolicyStandard returns 3 attempts with exponential backoff from 200ms.
func RetryPolicyStandard() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff: Backoff{
			InitialDelay: 200 * time.Millisecond,
			Factor:       2.0,
			MaxDelay:     30 * time.Second,
			Jitter:       true,
		},
		ShouldRetry: DefaultShouldRetry,
	}
}

// RetryPolicyLinear returns attempts spaced by a constant delay.
func RetryPolicyLinear(attempts int, delay time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		Backoff: Backoff{
			InitialDelay: delay,
			Factor:       1.0,
			MaxDelay:     delay,
		},
		ShouldRetry: DefaultShouldRetry,
	}
}
