// Retry policy and backoff math for failed job attempts.
package domain

import (
	"math/rand"
	"time"
)

// BackoffStrategy selects how the retry delay grows with the attempt count.
type BackoffStrategy string

const (
	BackoffConstant    BackoffStrategy = "constant"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// RetryPolicy defines retry behavior for job processing. The zero value
// disables retries; use DefaultRetryPolicy for sensible defaults.
type RetryPolicy struct {
	Enabled    bool
	MaxRetries int
	Strategy   BackoffStrategy
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Jitter multiplier applied to the capped delay is 1 + U(MinJitter, MaxJitter).
	MinJitter float64
	MaxJitter float64
}

// DefaultRetryPolicy returns the service-wide default policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Enabled:    true,
		MaxRetries: 3,
		Strategy:   BackoffExponential,
		BaseDelay:  5 * time.Second,
		MaxDelay:   5 * time.Minute,
		MinJitter:  0.0,
		MaxJitter:  0.2,
	}
}

// ShouldRetry reports whether a failed attempt is eligible for another try.
// The handler's retryable verdict, the policy switch, and the per-job cap
// must all agree.
func (p RetryPolicy) ShouldRetry(retryCount, maxRetries int, retryable bool) bool {
	return p.Enabled && retryable && retryCount < maxRetries
}

// exponentialShortCircuit is the retry count beyond which the exponential
// strategy saturates to MaxDelay instead of shifting further.
const exponentialShortCircuit = 31

// Delay computes the backoff before the attempt following retryCount failed
// attempts. The cap applies before jitter so that jitter stays interpretable
// as a percentage of the capped delay; negative jitter may push the result
// below BaseDelay but never below zero.
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	baseMs := p.BaseDelay.Milliseconds()
	maxMs := p.MaxDelay.Milliseconds()

	var delayMs int64
	switch p.Strategy {
	case BackoffLinear:
		delayMs = baseMs * int64(retryCount+1)
	case BackoffExponential:
		if retryCount >= exponentialShortCircuit {
			delayMs = maxMs
		} else {
			delayMs = baseMs << uint(retryCount)
			if delayMs < 0 { // widened shift still overflowed
				delayMs = maxMs
			}
		}
	default: // BackoffConstant
		delayMs = baseMs
	}

	if maxMs > 0 && delayMs > maxMs {
		delayMs = maxMs
	}

	factor := 1.0 + p.MinJitter + rand.Float64()*(p.MaxJitter-p.MinJitter)
	delayMs = int64(float64(delayMs) * factor)
	if delayMs < 0 {
		delayMs = 0
	}
	return time.Duration(delayMs) * time.Millisecond
}
