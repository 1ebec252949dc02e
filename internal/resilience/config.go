package resilience

import (
	"time"
)

// Backoff returns the policy used around whole fetch-and-validate steps:
// maxRetries retries after the first attempt, the delay doubling from base
// with no jitter. Every error is retried except Permanent ones and context
// cancellation.
func Backoff(step string, maxRetries int, base time.Duration) RetryConfig {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return RetryConfig{
		MaxAttempts:    maxRetries + 1,
		InitialBackoff: base,
		MaxBackoff:     5 * time.Minute,
		Multiplier:     2.0,
		ShouldRetry:    Retryable,
		OnRetry:        RetryLogger(step),
	}
}
