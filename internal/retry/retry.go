// Package retry classifies provider failures and wraps unreliable calls
// with bounded exponential-backoff retries.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/aicx/aicx/internal/eventlog"
	"github.com/aicx/aicx/internal/protocol"
)

var retryableKinds = map[protocol.ErrorKind]bool{
	protocol.ErrTimeout:            true,
	protocol.ErrNetwork:            true,
	protocol.ErrRateLimit:          true,
	protocol.ErrServiceUnavailable: true,
}

// IsRetryable reports whether err is a provider error whose kind warrants
// a retry. Non-provider errors and unclassified kinds are not retryable.
func IsRetryable(err error) bool {
	var perr *protocol.ProviderError
	if !errors.As(err, &perr) {
		return false
	}
	return retryableKinds[perr.Kind]
}

// CalculateDelay computes the backoff before retry attempt (0-indexed):
// min(base * exponential_base^attempt, max_delay), plus jitter uniformly
// in [0, 0.25*delay] when enabled.
func CalculateDelay(attempt int, cfg protocol.RetryConfig) float64 {
	delay := cfg.BaseDelay * math.Pow(cfg.ExponentialBase, float64(attempt))
	delay = math.Min(delay, cfg.MaxDelay)
	if cfg.Jitter {
		delay += delay * rand.Float64() * 0.25
	}
	return delay
}

// ExecuteWithRetry invokes fn, retrying on retryable provider errors with
// backoff. Total attempts = MaxRetries + 1. Non-retryable errors and
// exhaustion re-raise the last error unchanged. The backoff sleep honors
// context cancellation.
func ExecuteWithRetry[T any](ctx context.Context, fn func() (T, error), cfg protocol.RetryConfig, provider string) (T, error) {
	var zero T
	totalAttempts := cfg.MaxRetries + 1

	var lastErr error
	for attempt := 0; attempt < totalAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			if attempt > 0 {
				eventlog.ModelEvent("retry_success", provider, 0, map[string]any{
					"attempt":        attempt,
					"total_attempts": totalAttempts,
				})
			}
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			eventlog.ModelEvent("retry_not_retryable", provider, 0, map[string]any{
				"message": err.Error(),
			})
			return zero, err
		}

		if attempt >= cfg.MaxRetries {
			eventlog.ModelEvent("retry_exhausted", provider, 0, map[string]any{
				"attempt":        attempt,
				"total_attempts": totalAttempts,
				"message":        err.Error(),
			})
			return zero, err
		}

		delay := CalculateDelay(attempt, cfg)
		eventlog.ModelEvent("retry_attempt", provider, 0, map[string]any{
			"attempt":        attempt + 1,
			"total_attempts": totalAttempts,
			"delay_seconds":  delay,
			"message":        err.Error(),
		})

		timer := time.NewTimer(time.Duration(delay * float64(time.Second)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, lastErr
}
