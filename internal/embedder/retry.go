package embedder

import (
	"context"
	"errors"
	"time"
)

// RetryConfig configures exponential backoff between provider attempts
type RetryConfig struct {
	MaxRetries int // total attempts, at least one
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64

	// Retryable decides whether an error is worth another attempt. Nil
	// retries every error.
	Retryable func(error) bool

	// OnRetry, if set, is called before sleeping ahead of the next attempt
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryConfig returns the provider defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: MaxRetries,
		BaseDelay:  time.Duration(InitialBackoffMs) * time.Millisecond,
		MaxDelay:   time.Duration(MaxBackoffMs) * time.Millisecond,
		Multiplier: BackoffMultiplier,
	}
}

// delayHint lets an error ask for a specific wait, e.g. from Retry-After
type delayHint interface {
	retryAfter() time.Duration
}

// nextDelay returns the wait before the next attempt. A server supplied
// hint wins over the computed backoff but is still capped at MaxDelay.
func (c RetryConfig) nextDelay(backoff time.Duration, err error) time.Duration {
	delay := backoff
	var hint delayHint
	if errors.As(err, &hint) {
		if d := hint.retryAfter(); d > 0 {
			delay = d
		}
	}
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// withRetry runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out. Context cancellation stops retrying immediately.
func withRetry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	backoff := cfg.BaseDelay
	attempts := max(cfg.MaxRetries, 1)

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, err
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		delay := cfg.nextDelay(backoff, err)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && backoff > cfg.MaxDelay {
			backoff = cfg.MaxDelay
		}
	}

	return zero, lastErr
}
