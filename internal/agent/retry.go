package agent

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryConfig defines backoff behavior for participant communication.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`
	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay"`
	// Multiplier grows the delay after each retry.
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
	// JitterFactor adds randomness to delays (0.0-1.0).
	JitterFactor float64 `json:"jitter_factor" yaml:"jitter_factor"`
}

// DefaultRetryConfig returns sensible defaults for agent communication.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// IsRetryable reports whether an error warrants another attempt. Context
// cancellation and validation failures never do; communication failures do.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsValidationError(err) {
		return false
	}
	return true
}

// WithRetry runs fn with bounded exponential backoff. It returns the first
// success, or the last error once attempts are exhausted, the error is not
// retryable, or the context ends.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	delay := cfg.InitialDelay

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == cfg.MaxRetries {
			break
		}

		wait := delay
		if cfg.JitterFactor > 0 {
			jitter := time.Duration(float64(wait) * cfg.JitterFactor * rand.Float64())
			wait += jitter
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return zero, lastErr
}
