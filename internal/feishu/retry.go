package feishu

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig holds configuration for retrying platform calls
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
	Backoff     BackoffStrategy
}

// BackoffStrategy defines the backoff algorithm
type BackoffStrategy int

const (
	BackoffExponential BackoffStrategy = iota
	BackoffLinear
	BackoffFixed
)

// DefaultRetryConfig is used by the client for idempotent reads
var DefaultRetryConfig = RetryConfig{
	MaxAttempts: 3,
	BaseDelay:   300 * time.Millisecond,
	MaxDelay:    5 * time.Second,
	Jitter:      true,
	Backoff:     BackoffExponential,
}

// NoRetry runs the call exactly once
var NoRetry = RetryConfig{MaxAttempts: 1}

// RetryableFunc is a function that can be retried
type RetryableFunc func(attempt int) error

// RetryExhaustedError wraps the last failure once every attempt was used
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// Retry executes fn until it succeeds, returns a non-retryable error or runs out of attempts
func Retry(ctx context.Context, config RetryConfig, fn RetryableFunc) error {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}

		// Don't wait after the last attempt
		if attempt >= config.MaxAttempts {
			break
		}

		delay := calculateDelay(config, attempt)
		if config.Jitter {
			delay = applyJitter(delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		}
	}

	if config.MaxAttempts == 1 {
		return lastErr
	}
	return &RetryExhaustedError{
		Attempts: config.MaxAttempts,
		Err:      lastErr,
	}
}

// calculateDelay computes the delay between retry attempts
func calculateDelay(config RetryConfig, attempt int) time.Duration {
	var delay time.Duration

	switch config.Backoff {
	case BackoffExponential:
		delay = config.BaseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	case BackoffLinear:
		delay = config.BaseDelay * time.Duration(attempt)
	default:
		delay = config.BaseDelay
	}

	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	return delay
}

// applyJitter adds ±25% jitter to the delay
func applyJitter(delay time.Duration) time.Duration {
	jitter := (rand.Float64() - 0.5) * 0.5
	return time.Duration(float64(delay) * (1 + jitter))
}
