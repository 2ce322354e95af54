package retry

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"
)

const (
	// DefaultMaxRetries is the default number of retry attempts.
	DefaultMaxRetries = 3
	// DefaultBaseDelay is the base delay for exponential backoff.
	DefaultBaseDelay = 1 * time.Second
	// DefaultMaxJitterPercent is the maximum jitter percentage (0-25%).
	DefaultMaxJitterPercent = 25
)

// Config holds retry configuration.
type Config struct {
	MaxRetries       int
	BaseDelay        time.Duration
	MaxJitterPercent int
	FixedDelay       bool                                 // Use BaseDelay as-is instead of exponential backoff
	RetryAll         bool                                 // Retry every error, skipping the retryability classification
	Logger           io.Writer                            // Where to write retry logs (nil for no logging)
	OnRetry          func(delaySeconds, attempt, max int) // Optional callback for retry notifications
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		MaxRetries:       DefaultMaxRetries,
		BaseDelay:        DefaultBaseDelay,
		MaxJitterPercent: DefaultMaxJitterPercent,
	}
}

// Operation is a function that can be retried. A nil error means success.
type Operation func() error

// Do runs an operation with retry logic. It retries on retryable errors
// (or all errors when cfg.RetryAll is set) with backoff between attempts.
// Returns the final error after all attempts, or nil on success.
func Do(ctx context.Context, cfg Config, op Operation) error {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxJitterPercent < 0 || cfg.MaxJitterPercent > 100 {
		cfg.MaxJitterPercent = DefaultMaxJitterPercent
	}

	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastErr = op()

		// Success - return immediately
		if lastErr == nil {
			return nil
		}

		if !cfg.RetryAll && !IsRetryable(lastErr) {
			if cfg.Logger != nil {
				fmt.Fprintf(cfg.Logger, "Non-retryable error, stopping: %v\n", lastErr)
			}
			return lastErr
		}

		// Check if we've exhausted retries
		if attempt >= cfg.MaxRetries {
			if cfg.Logger != nil {
				fmt.Fprintf(cfg.Logger, "All %d retry attempts exhausted\n", cfg.MaxRetries)
			}
			return lastErr
		}

		delay := cfg.BaseDelay
		if !cfg.FixedDelay {
			delay = CalculateDelay(cfg.BaseDelay, attempt, cfg.MaxJitterPercent)
		}
		delaySecs := int(delay.Seconds())
		if delaySecs < 1 {
			delaySecs = 1
		}

		// Use OnRetry callback if provided, otherwise use Logger
		if cfg.OnRetry != nil {
			cfg.OnRetry(delaySecs, attempt+1, cfg.MaxRetries)
		} else if cfg.Logger != nil {
			fmt.Fprintf(cfg.Logger, "Retrying in %ds... (attempt %d/%d)\n",
				delaySecs, attempt+1, cfg.MaxRetries)
		}

		// Wait for delay or context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			// Continue to next retry
		}
	}

	return lastErr
}

// CalculateDelay returns the delay for a given attempt using exponential backoff with jitter.
// Formula: base * 2^attempt + jitter (0-maxJitterPercent% of calculated delay)
func CalculateDelay(base time.Duration, attempt int, maxJitterPercent int) time.Duration {
	// Calculate exponential backoff: base * 2^attempt
	multiplier := 1 << attempt // 2^attempt (1, 2, 4, 8, ...)
	delay := base * time.Duration(multiplier)

	// Add jitter (0-maxJitterPercent% of delay)
	if maxJitterPercent > 0 {
		jitterRange := float64(delay) * float64(maxJitterPercent) / 100.0
		jitter := time.Duration(rand.Float64() * jitterRange)
		delay += jitter
	}

	return delay
}

// retryablePatterns contains error message patterns that indicate retryable errors.
var retryablePatterns = []string{
	"rate limit",
	"rate_limit",
	"secondary rate limit",
	"abuse",
	"timeout",
	"timed out",
	"deadline exceeded",
	"network",
	"connection refused",
	"connection reset",
	"temporary failure",
	"service unavailable",
	"503",
	"502",
	"429",
	"overloaded",
	"too many requests",
}

// nonRetryablePatterns contains error message patterns that indicate non-retryable errors.
var nonRetryablePatterns = []string{
	"syntax error",
	"invalid",
	"not found",
	"unauthorized",
	"forbidden",
	"authentication",
	"permission denied",
	"bad request",
	"400",
	"401",
	"403",
	"404",
}

// IsRetryable determines if an error is retryable.
// Rate limit, timeout, and network errors are retryable.
// Malformed input, missing resources, and auth errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	// First check if it's explicitly non-retryable
	for _, pattern := range nonRetryablePatterns {
		if strings.Contains(errStr, pattern) {
			return false
		}
	}

	// Then check if it matches a retryable pattern
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	// Default: don't retry unknown errors (conservative approach)
	return false
}
