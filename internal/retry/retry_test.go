package retry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		// Retryable errors
		{
			name:     "rate limit error",
			err:      errors.New("API rate limit exceeded"),
			expected: true,
		},
		{
			name:     "secondary rate limit",
			err:      errors.New("secondary rate limit triggered"),
			expected: true,
		},
		{
			name:     "timeout error",
			err:      errors.New("request timed out"),
			expected: true,
		},
		{
			name:     "deadline exceeded",
			err:      errors.New("context deadline exceeded"),
			expected: true,
		},
		{
			name:     "connection refused",
			err:      errors.New("dial tcp: connection refused"),
			expected: true,
		},
		{
			name:     "service unavailable 503",
			err:      errors.New("server returned 503"),
			expected: true,
		},
		{
			name:     "too many requests 429",
			err:      errors.New("HTTP 429 Too Many Requests"),
			expected: true,
		},

		// Non-retryable errors
		{
			name:     "invalid input",
			err:      errors.New("invalid workflow definition"),
			expected: false,
		},
		{
			name:     "not found",
			err:      errors.New("workflow directory not found"),
			expected: false,
		},
		{
			name:     "unauthorized 401",
			err:      errors.New("401 unauthorized"),
			expected: false,
		},
		{
			name:     "forbidden",
			err:      errors.New("forbidden: insufficient scope"),
			expected: false,
		},
		{
			name:     "unknown error defaults to non-retryable",
			err:      errors.New("something unexpected happened"),
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxRetries: 3, BaseDelay: time.Millisecond}, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoRetriesRetryableError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxRetries: 2, BaseDelay: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	var buf bytes.Buffer
	err := Do(context.Background(), Config{MaxRetries: 3, BaseDelay: time.Millisecond, Logger: &buf}, func() error {
		calls++
		return errors.New("invalid issue shape")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if !strings.Contains(buf.String(), "Non-retryable") {
		t.Errorf("expected non-retryable log, got %q", buf.String())
	}
}

func TestDoRetryAllIgnoresClassification(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxRetries: 2, BaseDelay: time.Millisecond, RetryAll: true}, func() error {
		calls++
		return errors.New("invalid issue shape")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, Config{MaxRetries: 3, BaseDelay: time.Second, RetryAll: true}, func() error {
		return errors.New("network error")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDoFixedDelayCallsOnRetry(t *testing.T) {
	var attempts []int
	err := Do(context.Background(), Config{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		FixedDelay: true,
		RetryAll:   true,
		OnRetry: func(delaySeconds, attempt, max int) {
			attempts = append(attempts, attempt)
		},
	}, func() error {
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 retry notifications, got %d", len(attempts))
	}
	if attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("unexpected attempt sequence: %v", attempts)
	}
}

func TestCalculateDelayGrowsExponentially(t *testing.T) {
	base := 100 * time.Millisecond
	d0 := CalculateDelay(base, 0, 0)
	d2 := CalculateDelay(base, 2, 0)
	if d0 != base {
		t.Errorf("attempt 0: expected %v, got %v", base, d0)
	}
	if d2 != 4*base {
		t.Errorf("attempt 2: expected %v, got %v", 4*base, d2)
	}
}
