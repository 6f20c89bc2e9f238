package utils

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetryWithResult_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	result, err := RetryWithResult(context.Background(), fastConfig(), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, fmt.Errorf("transient %d", calls)
		}
		return 42, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if result != 42 || calls != 3 {
		t.Fatalf("result = %d after %d calls", result, calls)
	}
}

func TestRetry_ExhaustionReturnsLastError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(), func() error {
		calls++
		return fmt.Errorf("attempt %d", calls)
	})
	if err == nil || err.Error() != "attempt 3" {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestRetry_ContextCancelStopsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, fastConfig(), func() error {
		calls++
		return fmt.Errorf("nope")
	})
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	// The first attempt runs; the cancelled context stops the backoff wait.
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
}
