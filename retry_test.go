package gomtl

import (
	"context"
	"errors"
	"testing"
	"time"
)

func recordSleep(delays *[]time.Duration) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func testPolicy() RetryPolicy {
	return RetryPolicy{ContentRetries: 3, ContentBase: time.Second, RateLimitBackoff: 30 * time.Second}
}

func TestWithRetry_Success(t *testing.T) {
	var delays []time.Duration
	callCount := 0
	result, err := WithRetry(context.Background(), testPolicy(), recordSleep(&delays), nil, func() (string, error) {
		callCount++
		return "success", nil
	})

	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result != "success" {
		t.Errorf("Expected 'success', got %q", result)
	}
	if callCount != 1 || len(delays) != 0 {
		t.Errorf("Expected 1 call and no waits, got %d calls, %v", callCount, delays)
	}
}

func TestWithRetry_ContentBackoff(t *testing.T) {
	var delays []time.Duration
	callCount := 0
	_, err := WithRetry(context.Background(), testPolicy(), recordSleep(&delays), nil, func() (string, error) {
		callCount++
		return "", &EmptyTranslationError{}
	})

	if Kind(err) != KindEmptyTranslation {
		t.Fatalf("Expected EmptyTranslationError, got %v", err)
	}
	// Initial attempt + 3 retries.
	if callCount != 4 {
		t.Errorf("Expected 4 calls, got %d", callCount)
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("Expected delays %v, got %v", want, delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("Delay %d: expected %v, got %v", i, want[i], delays[i])
		}
	}
}

func TestWithRetry_InvalidResponseRecovers(t *testing.T) {
	var delays []time.Duration
	callCount := 0
	result, err := WithRetry(context.Background(), testPolicy(), recordSleep(&delays), nil, func() (string, error) {
		callCount++
		if callCount < 3 {
			return "", &InvalidResponseError{Message: "bad"}
		}
		return "ok", nil
	})

	if err != nil || result != "ok" {
		t.Fatalf("Expected recovery, got %q, %v", result, err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
}

func TestWithRetry_RateLimitIsUnbounded(t *testing.T) {
	var delays []time.Duration
	var events []RetryEvent
	callCount := 0
	result, err := WithRetry(context.Background(), testPolicy(), recordSleep(&delays),
		func(e RetryEvent) { events = append(events, e) },
		func() (string, error) {
			callCount++
			if callCount <= 10 {
				return "", &RateLimitError{Retries: 4}
			}
			return "finally", nil
		})

	if err != nil || result != "finally" {
		t.Fatalf("Expected success after many rate limits, got %q, %v", result, err)
	}
	if len(delays) != 10 {
		t.Fatalf("Expected 10 flat waits, got %d", len(delays))
	}
	for _, d := range delays {
		if d != 30*time.Second {
			t.Errorf("Expected flat 30s backoff, got %v", d)
		}
	}
	if events[9].Reason != RetryRateLimit || events[9].Attempt != 10 {
		t.Errorf("Unexpected last event: %+v", events[9])
	}
}

func TestWithRetry_AxesAreIndependent(t *testing.T) {
	var delays []time.Duration
	callCount := 0
	_, err := WithRetry(context.Background(), testPolicy(), recordSleep(&delays), nil, func() (string, error) {
		callCount++
		// Rate limits interleaved with empty content must not consume the content budget.
		if callCount%2 == 1 {
			return "", &RateLimitError{}
		}
		return "", &EmptyTranslationError{}
	})

	if Kind(err) != KindEmptyTranslation {
		t.Fatalf("Expected EmptyTranslationError, got %v", err)
	}
	// 4 content failures and 4 rate limits.
	if callCount != 8 {
		t.Errorf("Expected 8 calls, got %d", callCount)
	}
}

func TestWithRetry_FatalErrors(t *testing.T) {
	fatal := []error{
		&AuthenticationError{Message: "bad key"},
		&APIError{Message: "boom", StatusCode: 500},
		&UnsupportedLanguageError{Locale: "xx"},
		errors.New("some error"),
	}

	for _, fatalErr := range fatal {
		callCount := 0
		_, err := WithRetry(context.Background(), testPolicy(), Sleep, nil, func() (string, error) {
			callCount++
			return "", fatalErr
		})
		if !errors.Is(err, fatalErr) {
			t.Errorf("Expected %v surfaced untouched, got %v", fatalErr, err)
		}
		if callCount != 1 {
			t.Errorf("Expected no retry for %T, got %d calls", fatalErr, callCount)
		}
	}
}

func TestWithRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := WithRetry(ctx, testPolicy(), Sleep, nil, func() (string, error) {
		return "", &RateLimitError{}
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"empty content", &EmptyTranslationError{}, true},
		{"invalid response", &InvalidResponseError{}, true},
		{"rate limit", &RateLimitError{}, true},
		{"auth", &AuthenticationError{}, false},
		{"api", &APIError{}, false},
		{"generic error", errors.New("some error"), false},
		{"context canceled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}
