package gomtl

import (
	"context"
	"time"
)

// RetryPolicy is the orchestrator's retry axis, layered above the transport's
// own rate-limit schedule.
//
// The two branches are asymmetric. Unusable content
// (InvalidResponseError, EmptyTranslationError) is retried ContentRetries
// times with exponential backoff, then surfaced. A RateLimitError escaping the
// transport is retried after a flat RateLimitBackoff with no upper bound; only
// success, a different error or ctx cancellation ends that loop.
type RetryPolicy struct {
	ContentRetries   int
	ContentBase      time.Duration
	RateLimitBackoff time.Duration
}

// RetryPolicyFromConfig extracts the orchestrator retry settings from cfg.
func RetryPolicyFromConfig(cfg Config) RetryPolicy {
	return RetryPolicy{
		ContentRetries:   cfg.ContentRetries,
		ContentBase:      cfg.ContentRetryBase,
		RateLimitBackoff: cfg.RateLimitBackoff,
	}
}

// ContentDelay returns the wait before content retry number attempt (0-based).
func (p RetryPolicy) ContentDelay(attempt int) time.Duration {
	return p.ContentBase * time.Duration(1<<attempt)
}

// RetryReason says which branch of the policy scheduled a retry.
type RetryReason string

const (
	RetryContent   RetryReason = "content"
	RetryRateLimit RetryReason = "rate_limit"
)

// RetryEvent describes one scheduled retry.
type RetryEvent struct {
	Reason  RetryReason
	Attempt int // 1-based count within the reason's branch
	Delay   time.Duration
	Err     error
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryFunc is a function that can be retried.
type RetryFunc[T any] func() (T, error)

// WithRetry runs fn under policy. onRetry, if non-nil, is called before each wait.
func WithRetry[T any](ctx context.Context, policy RetryPolicy, sleep SleepFunc, onRetry func(RetryEvent), fn RetryFunc[T]) (T, error) {
	var zero T
	if sleep == nil {
		sleep = Sleep
	}

	contentAttempts := 0
	rateLimitWaits := 0
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}

		var event RetryEvent
		switch {
		case IsContentError(err):
			if contentAttempts >= policy.ContentRetries {
				return zero, err
			}
			event = RetryEvent{
				Reason:  RetryContent,
				Attempt: contentAttempts + 1,
				Delay:   policy.ContentDelay(contentAttempts),
				Err:     err,
			}
			contentAttempts++
		case IsRateLimited(err):
			rateLimitWaits++
			event = RetryEvent{
				Reason:  RetryRateLimit,
				Attempt: rateLimitWaits,
				Delay:   policy.RateLimitBackoff,
				Err:     err,
			}
		default:
			return zero, err
		}

		if onRetry != nil {
			onRetry(event)
		}
		if err := sleep(ctx, event.Delay); err != nil {
			return zero, err
		}
	}
}

// IsRetryable reports whether the orchestrator would retry err.
func IsRetryable(err error) bool {
	return IsContentError(err) || IsRateLimited(err)
}
