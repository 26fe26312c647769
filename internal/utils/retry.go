package utils

import (
	"context"
	"time"
)

// RetryPolicy is a bounded retry with exponential backoff, shared by the
// download acquirer and the fallback search path.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration

	// Sleep is swappable for tests; defaults to a context-aware sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy creates a policy with sane floor values.
func NewRetryPolicy(maxAttempts int, backoffBase time.Duration) *RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	return &RetryPolicy{
		MaxAttempts: maxAttempts,
		BackoffBase: backoffBase,
		Sleep:       sleepCtx,
	}
}

// Backoff returns the delay before the given 1-based attempt number:
// base, 2*base, 4*base, ...
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return p.BackoffBase
	}
	d := p.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Do runs fn up to MaxAttempts times, sleeping between attempts. fn reports
// whether its error is retryable; a non-retryable error aborts immediately.
// The last error is returned when attempts are exhausted.
func (p *RetryPolicy) Do(ctx context.Context, fn func(attempt int) (retryable bool, err error)) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		retryable, err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable || attempt == p.MaxAttempts {
			break
		}
		if err := sleep(ctx, p.Backoff(attempt)); err != nil {
			return err
		}
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
