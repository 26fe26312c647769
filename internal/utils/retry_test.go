package utils

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(p *RetryPolicy) *RetryPolicy {
	p.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return p
}

func TestRetrySucceedsOnLastAllowedAttempt(t *testing.T) {
	p := noSleep(NewRetryPolicy(4, time.Millisecond))

	calls := 0
	err := p.Do(context.Background(), func(attempt int) (bool, error) {
		calls++
		if attempt < 4 {
			return true, fmt.Errorf("transient %d", attempt)
		}
		return false, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls, "the final attempt inside the bound still counts")
}

func TestRetryExhaustionReturnsLastError(t *testing.T) {
	p := noSleep(NewRetryPolicy(3, time.Millisecond))

	err := p.Do(context.Background(), func(attempt int) (bool, error) {
		return true, fmt.Errorf("attempt %d failed", attempt)
	})

	require.Error(t, err)
	assert.EqualError(t, err, "attempt 3 failed")
}

func TestRetryNonRetryableAbortsImmediately(t *testing.T) {
	p := noSleep(NewRetryPolicy(5, time.Millisecond))

	calls := 0
	err := p.Do(context.Background(), func(attempt int) (bool, error) {
		calls++
		return false, fmt.Errorf("fatal")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryBackoffDoubles(t *testing.T) {
	p := NewRetryPolicy(4, 2*time.Second)

	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 8*time.Second, p.Backoff(3))
}

func TestRetryCancellationStopsBetweenAttempts(t *testing.T) {
	p := NewRetryPolicy(5, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := p.Do(ctx, func(attempt int) (bool, error) {
		calls++
		return true, fmt.Errorf("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestNewRetryPolicyFloorsValues(t *testing.T) {
	p := NewRetryPolicy(0, 0)
	assert.Equal(t, 1, p.MaxAttempts)
	assert.Equal(t, time.Second, p.BackoffBase)
}
