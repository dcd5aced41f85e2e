package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monoklix/mkx-cli/internal/domain"
)

func fastPolicy(attempts int) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Millisecond,
	}
}

func TestRetriableClassification(t *testing.T) {
	t.Parallel()

	policy := DefaultRetryPolicy()

	assert.True(t, policy.Retriable(errors.New("proxy call failed (502): upstream timeout")))
	assert.False(t, policy.Retriable(nil))
	assert.False(t, policy.Retriable(&domain.ContentPolicyError{StatusCode: 400, Message: "blocked"}))
	assert.False(t, policy.Retriable(domain.ErrNoCredential))
	assert.False(t, policy.Retriable(context.Canceled))
	assert.False(t, policy.Retriable(context.DeadlineExceeded))
}

func TestNextDelayGrowsAndCaps(t *testing.T) {
	t.Parallel()

	policy := &RetryPolicy{
		MaxAttempts:  10,
		InitialDelay: time.Second,
		Multiplier:   2.0,
		MaxDelay:     10 * time.Second,
	}

	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextDelay(3))
	assert.Equal(t, 8*time.Second, policy.NextDelay(4))
	assert.Equal(t, 10*time.Second, policy.NextDelay(5))
	assert.Equal(t, 10*time.Second, policy.NextDelay(9))
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	attempts := 0
	var notified []int
	policy := fastPolicy(5)
	policy.OnRetry = func(attempt int, err error) { notified = append(notified, attempt) }

	err := policy.Execute(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, notified)
}

func TestExecuteStopsOnSemanticError(t *testing.T) {
	t.Parallel()

	attempts := 0
	policyErr := &domain.ContentPolicyError{StatusCode: 400, Message: "safety"}

	err := fastPolicy(5).Execute(context.Background(), func() error {
		attempts++
		return policyErr
	})

	assert.Equal(t, 1, attempts, "content policy must not be retried")
	assert.True(t, domain.IsContentPolicy(err))
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	t.Parallel()

	attempts := 0
	lastErr := errors.New("still broken")

	err := fastPolicy(3).Execute(context.Background(), func() error {
		attempts++
		return lastErr
	})

	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, lastErr)
}

func TestExecuteHonorsContextDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	policy := &RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: time.Hour,
		Multiplier:   2.0,
		MaxDelay:     time.Hour,
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := policy.Execute(ctx, func() error { return errors.New("transient") })
	assert.ErrorIs(t, err, context.Canceled)
}
