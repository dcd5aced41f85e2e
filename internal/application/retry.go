package application

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/monoklix/mkx-cli/internal/domain"
)

// RetryPolicy wraps an operation with bounded attempts and exponential
// backoff. Retry lives here, one layer above the executor: the executor
// itself never retries, and the classifier makes sure semantic failures
// (content policy, missing credential) are surfaced on the first attempt.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	// OnRetry is called before each backoff sleep with the attempt number
	// (1-indexed) and the error that triggered the retry.
	OnRetry func(attempt int, err error)
}

// DefaultRetryPolicy returns the policy used by generation callers:
// 5 attempts, 1s initial delay, 2x multiplier, 30s max delay.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
	}
}

// Retriable classifies an error. Content-policy rejections and missing
// credentials are semantic, not transient. Retrying them is forbidden.
func (p *RetryPolicy) Retriable(err error) bool {
	if err == nil {
		return false
	}
	if domain.IsContentPolicy(err) {
		return false
	}
	if errors.Is(err, domain.ErrNoCredential) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// NextDelay returns the backoff delay for the given attempt (1-indexed),
// InitialDelay * Multiplier^(attempt-1) capped at MaxDelay.
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Execute runs fn up to MaxAttempts times, sleeping between attempts and
// respecting ctx. It returns nil on success, or the last error when
// attempts are exhausted or the error is not retriable.
func (p *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !p.Retriable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr)
		}

		timer := time.NewTimer(p.NextDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
