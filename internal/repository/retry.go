package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"marketwatch/internal/domain"
)

// RetryPolicy bounds the optimistic retry loop around ledger transactions
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy is used when a store is built with a zero policy
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    10,
	BaseDelay:      5 * time.Millisecond,
	MaxDelay:       250 * time.Millisecond,
	AttemptTimeout: 10 * time.Second,
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = DefaultRetryPolicy.AttemptTimeout
	}
	return p
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d <= 0 || d > p.MaxDelay {
		d = p.MaxDelay
	}
	// full jitter
	return time.Duration(rand.Int63n(int64(d) + 1))
}

// runWithRetry runs attempt until it returns something other than a
// conflict. An attempt, once started, is detached from ctx cancellation and
// runs to commit or failure; ctx is only consulted between attempts.
func runWithRetry(ctx context.Context, policy RetryPolicy, attempt func(ctx context.Context) error) error {
	policy = policy.withDefaults()

	var err error
	for i := 0; i < policy.MaxAttempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", domain.ErrRemoteUnavailable, ctxErr)
		}

		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), policy.AttemptTimeout)
		err = attempt(attemptCtx)
		cancel()

		if !errors.Is(err, domain.ErrTxConflict) {
			return err
		}

		if i == policy.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", domain.ErrRemoteUnavailable, ctx.Err())
		case <-time.After(policy.backoff(i)):
		}
	}

	return fmt.Errorf("%w: gave up after %d conflicting attempts: %w", domain.ErrRemoteUnavailable, policy.MaxAttempts, err)
}
