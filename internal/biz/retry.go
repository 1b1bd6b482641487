package biz

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"JobGuard/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
)

// RetryPolicy describes one retry run. It carries no persistent state.
type RetryPolicy struct {
	// Attempts is the total number of calls, including the first. Minimum 1.
	Attempts int
	// Delay is the base delay before the first retry.
	Delay time.Duration
	// Factor is the backoff multiplier per attempt. 1 means constant delay.
	Factor float64
	// OnRetry, if set, observes each failed attempt that will be retried.
	// It is never called after a success or on the final attempt.
	OnRetry func(err error, attempt int)
}

// normalized returns the policy with zero values replaced by minimums.
func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Factor <= 0 {
		p.Factor = 1
	}
	return p
}

// RetryExecutor wraps a flaky operation with bounded attempts and jittered
// exponential backoff.
type RetryExecutor struct {
	defaults RetryPolicy
	logger   *log.Helper
}

// NewRetryExecutor creates an executor whose default policy comes from
// bootstrap configuration.
func NewRetryExecutor(c *conf.Guard, logger log.Logger) *RetryExecutor {
	defaults := RetryPolicy{Attempts: 3, Delay: time.Second, Factor: 2}
	if c != nil && c.Retry != nil {
		if c.Retry.Attempts > 0 {
			defaults.Attempts = int(c.Retry.Attempts)
		}
		if d := c.Retry.Delay.AsDuration(); d > 0 {
			defaults.Delay = d
		}
		if c.Retry.Factor > 0 {
			defaults.Factor = c.Retry.Factor
		}
	}

	return &RetryExecutor{
		defaults: defaults,
		logger:   log.NewHelper(logger),
	}
}

// DefaultPolicy returns the configured default policy.
func (e *RetryExecutor) DefaultPolicy() RetryPolicy {
	return e.defaults
}

// WithRetries calls fn up to policy.Attempts times. fn receives the 1-based
// attempt number. On success the result returns immediately; on failure of a
// non-final attempt, OnRetry fires (if set), then the executor waits
// Delay * Factor^(attempt-1) scaled by a uniform jitter multiplier in
// [0.5, 1.5) before the next call. The final attempt's error is returned
// verbatim with no further delay and no OnRetry call.
//
// The inter-attempt wait honors ctx; cancellation aborts with ctx.Err().
func (e *RetryExecutor) WithRetries(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context, attempt int) error) error {
	p := policy.normalized()

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == p.Attempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(lastErr, attempt)
		}

		delay := backoffDelay(p, attempt)
		e.logger.Debugw("operation failed, retrying",
			"attempt", attempt,
			"of", p.Attempts,
			"delay", delay,
			"error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

// WithDefaults calls WithRetries using the configured default policy.
func (e *RetryExecutor) WithDefaults(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	return e.WithRetries(ctx, e.defaults, fn)
}

// backoffDelay computes the jittered delay after a failed attempt.
func backoffDelay(p RetryPolicy, attempt int) time.Duration {
	delay := time.Duration(float64(p.Delay) * math.Pow(p.Factor, float64(attempt-1)))
	if delay <= 0 {
		return 0
	}
	// Uniform jitter in [0.5, 1.5) to avoid synchronized retry storms.
	return time.Duration(float64(delay) * (0.5 + rand.Float64()))
}
