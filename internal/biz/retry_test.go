package biz

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"JobGuard/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create a test executor
func newTestRetryExecutor() *RetryExecutor {
	return NewRetryExecutor(nil, log.NewStdLogger(os.Stdout))
}

// fastPolicy keeps test delays negligible.
func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts, Delay: time.Millisecond, Factor: 2}
}

// Test WithRetries - first attempt succeeds, no retries
func TestWithRetries_FirstAttemptSucceeds(t *testing.T) {
	e := newTestRetryExecutor()

	calls := 0
	onRetryCalls := 0
	policy := fastPolicy(3)
	policy.OnRetry = func(error, int) { onRetryCalls++ }

	err := e.WithRetries(context.Background(), policy, func(_ context.Context, attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, onRetryCalls)
}

// Test WithRetries - two failures then success
func TestWithRetries_FailTwiceThenSucceed(t *testing.T) {
	e := newTestRetryExecutor()

	calls := 0
	var retriedAttempts []int
	policy := fastPolicy(3)
	policy.OnRetry = func(err error, attempt int) {
		assert.Error(t, err)
		retriedAttempts = append(retriedAttempts, attempt)
	}

	err := e.WithRetries(context.Background(), policy, func(_ context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retriedAttempts)
}

// Test WithRetries - exhaustion returns the final attempt's error verbatim
func TestWithRetries_Exhaustion(t *testing.T) {
	e := newTestRetryExecutor()

	finalErr := errors.New("still failing")
	calls := 0
	onRetryCalls := 0
	policy := fastPolicy(3)
	policy.OnRetry = func(error, int) { onRetryCalls++ }

	err := e.WithRetries(context.Background(), policy, func(context.Context, int) error {
		calls++
		return finalErr
	})

	assert.ErrorIs(t, err, finalErr)
	assert.Equal(t, 3, calls)
	// OnRetry never fires for the final attempt.
	assert.Equal(t, 2, onRetryCalls)
}

// Test WithRetries - a single attempt means no delay and no OnRetry
func TestWithRetries_SingleAttempt(t *testing.T) {
	e := newTestRetryExecutor()

	calls := 0
	onRetryCalls := 0
	policy := RetryPolicy{Attempts: 1, Delay: time.Hour, OnRetry: func(error, int) { onRetryCalls++ }}

	start := time.Now()
	err := e.WithRetries(context.Background(), policy, func(context.Context, int) error {
		calls++
		return errors.New("failed")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, onRetryCalls)
	assert.Less(t, time.Since(start), time.Second)
}

// Test WithRetries - zero-valued policy still runs once
func TestWithRetries_ZeroPolicy(t *testing.T) {
	e := newTestRetryExecutor()

	calls := 0
	err := e.WithRetries(context.Background(), RetryPolicy{}, func(context.Context, int) error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

// Test WithRetries - context cancellation aborts the inter-attempt wait
func TestWithRetries_ContextCanceled(t *testing.T) {
	e := newTestRetryExecutor()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := RetryPolicy{Attempts: 5, Delay: time.Minute}

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := e.WithRetries(ctx, policy, func(context.Context, int) error {
		calls++
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second)
}

// Test WithDefaults - uses configured policy
func TestWithDefaults(t *testing.T) {
	c := &conf.Guard{Retry: &conf.Guard_Retry{Attempts: 2, Delay: durationOf(time.Millisecond), Factor: 1.5}}
	e := NewRetryExecutor(c, log.NewStdLogger(os.Stdout))

	require.Equal(t, 2, e.DefaultPolicy().Attempts)
	require.Equal(t, time.Millisecond, e.DefaultPolicy().Delay)

	calls := 0
	err := e.WithDefaults(context.Background(), func(context.Context, int) error {
		calls++
		return errors.New("transient")
	})
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

// Test backoffDelay - jitter keeps every delay within [0.5x, 1.5x) of the base
func TestBackoffDelay_JitterBounds(t *testing.T) {
	p := RetryPolicy{Delay: 100 * time.Millisecond, Factor: 2}.normalized()

	for attempt := 1; attempt <= 4; attempt++ {
		base := time.Duration(float64(p.Delay) * pow(p.Factor, attempt-1))
		for i := 0; i < 100; i++ {
			d := backoffDelay(p, attempt)
			assert.GreaterOrEqual(t, d, base/2)
			assert.Less(t, d, base+base/2)
		}
	}
}

func pow(f float64, n int) float64 {
	out := 1.0
	for i := 0; i < n; i++ {
		out *= f
	}
	return out
}
