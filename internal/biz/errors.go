package biz

import (
	"fmt"
	"time"

	"JobGuard/internal/model"
)

// CircuitOpenError is returned when a breaker rejects a call without invoking it.
// The dependency is judged unhealthy; callers should skip the run rather than retry.
type CircuitOpenError struct {
	Name    string
	RetryIn time.Duration
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open, retry in %s", e.Name, e.RetryIn.Round(time.Second))
}

// PoolAcquireTimeoutError is returned when no pool slot became available in time.
// Callers should skip or re-queue at a higher level, not retry immediately.
type PoolAcquireTimeoutError struct {
	Timeout time.Duration
	Waiting int
}

// Error implements the error interface.
func (e *PoolAcquireTimeoutError) Error() string {
	return fmt.Sprintf("resource pool acquire timed out after %s (%d waiting)", e.Timeout, e.Waiting)
}

// PoolOperationTimeoutError is returned when a pooled operation ran past its
// execution timeout. The slot has been freed; the underlying work may still be
// running and its eventual result is discarded.
type PoolOperationTimeoutError struct {
	OperationID string
	Timeout     time.Duration
}

// Error implements the error interface.
func (e *PoolOperationTimeoutError) Error() string {
	return fmt.Sprintf("operation %s exceeded timeout of %s", e.OperationID, e.Timeout)
}

// QuotaExhaustedError is returned when no send allowance remains in the rolling
// window. Defer the send; do not drop data.
type QuotaExhaustedError struct {
	Usage model.QuotaUsage
}

// Error implements the error interface.
func (e *QuotaExhaustedError) Error() string {
	return fmt.Sprintf("send quota exhausted: %d/%d used in the last %s",
		e.Usage.SentInWindow, e.Usage.Limit, e.Usage.Window)
}
