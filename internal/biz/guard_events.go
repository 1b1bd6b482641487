package biz

import (
	"context"
	"time"

	"JobGuard/internal/model"
)

// GuardEventLogger records lifecycle events for operational visibility.
// Implementations must never block or fail the caller; events are best-effort.
// Interface is defined in biz layer, implementation in data layer.
type GuardEventLogger interface {
	// LogBreakerStateChange records a circuit breaker transition.
	LogBreakerStateChange(ctx context.Context, name string, from, to model.BreakerState)

	// LogPoolAcquireTimeout records a waiter that gave up before a slot freed.
	LogPoolAcquireTimeout(ctx context.Context, waited time.Duration, waiting int)

	// LogLockContended records a skipped job run because another holder is active.
	LogLockContended(ctx context.Context, name string, backing string)

	// LogQuotaExhausted records a send blocked by an empty rolling-window allowance.
	LogQuotaExhausted(ctx context.Context, usage model.QuotaUsage)

	// LogStuckOperationsReleased records an operator-triggered pool recovery sweep.
	LogStuckOperationsReleased(ctx context.Context, count int, maxAge time.Duration)
}

// NoopGuardEventLogger discards all events. Used in tests and when no
// persistent sink is configured.
type NoopGuardEventLogger struct{}

// NewNoopGuardEventLogger creates an event logger that drops everything.
func NewNoopGuardEventLogger() *NoopGuardEventLogger {
	return &NoopGuardEventLogger{}
}

func (*NoopGuardEventLogger) LogBreakerStateChange(context.Context, string, model.BreakerState, model.BreakerState) {
}

func (*NoopGuardEventLogger) LogPoolAcquireTimeout(context.Context, time.Duration, int) {}

func (*NoopGuardEventLogger) LogLockContended(context.Context, string, string) {}

func (*NoopGuardEventLogger) LogQuotaExhausted(context.Context, model.QuotaUsage) {}

func (*NoopGuardEventLogger) LogStuckOperationsReleased(context.Context, int, time.Duration) {}
