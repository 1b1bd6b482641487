package service

import (
	"context"

	"JobGuard/internal/biz"
	"JobGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// JobRunner is the surface scheduled jobs call. It composes the resilience
// primitives in their canonical order: the cross-process lock gates the whole
// run, circuit breakers gate each dependency, the pool gates each resource
// operation, retries wrap the innermost flaky call, and the quota gates
// outbound sends.
type JobRunner struct {
	locks    *biz.JobLockUseCase
	breakers *biz.BreakerRegistry
	pool     *biz.ResourcePool
	retry    *biz.RetryExecutor
	quota    *biz.QuotaTrackerUseCase
	logger   *log.Helper
}

// NewJobRunner creates a new job runner.
func NewJobRunner(
	locks *biz.JobLockUseCase,
	breakers *biz.BreakerRegistry,
	pool *biz.ResourcePool,
	retry *biz.RetryExecutor,
	quota *biz.QuotaTrackerUseCase,
	logger log.Logger,
) *JobRunner {
	return &JobRunner{
		locks:    locks,
		breakers: breakers,
		pool:     pool,
		retry:    retry,
		quota:    quota,
		logger:   log.NewHelper(logger),
	}
}

// RunExclusive runs body under the named job lock. When another instance
// already holds the lock the run is skipped (ran is false, err is nil); a
// skipped run is expected behavior for overlapping schedules, not a failure.
func (r *JobRunner) RunExclusive(ctx context.Context, jobName string, body func(context.Context) error) (ran bool, err error) {
	return r.locks.WithLock(ctx, jobName, body)
}

// CallDependency runs fn against a named dependency: the dependency's circuit
// breaker wraps the retry loop, so a persistently failing dependency trips
// the breaker after its retries are exhausted rather than on every attempt.
func (r *JobRunner) CallDependency(ctx context.Context, dep string, policy biz.RetryPolicy, fn func(ctx context.Context, attempt int) error) error {
	cb := r.breakers.Get(dep)
	return cb.Execute(ctx, func(ctx context.Context) error {
		return r.retry.WithRetries(ctx, policy, fn)
	})
}

// WithResource runs fn holding one pool slot, bounded by the pool's
// operation timeout.
func (r *JobRunner) WithResource(ctx context.Context, opID string, fn func(context.Context) error) error {
	return r.pool.Execute(ctx, opID, fn)
}

// EnsureQuota fails with a *biz.QuotaExhaustedError when no send allowance
// remains in the rolling window. Consult it before every outbound send.
func (r *JobRunner) EnsureQuota(ctx context.Context) error {
	return r.quota.CheckAllowance(ctx)
}

// GuardStatus aggregates the observable state of every primitive for status
// surfaces and operator tooling.
type GuardStatus struct {
	Pool        model.PoolDetailedStatus
	Breakers    []model.BreakerSnapshot
	LockBacking string
	Quota       model.QuotaUsage
	QuotaErr    error
}

// Status reads every primitive's accessor. Quota read failures are reported
// in the snapshot instead of failing it; status must stay readable while the
// database is down.
func (r *JobRunner) Status(ctx context.Context) GuardStatus {
	status := GuardStatus{
		Pool:        r.pool.DetailedStatus(),
		Breakers:    r.breakers.Snapshots(),
		LockBacking: r.locks.Backing(),
	}

	usage, err := r.quota.GetUsage(ctx)
	if err != nil {
		status.QuotaErr = err
	} else {
		status.Quota = usage
	}

	return status
}

// Shutdown releases every lock this process still holds. Wired into the
// application stop hook so a crash-free shutdown never leaves a stale lock.
func (r *JobRunner) Shutdown(ctx context.Context) error {
	r.locks.ReleaseHeldLocks(ctx)
	return nil
}
