package biz

import (
	"context"
	"sync"
	"time"

	"JobGuard/internal/conf"
	"JobGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// Lock backing modes reported by JobLockUseCase.Backing.
const (
	// LockBackingShared means the lock record lives in the shared store and
	// exclusion holds across process replicas.
	LockBackingShared = "shared"
	// LockBackingLocal means the lock record lives in a process-local map:
	// same-process duplicate runs are still prevented, cross-process
	// exclusion is not.
	LockBackingLocal = "local"
)

// LockRepo is the shared key-value store backing the job lock.
// Interface is defined in biz layer, implementation in data layer.
type LockRepo interface {
	// Available reports whether the shared store can be used at all.
	Available() bool

	// Acquire atomically creates the lock record if absent (set-if-not-exists
	// with TTL) and reports whether this caller now holds it.
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// Holder returns the current holder token, or "" when the record is absent.
	Holder(ctx context.Context, key string) (string, error)

	// Release deletes the record only if it is still held by token.
	Release(ctx context.Context, key, token string) error

	// ForceRelease unconditionally deletes the record.
	ForceRelease(ctx context.Context, key string) error
}

// localRecord is a fallback lock record scoped to this process.
type localRecord struct {
	token  string
	expiry time.Time
}

// heldLock remembers how a lock we hold was acquired so release can target
// the right backing.
type heldLock struct {
	token   string
	backing string
}

// JobLockUseCase grants at-most-one concurrent execution of a named job.
// Acquisition is a single atomic attempt, never a queue: a second scheduled
// run of the same job is skipped, not deferred, to avoid pile-up.
//
// When the shared store is unavailable the lock transparently degrades to a
// process-local map. The active mode is queryable via Backing.
type JobLockUseCase struct {
	repo   LockRepo // may be nil when no shared store is configured
	ttl    time.Duration
	prefix string
	logger *log.Helper
	events GuardEventLogger

	mu       sync.Mutex
	held     map[string]heldLock
	local    map[string]localRecord
	degraded bool
}

// NewJobLockUseCase creates the lock use case from bootstrap configuration.
// repo may be nil; the lock then runs entirely on local backing.
func NewJobLockUseCase(c *conf.Guard, repo LockRepo, events GuardEventLogger, logger log.Logger) *JobLockUseCase {
	ttl := 30 * time.Minute
	prefix := "jobguard:lock:"
	if c != nil && c.Lock != nil {
		if d := c.Lock.Ttl.AsDuration(); d > 0 {
			ttl = d
		}
		if c.Lock.KeyPrefix != "" {
			prefix = c.Lock.KeyPrefix
		}
	}

	return &JobLockUseCase{
		repo:   repo,
		ttl:    ttl,
		prefix: prefix,
		logger: log.NewHelper(logger),
		events: events,
		held:   make(map[string]heldLock),
		local:  make(map[string]localRecord),
	}
}

// AcquireLock attempts a single atomic acquisition of the named lock and
// reports whether it succeeded. It never waits: contention means another
// instance is already running this job.
func (uc *JobLockUseCase) AcquireLock(ctx context.Context, name string) bool {
	token := uuid.NewString()

	if uc.sharedConfigured() {
		ok, err := uc.repo.Acquire(ctx, uc.key(name), token, uc.ttl)
		if err == nil {
			uc.setDegraded(false)
			if !ok {
				uc.logger.Infow("job lock contended, skipping run", "job", name, "backing", LockBackingShared)
				uc.events.LogLockContended(ctx, name, LockBackingShared)
				return false
			}
			uc.mu.Lock()
			uc.held[name] = heldLock{token: token, backing: LockBackingShared}
			uc.mu.Unlock()
			return true
		}

		// Shared store unreachable: degrade to process-local exclusion.
		uc.logger.Warnw("shared lock store unavailable, falling back to local backing",
			"job", name, "error", err)
		uc.setDegraded(true)
	}

	uc.mu.Lock()
	rec, exists := uc.local[name]
	if exists && time.Now().Before(rec.expiry) {
		uc.mu.Unlock()
		uc.logger.Infow("job lock contended, skipping run", "job", name, "backing", LockBackingLocal)
		uc.events.LogLockContended(ctx, name, LockBackingLocal)
		return false
	}
	uc.local[name] = localRecord{token: token, expiry: time.Now().Add(uc.ttl)}
	uc.held[name] = heldLock{token: token, backing: LockBackingLocal}
	uc.mu.Unlock()

	return true
}

// ReleaseLock releases a lock this process acquired. Releasing a lock we do
// not hold is a no-op.
func (uc *JobLockUseCase) ReleaseLock(ctx context.Context, name string) {
	uc.mu.Lock()
	h, ok := uc.held[name]
	if !ok {
		uc.mu.Unlock()
		return
	}
	delete(uc.held, name)
	if h.backing == LockBackingLocal {
		if rec, exists := uc.local[name]; exists && rec.token == h.token {
			delete(uc.local, name)
		}
		uc.mu.Unlock()
		return
	}
	uc.mu.Unlock()

	if err := uc.repo.Release(ctx, uc.key(name), h.token); err != nil {
		// The TTL will expire the record eventually; nothing else to do.
		uc.logger.Warnw("failed to release shared job lock", "job", name, "error", err)
	}
}

// WithLock runs body only if the named lock is acquired. A contended lock
// skips body entirely and is not an error; ran reports whether body executed.
// The lock is released on every exit path of body, including panic.
func (uc *JobLockUseCase) WithLock(ctx context.Context, name string, body func(context.Context) error) (ran bool, err error) {
	if !uc.AcquireLock(ctx, name) {
		return false, nil
	}
	defer uc.ReleaseLock(ctx, name)

	return true, body(ctx)
}

// IsLocked reports whether a live lock record exists for the named job.
func (uc *JobLockUseCase) IsLocked(ctx context.Context, name string) bool {
	if uc.sharedConfigured() {
		holder, err := uc.repo.Holder(ctx, uc.key(name))
		if err == nil {
			return holder != ""
		}
		uc.logger.Warnw("failed to read shared job lock, checking local backing",
			"job", name, "error", err)
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()
	rec, exists := uc.local[name]
	return exists && time.Now().Before(rec.expiry)
}

// ForceReleaseLock unconditionally clears the lock record in every backing.
// Used at shutdown to avoid leaving a stale lock, and as an operator tool.
func (uc *JobLockUseCase) ForceReleaseLock(ctx context.Context, name string) {
	if uc.sharedConfigured() {
		if err := uc.repo.ForceRelease(ctx, uc.key(name)); err != nil {
			uc.logger.Warnw("failed to force release shared job lock", "job", name, "error", err)
		}
	}

	uc.mu.Lock()
	delete(uc.local, name)
	delete(uc.held, name)
	uc.mu.Unlock()
}

// ReleaseHeldLocks releases every lock this process still holds.
// Called from the shutdown path.
func (uc *JobLockUseCase) ReleaseHeldLocks(ctx context.Context) {
	uc.mu.Lock()
	names := make([]string, 0, len(uc.held))
	for name := range uc.held {
		names = append(names, name)
	}
	uc.mu.Unlock()

	for _, name := range names {
		uc.logger.Infow("releasing held job lock on shutdown", "job", name)
		uc.ReleaseLock(ctx, name)
	}
}

// Backing reports which store currently provides exclusion: "shared" while
// the configured store is reachable, "local" otherwise. The shared store is
// still retried on every acquisition, so a recovered store flips the mode back.
func (uc *JobLockUseCase) Backing() string {
	if !uc.sharedConfigured() {
		return LockBackingLocal
	}
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.degraded {
		return LockBackingLocal
	}
	return LockBackingShared
}

// Info returns the observable state of a named lock.
func (uc *JobLockUseCase) Info(ctx context.Context, name string) model.LockInfo {
	return model.LockInfo{
		Name:    name,
		Locked:  uc.IsLocked(ctx, name),
		Backing: uc.Backing(),
	}
}

func (uc *JobLockUseCase) key(name string) string {
	return uc.prefix + name
}

func (uc *JobLockUseCase) sharedConfigured() bool {
	return uc.repo != nil && uc.repo.Available()
}

func (uc *JobLockUseCase) setDegraded(v bool) {
	uc.mu.Lock()
	uc.degraded = v
	uc.mu.Unlock()
}
