package biz

import (
	"context"
	"sort"
	"sync"
	"time"

	"JobGuard/internal/conf"
	"JobGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// PoolConfig configures the resource pool.
type PoolConfig struct {
	// MaxInstances bounds concurrent checked-out slots.
	MaxInstances int
	// AcquireTimeout is how long a waiter queues for a slot before giving up.
	AcquireTimeout time.Duration
	// OperationTimeout bounds a single pooled operation's duration.
	OperationTimeout time.Duration
}

// applyDefaults fills zero-valued fields with safe defaults.
func (c *PoolConfig) applyDefaults() {
	if c.MaxInstances < 1 {
		c.MaxInstances = 3
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 30 * time.Second
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = 5 * time.Minute
	}
}

// poolConfigFromConf converts bootstrap configuration.
func poolConfigFromConf(c *conf.Guard) PoolConfig {
	var cfg PoolConfig
	if c != nil && c.Pool != nil {
		cfg = PoolConfig{
			MaxInstances:     int(c.Pool.MaxInstances),
			AcquireTimeout:   c.Pool.AcquireTimeout.AsDuration(),
			OperationTimeout: c.Pool.OperationTimeout.AsDuration(),
		}
	}
	cfg.applyDefaults()
	return cfg
}

// waiter is one queued acquirer. The lease channel is buffered so a release
// can hand over a slot without blocking while holding the pool mutex.
type waiter struct {
	lease chan *Lease
}

// operation is the bookkeeping entry for one in-flight pooled operation.
type operation struct {
	id        string
	startedAt time.Time
	lease     *Lease
}

// Lease is the release handle for one checked-out pool slot. Release is
// idempotent: the first call frees the slot (or hands it to the next waiter),
// later calls are no-ops. The consumed flag is guarded by the pool mutex so
// the invariant holds structurally, not by caller discipline.
type Lease struct {
	pool     *ResourcePool
	released bool
}

// Release returns the slot to the pool. Safe to call more than once.
func (l *Lease) Release() {
	p := l.pool
	p.mu.Lock()
	defer p.mu.Unlock()

	if l.released {
		return
	}
	l.released = true

	// Hand the slot to the longest waiter, if any. The active count is
	// unchanged: this slot's checkout transfers to the waiter.
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		w.lease <- &Lease{pool: p}
		return
	}

	p.active--
}

// ResourcePool bounds concurrent use of an expensive shared resource (e.g.
// browser automation sessions). Excess acquirers queue strict-FIFO with an
// acquire timeout; pooled operations additionally carry an execution timeout.
type ResourcePool struct {
	cfg    PoolConfig
	logger *log.Helper
	events GuardEventLogger

	mu      sync.Mutex
	active  int
	waiters []*waiter
	ops     map[string]*operation
}

// NewResourcePool creates a pool from bootstrap configuration.
func NewResourcePool(c *conf.Guard, events GuardEventLogger, logger log.Logger) *ResourcePool {
	return NewResourcePoolWithConfig(poolConfigFromConf(c), events, logger)
}

// NewResourcePoolWithConfig creates a pool from an explicit configuration.
func NewResourcePoolWithConfig(cfg PoolConfig, events GuardEventLogger, logger log.Logger) *ResourcePool {
	cfg.applyDefaults()
	return &ResourcePool{
		cfg:    cfg,
		logger: log.NewHelper(logger),
		events: events,
		ops:    make(map[string]*operation),
	}
}

// Acquire obtains a slot, waiting up to the acquire timeout when the pool is
// at capacity. Waiters are served in arrival order. On timeout the waiter is
// removed from the queue and a *PoolAcquireTimeoutError is returned.
func (p *ResourcePool) Acquire(ctx context.Context) (*Lease, error) {
	p.mu.Lock()
	if p.active < p.cfg.MaxInstances {
		p.active++
		l := &Lease{pool: p}
		p.mu.Unlock()
		return l, nil
	}

	w := &waiter{lease: make(chan *Lease, 1)}
	p.waiters = append(p.waiters, w)
	waiting := len(p.waiters)
	p.mu.Unlock()

	p.logger.Debugw("resource pool at capacity, queuing",
		"active", p.cfg.MaxInstances,
		"waiting", waiting)

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case l := <-w.lease:
		return l, nil
	case <-timer.C:
		waiting := p.abandonWait(w)
		p.logger.Warnw("resource pool acquire timed out",
			"timeout", p.cfg.AcquireTimeout,
			"waiting", waiting)
		p.events.LogPoolAcquireTimeout(ctx, p.cfg.AcquireTimeout, waiting)
		return nil, &PoolAcquireTimeoutError{Timeout: p.cfg.AcquireTimeout, Waiting: waiting}
	case <-ctx.Done():
		p.abandonWait(w)
		return nil, ctx.Err()
	}
}

// abandonWait removes a waiter that gave up and returns the remaining queue
// length. If the waiter was already served concurrently, the handed-over lease
// is released back so no slot leaks.
func (p *ResourcePool) abandonWait(w *waiter) int {
	p.mu.Lock()
	removed := false
	for i, queued := range p.waiters {
		if queued == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			removed = true
			break
		}
	}
	waiting := len(p.waiters)
	p.mu.Unlock()

	if !removed {
		// A release dequeued this waiter before we could cancel; the lease
		// is already in the buffered channel.
		select {
		case l := <-w.lease:
			l.Release()
		default:
		}
	}

	return waiting
}

// Execute acquires a slot, runs fn with an operation timeout, and guarantees
// the slot is released exactly once on every exit path. When the timeout fires
// first, the slot is freed and the operation's eventual result is discarded;
// the underlying work must be assumed to still complete or fail later.
//
// opID identifies the operation in status output and force-release sweeps; an
// empty opID gets a generated one.
func (p *ResourcePool) Execute(ctx context.Context, opID string, fn func(context.Context) error) error {
	if opID == "" {
		opID = uuid.NewString()
	}

	lease, err := p.Acquire(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.ops[opID] = &operation{id: opID, startedAt: time.Now(), lease: lease}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.ops, opID)
		p.mu.Unlock()
		lease.Release()
	}()

	opCtx, cancel := context.WithTimeout(ctx, p.cfg.OperationTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(opCtx) }()

	select {
	case err := <-done:
		return err
	case <-opCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Warnw("pooled operation timed out, abandoning",
			"operation_id", opID,
			"timeout", p.cfg.OperationTimeout)
		return &PoolOperationTimeoutError{OperationID: opID, Timeout: p.cfg.OperationTimeout}
	}
}

// ForceReleaseStuckOperations frees slots held by operations older than maxAge.
// Escape hatch for operator-triggered recovery when a resource is suspected
// leaked, e.g. a crashed external process held a slot without releasing.
// Returns the number of operations released.
func (p *ResourcePool) ForceReleaseStuckOperations(ctx context.Context, maxAge time.Duration) int {
	now := time.Now()

	p.mu.Lock()
	var stuck []*operation
	for id, op := range p.ops {
		if now.Sub(op.startedAt) >= maxAge {
			delete(p.ops, id)
			stuck = append(stuck, op)
		}
	}
	p.mu.Unlock()

	// Release outside the scan; Lease.Release is idempotent, so the abandoned
	// operation's own cleanup becomes a no-op.
	for _, op := range stuck {
		p.logger.Warnw("force releasing stuck operation",
			"operation_id", op.id,
			"age", now.Sub(op.startedAt))
		op.lease.Release()
	}

	if len(stuck) > 0 {
		p.events.LogStuckOperationsReleased(ctx, len(stuck), maxAge)
	}

	return len(stuck)
}

// Status returns current pool occupancy.
func (p *ResourcePool) Status() model.PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	return model.PoolStatus{
		MaxInstances: p.cfg.MaxInstances,
		Active:       p.active,
		Waiting:      len(p.waiters),
		InFlight:     len(p.ops),
	}
}

// DetailedStatus returns pool occupancy plus per-operation ages, oldest first.
func (p *ResourcePool) DetailedStatus() model.PoolDetailedStatus {
	now := time.Now()

	p.mu.Lock()
	status := model.PoolDetailedStatus{
		PoolStatus: model.PoolStatus{
			MaxInstances: p.cfg.MaxInstances,
			Active:       p.active,
			Waiting:      len(p.waiters),
			InFlight:     len(p.ops),
		},
		Operations: make([]model.OperationInfo, 0, len(p.ops)),
	}
	for _, op := range p.ops {
		status.Operations = append(status.Operations, model.OperationInfo{
			ID:        op.id,
			StartedAt: op.startedAt,
			Age:       now.Sub(op.startedAt),
		})
	}
	p.mu.Unlock()

	sort.Slice(status.Operations, func(i, j int) bool {
		return status.Operations[i].StartedAt.Before(status.Operations[j].StartedAt)
	})

	return status
}
