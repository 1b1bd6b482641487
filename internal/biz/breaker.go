package biz

import (
	"context"
	"sync"
	"time"

	"JobGuard/internal/conf"
	"JobGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// BreakerConfig configures one circuit breaker instance.
type BreakerConfig struct {
	// Name identifies the guarded dependency.
	Name string
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before probing.
	ResetTimeout time.Duration
	// HalfOpenRequests is the number of successful probes required to close.
	HalfOpenRequests int
}

// applyDefaults fills zero-valued fields with safe defaults.
func (c *BreakerConfig) applyDefaults() {
	if c.FailureThreshold < 1 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenRequests < 1 {
		c.HalfOpenRequests = 1
	}
}

// CircuitBreaker isolates a failing dependency. Calls pass through while the
// circuit is closed; after FailureThreshold consecutive failures the circuit
// opens and calls fail fast until ResetTimeout elapses, after which probes are
// admitted one at a time until HalfOpenRequests of them succeed.
//
// The open-to-half-open transition is checked lazily on the next call by
// comparing timestamps; there is no background timer.
type CircuitBreaker struct {
	cfg    BreakerConfig
	logger *log.Helper
	events GuardEventLogger

	mu                sync.Mutex
	state             model.BreakerState
	failureCount      int
	successCount      int
	halfOpenSuccesses int
	lastFailureAt     time.Time
	// probeInFlight serializes half-open probes: concurrent calls during a
	// probe are rejected instead of racing the state update.
	probeInFlight bool
}

// NewCircuitBreaker creates a circuit breaker in the closed state.
func NewCircuitBreaker(cfg BreakerConfig, events GuardEventLogger, logger log.Logger) *CircuitBreaker {
	cfg.applyDefaults()
	return &CircuitBreaker{
		cfg:    cfg,
		logger: log.NewHelper(logger),
		events: events,
		state:  model.BreakerClosed,
	}
}

// Execute runs fn through the breaker. While the circuit is open fn is never
// invoked and a *CircuitOpenError is returned. Errors from fn propagate
// verbatim.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.beforeCall(ctx); err != nil {
		return err
	}

	err := fn(ctx)
	cb.afterCall(ctx, err)
	return err
}

// IsOpen reports whether calls would currently be rejected outright.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.State() == model.BreakerOpen
}

// State returns the current state, applying the lazy open-to-half-open
// transition if the reset timeout has elapsed.
func (cb *CircuitBreaker) State() model.BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentStateLocked(context.Background())
}

// Snapshot returns a point-in-time view of the breaker's counters.
func (cb *CircuitBreaker) Snapshot() model.BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return model.BreakerSnapshot{
		Name:              cb.cfg.Name,
		State:             cb.currentStateLocked(context.Background()),
		FailureCount:      cb.failureCount,
		SuccessCount:      cb.successCount,
		HalfOpenSuccesses: cb.halfOpenSuccesses,
		LastFailureAt:     cb.lastFailureAt,
	}
}

// Reset forces the breaker closed with all counters zeroed, regardless of the
// current state. Used for operator-triggered recovery, e.g. on process start
// to discard stale open state from a previous run.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != model.BreakerClosed {
		cb.transitionLocked(context.Background(), model.BreakerClosed)
	}
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfOpenSuccesses = 0
	cb.probeInFlight = false
}

// beforeCall decides whether the call may proceed and reserves the half-open
// probe slot when applicable.
func (cb *CircuitBreaker) beforeCall(ctx context.Context) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentStateLocked(ctx) {
	case model.BreakerOpen:
		return &CircuitOpenError{
			Name:    cb.cfg.Name,
			RetryIn: cb.cfg.ResetTimeout - time.Since(cb.lastFailureAt),
		}
	case model.BreakerHalfOpen:
		if cb.probeInFlight {
			// Single-probe gate: one trial call at a time.
			return &CircuitOpenError{Name: cb.cfg.Name, RetryIn: 0}
		}
		cb.probeInFlight = true
	}

	return nil
}

// afterCall records the call outcome and drives state transitions.
func (cb *CircuitBreaker) afterCall(ctx context.Context, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case model.BreakerClosed:
		if err != nil {
			cb.failureCount++
			cb.lastFailureAt = time.Now()
			if cb.failureCount >= cb.cfg.FailureThreshold {
				cb.transitionLocked(ctx, model.BreakerOpen)
			}
		} else {
			cb.failureCount = 0
			cb.successCount++
		}

	case model.BreakerHalfOpen:
		cb.probeInFlight = false
		if err != nil {
			// Failed probe re-arms the reset timeout from now. The failure
			// count is not incremented further.
			cb.lastFailureAt = time.Now()
			cb.transitionLocked(ctx, model.BreakerOpen)
		} else {
			cb.halfOpenSuccesses++
			cb.successCount++
			if cb.halfOpenSuccesses >= cb.cfg.HalfOpenRequests {
				cb.transitionLocked(ctx, model.BreakerClosed)
				cb.failureCount = 0
				cb.successCount = 0
				cb.halfOpenSuccesses = 0
			}
		}
	}
}

// currentStateLocked applies the lazy open-to-half-open transition.
// Caller must hold cb.mu.
func (cb *CircuitBreaker) currentStateLocked(ctx context.Context) model.BreakerState {
	if cb.state == model.BreakerOpen && time.Since(cb.lastFailureAt) >= cb.cfg.ResetTimeout {
		cb.halfOpenSuccesses = 0
		cb.probeInFlight = false
		cb.transitionLocked(ctx, model.BreakerHalfOpen)
	}
	return cb.state
}

// transitionLocked moves to a new state and emits the change.
// Caller must hold cb.mu.
func (cb *CircuitBreaker) transitionLocked(ctx context.Context, to model.BreakerState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to

	cb.logger.Infow("circuit breaker state changed",
		"breaker", cb.cfg.Name,
		"from", from.String(),
		"to", to.String(),
		"failure_count", cb.failureCount)
	cb.events.LogBreakerStateChange(ctx, cb.cfg.Name, from, to)
}

// BreakerRegistry holds one circuit breaker per dependency name. Configured
// breakers are created up front; unknown names get a breaker with defaults on
// first use, so tests and callers never share global mutable state.
type BreakerRegistry struct {
	events GuardEventLogger
	logger log.Logger

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewBreakerRegistry creates a registry pre-populated from configuration.
func NewBreakerRegistry(c *conf.Guard, events GuardEventLogger, logger log.Logger) *BreakerRegistry {
	r := &BreakerRegistry{
		events:   events,
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker),
	}

	if c != nil {
		for _, bc := range c.Breakers {
			r.breakers[bc.Name] = NewCircuitBreaker(BreakerConfig{
				Name:             bc.Name,
				FailureThreshold: int(bc.FailureThreshold),
				ResetTimeout:     bc.ResetTimeout.AsDuration(),
				HalfOpenRequests: int(bc.HalfOpenRequests),
			}, events, logger)
		}
	}

	return r
}

// Get returns the breaker for a dependency, creating one with default
// configuration if none was configured.
func (r *BreakerRegistry) Get(name string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok = r.breakers[name]; ok {
		return cb
	}
	cb = NewCircuitBreaker(BreakerConfig{Name: name}, r.events, r.logger)
	r.breakers[name] = cb
	return cb
}

// Snapshots returns the current state of every registered breaker.
func (r *BreakerRegistry) Snapshots() []model.BreakerSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.BreakerSnapshot, 0, len(r.breakers))
	for _, cb := range r.breakers {
		out = append(out, cb.Snapshot())
	}
	return out
}
