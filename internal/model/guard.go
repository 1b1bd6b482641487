// Package model defines shared value types exchanged between the biz and data layers.
package model

import "time"

// BreakerState is the circuit breaker state machine position.
type BreakerState int

const (
	// BreakerClosed means calls pass through normally.
	BreakerClosed BreakerState = iota
	// BreakerOpen means calls fail fast without touching the dependency.
	BreakerOpen
	// BreakerHalfOpen means the breaker is probing whether the dependency recovered.
	BreakerHalfOpen
)

// String returns the lowercase state name used in logs and events.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerSnapshot is a point-in-time view of a circuit breaker's counters.
type BreakerSnapshot struct {
	Name              string
	State             BreakerState
	FailureCount      int
	SuccessCount      int
	HalfOpenSuccesses int
	LastFailureAt     time.Time
}

// PoolStatus summarizes resource pool occupancy.
type PoolStatus struct {
	MaxInstances int
	Active       int
	Waiting      int
	InFlight     int
}

// OperationInfo describes one checked-out pool operation.
type OperationInfo struct {
	ID        string
	StartedAt time.Time
	Age       time.Duration
}

// PoolDetailedStatus is PoolStatus plus per-operation bookkeeping,
// read by operator status surfaces.
type PoolDetailedStatus struct {
	PoolStatus
	Operations []OperationInfo
}

// LockInfo describes the observable state of a named job lock.
type LockInfo struct {
	Name    string
	Locked  bool
	Backing string // "shared" or "local"
}

// QuotaUsage is the computed rolling-window send allowance.
type QuotaUsage struct {
	Limit        int
	SentInWindow int
	Remaining    int
	Window       time.Duration
}
