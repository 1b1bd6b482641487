// Package biz contains business logic layer implementations.
// It holds the resilience primitives every scheduled job passes through
// before touching an external resource.
package biz

import (
	"JobGuard/internal/data"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewBreakerRegistry,
	NewResourcePool,
	NewJobLockUseCase,
	NewRetryExecutor,
	NewQuotaTrackerUseCase,
	// Import data layer providers
	data.NewLockRepo,
	data.NewSendLogRepo,
	data.NewGuardEventWriter,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(LockRepo), new(*data.RedisLockRepo)),
	wire.Bind(new(SendLogRepo), new(*data.SendLogRepo)),
	wire.Bind(new(GuardEventLogger), new(*data.GuardEventWriter)),
)
