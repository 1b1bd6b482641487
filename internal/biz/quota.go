package biz

import (
	"context"
	"fmt"
	"time"

	"JobGuard/internal/conf"
	"JobGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// usageCacheKey is the single key under which the computed usage is memoized.
const usageCacheKey = "usage"

// SendLogRepo reads the persisted log of completed sends.
// Interface is defined in biz layer, implementation in data layer.
//
// The log is the single source of truth for the quota: a send must only be
// recorded as successful after the operation is confirmed complete, not merely
// attempted, or the remaining allowance would be miscounted.
type SendLogRepo interface {
	// CountSuccessfulSince counts successful sends with a timestamp >= since.
	CountSuccessfulSince(ctx context.Context, since time.Time) (int64, error)
}

// QuotaTrackerUseCase computes the remaining send allowance in a rolling time
// window. It is a read-only projection over the send log with no internal
// state beyond a short-lived memoization of the computed usage.
type QuotaTrackerUseCase struct {
	repo   SendLogRepo
	limit  int
	window time.Duration
	cache  *expirable.LRU[string, model.QuotaUsage]
	logger *log.Helper
	events GuardEventLogger
}

// NewQuotaTrackerUseCase creates the tracker from bootstrap configuration.
func NewQuotaTrackerUseCase(c *conf.Guard, repo SendLogRepo, events GuardEventLogger, logger log.Logger) *QuotaTrackerUseCase {
	limit := 20
	window := 24 * time.Hour
	cacheTTL := 5 * time.Second
	if c != nil && c.Quota != nil {
		limit = int(c.Quota.Limit)
		if d := c.Quota.Window.AsDuration(); d > 0 {
			window = d
		}
		if d := c.Quota.CacheTtl.AsDuration(); d > 0 {
			cacheTTL = d
		}
	}

	return &QuotaTrackerUseCase{
		repo:   repo,
		limit:  limit,
		window: window,
		cache:  expirable.NewLRU[string, model.QuotaUsage](8, nil, cacheTTL),
		logger: log.NewHelper(logger),
		events: events,
	}
}

// GetUsage computes the current rolling-window usage. Remaining is never
// negative. Repo read errors propagate: the quota is compliance-driven, so an
// unreadable send log must not silently allow sends.
func (uc *QuotaTrackerUseCase) GetUsage(ctx context.Context) (model.QuotaUsage, error) {
	if usage, ok := uc.cache.Get(usageCacheKey); ok {
		return usage, nil
	}

	since := time.Now().Add(-uc.window)
	sent, err := uc.repo.CountSuccessfulSince(ctx, since)
	if err != nil {
		return model.QuotaUsage{}, fmt.Errorf("failed to count sends in window: %w", err)
	}

	remaining := uc.limit - int(sent)
	if remaining < 0 {
		remaining = 0
	}

	usage := model.QuotaUsage{
		Limit:        uc.limit,
		SentInWindow: int(sent),
		Remaining:    remaining,
		Window:       uc.window,
	}
	uc.cache.Add(usageCacheKey, usage)

	return usage, nil
}

// CheckAllowance returns a *QuotaExhaustedError when no allowance remains.
// Callers consult it before any outbound send and defer the send when it
// fails; data is never dropped.
func (uc *QuotaTrackerUseCase) CheckAllowance(ctx context.Context) error {
	usage, err := uc.GetUsage(ctx)
	if err != nil {
		return err
	}

	if usage.Remaining <= 0 {
		uc.logger.Warnw("send quota exhausted",
			"limit", usage.Limit,
			"sent_in_window", usage.SentInWindow,
			"window", usage.Window)
		uc.events.LogQuotaExhausted(ctx, usage)
		return &QuotaExhaustedError{Usage: usage}
	}

	return nil
}

// Invalidate drops the memoized usage so the next read hits the send log.
// Called after recording a send to keep the projection fresh.
func (uc *QuotaTrackerUseCase) Invalidate() {
	uc.cache.Remove(usageCacheKey)
}
