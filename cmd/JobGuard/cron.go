package main

import (
	"context"
	"time"

	"JobGuard/internal/biz"
	"JobGuard/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// stuckOperationMaxAge is how old a pool operation must be before the sweep
// force-releases its slot. Operations this old have outlived the operation
// timeout several times over and are assumed leaked.
const stuckOperationMaxAge = 30 * time.Minute

// MaintenanceCron runs the periodic recovery and visibility tasks.
type MaintenanceCron struct {
	c      *cron.Cron
	helper *log.Helper
}

// NewMaintenanceCron registers the maintenance schedule:
//   - every 5 minutes: force-release pool slots held by stuck operations
//   - every hour: log a guard status snapshot for operational visibility
func NewMaintenanceCron(pool *biz.ResourcePool, runner *service.JobRunner, logger log.Logger) *MaintenanceCron {
	helper := log.NewHelper(logger)
	c := cron.New()

	_, err := c.AddFunc("*/5 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if released := pool.ForceReleaseStuckOperations(ctx, stuckOperationMaxAge); released > 0 {
			helper.Warnw("stuck operation sweep released slots", "released", released)
		}
	})
	if err != nil {
		helper.Errorw("failed to register stuck operation sweep", "error", err)
	}

	_, err = c.AddFunc("0 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		status := runner.Status(ctx)
		helper.Infow("guard status",
			"pool_active", status.Pool.Active,
			"pool_waiting", status.Pool.Waiting,
			"lock_backing", status.LockBacking,
			"quota_remaining", status.Quota.Remaining,
			"quota_error", status.QuotaErr)
	})
	if err != nil {
		helper.Errorw("failed to register status snapshot job", "error", err)
	}

	return &MaintenanceCron{c: c, helper: helper}
}

// Start begins the maintenance schedule.
func (m *MaintenanceCron) Start() {
	m.c.Start()
	m.helper.Info("maintenance cron started")
}

// Stop halts the schedule and waits for running entries to finish.
func (m *MaintenanceCron) Stop() {
	ctx := m.c.Stop()
	<-ctx.Done()
	m.helper.Info("maintenance cron stopped")
}
