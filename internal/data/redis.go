// Package data provides data access layer implementations.
package data

import (
	"context"
	"time"

	"JobGuard/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates the Redis client backing the shared job lock.
// It returns the client, a cleanup function, and an error.
//
// Redis is optional for this service: when it is unconfigured or unreachable
// the job lock degrades to process-local backing, so connection failure does
// not prevent startup.
func NewRedisClient(c *conf.Data, logger log.Logger) (*redis.Client, func(), error) {
	helper := log.NewHelper(logger)

	if c == nil || c.Redis == nil || c.Redis.Addr == "" {
		helper.Warn("Redis is not configured; job locks will use process-local backing only")
		return nil, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:            c.Redis.Addr,
		PoolSize:        100,
		MinIdleConns:    10,
		DialTimeout:     3 * time.Second,
		ReadTimeout:     c.Redis.ReadTimeout.AsDuration(),
		WriteTimeout:    c.Redis.WriteTimeout.AsDuration(),
		ConnMaxIdleTime: 5 * time.Minute,
	})

	cleanup := func() {
		helper.Info("closing Redis client")
		if err := rdb.Close(); err != nil {
			helper.Errorf("failed to close Redis client: %v", err)
		}
	}

	// Verify connectivity with a ping; failure is non-fatal (degraded mode).
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		// Non-fatal: the lock layer degrades and keeps retrying the store.
		helper.Warnf("failed to connect to Redis at %s: %v (cross-process lock exclusion unavailable)",
			c.Redis.Addr, err)
		return rdb, cleanup, nil
	}

	helper.Infof("connected to Redis at %s", c.Redis.Addr)

	return rdb, cleanup, nil
}
