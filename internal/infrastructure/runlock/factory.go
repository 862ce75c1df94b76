package runlock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mergedesk/backend/internal/infrastructure/config"
)

// NewFromConfig creates a run lock backed by Redis, falling back to the
// in-memory lock when Redis is unreachable. Single-instance deployments
// lose nothing by the fallback; multi-instance ones should treat the
// warning as a misconfiguration.
func NewFromConfig(cfg config.RedisConfig, logger *zap.Logger) RunLock {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, using in-memory run lock",
			zap.String("addr", cfg.RedisAddr()),
			zap.Error(err))
		return NewInMemoryRunLock()
	}

	logger.Info("using redis run lock", zap.String("addr", cfg.RedisAddr()))
	return NewRedisRunLock(client, 0)
}
