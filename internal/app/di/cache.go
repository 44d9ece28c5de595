package di

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"ohlcv_ingest/internal/feature/candles/usecase"
	"ohlcv_ingest/internal/platform/cache"
	infraredis "ohlcv_ingest/internal/platform/redis"
)

const cacheNamespace = "candles"

// NewRedis connects to Redis when it is configured.
// It returns nil when Redis is not configured or unreachable; callers run without cache.
func NewRedis(ctx context.Context) *redis.Client {
	cfg := infraredis.LoadConfig()
	if !cfg.Enabled() {
		slog.Info("Redis not configured. Running without cache.")
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rdb, err := infraredis.NewRedisClient(ctx, cfg)
	if err != nil {
		slog.Warn("Redis unavailable. Running without cache.", "error", err)
		return nil
	}
	return rdb
}

// NewCommitSink returns the sinks run after every committed batch.
// Cached reads of the committed series are dropped when Redis is available.
func NewCommitSink(rdb *redis.Client) usecase.CommitSink {
	if rdb == nil {
		return usecase.LogSink{}
	}
	return usecase.MultiSink{usecase.LogSink{}, cache.NewInvalidationSink(rdb, cacheNamespace)}
}

// NewCandleReader wraps the store with the Redis read cache.
func NewCandleReader(rdb *redis.Client, ttl time.Duration, store usecase.CandleRepository) usecase.CandleRepository {
	return cache.NewCachingCandleRepository(rdb, ttl, store, cacheNamespace)
}
