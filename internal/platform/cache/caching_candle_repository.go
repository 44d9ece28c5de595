// Package cache provides caching implementations for repository interfaces.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ohlcv_ingest/internal/feature/candles/domain/entity"
	"ohlcv_ingest/internal/feature/candles/usecase"
)

const (
	defaultTTL       = 5 * time.Minute
	defaultNamespace = "candles"
	scanCount        = 200
)

// CachingCandleRepository decorates a CandleRepository with Redis caching.
// Entries never outlive the bar that is currently forming, so a read never
// hides a bar that the next ingestion tick commits.
type CachingCandleRepository struct {
	inner     usecase.CandleRepository
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
	nowFn     func() time.Time
}

var _ usecase.CandleRepository = (*CachingCandleRepository)(nil)

// NewCachingCandleRepository decorates a CandleRepository with Redis caching.
// If ttl is 0, it defaults to 5 minutes. If namespace is empty, it uses "candles".
func NewCachingCandleRepository(rdb *redis.Client, ttl time.Duration, inner usecase.CandleRepository, namespace string) *CachingCandleRepository {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &CachingCandleRepository{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
		nowFn:     time.Now,
	}
}

// Find retrieves candles, checking cache first then falling back to the store.
func (c *CachingCandleRepository) Find(ctx context.Context, instrument string, g entity.Granularity, limit int) ([]entity.Candle, error) {
	// Bypass cache if Redis is not configured
	if c.rdb == nil {
		return c.inner.Find(ctx, instrument, g, limit)
	}

	key := cacheKey(c.namespace, instrument, g, limit)

	// 1) Check cache
	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out []entity.Candle
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		// Delete corrupted cache entry
		_ = c.rdb.Del(ctx, key).Err()
	}

	// 2) Fallback to the store
	out, err := c.inner.Find(ctx, instrument, g, limit)
	if err != nil {
		return nil, err
	}

	// 3) Store in cache (best effort)
	if b, err := json.Marshal(out); err == nil {
		ttl := min(c.ttl, TimeUntilNextBar(g, c.nowFn()))
		_ = c.rdb.Set(ctx, key, b, ttl).Err()
	}

	return out, nil
}

// InvalidationSink drops cached reads of a series once a batch for it commits.
type InvalidationSink struct {
	rdb       *redis.Client
	namespace string
}

var _ usecase.CommitSink = (*InvalidationSink)(nil)

// NewInvalidationSink creates a commit sink sharing the namespace of a CachingCandleRepository.
func NewInvalidationSink(rdb *redis.Client, namespace string) *InvalidationSink {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &InvalidationSink{rdb: rdb, namespace: namespace}
}

// OnCommit deletes every cached query of the committed series.
func (s *InvalidationSink) OnCommit(ctx context.Context, cr usecase.CommitResult) error {
	if s.rdb == nil || cr.Rows == 0 {
		return nil
	}
	pattern := cacheKeyPrefix(s.namespace, cr.InstrumentID, cr.Granularity) + "*"
	n, err := deleteByPattern(ctx, s.rdb, pattern)
	if err != nil {
		return fmt.Errorf("invalidate %s: %w", pattern, err)
	}
	if n > 0 {
		slog.Debug("cache invalidated", "pattern", pattern, "keys", n)
	}
	return nil
}

// cacheKey generates a cache key for a specific query.
func cacheKey(namespace, instrument string, g entity.Granularity, limit int) string {
	return fmt.Sprintf("%s%d", cacheKeyPrefix(namespace, instrument, g), limit)
}

// cacheKeyPrefix generates a prefix for invalidating related cache entries.
func cacheKeyPrefix(namespace, instrument string, g entity.Granularity) string {
	return fmt.Sprintf("%s:%s:%s:",
		namespace,
		safe(instrument),
		safe(string(g)),
	)
}

// deleteByPattern deletes all cache keys matching a given pattern using SCAN.
func deleteByPattern(ctx context.Context, rdb *redis.Client, pattern string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, cur, err := rdb.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			if err := rdb.Del(ctx, keys...).Err(); err != nil {
				return deleted, err
			}
			deleted += len(keys)
		}
		cursor = cur
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}
