package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/iplanding/internal/metrics"
	"github.com/BradenHooton/iplanding/internal/models"
	"github.com/redis/go-redis/v9"
)

const geoCacheKeyPrefix = "geo:ip:"

// GeoCache stores resolved geolocation records by IP.
type GeoCache interface {
	Get(ctx context.Context, ip string) (models.GeoRecord, bool)
	Set(ctx context.Context, ip string, record models.GeoRecord)
}

// RedisGeoCache keeps resolved records in Redis for a fixed TTL.
// Redis errors are logged and treated as cache misses.
type RedisGeoCache struct {
	rdb     *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRedisClient parses redisURL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.DialTimeout = 3 * time.Second
	opts.ReadTimeout = 500 * time.Millisecond
	opts.WriteTimeout = 500 * time.Millisecond
	opts.MaxRetries = 1

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

func NewRedisGeoCache(rdb *redis.Client, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *RedisGeoCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisGeoCache{rdb: rdb, ttl: ttl, logger: logger, metrics: m}
}

func (c *RedisGeoCache) Get(ctx context.Context, ip string) (models.GeoRecord, bool) {
	data, err := c.rdb.Get(ctx, geoCacheKeyPrefix+ip).Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.GeoCacheResult("miss")
		return models.GeoRecord{}, false
	}
	if err != nil {
		c.logger.Warn("geo cache read failed", slog.String("ip_address", ip), slog.Any("error", err))
		c.metrics.GeoCacheResult("error")
		return models.GeoRecord{}, false
	}

	var record models.GeoRecord
	if err := json.Unmarshal(data, &record); err != nil {
		c.logger.Warn("geo cache entry corrupt", slog.String("ip_address", ip), slog.Any("error", err))
		c.metrics.GeoCacheResult("error")
		return models.GeoRecord{}, false
	}

	c.metrics.GeoCacheResult("hit")
	return record, true
}

func (c *RedisGeoCache) Set(ctx context.Context, ip string, record models.GeoRecord) {
	data, err := json.Marshal(record)
	if err != nil {
		c.logger.Warn("geo cache encode failed", slog.Any("error", err))
		return
	}
	if err := c.rdb.Set(ctx, geoCacheKeyPrefix+ip, data, c.ttl).Err(); err != nil {
		c.logger.Warn("geo cache write failed", slog.String("ip_address", ip), slog.Any("error", err))
	}
}
