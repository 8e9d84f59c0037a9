// Package redis caches per-URL content hashes so the pipeline can skip
// re-extracting pages that have not changed since the last crawl. The cache
// is an accelerator in front of SQLite crawl history; every method on a nil
// *Client is a safe no-op so the pipeline runs unchanged when redis is not
// configured.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pickgear/backend/internal/metrics"
	"github.com/pickgear/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func hashKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "crawl:hash:" + hex.EncodeToString(sum[:])
}

// LastHash returns the cached content hash for a URL. ok is false on a nil
// client, a cache miss, or a redis error; the caller then falls back to the
// crawl history table.
func (c *Client) LastHash(ctx context.Context, url string) (string, bool) {
	if c == nil {
		return "", false
	}

	val, err := c.client.Get(ctx, hashKey(url)).Result()
	if err == redis.Nil {
		metrics.HashCacheMisses.Inc()
		return "", false
	}
	if err != nil {
		logger.Warn("Failed to read hash cache", zap.String("url", url), zap.Error(err))
		metrics.HashCacheMisses.Inc()
		return "", false
	}

	metrics.HashCacheHits.Inc()
	logger.Debug("Hash cache hit", zap.String("url", url))
	return val, true
}

// SetHash records the content hash observed for a URL. Failures are logged
// and swallowed: the SQLite history row is the durable record.
func (c *Client) SetHash(ctx context.Context, url, hash string, ttl time.Duration) {
	if c == nil {
		return
	}

	if err := c.client.Set(ctx, hashKey(url), hash, ttl).Err(); err != nil {
		logger.Warn("Failed to write hash cache", zap.String("url", url), zap.Error(err))
	}
}
