// Package cache stores video metadata in Redis. A nil *Cache is valid and
// behaves as an always-empty cache, so Redis stays optional.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reelfetch/reelfetch/internal/logger"
)

const keyPrefix = "reelfetch:info:"

type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// New connects to redisURL (redis://[:password@]host:port/db) and pings it.
func New(redisURL string, ttl time.Duration, log *logger.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	if log == nil {
		log = logger.Default()
	}
	log = log.WithComponent("cache")
	log.Info(ctx, "connected to redis", map[string]interface{}{"addr": opts.Addr})

	return &Cache{client: client, ttl: ttl, log: log}, nil
}

// Close closes the connection pool
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// Ping checks connectivity; used by the deep health check.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return errors.New("cache disabled")
	}
	return c.client.Ping(ctx).Err()
}

// Enabled reports whether a Redis connection is configured.
func (c *Cache) Enabled() bool {
	return c != nil
}

// Key derives a fixed-length cache key from a source URL.
func Key(sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// GetJSON decodes the cached value for key into dst. Misses and Redis errors
// both report false; errors are logged.
func (c *Cache) GetJSON(ctx context.Context, key string, dst interface{}) bool {
	if c == nil {
		return false
	}

	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.log.Warn(ctx, "cache get failed", map[string]interface{}{"key": key, "error": err.Error()})
		return false
	}
	if err := json.Unmarshal(val, dst); err != nil {
		c.log.Warn(ctx, "cache entry undecodable", map[string]interface{}{"key": key, "error": err.Error()})
		return false
	}
	return true
}

// SetJSON stores value under key for the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}) error {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn(ctx, "cache set failed", map[string]interface{}{"key": key, "error": err.Error()})
		return err
	}
	return nil
}
