// internal/common/database/redis.go
package database

import (
	"context"
	"fmt"
	"time"

	"relationship-metrics/internal/common/config"

	"github.com/redis/go-redis/v9"
)

const defaultResultTTL = 24 * time.Hour

// RedisClient is the score cache backend. TTL applies to every stored result.
type RedisClient struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedis(cfg config.RedisConfig) (*RedisClient, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	ttl := time.Duration(cfg.TTL) * time.Second
	if ttl <= 0 {
		ttl = defaultResultTTL
	}

	// Results are a few hundred KB after compression; the bigger write
	// timeout covers a full score table on a slow link.
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		PoolSize:     4,
	})
	return &RedisClient{Client: rdb, TTL: ttl}, nil
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}
