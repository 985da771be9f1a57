package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/user/tedshelf-go/internal/config"
)

// RedisCache is a TalkIDCache shared between instances. Redis failures are
// logged and treated as misses.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(ctx context.Context, cfg *config.RedisConfig) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Dur("ttl", cfg.TTL).Msg("Talk id cache connected to redis")
	return &RedisCache{rdb: rdb, ttl: cfg.TTL}, nil
}

// Get returns the cached talk id of a URL
func (c *RedisCache) Get(ctx context.Context, pageURL string) (string, bool) {
	talkID, err := c.rdb.Get(ctx, Key(pageURL)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("url", pageURL).Msg("Talk id cache read failed")
		}
		return "", false
	}
	return talkID, talkID != ""
}

// Set caches the talk id of a URL
func (c *RedisCache) Set(ctx context.Context, pageURL string, talkID string) {
	if err := c.rdb.Set(ctx, Key(pageURL), talkID, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("url", pageURL).Msg("Talk id cache write failed")
	}
}

// Close closes the Redis client
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
