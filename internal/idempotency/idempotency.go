// Package idempotency de-duplicates borrow requests carrying an
// Idempotency-Key header.
package idempotency

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "idem:"
	defaultTTL = 24 * time.Hour
)

// Guard claims keys. Claim reports false when the key is already held.
type Guard interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func ConfigFromEnv() Config {
	cfg := Config{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		TTL:      defaultTTL,
	}
	if v, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		cfg.DB = v
	}
	if d, err := time.ParseDuration(os.Getenv("IDEMPOTENCY_TTL")); err == nil && d > 0 {
		cfg.TTL = d
	}
	return cfg
}

// Connect returns a Redis client for cfg after a successful ping.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// RedisGuard holds claimed keys in Redis with SETNX and a TTL.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) Claim(ctx context.Context, key string) (bool, error) {
	return g.client.SetNX(ctx, keyPrefix+key, 1, g.ttl).Result()
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	return g.client.Del(ctx, keyPrefix+key).Err()
}

// Noop accepts every key. It is used when no Redis address is configured.
type Noop struct{}

func (Noop) Claim(context.Context, string) (bool, error) { return true, nil }
func (Noop) Release(context.Context, string) error       { return nil }
