package idempotency

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client, err := Connect(context.Background(), Config{Addr: addr})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestRedisGuard_ClaimOnce(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	key := "test:claim-once"
	client.Del(ctx, keyPrefix+key)
	g := NewRedisGuard(client, time.Minute)

	ok, err := g.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Claim(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, g.Release(ctx, key))
	ok, err = g.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	client.Del(ctx, keyPrefix+key)
}

func TestRedisGuard_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	key := "test:concurrent"
	client.Del(ctx, keyPrefix+key)
	g := NewRedisGuard(client, time.Minute)

	var wg sync.WaitGroup
	var claimed int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := g.Claim(ctx, key); err == nil && ok {
				atomic.AddInt32(&claimed, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), claimed)
	client.Del(ctx, keyPrefix+key)
}

func TestNoop(t *testing.T) {
	ok, err := Noop{}.Claim(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = Noop{}.Claim(context.Background(), "k")
	assert.True(t, ok)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("IDEMPOTENCY_TTL", "1h")
	cfg := ConfigFromEnv()
	assert.Equal(t, "redis:6379", cfg.Addr)
	assert.Equal(t, 2, cfg.DB)
	assert.Equal(t, time.Hour, cfg.TTL)
}
