package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 需要真实的 Redis：PCBUILD_TEST_REDIS_ADDR=localhost:6379
func newTestRedis(t *testing.T) *RedisCache {
	t.Helper()
	addr := os.Getenv("PCBUILD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PCBUILD_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return &RedisCache{client: client, snapshotTTL: time.Hour}
}

func TestRedisTurnLockOwnership(t *testing.T) {
	c := newTestRedis(t)
	ctx := context.Background()
	id := "test-" + uuid.NewString()
	t.Cleanup(func() { c.client.Del(context.Background(), turnKey(id)) })

	slow, ok, err := c.AcquireTurn(ctx, id, 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = c.AcquireTurn(ctx, id, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// 第一把锁过期，另一个实例拿到锁
	time.Sleep(200 * time.Millisecond)
	fresh, ok, err := c.AcquireTurn(ctx, id, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.ReleaseTurn(ctx, id, slow))
	_, ok, err = c.AcquireTurn(ctx, id, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.ReleaseTurn(ctx, id, fresh))
	_, ok, err = c.AcquireTurn(ctx, id, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
