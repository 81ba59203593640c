package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"teamtoken.com/apps/trade/internal/domain"
)

// 需要本地 redis，连不上就跳过
func localRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisGuard_Exclusive(t *testing.T) {
	rdb := localRedis(t)
	ctx := context.Background()
	prefix := "test:" + uuid.NewString() + ":"

	a := NewRedisGuard(rdb, prefix, 3*time.Second)
	b := NewRedisGuard(rdb, prefix, 3*time.Second)

	release, err := a.Acquire(ctx, "WALLET_X")
	require.NoError(t, err)

	_, err = b.Acquire(ctx, "WALLET_X")
	assert.True(t, errors.Is(err, domain.ErrAttemptInProgress))

	// 不同钱包互不影响
	other, err := b.Acquire(ctx, "WALLET_Y")
	require.NoError(t, err)
	other(ctx)

	release(ctx)
	again, err := b.Acquire(ctx, "WALLET_X")
	require.NoError(t, err)
	again(ctx)
}

func TestRedisGuard_WatchdogKeepsLock(t *testing.T) {
	rdb := localRedis(t)
	ctx := context.Background()
	prefix := "test:" + uuid.NewString() + ":"

	g := NewRedisGuard(rdb, prefix, 300*time.Millisecond)
	release, err := g.Acquire(ctx, "WALLET_X")
	require.NoError(t, err)
	defer release(ctx)

	time.Sleep(700 * time.Millisecond)
	n, err := rdb.Exists(ctx, prefix+"WALLET_X").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
