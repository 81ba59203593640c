// Package lock 基于 redis 的跨副本尝试互斥。
package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"teamtoken.com/apps/trade/internal/domain"
	"teamtoken.com/pkg/logger"
	"teamtoken.com/pkg/safe"
	"teamtoken.com/pkg/xredis"
)

const defaultTTL = 30 * time.Second

// RedisGuard 同一个钱包同一时刻只允许一个副本在跑交易尝试
// 持锁期间看门狗按 ttl/3 续期，进程崩溃后锁在 ttl 内自动过期
type RedisGuard struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisGuard(client redis.Cmdable, prefix string, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisGuard{client: client, prefix: prefix, ttl: ttl}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string) (func(context.Context), error) {
	l := xredis.NewDistLock(g.client, g.prefix+key, g.ttl)
	ok, err := l.TryLock(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrAttemptInProgress
	}

	wctx, stop := context.WithCancel(context.WithoutCancel(ctx))
	safe.GoCtx(wctx, func(ctx context.Context) { g.watchdog(ctx, l) })

	return func(ctx context.Context) {
		stop()
		if ok, err := l.Unlock(ctx); err != nil || !ok {
			logger.Warn(ctx, "⚠️ 释放尝试锁失败", zap.String("key", l.Key()), zap.Bool("owned", ok), zap.Error(err))
		}
	}, nil
}

func (g *RedisGuard) watchdog(ctx context.Context, l *xredis.DistLock) {
	tk := time.NewTicker(g.ttl / 3)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			ok, err := l.Refresh(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn(ctx, "⚠️ 尝试锁续期失败", zap.String("key", l.Key()), zap.Error(err))
				}
				continue
			}
			if !ok {
				logger.Error(ctx, "❌ 尝试锁已丢失", zap.String("key", l.Key()))
				return
			}
		}
	}
}
