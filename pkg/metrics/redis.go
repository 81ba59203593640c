package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

var (
	RedisPoolTotal = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "teamtoken", Name: "redis_pool_total"})
	RedisPoolIdle  = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "teamtoken", Name: "redis_pool_idle"})
	RedisPoolStale = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "teamtoken", Name: "redis_pool_stale"})
	RedisPoolWait  = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "teamtoken", Name: "redis_pool_wait_count"})
)

func MustRegisterRedis() {
	prometheus.MustRegister(RedisPoolTotal, RedisPoolIdle, RedisPoolStale, RedisPoolWait)
}

// SampleRedisPool 定时采样连接池，ctx 结束退出
func SampleRedisPool(ctx context.Context, rdb *redis.Client, every time.Duration) {
	if every <= 0 {
		every = 10 * time.Second
	}
	tk := time.NewTicker(every)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			st := rdb.PoolStats()
			RedisPoolTotal.Set(float64(st.TotalConns))
			RedisPoolIdle.Set(float64(st.IdleConns))
			RedisPoolStale.Set(float64(st.StaleConns))
			RedisPoolWait.Set(float64(st.WaitCount))
		}
	}
}
