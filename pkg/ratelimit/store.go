package ratelimit

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const defaultStoreSize = 65536

// Store 按 key (ip + 路由) 分配令牌桶
// 超过 ttl 没访问的桶由 expirable LRU 自己回收，key 数量有上限防止被刷爆内存
type Store struct {
	mu    sync.Mutex
	lru   *expirable.LRU[string, *rate.Limiter]
	rate  rate.Limit
	burst int
}

func NewStore(r rate.Limit, burst int, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Store{
		lru:   expirable.NewLRU[string, *rate.Limiter](defaultStoreSize, nil, ttl),
		rate:  r,
		burst: burst,
	}
}

// Allow 判断是否允许通过。允许则返回 true。
func (s *Store) Allow(key string) bool {
	return s.limiter(key).Allow()
}

func (s *Store) Len() int {
	return s.lru.Len()
}

func (s *Store) limiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lru.Get(key)
	if !ok {
		l = rate.NewLimiter(s.rate, s.burst)
	}
	// 重新 Add 刷新过期时间，活跃的 key 不会被回收后拿到满桶
	s.lru.Add(key, l)
	return l
}
