package derive

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	lru "github.com/hashicorp/golang-lru/v2"
	"teamtoken.com/apps/trade/internal/domain"
)

// Cache 推导结果缓存
type Cache interface {
	Get(key string) (domain.DerivedAccount, bool)
	Put(key string, acc domain.DerivedAccount)
}

// MemCache 进程内 LRU 缓存，推导结果只跟种子有关，不需要过期
type MemCache struct {
	lru *lru.Cache[string, domain.DerivedAccount]
}

func NewMemCache(size int) *MemCache {
	if size <= 0 {
		size = 4096
	}
	// size > 0 时 lru.New 不会出错
	c, _ := lru.New[string, domain.DerivedAccount](size)
	return &MemCache{lru: c}
}

func (c *MemCache) Get(key string) (domain.DerivedAccount, bool) {
	return c.lru.Get(key)
}

func (c *MemCache) Put(key string, acc domain.DerivedAccount) {
	c.lru.ContainsOrAdd(key, acc)
}

func (c *MemCache) Len() int {
	return c.lru.Len()
}

// cacheKey 程序 ID + 每个种子带长度前缀，避免 ["ab","c"] 和 ["a","bc"] 撞 key
func cacheKey(programID solana.PublicKey, seeds [][]byte) string {
	buf := make([]byte, 0, 32+len(seeds)*34)
	buf = append(buf, programID.Bytes()...)
	for _, s := range seeds {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s)))
		buf = append(buf, s...)
	}
	return string(buf)
}
