// Package derive 计算程序派生地址 (PDA)。
//
// 客户端和链上程序各自独立推导同一个地址，所以这里必须是纯函数：
// 没有 I/O，没有随机数，同样的种子永远得到同样的 (地址, bump)。
package derive

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"teamtoken.com/apps/trade/internal/domain"
	"teamtoken.com/pkg/xerr"
)

// 账本对种子的限制 (bump 也算一个种子)
const (
	maxSeeds      = 16
	maxSeedLength = 32
	maxBump       = 255
)

// 两处调用点用到的字面量种子
var (
	positionSeed = []byte("token_account")
	metadataSeed = []byte("metadata")
)

// Derive 从 bump=255 往下试，第一个落在曲线外的地址即为结果
func Derive(seeds [][]byte, programID solana.PublicKey) (domain.DerivedAccount, error) {
	if len(seeds)+1 > maxSeeds {
		return domain.DerivedAccount{}, xerr.New(xerr.TradeInvalidRequest,
			fmt.Sprintf("too many seeds: %d", len(seeds)))
	}
	for i, s := range seeds {
		if len(s) > maxSeedLength {
			return domain.DerivedAccount{}, xerr.New(xerr.TradeInvalidRequest,
				fmt.Sprintf("seed %d is %d bytes, max %d", i, len(s), maxSeedLength))
		}
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := maxBump; bump > 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		// 长度已校验，这里的错误只可能是 "地址在曲线上"
		addr, err := solana.CreateProgramAddress(withBump, programID)
		if err != nil {
			continue
		}
		return domain.DerivedAccount{Address: domain.AddressFromPublicKey(addr), Bump: uint8(bump)}, nil
	}
	return domain.DerivedAccount{}, xerr.Wrap(domain.ErrDerivationExhausted, xerr.TradeDerivationExhausted, "")
}

// Deriver 绑定程序 ID，提供业务上的两个推导点
type Deriver struct {
	programID solana.PublicKey
	cache     Cache
}

type Option func(*Deriver)

// WithCache 开启推导缓存，缓存值就是 Derive 的返回值，不影响确定性
func WithCache(c Cache) Option {
	return func(d *Deriver) { d.cache = c }
}

func New(programID solana.PublicKey, opts ...Option) *Deriver {
	d := &Deriver{programID: programID}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Deriver) ProgramID() solana.PublicKey { return d.programID }

// PositionAccount 种子: [token, wallet, "token_account"]
func (d *Deriver) PositionAccount(token, wallet domain.Address) (domain.DerivedAccount, error) {
	return d.derive([][]byte{token.SeedBytes(), wallet.SeedBytes(), positionSeed})
}

// MetadataAccount 种子: [token, "metadata"]
func (d *Deriver) MetadataAccount(token domain.Address) (domain.DerivedAccount, error) {
	return d.derive([][]byte{token.SeedBytes(), metadataSeed})
}

func (d *Deriver) derive(seeds [][]byte) (domain.DerivedAccount, error) {
	if d.cache == nil {
		return Derive(seeds, d.programID)
	}
	key := cacheKey(d.programID, seeds)
	if acc, ok := d.cache.Get(key); ok {
		return acc, nil
	}
	acc, err := Derive(seeds, d.programID)
	if err != nil {
		return acc, err
	}
	d.cache.Put(key, acc)
	return acc, nil
}
