package domain

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"teamtoken.com/pkg/xerr"
)

type TradeSide uint8

// 交易方向，数值即指令判别字节
const (
	SideBuy  TradeSide = iota // 0: 买入
	SideSell                  // 1: 卖出
)

// MaxSlippageBps 滑点上限 1000bp = 10%
const MaxSlippageBps uint32 = 1000

// DefaultSlippagePercent 前端默认滑点 2%
var DefaultSlippagePercent = decimal.NewFromInt(2)

func (s TradeSide) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

func (s TradeSide) Valid() bool { return s == SideBuy || s == SideSell }

func ParseTradeSide(v string) (TradeSide, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	}
	return 0, xerr.New(xerr.TradeInvalidRequest, fmt.Sprintf("unknown side %q", v))
}

// Address 地址文本：合法 base58 公钥，或者不透明的标识 (如 mock 代币 "TOKEN_A")
type Address string

func AddressFromPublicKey(pk solana.PublicKey) Address { return Address(pk.String()) }

func (a Address) String() string { return string(a) }

func (a Address) IsZero() bool { return strings.TrimSpace(string(a)) == "" }

// SeedBytes 推导 PDA 用的种子字节
// 能解析成 32 字节公钥就用公钥字节 (和链上程序一致)，否则直接用原始字节
func (a Address) SeedBytes() []byte {
	if pk, err := solana.PublicKeyFromBase58(string(a)); err == nil {
		return pk.Bytes()
	}
	return []byte(a)
}

// PublicKey 编译成链上交易时才需要
func (a Address) PublicKey() (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(string(a))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("address %q is not a public key: %w", string(a), err)
	}
	return pk, nil
}

// TradeRequest 一次买卖请求
type TradeRequest struct {
	Side            TradeSide `json:"side"`
	TokenIdentifier Address   `json:"token"`
	Amount          uint64    `json:"amount"`       // 最小单位
	SlippageBps     uint32    `json:"slippage_bps"` // 基点
}

func (r TradeRequest) Validate() error {
	if !r.Side.Valid() {
		return invalid("unknown side %d", uint8(r.Side))
	}
	if r.TokenIdentifier.IsZero() {
		return invalid("token identifier is empty")
	}
	if r.Amount == 0 {
		return invalid("amount must be greater than zero")
	}
	if r.SlippageBps > MaxSlippageBps {
		return invalid("slippage %dbp exceeds %dbp", r.SlippageBps, MaxSlippageBps)
	}
	return nil
}

// SlippageFromPercent 百分比转基点：floor(percent * 100)，允许区间 [0, 10]
func SlippageFromPercent(percent decimal.Decimal) (uint32, error) {
	if percent.IsNegative() {
		return 0, invalid("slippage %s%% is negative", percent.String())
	}
	bps := percent.Mul(decimal.NewFromInt(100)).Floor()
	if bps.GreaterThan(decimal.NewFromInt(int64(MaxSlippageBps))) {
		return 0, invalid("slippage %s%% exceeds 10%%", percent.String())
	}
	return uint32(bps.IntPart()), nil
}

// DerivedAccount 程序派生地址 + bump
type DerivedAccount struct {
	Address Address `json:"address"`
	Bump    uint8   `json:"bump"`
}

// AccountReference 指令账户表的一项，顺序是协议的一部分
type AccountReference struct {
	Address    Address `json:"address"`
	IsSigner   bool    `json:"is_signer"`
	IsWritable bool    `json:"is_writable"`
}

func invalid(format string, args ...any) error {
	return xerr.New(xerr.TradeInvalidRequest, fmt.Sprintf(format, args...))
}
