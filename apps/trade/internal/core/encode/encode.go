// Package encode 把买卖请求编码成链上程序认的 13 字节指令。
package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/shopspring/decimal"
	"teamtoken.com/apps/trade/internal/domain"
	"teamtoken.com/pkg/xerr"
)

var maxAmount = decimal.RequireFromString("18446744073709551615")

// Encode [side][amount u64 LE][slippage u32 LE]
func Encode(side domain.TradeSide, amount uint64, slippageBps uint32) (domain.EncodedInstruction, error) {
	var out domain.EncodedInstruction
	if !side.Valid() {
		return out, xerr.New(xerr.TradeInvalidRequest, fmt.Sprintf("unknown side %d", uint8(side)))
	}
	out[domain.DiscriminantOffset] = byte(side)
	binary.LittleEndian.PutUint64(out[domain.AmountOffset:domain.SlippageOffset], amount)
	binary.LittleEndian.PutUint32(out[domain.SlippageOffset:], slippageBps)
	return out, nil
}

// EncodeRequest 校验后编码
func EncodeRequest(req domain.TradeRequest) (domain.EncodedInstruction, error) {
	if err := req.Validate(); err != nil {
		return domain.EncodedInstruction{}, err
	}
	return Encode(req.Side, req.Amount, req.SlippageBps)
}

// Decode Encode 的逆过程
func Decode(data []byte) (domain.TradeSide, uint64, uint32, error) {
	if len(data) != domain.InstructionSize {
		return 0, 0, 0, xerr.New(xerr.TradeInvalidRequest,
			fmt.Sprintf("instruction is %d bytes, want %d", len(data), domain.InstructionSize))
	}
	side := domain.TradeSide(data[domain.DiscriminantOffset])
	if !side.Valid() {
		return 0, 0, 0, xerr.New(xerr.TradeInvalidRequest, fmt.Sprintf("unknown discriminant %d", data[0]))
	}
	amount := binary.LittleEndian.Uint64(data[domain.AmountOffset:domain.SlippageOffset])
	slippage := binary.LittleEndian.Uint32(data[domain.SlippageOffset:])
	return side, amount, slippage, nil
}

// AmountFromDecimal 最小单位数量，必须是非负整数且装得进 u64
func AmountFromDecimal(v decimal.Decimal) (uint64, error) {
	if v.IsNegative() {
		return 0, xerr.New(xerr.TradeInvalidRequest, fmt.Sprintf("amount %s is negative", v.String()))
	}
	if !v.Equal(v.Truncate(0)) {
		return 0, xerr.New(xerr.TradeInvalidRequest, fmt.Sprintf("amount %s is not an integer", v.String()))
	}
	if v.GreaterThan(maxAmount) {
		return 0, xerr.Wrap(domain.ErrAmountOverflow, xerr.TradeAmountOverflow,
			fmt.Sprintf("amount %s exceeds u64", v.String()))
	}
	return v.BigInt().Uint64(), nil
}
