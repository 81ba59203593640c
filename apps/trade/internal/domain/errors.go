package domain

import (
	"errors"

	"teamtoken.com/pkg/xerr"
)

// 错误哨兵，按 xerr 码比较，下游用 errors.Is 判断
var (
	ErrInvalidRequest      = xerr.NewErrCode(xerr.TradeInvalidRequest)
	ErrAttemptInProgress   = xerr.NewErrCode(xerr.TradeAttemptInProgress)
	ErrSignerRejected      = xerr.NewErrCode(xerr.TradeSignerRejected)
	ErrSignerUnavailable   = xerr.NewErrCode(xerr.TradeSignerUnavailable)
	ErrBroadcastRejected   = xerr.NewErrCode(xerr.TradeBroadcastRejected)
	ErrStaleReference      = xerr.NewErrCode(xerr.TradeStaleReference)
	ErrDerivationExhausted = xerr.NewErrCode(xerr.TradeDerivationExhausted)
	ErrAmountOverflow      = xerr.NewErrCode(xerr.TradeAmountOverflow)
	ErrChainUnavailable    = xerr.NewErrCode(xerr.TradeChainUnavailable)
)

// FailureReason Failed 状态携带的结构化原因
type FailureReason string

const (
	ReasonNone                FailureReason = ""
	ReasonInvalidRequest      FailureReason = "InvalidRequest"
	ReasonDerivationExhausted FailureReason = "DerivationExhausted"
	ReasonAmountOverflow      FailureReason = "AmountOverflow"
	ReasonSignerRejected      FailureReason = "SignerRejected"
	ReasonSignerUnavailable   FailureReason = "SignerUnavailable"
	ReasonBroadcastRejected   FailureReason = "BroadcastRejected"
	ReasonStaleReference      FailureReason = "StaleReference"
	ReasonAbandoned           FailureReason = "Abandoned"
)

// Recoverable 调用方能否自行重试 (重新构建 / 重新签名)
func (r FailureReason) Recoverable() bool {
	switch r {
	case ReasonSignerRejected, ReasonSignerUnavailable, ReasonBroadcastRejected,
		ReasonStaleReference, ReasonAbandoned, ReasonInvalidRequest:
		return true
	}
	return false
}

// BuildFailureReason 构建阶段的错误归类
func BuildFailureReason(err error) FailureReason {
	switch {
	case errors.Is(err, ErrDerivationExhausted):
		return ReasonDerivationExhausted
	case errors.Is(err, ErrAmountOverflow):
		return ReasonAmountOverflow
	default:
		return ReasonInvalidRequest
	}
}

// SignFailureReason 签名阶段的错误归类，未识别的一律按不可用处理
func SignFailureReason(err error) FailureReason {
	if errors.Is(err, ErrSignerRejected) {
		return ReasonSignerRejected
	}
	return ReasonSignerUnavailable
}

// BroadcastFailureReason 广播阶段的错误归类
func BroadcastFailureReason(err error) FailureReason {
	if errors.Is(err, ErrStaleReference) {
		return ReasonStaleReference
	}
	return ReasonBroadcastRejected
}
