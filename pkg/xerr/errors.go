package xerr

import (
	"errors"
	"fmt"
)

// 常用错误码定义
const (
	OK                 = 200
	ServerCommonError  = 500
	RequestParamsError = 400
	RecordNotFound     = 404
)

// 交易相关错误码
// 4xxx: 调用方可恢复 (改参数 / 重试 / 等待)
// 5xxx: 不可恢复 (推导失败 / 编码溢出 / 签名器不可用)
const (
	TradeInvalidRequest      = 4001
	TradeAttemptInProgress   = 4091
	TradeSignerRejected      = 4201
	TradeBroadcastRejected   = 4301
	TradeStaleReference      = 4302
	TradeDerivationExhausted = 5101
	TradeAmountOverflow      = 5102
	TradeSignerUnavailable   = 5201
	TradeChainUnavailable    = 5301
)

type CodeError struct {
	Code  int    `json:"code"`
	Msg   string `json:"msg"`
	cause error
}

func (e *CodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("ErrCode:%d, Msg:%s, Cause:%v", e.Code, e.Msg, e.cause)
	}
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func (e *CodeError) Unwrap() error { return e.cause }

// Is 按错误码比较，errors.Is(Wrap(err, c, ""), New(c, "")) 成立
func (e *CodeError) Is(target error) bool {
	var t *CodeError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

// Wrap 保留原始错误，同时打上业务码
func Wrap(err error, code int, msg string) error {
	if msg == "" {
		msg = MapErrMsg(code)
	}
	return &CodeError{Code: code, Msg: msg, cause: err}
}

// CodeOf 取链路上最外层的业务码，没有则返回 ServerCommonError
func CodeOf(err error) int {
	if err == nil {
		return OK
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ServerCommonError
}

func MapErrMsg(code int) string {
	switch code {
	case ServerCommonError:
		return "服务器开小差了"
	case RequestParamsError:
		return "参数错误"
	case RecordNotFound:
		return "记录不存在"
	case TradeInvalidRequest:
		return "交易参数错误"
	case TradeAttemptInProgress:
		return "已有交易在进行中"
	case TradeSignerRejected:
		return "签名被拒绝"
	case TradeSignerUnavailable:
		return "签名器不可用"
	case TradeBroadcastRejected:
		return "广播失败"
	case TradeStaleReference:
		return "区块引用已过期"
	case TradeDerivationExhausted:
		return "地址推导失败"
	case TradeAmountOverflow:
		return "数量溢出"
	case TradeChainUnavailable:
		return "链节点不可用"
	default:
		return "未知错误"
	}
}
