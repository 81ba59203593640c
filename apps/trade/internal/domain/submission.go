package domain

import (
	"context"
	"fmt"
	"time"
)

type Phase uint8

// 提交生命周期
const (
	PhaseIdle              Phase = iota // 0: 空闲
	PhaseBuilding                       // 1: 构建中
	PhaseAwaitingSignature              // 2: 等待签名
	PhaseBroadcasting                   // 3: 广播中
	PhaseConfirmed                      // 4: 已确认 (终态)
	PhaseFailed                         // 5: 失败 (终态)
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseBuilding:
		return "Building"
	case PhaseAwaitingSignature:
		return "AwaitingSignature"
	case PhaseBroadcasting:
		return "Broadcasting"
	case PhaseConfirmed:
		return "Confirmed"
	case PhaseFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	for c := PhaseIdle; c <= PhaseFailed; c++ {
		if c.String() == string(b) {
			*p = c
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", string(b))
}

func (p Phase) InFlight() bool {
	return p == PhaseBuilding || p == PhaseAwaitingSignature || p == PhaseBroadcasting
}

func (p Phase) Terminal() bool { return p == PhaseConfirmed || p == PhaseFailed }

// SubmissionState 一次交易尝试的当前状态
type SubmissionState struct {
	Phase     Phase         `json:"phase"`
	AttemptID string        `json:"attempt_id,omitempty"`
	Wallet    Address       `json:"wallet,omitempty"`
	Signature string        `json:"signature,omitempty"` // 签名完成后才有，可以拿去链上查
	TxID      string        `json:"tx_id,omitempty"`     // 仅 Confirmed
	Reason    FailureReason `json:"reason,omitempty"`    // 仅 Failed
	Detail    string        `json:"detail,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Recoverable 失败后能否直接重试
// 已经签过名的放弃不行：交易可能已经在链上，先用 Signature 去查
func (s SubmissionState) Recoverable() bool {
	if s.Phase != PhaseFailed || !s.Reason.Recoverable() {
		return false
	}
	return !(s.Reason == ReasonAbandoned && s.Signature != "")
}

// ---------------------------------------------------------
// 外部协作者
// ---------------------------------------------------------

// Signer 外部签名器 (钱包)，失败包装 ErrSignerRejected / ErrSignerUnavailable
type Signer interface {
	Sign(ctx context.Context, env UnsignedEnvelope) (SignedEnvelope, error)
}

// Broadcaster 广播器，失败包装 ErrBroadcastRejected / ErrStaleReference
type Broadcaster interface {
	Submit(ctx context.Context, signed SignedEnvelope) (string, error)
}

// FreshnessSource 提供最近区块引用 (blockhash)，核心只透传不校验
type FreshnessSource interface {
	LatestBlockReference(ctx context.Context) (string, error)
}

// TransitionObserver 状态变更通知 (事件总线 / 指标)
type TransitionObserver interface {
	OnTransition(ctx context.Context, from, to SubmissionState)
}

// AttemptGuard 跨进程互斥，同一钱包同时只允许一次尝试
type AttemptGuard interface {
	Acquire(ctx context.Context, key string) (release func(context.Context), err error)
}
