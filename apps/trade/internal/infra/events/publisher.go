package events

import (
	"context"
	"time"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"teamtoken.com/apps/trade/internal/domain"
	"teamtoken.com/pkg/logger"
	"teamtoken.com/pkg/safe"
)

// StateEvent 总线上的状态变更消息
type StateEvent struct {
	From  domain.Phase           `json:"from"`
	State domain.SubmissionState `json:"state"`
	At    time.Time              `json:"at"`
}

// StatePublisher 实现 domain.TransitionObserver，发布失败只记日志
type StatePublisher struct {
	broker Broker
}

func NewStatePublisher(b Broker) *StatePublisher {
	return &StatePublisher{broker: b}
}

func (p *StatePublisher) OnTransition(ctx context.Context, from, to domain.SubmissionState) {
	wallet := to.Wallet
	if wallet == "" {
		wallet = from.Wallet // reset 之后的 Idle 没有钱包
	}
	payload, err := json.Marshal(StateEvent{From: from.Phase, State: to, At: to.UpdatedAt})
	if err != nil {
		logger.Error(ctx, "❌ 状态事件序列化失败", zap.Error(err))
		return
	}
	// 在 Coordinator 锁内执行，总线实现 panic 也不能带崩状态机
	err = safe.Call(ctx, func(ctx context.Context) error {
		return p.broker.Publish(ctx, StateTopic(wallet.String()), payload)
	})
	if err != nil {
		logger.Warn(ctx, "⚠️ 状态事件发布失败",
			zap.String("wallet", wallet.String()),
			zap.Stringer("phase", to.Phase),
			zap.Error(err),
		)
	}
}

// DecodeStateEvent 订阅端解码
func DecodeStateEvent(payload []byte) (StateEvent, error) {
	var ev StateEvent
	err := json.Unmarshal(payload, &ev)
	return ev, err
}
