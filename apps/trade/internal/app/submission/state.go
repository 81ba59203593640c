package submission

import (
	"errors"
	"fmt"
	"time"

	"teamtoken.com/apps/trade/internal/domain"
)

type EventKind uint8

const (
	EventStart           EventKind = iota // Idle -> Building
	EventBuilt                            // Building -> AwaitingSignature
	EventBuildFailed                      // Building -> Failed
	EventSigned                           // AwaitingSignature -> Broadcasting
	EventSignFailed                       // AwaitingSignature -> Failed
	EventAccepted                         // Broadcasting -> Confirmed
	EventBroadcastFailed                  // Broadcasting -> Failed
	EventAbandon                          // 任意在途 -> Failed(Abandoned)，保留已有签名
	EventReset                            // 终态 -> Idle
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventBuilt:
		return "built"
	case EventBuildFailed:
		return "build_failed"
	case EventSigned:
		return "signed"
	case EventSignFailed:
		return "sign_failed"
	case EventAccepted:
		return "accepted"
	case EventBroadcastFailed:
		return "broadcast_failed"
	case EventAbandon:
		return "abandon"
	case EventReset:
		return "reset"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event 驱动状态机的输入
type Event struct {
	Kind      EventKind
	AttemptID string
	Wallet    domain.Address // 仅 start
	TxID      string         // 仅 accepted
	Signature string         // 仅 signed
	Reason    domain.FailureReason
	Detail    string
	At        time.Time
}

var (
	// ErrStaleEvent 事件属于已经结束 (或被重置) 的尝试，直接丢弃
	ErrStaleEvent = errors.New("submission: event belongs to another attempt")
	// ErrIllegalTransition 当前阶段不接受该事件
	ErrIllegalTransition = errors.New("submission: illegal transition")
)

// Next 纯状态转移函数，不修改入参
//
//	Idle --start--> Building --built--> AwaitingSignature --signed--> Broadcasting --accepted--> Confirmed
//	Building / AwaitingSignature / Broadcasting --*failed / abandon--> Failed
//	Confirmed / Failed --reset--> Idle
func Next(s domain.SubmissionState, ev Event) (domain.SubmissionState, error) {
	switch ev.Kind {
	case EventStart:
		if s.Phase != domain.PhaseIdle {
			return s, domain.ErrAttemptInProgress
		}
		return domain.SubmissionState{
			Phase:     domain.PhaseBuilding,
			AttemptID: ev.AttemptID,
			Wallet:    ev.Wallet,
			UpdatedAt: ev.At,
		}, nil

	case EventReset:
		switch {
		case s.Phase == domain.PhaseIdle:
			return s, nil
		case s.Phase.InFlight():
			return s, domain.ErrAttemptInProgress
		}
		return domain.SubmissionState{Phase: domain.PhaseIdle, UpdatedAt: ev.At}, nil
	}

	if ev.AttemptID == "" || ev.AttemptID != s.AttemptID || !s.Phase.InFlight() {
		return s, ErrStaleEvent
	}

	next := s
	next.UpdatedAt = ev.At
	switch {
	case ev.Kind == EventBuilt && s.Phase == domain.PhaseBuilding:
		next.Phase = domain.PhaseAwaitingSignature
	case ev.Kind == EventSigned && s.Phase == domain.PhaseAwaitingSignature:
		next.Phase = domain.PhaseBroadcasting
		next.Signature = ev.Signature
	case ev.Kind == EventAccepted && s.Phase == domain.PhaseBroadcasting:
		next.Phase = domain.PhaseConfirmed
		next.TxID = ev.TxID
	case ev.Kind == EventBuildFailed && s.Phase == domain.PhaseBuilding,
		ev.Kind == EventSignFailed && s.Phase == domain.PhaseAwaitingSignature,
		ev.Kind == EventBroadcastFailed && s.Phase == domain.PhaseBroadcasting:
		next.Phase = domain.PhaseFailed
		next.Reason = ev.Reason
		next.Detail = ev.Detail
	case ev.Kind == EventAbandon:
		next.Phase = domain.PhaseFailed
		next.Reason = domain.ReasonAbandoned
		next.Detail = ev.Detail
	default:
		return s, fmt.Errorf("%w: %s in %s", ErrIllegalTransition, ev.Kind, s.Phase)
	}
	return next, nil
}
