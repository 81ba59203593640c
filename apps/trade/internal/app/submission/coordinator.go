// Package submission 管理一次交易尝试的生命周期：构建 -> 等待签名 -> 广播 -> 终态。
//
// 状态只有一份，放在 Coordinator 里由互斥锁保护；转移规则是纯函数 Next。
// 进入 AwaitingSignature 之后不再响应调用方的取消，只能等签名器和广播器给出结果，
// 否则节点可能已经收下交易而本地记成失败，重试就会二次上链。
// 协作者 panic 或者自己报告被取消时，尝试落到 Failed(Abandoned)。
package submission

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"teamtoken.com/apps/trade/internal/domain"
	"teamtoken.com/pkg/logger"
	"teamtoken.com/pkg/metrics"
	"teamtoken.com/pkg/safe"
)

// EnvelopeBuilder 构建未签名信封，core/builder.Builder 实现
type EnvelopeBuilder interface {
	Build(req domain.TradeRequest, wallet domain.Address, recentBlock string) (domain.UnsignedEnvelope, error)
}

var errAbandoned = errors.New("attempt abandoned")

const releaseTimeout = 3 * time.Second

type Coordinator struct {
	builder     EnvelopeBuilder
	signer      domain.Signer
	broadcaster domain.Broadcaster
	observer    domain.TransitionObserver
	guard       domain.AttemptGuard
	now         func() time.Time
	newID       func() string
	tracer      trace.Tracer

	mu      sync.Mutex
	state   domain.SubmissionState
	side    domain.TradeSide
	done    chan struct{} // 当前尝试进入终态时关闭
	release func(context.Context)
}

type Option func(*Coordinator)

// WithObserver 每次状态变更都会在锁内回调，回调里不能再调用 Coordinator
func WithObserver(o domain.TransitionObserver) Option {
	return func(c *Coordinator) { c.observer = o }
}

func WithGuard(g domain.AttemptGuard) Option {
	return func(c *Coordinator) { c.guard = g }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(c *Coordinator) { c.newID = gen }
}

func New(builder EnvelopeBuilder, signer domain.Signer, broadcaster domain.Broadcaster, opts ...Option) *Coordinator {
	c := &Coordinator{
		builder:     builder,
		signer:      signer,
		broadcaster: broadcaster,
		now:         time.Now,
		newID:       uuid.NewString,
		tracer:      otel.Tracer("teamtoken.com/apps/trade/submission"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state = domain.SubmissionState{Phase: domain.PhaseIdle, UpdatedAt: c.now()}
	return c
}

// State 当前状态快照
func (c *Coordinator) State() domain.SubmissionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Submit 同步跑完一次尝试，返回终态
// 唯一可能返回的错误是 ErrAttemptInProgress，此时状态不变
func (c *Coordinator) Submit(ctx context.Context, req domain.TradeRequest, wallet domain.Address, recentBlock string) (domain.SubmissionState, error) {
	id, err := c.begin(ctx, req, wallet)
	if err != nil {
		return c.State(), err
	}
	return c.run(ctx, id, req, wallet, recentBlock), nil
}

// Start 后台跑一次尝试，立即返回尝试 ID
// 后台协程不继承 ctx 的取消，只保留链路信息
func (c *Coordinator) Start(ctx context.Context, req domain.TradeRequest, wallet domain.Address, recentBlock string) (string, error) {
	id, err := c.begin(ctx, req, wallet)
	if err != nil {
		return "", err
	}
	safe.GoCtx(context.WithoutCancel(ctx), func(ctx context.Context) {
		c.run(ctx, id, req, wallet, recentBlock)
	})
	return id, nil
}

// Wait 等当前尝试进入终态
func (c *Coordinator) Wait(ctx context.Context) (domain.SubmissionState, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return c.State(), nil
	}
	select {
	case <-done:
		return c.State(), nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

// Reset 终态回到 Idle；Idle 上是空操作；在途返回 ErrAttemptInProgress
func (c *Coordinator) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.state
	next, err := Next(prev, Event{Kind: EventReset, At: c.now()})
	if err != nil {
		return err
	}
	if prev.Phase != domain.PhaseIdle {
		c.commitLocked(ctx, prev, next)
	}
	return nil
}

func (c *Coordinator) begin(ctx context.Context, req domain.TradeRequest, wallet domain.Address) (string, error) {
	c.mu.Lock()
	busy := c.state.Phase != domain.PhaseIdle
	c.mu.Unlock()
	if busy {
		return "", domain.ErrAttemptInProgress
	}

	var release func(context.Context)
	if c.guard != nil {
		r, err := c.guard.Acquire(ctx, guardKey(wallet))
		switch {
		case errors.Is(err, domain.ErrAttemptInProgress):
			return "", domain.ErrAttemptInProgress
		case err != nil:
			// 锁服务不可用不挡交易，本进程内的互斥仍然有效
			logger.Warn(ctx, "⚠️ 尝试锁不可用，仅使用进程内互斥", zap.String("wallet", wallet.String()), zap.Error(err))
		default:
			release = r
		}
	}

	id := c.newID()
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.state
	next, err := Next(prev, Event{Kind: EventStart, AttemptID: id, Wallet: wallet, At: c.now()})
	if err != nil {
		if release != nil {
			releaseAsync(ctx, release)
		}
		return "", err
	}
	c.side = req.Side
	c.release = release
	c.done = make(chan struct{})
	c.commitLocked(ctx, prev, next)
	return id, nil
}

func (c *Coordinator) run(ctx context.Context, id string, req domain.TradeRequest, wallet domain.Address, recentBlock string) (final domain.SubmissionState) {
	ctx, span := c.tracer.Start(ctx, "trade.attempt", trace.WithAttributes(
		attribute.String("trade.attempt_id", id),
		attribute.String("trade.side", req.Side.String()),
		attribute.String("trade.token", req.TokenIdentifier.String()),
		attribute.String("trade.wallet", wallet.String()),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "🚨 交易尝试 panic",
				zap.String("attempt_id", id),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
			final = c.step(ctx, span, Event{Kind: EventAbandon, AttemptID: id, Detail: fmt.Sprintf("panic: %v", r)})
		}
	}()

	env, err := c.builder.Build(req, wallet, recentBlock)
	if err != nil {
		return c.step(ctx, span, Event{Kind: EventBuildFailed, AttemptID: id, Reason: domain.BuildFailureReason(err), Detail: err.Error()})
	}
	// 签名之前还可以放弃
	if err := ctx.Err(); err != nil {
		return c.step(ctx, span, Event{Kind: EventAbandon, AttemptID: id, Detail: fmt.Sprintf("%v: %v", errAbandoned, context.Cause(ctx))})
	}
	if st := c.step(ctx, span, Event{Kind: EventBuilt, AttemptID: id}); st.AttemptID != id || st.Phase.Terminal() {
		return st
	}

	signed, err := await(ctx, func(ctx context.Context) (domain.SignedEnvelope, error) {
		return c.signer.Sign(ctx, env)
	})
	switch {
	case errors.Is(err, errAbandoned):
		return c.step(ctx, span, Event{Kind: EventAbandon, AttemptID: id, Detail: err.Error()})
	case err != nil:
		return c.step(ctx, span, Event{Kind: EventSignFailed, AttemptID: id, Reason: domain.SignFailureReason(err), Detail: err.Error()})
	}
	if st := c.step(ctx, span, Event{Kind: EventSigned, AttemptID: id, Signature: signed.Signature}); st.AttemptID != id || st.Phase.Terminal() {
		return st
	}

	txID, err := await(ctx, func(ctx context.Context) (string, error) {
		return c.broadcaster.Submit(ctx, signed)
	})
	switch {
	case errors.Is(err, errAbandoned):
		return c.step(ctx, span, Event{Kind: EventAbandon, AttemptID: id, Detail: err.Error()})
	case err != nil:
		return c.step(ctx, span, Event{Kind: EventBroadcastFailed, AttemptID: id, Reason: domain.BroadcastFailureReason(err), Detail: err.Error()})
	case txID == "":
		return c.step(ctx, span, Event{Kind: EventBroadcastFailed, AttemptID: id, Reason: domain.ReasonBroadcastRejected, Detail: "broadcaster returned empty transaction id"})
	}
	return c.step(ctx, span, Event{Kind: EventAccepted, AttemptID: id, TxID: txID})
}

// step 应用事件，事件过期时返回当前状态不做修改
func (c *Coordinator) step(ctx context.Context, span trace.Span, ev Event) domain.SubmissionState {
	ev.At = c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.state
	next, err := Next(prev, ev)
	if err != nil {
		logger.Warn(ctx, "⚠️ 丢弃状态事件",
			zap.String("attempt_id", ev.AttemptID),
			zap.Stringer("event", ev.Kind),
			zap.Stringer("phase", prev.Phase),
			zap.Error(err),
		)
		return prev
	}
	c.commitLocked(ctx, prev, next)

	span.AddEvent(next.Phase.String())
	switch next.Phase {
	case domain.PhaseFailed:
		span.SetStatus(otelcodes.Error, string(next.Reason))
	case domain.PhaseConfirmed:
		span.SetAttributes(attribute.String("trade.tx_id", next.TxID))
		span.SetStatus(otelcodes.Ok, "")
	}
	return next
}

func (c *Coordinator) commitLocked(ctx context.Context, prev, next domain.SubmissionState) {
	c.state = next

	metrics.TradeTransitionTotal.WithLabelValues(prev.Phase.String(), next.Phase.String()).Inc()
	if prev.Phase.InFlight() {
		metrics.TradePhaseDuration.WithLabelValues(prev.Phase.String()).Observe(next.UpdatedAt.Sub(prev.UpdatedAt).Seconds())
	}
	if !prev.Phase.InFlight() && next.Phase.InFlight() {
		metrics.TradeInFlight.Inc()
	}

	if next.Phase.Terminal() && prev.Phase.InFlight() {
		metrics.TradeInFlight.Dec()
		c.finishLocked(ctx, next)
	}

	if c.observer != nil {
		c.observer.OnTransition(ctx, prev, next)
	}
}

func (c *Coordinator) finishLocked(ctx context.Context, final domain.SubmissionState) {
	outcome := "confirmed"
	fields := []zap.Field{
		zap.String("attempt_id", final.AttemptID),
		zap.String("wallet", final.Wallet.String()),
		zap.Stringer("side", c.side),
	}
	if final.Phase == domain.PhaseFailed {
		outcome = string(final.Reason)
		logger.Warn(ctx, "❌ 交易失败", append(fields, zap.String("reason", outcome), zap.String("detail", final.Detail))...)
	} else {
		logger.Info(ctx, "✅ 交易已确认", append(fields, zap.String("tx_id", final.TxID))...)
	}
	metrics.TradeOutcomeTotal.WithLabelValues(c.side.String(), outcome).Inc()

	if c.done != nil {
		close(c.done)
	}
	if c.release != nil {
		releaseAsync(ctx, c.release)
		c.release = nil
	}
}

type result[T any] struct {
	val T
	err error
}

// await 调用协作者并等它返回，调用方的取消不会传下去
// 协作者 panic 或者自己报告被取消都视为放弃
func await[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	ch := make(chan result[T], 1)
	safe.GoCtx(context.WithoutCancel(ctx), func(ctx context.Context) {
		v, err := fn(ctx)
		ch <- result[T]{val: v, err: err}
	}, func(_ context.Context, r any) {
		ch <- result[T]{err: fmt.Errorf("%w: collaborator panic: %v", errAbandoned, r)}
	})

	r := <-ch
	if r.err != nil && !errors.Is(r.err, errAbandoned) &&
		(errors.Is(r.err, context.Canceled) || errors.Is(r.err, context.DeadlineExceeded)) {
		var zero T
		return zero, fmt.Errorf("%w: %v", errAbandoned, r.err)
	}
	return r.val, r.err
}

func releaseAsync(ctx context.Context, release func(context.Context)) {
	safe.GoCtx(context.WithoutCancel(ctx), func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, releaseTimeout)
		defer cancel()
		release(ctx)
	})
}

func guardKey(wallet domain.Address) string {
	return "trade:attempt:" + wallet.String()
}
