package service

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"teamtoken.com/apps/trade/internal/app/submission"
	"teamtoken.com/apps/trade/internal/core/encode"
	"teamtoken.com/apps/trade/internal/domain"
	"teamtoken.com/pkg/logger"
	"teamtoken.com/pkg/xerr"
)

// WalletSigner 服务端签名器，同时决定交易钱包
type WalletSigner interface {
	domain.Signer
	Address() domain.Address
}

// MessageEncoder 信封 -> 待签名消息 (base64)
type MessageEncoder func(env domain.UnsignedEnvelope) (string, error)

// TradeInput 外部传进来的原始参数
type TradeInput struct {
	Side            string
	Token           domain.Address
	Amount          decimal.Decimal
	SlippagePercent *decimal.Decimal // nil 用默认 2%
}

// Preview 构建结果，不签名不广播
type Preview struct {
	Request  domain.TradeRequest
	Envelope domain.UnsignedEnvelope
	Message  string // 地址不是合法公钥时为空
}

type TradeService struct {
	builder     submission.EnvelopeBuilder
	freshness   domain.FreshnessSource
	signer      WalletSigner
	broadcaster domain.Broadcaster
	encodeMsg   MessageEncoder
	coordOpts   []submission.Option
	slippage    decimal.Decimal // 请求没带滑点时使用

	mu     sync.RWMutex
	coords map[domain.Address]*submission.Coordinator
}

type Option func(*TradeService)

func WithMessageEncoder(fn MessageEncoder) Option {
	return func(s *TradeService) { s.encodeMsg = fn }
}

func WithDefaultSlippage(percent decimal.Decimal) Option {
	return func(s *TradeService) { s.slippage = percent }
}

// WithCoordinatorOptions 每个钱包的 Coordinator 都会带上这些选项
func WithCoordinatorOptions(opts ...submission.Option) Option {
	return func(s *TradeService) { s.coordOpts = append(s.coordOpts, opts...) }
}

func NewTradeService(builder submission.EnvelopeBuilder, freshness domain.FreshnessSource, signer WalletSigner, broadcaster domain.Broadcaster, opts ...Option) *TradeService {
	s := &TradeService{
		builder:     builder,
		freshness:   freshness,
		signer:      signer,
		broadcaster: broadcaster,
		coords:      make(map[domain.Address]*submission.Coordinator),
		slippage:    domain.DefaultSlippagePercent,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wallet 服务签名器对应的钱包
func (s *TradeService) Wallet() domain.Address { return s.signer.Address() }

// ParseRequest 原始参数 -> TradeRequest，并做完整校验
func ParseRequest(in TradeInput) (domain.TradeRequest, error) {
	return parseRequest(in, domain.DefaultSlippagePercent)
}

func parseRequest(in TradeInput, defaultSlippage decimal.Decimal) (domain.TradeRequest, error) {
	side, err := domain.ParseTradeSide(in.Side)
	if err != nil {
		return domain.TradeRequest{}, err
	}
	amount, err := encode.AmountFromDecimal(in.Amount)
	if err != nil {
		return domain.TradeRequest{}, err
	}
	percent := defaultSlippage
	if in.SlippagePercent != nil {
		percent = *in.SlippagePercent
	}
	bps, err := domain.SlippageFromPercent(percent)
	if err != nil {
		return domain.TradeRequest{}, err
	}
	req := domain.TradeRequest{Side: side, TokenIdentifier: in.Token, Amount: amount, SlippageBps: bps}
	return req, req.Validate()
}

// Preview 取最新 blockhash 构建信封，给外部钱包签名或者调试用
func (s *TradeService) Preview(ctx context.Context, in TradeInput, wallet domain.Address) (Preview, error) {
	req, err := parseRequest(in, s.slippage)
	if err != nil {
		return Preview{}, err
	}
	if wallet.IsZero() {
		return Preview{}, xerr.New(xerr.TradeInvalidRequest, "wallet not connected")
	}
	ref, err := s.freshness.LatestBlockReference(ctx)
	if err != nil {
		return Preview{}, err
	}
	env, err := s.builder.Build(req, wallet, ref)
	if err != nil {
		return Preview{}, err
	}

	p := Preview{Request: req, Envelope: env}
	if s.encodeMsg != nil {
		if msg, err := s.encodeMsg(env); err == nil {
			p.Message = msg
		} else {
			logger.Debug(ctx, "信封无法编译成链上消息", zap.Error(err))
		}
	}
	return p, nil
}

// Submit 用服务钱包发起一次尝试，立即返回尝试 ID，进度通过 State 或事件总线观察
func (s *TradeService) Submit(ctx context.Context, in TradeInput) (string, error) {
	req, err := parseRequest(in, s.slippage)
	if err != nil {
		return "", err
	}
	wallet := s.Wallet()
	c := s.coordinator(wallet)
	// 先挡住重复提交，省一次 RPC
	if c.State().Phase != domain.PhaseIdle {
		return "", domain.ErrAttemptInProgress
	}
	ref, err := s.freshness.LatestBlockReference(ctx)
	if err != nil {
		return "", err
	}

	id, err := c.Start(ctx, req, wallet, ref)
	if err != nil {
		return "", err
	}
	logger.Info(ctx, "🚀 交易尝试已启动",
		zap.String("attempt_id", id),
		zap.Stringer("side", req.Side),
		zap.String("token", req.TokenIdentifier.String()),
		zap.Uint64("amount", req.Amount),
		zap.Uint32("slippage_bps", req.SlippageBps),
	)
	return id, nil
}

// Wait 等服务钱包当前尝试结束
func (s *TradeService) Wait(ctx context.Context) (domain.SubmissionState, error) {
	return s.coordinator(s.Wallet()).Wait(ctx)
}

func (s *TradeService) State(wallet domain.Address) domain.SubmissionState {
	s.mu.RLock()
	c := s.coords[wallet]
	s.mu.RUnlock()
	if c == nil {
		return domain.SubmissionState{Phase: domain.PhaseIdle, Wallet: wallet}
	}
	return c.State()
}

func (s *TradeService) Reset(ctx context.Context, wallet domain.Address) error {
	s.mu.RLock()
	c := s.coords[wallet]
	s.mu.RUnlock()
	if c == nil {
		return nil
	}
	return c.Reset(ctx)
}

func (s *TradeService) coordinator(wallet domain.Address) *submission.Coordinator {
	s.mu.RLock()
	c := s.coords[wallet]
	s.mu.RUnlock()
	if c != nil {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c = s.coords[wallet]; c != nil {
		return c
	}
	c = submission.New(s.builder, s.signer, s.broadcaster, s.coordOpts...)
	s.coords[wallet] = c
	return c
}
