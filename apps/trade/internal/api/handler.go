package api

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"teamtoken.com/apps/trade/internal/core/service"
	"teamtoken.com/apps/trade/internal/domain"
	"teamtoken.com/apps/trade/internal/infra/events"
	"teamtoken.com/pkg/common"
	"teamtoken.com/pkg/logger"
	"teamtoken.com/pkg/xerr"
)

// ChainProbe 健康检查用，返回当前 slot
type ChainProbe func(ctx context.Context) (uint64, error)

type TradeHandler struct {
	svc    *service.TradeService
	broker events.Broker
	probe  ChainProbe
}

func NewTradeHandler(svc *service.TradeService, broker events.Broker, probe ChainProbe) *TradeHandler {
	return &TradeHandler{svc: svc, broker: broker, probe: probe}
}

type tradeReq struct {
	Side            string           `json:"side" binding:"required"`
	Token           string           `json:"token" binding:"required"`
	Amount          decimal.Decimal  `json:"amount"`
	SlippagePercent *decimal.Decimal `json:"slippage_percent"`
	Wallet          string           `json:"wallet"` // 只有 preview 用，空则取服务钱包
}

func (r tradeReq) input() service.TradeInput {
	return service.TradeInput{
		Side:            r.Side,
		Token:           domain.Address(r.Token),
		Amount:          r.Amount,
		SlippagePercent: r.SlippagePercent,
	}
}

type accountResp struct {
	Address    string `json:"address"`
	IsSigner   bool   `json:"is_signer"`
	IsWritable bool   `json:"is_writable"`
}

type previewResp struct {
	Side        string        `json:"side"`
	Token       string        `json:"token"`
	Amount      uint64        `json:"amount"`
	SlippageBps uint32        `json:"slippage_bps"`
	ProgramID   string        `json:"program_id"`
	FeePayer    string        `json:"fee_payer"`
	RecentBlock string        `json:"recent_block"`
	Instruction string        `json:"instruction"` // hex
	Accounts    []accountResp `json:"accounts"`
	Message     string        `json:"message,omitempty"` // base64，钱包直接签
}

func (h *TradeHandler) Preview(c *gin.Context) {
	var req tradeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailFromErr(c, xerr.Wrap(err, xerr.TradeInvalidRequest, "invalid request body"))
		return
	}
	wallet := domain.Address(req.Wallet)
	if wallet.IsZero() {
		wallet = h.svc.Wallet()
	}
	p, err := h.svc.Preview(c.Request.Context(), req.input(), wallet)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}

	env := p.Envelope
	accounts := make([]accountResp, 0, len(env.Accounts()))
	for _, a := range env.Accounts() {
		accounts = append(accounts, accountResp{Address: a.Address.String(), IsSigner: a.IsSigner, IsWritable: a.IsWritable})
	}
	common.Success(c, previewResp{
		Side:        p.Request.Side.String(),
		Token:       p.Request.TokenIdentifier.String(),
		Amount:      p.Request.Amount,
		SlippageBps: p.Request.SlippageBps,
		ProgramID:   env.ProgramID().String(),
		FeePayer:    env.FeePayer().String(),
		RecentBlock: env.RecentBlockReference(),
		Instruction: env.Instruction().Hex(),
		Accounts:    accounts,
		Message:     p.Message,
	})
}

func (h *TradeHandler) Submit(c *gin.Context) {
	var req tradeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailFromErr(c, xerr.Wrap(err, xerr.TradeInvalidRequest, "invalid request body"))
		return
	}
	id, err := h.svc.Submit(c.Request.Context(), req.input())
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, gin.H{
		"attempt_id": id,
		"wallet":     h.svc.Wallet().String(),
	})
}

func (h *TradeHandler) State(c *gin.Context) {
	common.Success(c, h.svc.State(h.walletParam(c)))
}

func (h *TradeHandler) Reset(c *gin.Context) {
	wallet := h.walletParam(c)
	if err := h.svc.Reset(c.Request.Context(), wallet); err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, h.svc.State(wallet))
}

// Events SSE 推送某个钱包的状态变更，连接断开即退订
func (h *TradeHandler) Events(c *gin.Context) {
	wallet := h.walletParam(c)
	ctx := c.Request.Context()
	ch, err := h.broker.Subscribe(ctx, []string{events.StateTopic(wallet.String())})
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	logger.Debug(ctx, "sse subscribed", zap.String("wallet", wallet.String()))

	// 先推一次当前状态，客户端不用再查
	c.SSEvent("state", h.svc.State(wallet))
	c.Writer.Flush()
	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-ch:
			if !ok {
				return false
			}
			ev, err := events.DecodeStateEvent(msg.Payload)
			if err != nil {
				logger.Warn(ctx, "sse drop bad payload", zap.Error(err))
				return true
			}
			c.SSEvent("state", ev.State)
			return true
		}
	})
}

func (h *TradeHandler) Health(c *gin.Context) {
	resp := gin.H{"wallet": h.svc.Wallet().String()}
	if h.probe != nil {
		slot, err := h.probe(c.Request.Context())
		if err != nil {
			logger.Warn(c.Request.Context(), "health probe failed", zap.Error(err))
			common.Fail(c, http.StatusServiceUnavailable, xerr.TradeChainUnavailable, xerr.MapErrMsg(xerr.TradeChainUnavailable))
			return
		}
		resp["slot"] = slot
	}
	common.Success(c, resp)
}

func (h *TradeHandler) walletParam(c *gin.Context) domain.Address {
	if w := c.Query("wallet"); w != "" {
		return domain.Address(w)
	}
	return h.svc.Wallet()
}
