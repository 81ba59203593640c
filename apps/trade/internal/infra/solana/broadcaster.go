package solana

import (
	"context"
	"errors"
	"strings"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"go.uber.org/zap"
	"teamtoken.com/apps/trade/internal/domain"
	"teamtoken.com/pkg/logger"
	"teamtoken.com/pkg/ratelimit"
	"teamtoken.com/pkg/xerr"
)

const methodSendTransaction = "sendTransaction"

// 节点返回这些信息说明 blockhash 已经过期，重新取一个再构建就行
var staleMarkers = []string{
	"blockhash not found",
	"block height exceeded",
	"blockhashnotfound",
}

// RPCBroadcaster sendTransaction，带预检，外面包一层熔断
type RPCBroadcaster struct {
	api      API
	breakers *ratelimit.Manager
	opts     rpc.TransactionOpts
}

func NewRPCBroadcaster(api API, breakers *ratelimit.Manager) *RPCBroadcaster {
	return &RPCBroadcaster{
		api:      api,
		breakers: breakers,
		opts: rpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: rpc.CommitmentProcessed,
		},
	}
}

func (b *RPCBroadcaster) Submit(ctx context.Context, signed domain.SignedEnvelope) (string, error) {
	if len(signed.Raw) == 0 {
		return "", xerr.Wrap(domain.ErrBroadcastRejected, xerr.TradeBroadcastRejected, "signed envelope has no wire bytes")
	}

	var sig solanago.Signature
	err := b.breakers.Execute(methodSendTransaction, func() error {
		start := time.Now()
		var err error
		sig, err = b.api.SendRawTransactionWithOpts(ctx, signed.Raw, b.opts)
		observe(methodSendTransaction, start, err)
		return classify(err)
	})
	switch {
	case err == nil:
		return sig.String(), nil
	case ratelimit.IsRejected(err):
		logger.Warn(ctx, "⚠️ 广播熔断中", zap.Error(err))
		return "", xerr.Wrap(err, xerr.TradeBroadcastRejected, "broadcast circuit open")
	case xerr.CodeOf(err) == xerr.ServerCommonError:
		return "", xerr.Wrap(err, xerr.TradeBroadcastRejected, "")
	}
	return "", err
}

// classify 节点应答的错误打上业务码；网络层错误原样返回，计入熔断
// 取消和超时来自调用方，原样返回，熔断器不计失败
func classify(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isStale(err) {
		return xerr.Wrap(err, xerr.TradeStaleReference, "")
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return xerr.Wrap(err, xerr.TradeBroadcastRejected, rpcErr.Message)
	}
	return err
}

func isStale(err error) bool {
	msg := strings.ToLower(err.Error())
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Data != nil {
		// 预检失败时具体原因放在 data.err 里
		if data, ok := rpcErr.Data.(map[string]interface{}); ok {
			if v, ok := data["err"].(string); ok {
				msg += " " + strings.ToLower(v)
			}
		}
	}
	for _, m := range staleMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
