package solana

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"teamtoken.com/apps/trade/internal/domain"
	"teamtoken.com/pkg/xerr"
)

// BlockhashSource 最近 blockhash 作为交易的新鲜度令牌
type BlockhashSource struct {
	api        API
	commitment rpc.CommitmentType
}

func NewBlockhashSource(api API) *BlockhashSource {
	return &BlockhashSource{api: api, commitment: rpc.CommitmentFinalized}
}

func (s *BlockhashSource) LatestBlockReference(ctx context.Context) (string, error) {
	start := time.Now()
	res, err := s.api.GetLatestBlockhash(ctx, s.commitment)
	observe("getLatestBlockhash", start, err)
	if err != nil {
		return "", xerr.Wrap(err, xerr.TradeChainUnavailable, "")
	}
	if res == nil || res.Value == nil {
		return "", xerr.Wrap(domain.ErrChainUnavailable, xerr.TradeChainUnavailable, "empty getLatestBlockhash response")
	}
	return res.Value.Blockhash.String(), nil
}
