// Package solana 把交易核心接到 Solana JSON-RPC 节点和本地密钥上。
package solana

import (
	"context"
	"fmt"
	"strings"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"
	"teamtoken.com/pkg/metrics"
)

type ClientConfig struct {
	Cluster  string `mapstructure:"cluster"`  // devnet / testnet / mainnet-beta / localnet
	Endpoint string `mapstructure:"endpoint"` // 非空时覆盖 cluster 的默认地址
	RPS      int    `mapstructure:"rps"`      // 每秒请求数
	Burst    int    `mapstructure:"burst"`
}

// API 用到的 RPC 方法，*rpc.Client 满足，测试里替换成假的
type API interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendRawTransactionWithOpts(ctx context.Context, rawTx []byte, opts rpc.TransactionOpts) (solanago.Signature, error)
	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
}

func ResolveCluster(name string) (rpc.Cluster, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "devnet":
		return rpc.DevNet, nil
	case "testnet":
		return rpc.TestNet, nil
	case "mainnet", "mainnet-beta":
		return rpc.MainNetBeta, nil
	case "localnet", "local":
		return rpc.LocalNet, nil
	}
	return rpc.Cluster{}, fmt.Errorf("unknown solana cluster %q", name)
}

// NewClient 带限流的 RPC 客户端
func NewClient(cfg ClientConfig) (*rpc.Client, rpc.Cluster, error) {
	cluster, err := ResolveCluster(cfg.Cluster)
	if err != nil {
		return nil, rpc.Cluster{}, err
	}
	endpoint := cluster.RPC
	if cfg.Endpoint != "" {
		endpoint = cfg.Endpoint
	}
	rps, burst := cfg.RPS, cfg.Burst
	if rps <= 0 {
		rps = 5 // 公共节点默认限额很低
	}
	if burst <= 0 {
		burst = rps
	}
	client := rpc.NewWithCustomRPCClient(rpc.NewWithLimiter(
		endpoint,
		rate.Every(time.Second/time.Duration(rps)),
		burst,
	))
	return client, cluster, nil
}

// observe 记录 RPC 耗时
func observe(method string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RPCCallDuration.WithLabelValues(method, status).Observe(time.Since(start).Seconds())
}

// Probe 启动时探测节点，返回当前 slot
func Probe(ctx context.Context, api API) (uint64, error) {
	start := time.Now()
	slot, err := api.GetSlot(ctx, rpc.CommitmentFinalized)
	observe("getSlot", start, err)
	return slot, err
}
