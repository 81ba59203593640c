package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"teamtoken.com/apps/trade/config"
	"teamtoken.com/apps/trade/internal/api"
	"teamtoken.com/apps/trade/internal/app/submission"
	"teamtoken.com/apps/trade/internal/core/builder"
	"teamtoken.com/apps/trade/internal/core/derive"
	"teamtoken.com/apps/trade/internal/core/service"
	"teamtoken.com/apps/trade/internal/infra/events"
	"teamtoken.com/apps/trade/internal/infra/lock"
	chain "teamtoken.com/apps/trade/internal/infra/solana"
	pkgconfig "teamtoken.com/pkg/config"
	"teamtoken.com/pkg/logger"
	"teamtoken.com/pkg/metrics"
	"teamtoken.com/pkg/ratelimit"
	"teamtoken.com/pkg/safe"
	"teamtoken.com/pkg/trace"
	"teamtoken.com/pkg/xredis"
)

const serviceName = "trade-service"

func main() {
	// 收到 SIGINT/SIGTERM 时取消，触发 shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========= 1) 配置 & 日志 =========
	cfg := &config.Config{}
	v, err := pkgconfig.Load(serviceName, cfg)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	logger.InitWithFile(cfg.Name, cfg.Log.Level, cfg.Log.File)
	defer logger.Sync()

	// cfg 之后只读；热更只改日志级别
	pkgconfig.Watch(v, serviceName, func(next *config.Config) {
		restart, err := config.Reload(cfg, next, logger.SetLevel)
		if err != nil {
			logger.Error(context.Background(), "❌ 新配置无效，继续使用旧配置", zap.Error(err))
			return
		}
		logger.Info(context.Background(), "🔄 配置已重新加载", zap.Stringer("log_level", logger.Level()))
		if len(restart) > 0 {
			logger.Warn(context.Background(), "⚠️ 以下配置需重启生效", zap.Strings("sections", restart))
		}
	})
	logger.Info(ctx, "服务开始启动", zap.String("cluster", cfg.Solana.Cluster), zap.String("program_id", cfg.Solana.ProgramID))

	if cfg.OTel.Enabled {
		shutdown, err := trace.InitTrace(cfg.Name, cfg.OTel.Addr)
		if err != nil {
			logger.Fatal(ctx, "init trace", zap.Error(err))
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}
	metrics.MustRegister()

	// ========= 2) 链 & 签名器 =========
	rpcClient, cluster, err := chain.NewClient(chain.ClientConfig{
		Cluster:  cfg.Solana.Cluster,
		Endpoint: cfg.Solana.RPCURL,
		RPS:      cfg.Solana.RPS,
		Burst:    cfg.Solana.Burst,
	})
	if err != nil {
		logger.Fatal(ctx, "init solana client", zap.Error(err))
	}
	// 节点不通不阻止启动，/healthz 会报出来
	if slot, err := chain.Probe(ctx, rpcClient); err != nil {
		logger.Warn(ctx, "⚠️ solana 节点探测失败", zap.String("rpc", cluster.RPC), zap.Error(err))
	} else {
		logger.Info(ctx, "✅ solana 节点可用", zap.String("rpc", cluster.RPC), zap.Uint64("slot", slot))
	}

	key, err := chain.LoadKey(chain.SignerConfig{
		KeypairPath: cfg.Signer.KeypairPath,
		Mnemonic:    cfg.Signer.Mnemonic,
		Passphrase:  cfg.Signer.Passphrase,
		Account:     cfg.Signer.Account,
	})
	if err != nil {
		logger.Fatal(ctx, "load signer key", zap.Error(err))
	}
	signer := chain.NewKeypairSigner(key)
	logger.Info(ctx, "✅ 签名器已加载", zap.String("wallet", signer.Address().String()))

	// ========= 3) 交易核心 =========
	var deriveOpts []derive.Option
	if cfg.Trade.DeriveCacheSize > 0 {
		deriveOpts = append(deriveOpts, derive.WithCache(derive.NewMemCache(cfg.Trade.DeriveCacheSize)))
	}
	txBuilder := builder.New(derive.New(cfg.ProgramKey(), deriveOpts...))

	breakers := ratelimit.NewManager(cfg.Name, ratelimit.Rule{
		Interval:                cfg.Breaker.Interval,
		Timeout:                 cfg.Breaker.OpenTimeout,
		TripConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
	}, nil)
	broadcaster := chain.NewRPCBroadcaster(rpcClient, breakers)

	// ========= 4) 事件总线 & 跨副本锁 =========
	var broker events.Broker
	if cfg.Nats.URL != "" {
		nb, err := events.NewNatsBroker(cfg.Nats.URL, nats.Name(cfg.Name))
		if err != nil {
			logger.Fatal(ctx, "connect nats", zap.Error(err))
		}
		broker = nb
	} else {
		broker = events.NewMemBroker(256)
	}
	defer func() { _ = broker.Close() }()

	coordOpts := []submission.Option{submission.WithObserver(events.NewStatePublisher(broker))}
	redisCfg := &xredis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}
	if redisCfg.Enabled() {
		rdb, err := xredis.NewRedis(redisCfg)
		if err != nil {
			logger.Fatal(ctx, "init redis", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()
		metrics.MustRegisterRedis()
		safe.GoCtx(ctx, func(ctx context.Context) { metrics.SampleRedisPool(ctx, rdb, 10*time.Second) })
		coordOpts = append(coordOpts, submission.WithGuard(lock.NewRedisGuard(rdb, cfg.Name+":", cfg.Redis.LockTTL)))
		logger.Info(ctx, "✅ redis 已连接，启用跨副本互斥", zap.String("addr", cfg.Redis.Addr))
	}

	svc := service.NewTradeService(txBuilder, chain.NewBlockhashSource(rpcClient), signer, broadcaster,
		service.WithMessageEncoder(chain.MessageBase64),
		service.WithDefaultSlippage(cfg.DefaultSlippage()),
		service.WithCoordinatorOptions(coordOpts...),
	)

	// ========= 5) HTTP =========
	store := ratelimit.NewStore(rate.Limit(cfg.HTTP.RateLimitRPS), cfg.HTTP.RateBurst, 10*time.Minute)
	handler := api.NewTradeHandler(svc, broker, func(ctx context.Context) (uint64, error) {
		return chain.Probe(ctx, rpcClient)
	})
	srv := api.NewServer(api.ServerConfig{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}, api.NewEngine(cfg.Name, handler, store))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(gctx, "🚀 HTTP 服务启动", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		// 等正在进行的尝试走完，签名/广播不能半路丢
		if _, err := svc.Wait(shutdownCtx); err != nil {
			logger.Warn(context.Background(), "⚠️ 退出时仍有交易未完成", zap.Error(err))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error(context.Background(), "❌ 服务异常退出", zap.Error(err))
		return
	}
	logger.Info(context.Background(), "trade-service exit")
}
