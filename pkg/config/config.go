package config

import (
	"context"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"teamtoken.com/pkg/logger"
)

// Option 调整 viper 的查找行为
type Option func(v *viper.Viper)

// WithPaths 追加配置搜索目录 (默认 ./config 和 .)
func WithPaths(paths ...string) Option {
	return func(v *viper.Viper) {
		for _, p := range paths {
			v.AddConfigPath(p)
		}
	}
}

// WithFile 直接指定配置文件，忽略约定目录
func WithFile(path string) Option {
	return func(v *viper.Viper) {
		if path != "" {
			v.SetConfigFile(path)
		}
	}
}

// Load 读取 config/{service}.yaml 并反序列化到 out
// 环境变量覆盖，例如：
//
//	TRADE_SERVICE_HTTP_ADDR 覆盖 http.addr
//	TRADE_SERVICE_SOLANA_RPC_URL 覆盖 solana.rpc_url
func Load(service string, out interface{}, opts ...Option) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(service)
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	for _, opt := range opts {
		opt(v)
	}

	v.SetEnvPrefix(envPrefix(service))
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(out); err != nil {
		return nil, err
	}

	logger.Info(context.Background(), "config loaded",
		zap.String("service", service),
		zap.String("file", v.ConfigFileUsed()))
	return v, nil
}

// Watch 监听配置文件变更
// 每次变更反序列化到一个新的 T 再交给 onChange，启动时的配置对象不会被改写，读它不需要加锁
func Watch[T any](v *viper.Viper, service string, onChange func(next *T)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		ctx := context.Background()
		logger.Info(ctx, "config file changed", zap.String("service", service), zap.String("file", e.Name))

		next := new(T)
		if err := v.Unmarshal(next); err != nil {
			logger.Error(ctx, "reload config error", zap.String("service", service), zap.Error(err))
			return
		}
		if onChange != nil {
			onChange(next)
		}
	})
	v.WatchConfig()
}

// trade-service -> TRADE_SERVICE
func envPrefix(service string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(service))
}
