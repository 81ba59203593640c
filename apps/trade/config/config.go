package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Config 对应 config/trade-service.yaml
type Config struct {
	Name    string  `yaml:"name" mapstructure:"name"`
	Log     Log     `yaml:"log" mapstructure:"log"`
	HTTP    HTTP    `yaml:"http" mapstructure:"http"`
	Solana  Solana  `yaml:"solana" mapstructure:"solana"`
	Signer  Signer  `yaml:"signer" mapstructure:"signer"`
	Trade   Trade   `yaml:"trade" mapstructure:"trade"`
	Breaker Breaker `yaml:"breaker" mapstructure:"breaker"`
	Redis   Redis   `yaml:"redis" mapstructure:"redis"`
	Nats    Nats    `yaml:"nats" mapstructure:"nats"`
	OTel    OTel    `yaml:"otel" mapstructure:"otel"`
}

type Log struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"`
}

type HTTP struct {
	Addr         string        `yaml:"addr" mapstructure:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	RateLimitRPS float64       `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"` // 单 IP 单路由
	RateBurst    int           `yaml:"rate_burst" mapstructure:"rate_burst"`
}

type Solana struct {
	Cluster   string `yaml:"cluster" mapstructure:"cluster"`
	RPCURL    string `yaml:"rpc_url" mapstructure:"rpc_url"`
	RPS       int    `yaml:"rps" mapstructure:"rps"`
	Burst     int    `yaml:"burst" mapstructure:"burst"`
	ProgramID string `yaml:"program_id" mapstructure:"program_id"`
}

type Signer struct {
	KeypairPath string `yaml:"keypair_path" mapstructure:"keypair_path"`
	Mnemonic    string `yaml:"mnemonic" mapstructure:"mnemonic"`
	Passphrase  string `yaml:"passphrase" mapstructure:"passphrase"`
	Account     uint32 `yaml:"account" mapstructure:"account"`
}

type Trade struct {
	DefaultSlippagePercent string `yaml:"default_slippage_percent" mapstructure:"default_slippage_percent"`
	DeriveCacheSize        int    `yaml:"derive_cache_size" mapstructure:"derive_cache_size"` // 0 关闭缓存
}

type Breaker struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `yaml:"open_timeout" mapstructure:"open_timeout"`
	Interval            time.Duration `yaml:"interval" mapstructure:"interval"`
}

type Redis struct {
	Addr     string        `yaml:"addr" mapstructure:"addr"` // 为空则不启用跨副本锁
	Password string        `yaml:"password" mapstructure:"password"`
	DB       int           `yaml:"db" mapstructure:"db"`
	PoolSize int           `yaml:"pool_size" mapstructure:"pool_size"`
	LockTTL  time.Duration `yaml:"lock_ttl" mapstructure:"lock_ttl"`
}

type Nats struct {
	URL string `yaml:"url" mapstructure:"url"` // 为空用进程内总线
}

type OTel struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr    string `yaml:"addr" mapstructure:"addr"` // 为空输出到 stdout
}

const DefaultProgramID = "11111111111111111111111111111111"

// ApplyDefaults 补全未配置的项
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "trade-service"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout <= 0 {
		c.HTTP.WriteTimeout = 10 * time.Second
	}
	if c.HTTP.RateLimitRPS <= 0 {
		c.HTTP.RateLimitRPS = 20
	}
	if c.HTTP.RateBurst <= 0 {
		c.HTTP.RateBurst = 40
	}
	if c.Solana.Cluster == "" {
		c.Solana.Cluster = "devnet"
	}
	if c.Solana.ProgramID == "" {
		c.Solana.ProgramID = DefaultProgramID
	}
	if c.Trade.DefaultSlippagePercent == "" {
		c.Trade.DefaultSlippagePercent = "2"
	}
	if c.Breaker.ConsecutiveFailures == 0 {
		c.Breaker.ConsecutiveFailures = 5
	}
	if c.Breaker.OpenTimeout <= 0 {
		c.Breaker.OpenTimeout = 10 * time.Second
	}
	if c.Redis.LockTTL <= 0 {
		c.Redis.LockTTL = 30 * time.Second
	}
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := solana.PublicKeyFromBase58(c.Solana.ProgramID); err != nil {
		errs = append(errs, fmt.Errorf("solana.program_id: %w", err))
	}
	if c.Signer.KeypairPath == "" && c.Signer.Mnemonic == "" {
		errs = append(errs, errors.New("signer: keypair_path or mnemonic is required"))
	}
	if d, err := decimal.NewFromString(c.Trade.DefaultSlippagePercent); err != nil {
		errs = append(errs, fmt.Errorf("trade.default_slippage_percent: %w", err))
	} else if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(10)) {
		errs = append(errs, fmt.Errorf("trade.default_slippage_percent %s out of [0, 10]", d))
	}
	return errors.Join(errs...)
}

func (c *Config) ProgramKey() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.Solana.ProgramID)
}

func (c *Config) DefaultSlippage() decimal.Decimal {
	return decimal.RequireFromString(c.Trade.DefaultSlippagePercent)
}

// Reload 校验热更来的新配置，只应用日志级别
// 返回需要重启才能生效的配置段；校验失败时什么都不应用
func Reload(cur, next *Config, setLevel func(level string) error) ([]string, error) {
	next.ApplyDefaults()
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if next.Log.Level != cur.Log.Level {
		if err := setLevel(next.Log.Level); err != nil {
			return nil, fmt.Errorf("log.level: %w", err)
		}
	}

	var restart []string
	for _, s := range []struct {
		name    string
		changed bool
	}{
		{"name", cur.Name != next.Name},
		{"log.file", cur.Log.File != next.Log.File},
		{"http", cur.HTTP != next.HTTP},
		{"solana", cur.Solana != next.Solana},
		{"signer", cur.Signer != next.Signer},
		{"trade", cur.Trade != next.Trade},
		{"breaker", cur.Breaker != next.Breaker},
		{"redis", cur.Redis != next.Redis},
		{"nats", cur.Nats != next.Nats},
		{"otel", cur.OTel != next.OTel},
	} {
		if s.changed {
			restart = append(restart, s.name)
		}
	}
	return restart, nil
}
