package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env     string        `yaml:"env"`
	Engine  EngineConfig  `yaml:"engine"`
	Gateway GatewayConfig `yaml:"gateway"`
	Feed    FeedConfig    `yaml:"feed"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// EngineConfig 引擎构造期配置，引擎生命周期内不可变（不参与热更新）。
type EngineConfig struct {
	InitialCapital   float64 `yaml:"initialCapital"`   // 初始资金
	MaxPositionSize  float64 `yaml:"maxPositionSize"`  // 单仓位最大名义价值
	MaxPortfolioHeat float64 `yaml:"maxPortfolioHeat"` // 组合总敞口上限
	MaxDailyLoss     float64 `yaml:"maxDailyLoss"`     // 单日最大亏损（正数）
	MaxDrawdown      float64 `yaml:"maxDrawdown"`      // 最大回撤阈值（负数，如 -0.20）
	MaxRiskPerTrade  float64 `yaml:"maxRiskPerTrade"`  // 单笔风险占比，默认 0.02
	WindowSize       int     `yaml:"windowSize"`       // 绩效环形缓冲区容量，默认 100
}

// GatewayConfig 模拟撮合网关配置。
type GatewayConfig struct {
	PartialFillDelayMs int     `yaml:"partialFillDelayMs"` // 部分成交延迟（毫秒）
	FillDelayMs        int     `yaml:"fillDelayMs"`        // 完全成交的追加延迟（毫秒）
	PartialFillRatio   float64 `yaml:"partialFillRatio"`   // 首笔部分成交比例
	SlippagePct        float64 `yaml:"slippagePct"`        // 模拟滑点（成交价相对委托价的偏移比例）
	CommissionRate     float64 `yaml:"commissionRate"`     // 手续费率（按成交名义价值）
}

// FeedConfig 行情推送配置。
type FeedConfig struct {
	URL              string   `yaml:"url"`              // websocket 行情地址，留空则不启动
	Symbols          []string `yaml:"symbols"`          // 订阅的交易标的
	ReconnectDelayMs int      `yaml:"reconnectDelayMs"` // 断线重连间隔（毫秒）
}

// LogConfig 日志配置，结构与 infrastructure/logger 对应。
type LogConfig struct {
	Level      string   `yaml:"level"`
	Outputs    []string `yaml:"outputs"`
	OutputFile string   `yaml:"outputFile"`
	ErrorFile  string   `yaml:"errorFile"`
	Format     string   `yaml:"format"`
}

// MetricsConfig Prometheus 指标配置。
type MetricsConfig struct {
	Addr string `yaml:"addr"` // 监听地址，留空则关闭
}

// PartialFillDelay returns the configured partial-fill latency.
func (g GatewayConfig) PartialFillDelay() time.Duration {
	return time.Duration(g.PartialFillDelayMs) * time.Millisecond
}

// FillDelay returns the additional latency before the full fill.
func (g GatewayConfig) FillDelay() time.Duration {
	return time.Duration(g.FillDelayMs) * time.Millisecond
}

// ReconnectDelay returns the feed reconnect interval.
func (f FeedConfig) ReconnectDelay() time.Duration {
	if f.ReconnectDelayMs <= 0 {
		return 3 * time.Second
	}
	return time.Duration(f.ReconnectDelayMs) * time.Millisecond
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides selected fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("LT_FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}
	if v := os.Getenv("LT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LT_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	return cfg, Validate(cfg)
}

// applyDefaults 填充零值字段的默认值。
func applyDefaults(cfg *AppConfig) {
	if cfg.Engine.MaxRiskPerTrade == 0 {
		cfg.Engine.MaxRiskPerTrade = 0.02
	}
	if cfg.Engine.WindowSize == 0 {
		cfg.Engine.WindowSize = 100
	}
	if cfg.Gateway.PartialFillDelayMs == 0 {
		cfg.Gateway.PartialFillDelayMs = 100
	}
	if cfg.Gateway.FillDelayMs == 0 {
		cfg.Gateway.FillDelayMs = 200
	}
	if cfg.Gateway.PartialFillRatio == 0 {
		cfg.Gateway.PartialFillRatio = 0.5
	}
	if cfg.Gateway.CommissionRate == 0 {
		cfg.Gateway.CommissionRate = 0.0004
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if len(cfg.Log.Outputs) == 0 {
		cfg.Log.Outputs = []string{"stdout"}
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Engine.InitialCapital <= 0 {
		return errors.New("engine.initialCapital must be > 0")
	}
	if cfg.Engine.MaxPositionSize <= 0 {
		return errors.New("engine.maxPositionSize must be > 0")
	}
	if cfg.Engine.MaxPortfolioHeat <= 0 {
		return errors.New("engine.maxPortfolioHeat must be > 0")
	}
	if cfg.Engine.MaxDailyLoss <= 0 {
		return errors.New("engine.maxDailyLoss must be > 0")
	}
	if cfg.Engine.MaxDrawdown >= 0 {
		return errors.New("engine.maxDrawdown must be < 0 (e.g. -0.20)")
	}
	if cfg.Engine.MaxRiskPerTrade <= 0 || cfg.Engine.MaxRiskPerTrade >= 1 {
		return errors.New("engine.maxRiskPerTrade must be in (0, 1)")
	}
	if cfg.Engine.WindowSize <= 0 {
		return errors.New("engine.windowSize must be > 0")
	}
	if cfg.Gateway.PartialFillDelayMs < 0 || cfg.Gateway.FillDelayMs < 0 {
		return errors.New("gateway fill delays must be >= 0")
	}
	if cfg.Gateway.PartialFillRatio <= 0 || cfg.Gateway.PartialFillRatio >= 1 {
		return errors.New("gateway.partialFillRatio must be in (0, 1)")
	}
	if cfg.Gateway.SlippagePct < 0 {
		return errors.New("gateway.slippagePct must be >= 0")
	}
	if cfg.Gateway.CommissionRate < 0 {
		return errors.New("gateway.commissionRate must be >= 0")
	}
	if cfg.Feed.URL != "" && len(cfg.Feed.Symbols) == 0 {
		return errors.New("feed.symbols is required when feed.url is set")
	}
	return nil
}
