// Package config 配置管理模块
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sotoJ24/TrustBridge-contracts/internal/types"
)

// 运行模式
const (
	ModePush = "push" // 推送模式：数据源主动提交，提交即聚合
	ModePull = "pull" // 拉取模式：服务按周期向报价源取数聚合
)

// Config 系统配置
type Config struct {
	Mode       string           `yaml:"mode"` // push | pull
	Redis      RedisConfig      `yaml:"redis"`
	Lark       LarkConfig       `yaml:"lark"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Governance GovernanceConfig `yaml:"governance"`
	Sources    []SourceConfig   `yaml:"sources"`
	Assets     []AssetConfig    `yaml:"assets"`
	Feeds      []FeedConfig     `yaml:"feeds"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Throttle   ThrottleConfig   `yaml:"throttle"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LarkConfig Lark告警配置
type LarkConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// OracleConfig 聚合参数配置
type OracleConfig struct {
	MaxPriceDeviationBps uint32 `yaml:"max_price_deviation_bps"` // 触发熔断的偏差阈值（基点）
	MaxStalenessSeconds  uint64 `yaml:"max_staleness_seconds"`   // 报价过期时间（秒）
	MinSourcesRequired   uint32 `yaml:"min_sources_required"`    // 对外提供价格所需最少源数
	HeartbeatInterval    uint64 `yaml:"heartbeat_interval"`      // 数据源心跳间隔（秒）
}

// GovernanceConfig 治理初始化配置
type GovernanceConfig struct {
	Admins        []string `yaml:"admins"`         // 初始管理员列表
	MinSignatures uint32   `yaml:"min_signatures"` // 多签门槛
	Responders    []string `yaml:"responders"`     // 应急响应者列表
}

// SourceConfig 受信数据源配置（推送模式）
type SourceConfig struct {
	SourceID string `yaml:"source_id"`
	Weight   uint32 `yaml:"weight"`
}

// AssetConfig 资产配置
type AssetConfig struct {
	Kind    string `yaml:"kind"`    // native | symbol
	Address string `yaml:"address"` // kind=native时的合约地址
	Symbol  string `yaml:"symbol"`  // kind=symbol时的符号
}

// FeedConfig 外部报价源配置（拉取模式）
type FeedConfig struct {
	Name   string        `yaml:"name"`
	Type   string        `yaml:"type"` // http | ws
	URL    string        `yaml:"url"`
	Weight uint32        `yaml:"weight"`
	Pairs  []PairMapping `yaml:"pairs"` // type=ws时的交易对映射
}

// PairMapping websocket交易对与资产的映射
type PairMapping struct {
	Pair     string `yaml:"pair"`
	AssetKey string `yaml:"asset_key"`
}

// AggregatorConfig 拉取聚合配置
type AggregatorConfig struct {
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"` // 轮询周期（秒）
	HeartbeatTimeout    uint64 `yaml:"heartbeat_timeout"`     // 报价有效期（秒）
	MinOraclesRequired  uint32 `yaml:"min_oracles_required"`  // 所需最少有效报价源数
	DeviationAlertBps   uint64 `yaml:"deviation_alert_bps"`   // 单源偏差告警阈值（基点）
}

// ThrottleConfig 落盘瘦身配置
type ThrottleConfig struct {
	MinWriteInterval int    `yaml:"min_write_interval"` // 最小落盘间隔（秒）
	MaxWriteInterval int    `yaml:"max_write_interval"` // 最大落盘间隔（秒）
	ChangeBps        uint64 `yaml:"change_bps"`         // 价格变动阈值（基点）
}

// Load 从文件加载配置
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 设置默认值
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Mode == "" {
		c.Mode = ModePush
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Oracle.MaxPriceDeviationBps == 0 {
		c.Oracle.MaxPriceDeviationBps = 500 // 默认5%
	}
	if c.Oracle.MaxStalenessSeconds == 0 {
		c.Oracle.MaxStalenessSeconds = 300 // 默认5分钟
	}
	if c.Oracle.MinSourcesRequired == 0 {
		c.Oracle.MinSourcesRequired = 1
	}
	if c.Oracle.HeartbeatInterval == 0 {
		c.Oracle.HeartbeatInterval = 60 // 默认1分钟
	}
	if c.Governance.MinSignatures == 0 {
		c.Governance.MinSignatures = 1
	}
	if c.Aggregator.PollIntervalSeconds <= 0 {
		c.Aggregator.PollIntervalSeconds = 10 // 默认10秒
	}
	if c.Aggregator.HeartbeatTimeout == 0 {
		c.Aggregator.HeartbeatTimeout = c.Oracle.MaxStalenessSeconds
	}
	if c.Aggregator.MinOraclesRequired == 0 {
		c.Aggregator.MinOraclesRequired = 1
	}
	// 瘦身参数默认值
	if c.Throttle.MinWriteInterval <= 0 {
		c.Throttle.MinWriteInterval = 1 // 默认1秒
	}
	if c.Throttle.MaxWriteInterval <= 0 {
		c.Throttle.MaxWriteInterval = 30 // 默认30秒
	}
	if c.Throttle.ChangeBps == 0 {
		c.Throttle.ChangeBps = 30 // 默认0.3%
	}
}

// validate 校验配置
func (c *Config) validate() error {
	if c.Mode != ModePush && c.Mode != ModePull {
		return fmt.Errorf("无效的运行模式: %s", c.Mode)
	}
	if len(c.Governance.Admins) == 0 {
		return fmt.Errorf("至少需要配置一个管理员")
	}
	if int(c.Governance.MinSignatures) > len(c.Governance.Admins) {
		return fmt.Errorf("多签门槛 %d 超过管理员数量 %d", c.Governance.MinSignatures, len(c.Governance.Admins))
	}
	for i, src := range c.Sources {
		if src.SourceID == "" {
			return fmt.Errorf("sources[%d]: source_id 不能为空", i)
		}
		if src.Weight > types.MaxSourceWeight {
			return fmt.Errorf("sources[%d]: 权重 %d 超过上限 %d", i, src.Weight, types.MaxSourceWeight)
		}
	}
	for i, a := range c.Assets {
		if _, err := c.ParseAsset(a); err != nil {
			return fmt.Errorf("assets[%d]: %w", i, err)
		}
	}
	if c.Mode == ModePull && len(c.Feeds) == 0 {
		return fmt.Errorf("拉取模式至少需要配置一个报价源")
	}
	for i, f := range c.Feeds {
		if f.Type != "http" && f.Type != "ws" {
			return fmt.Errorf("feeds[%d]: 无效的报价源类型: %s", i, f.Type)
		}
		if f.URL == "" {
			return fmt.Errorf("feeds[%d]: url 不能为空", i)
		}
	}
	return nil
}

// ParseAsset 将资产配置转换为资产标识
func (c *Config) ParseAsset(a AssetConfig) (types.Asset, error) {
	switch a.Kind {
	case "native":
		asset := types.NewNativeAsset(a.Address)
		return asset, asset.Validate()
	case "symbol":
		asset := types.NewSymbolAsset(a.Symbol)
		return asset, asset.Validate()
	default:
		return types.Asset{}, fmt.Errorf("无效的资产类型: %s", a.Kind)
	}
}

// ToOracleConfig 转换为聚合参数
func (c *Config) ToOracleConfig() types.OracleConfig {
	return types.OracleConfig{
		MaxPriceDeviationBps: c.Oracle.MaxPriceDeviationBps,
		MaxStalenessSeconds:  c.Oracle.MaxStalenessSeconds,
		MinSourcesRequired:   c.Oracle.MinSourcesRequired,
		HeartbeatInterval:    c.Oracle.HeartbeatInterval,
	}
}
