// Package types 公共类型定义
package types

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// Decimals 价格精度（小数位数）
const Decimals uint32 = 7

// MaxSourceWeight 数据源最大权重
const MaxSourceWeight uint32 = 100

// MaxDeviationBps 最大偏差（基点），10000 = 100%
const MaxDeviationBps uint64 = 10000

// AssetKind 资产类型
type AssetKind string

const (
	AssetKindNative AssetKind = "native" // 原生账本资产（合约地址标识）
	AssetKindSymbol AssetKind = "symbol" // 其他资产（不透明符号标识）
)

// Asset 被报价的资产标识
// 两种形态：原生账本资产引用 或 不透明符号，所有按资产分键的存储都以它为key
type Asset struct {
	Kind    AssetKind `json:"kind"`
	Address string    `json:"address,omitempty"` // Kind=native 时有效
	Symbol  string    `json:"symbol,omitempty"`  // Kind=symbol 时有效
}

// NewNativeAsset 创建原生账本资产标识
func NewNativeAsset(address string) Asset {
	return Asset{Kind: AssetKindNative, Address: address}
}

// NewSymbolAsset 创建符号资产标识
func NewSymbolAsset(symbol string) Asset {
	return Asset{Kind: AssetKindSymbol, Symbol: symbol}
}

// Validate 校验资产标识
func (a Asset) Validate() error {
	switch a.Kind {
	case AssetKindNative:
		if a.Address == "" {
			return ErrInvalidInput.Wrap("原生资产地址为空")
		}
		return nil
	case AssetKindSymbol:
		if a.Symbol == "" {
			return ErrInvalidInput.Wrap("资产符号为空")
		}
		return nil
	default:
		return ErrInvalidInput.Wrapf("未知资产类型: %q", a.Kind)
	}
}

// Key 存储key（按资产分键的记录都使用此值）
func (a Asset) Key() string {
	switch a.Kind {
	case AssetKindNative:
		return "native:" + a.Address
	case AssetKindSymbol:
		return "symbol:" + a.Symbol
	default:
		return "invalid:" + string(a.Kind)
	}
}

// String 实现 fmt.Stringer
func (a Asset) String() string {
	return a.Key()
}

// PriceSource 单一数据源对单一资产的最新报价
// 每个 (asset, source_id) 只保留一条，后来的提交覆盖之前的
type PriceSource struct {
	SourceID  string      `json:"source_id"` // 数据源标识
	Price     sdkmath.Int `json:"price"`     // 价格（带Decimals位精度的整数）
	Timestamp int64       `json:"timestamp"` // Unix时间戳（秒）
	Weight    uint32      `json:"weight"`    // 聚合权重（0-100）
}

// PriceData 每个资产的权威聚合价格
// 仅由聚合引擎创建/覆盖，读取操作不会修改它
type PriceData struct {
	Price       sdkmath.Int `json:"price"`        // 聚合价格
	Timestamp   int64       `json:"timestamp"`    // 聚合计算时间（Unix秒）
	SourceCount uint32      `json:"source_count"` // 参与本次计算的数据源数量
	Confidence  uint32      `json:"confidence"`   // 置信度（0-100）
}

// TrustedSource 受信数据源及其聚合权重
type TrustedSource struct {
	SourceID string `json:"source_id"`
	Weight   uint32 `json:"weight"` // 0-100
}

// AdminSet 管理员集合与多签门限
type AdminSet struct {
	Admins        []string `json:"admins"`
	MinSignatures uint32   `json:"min_signatures"` // 1 <= MinSignatures <= len(Admins)
}

// Contains 是否包含指定管理员
func (s *AdminSet) Contains(id string) bool {
	for _, admin := range s.Admins {
		if admin == id {
			return true
		}
	}
	return false
}

// Add 添加管理员（已存在时不重复添加）
func (s *AdminSet) Add(id string) {
	if s.Contains(id) {
		return
	}
	s.Admins = append(s.Admins, id)
}

// Remove 移除管理员
// 返回是否实际移除；人数不得低于门限的不变量由调用方在移除前检查
func (s *AdminSet) Remove(id string) bool {
	for i, admin := range s.Admins {
		if admin == id {
			s.Admins = append(s.Admins[:i], s.Admins[i+1:]...)
			return true
		}
	}
	return false
}

// OracleConfig 预言机配置
type OracleConfig struct {
	MaxPriceDeviationBps uint32 `json:"max_price_deviation_bps"` // 最大价格偏差（基点），1000 = 10%
	MaxStalenessSeconds  uint64 `json:"max_staleness_seconds"`   // 价格过期时间（秒）
	MinSourcesRequired   uint32 `json:"min_sources_required"`    // 有效报价所需最少数据源数
	HeartbeatInterval    uint64 `json:"heartbeat_interval"`      // 要求的更新频率（秒）
}

// Validate 校验配置
func (c OracleConfig) Validate() error {
	if uint64(c.MaxPriceDeviationBps) > MaxDeviationBps {
		return ErrInvalidInput.Wrapf("最大价格偏差超过上限: %d > %d", c.MaxPriceDeviationBps, MaxDeviationBps)
	}
	return nil
}

// 熔断原因
const (
	PauseReasonDeviation = "deviation" // 价格偏差超限自动熔断
)

// CircuitBreaker 熔断器状态（全局唯一）
type CircuitBreaker struct {
	IsPaused       bool   `json:"is_paused"`
	PauseTimestamp int64  `json:"pause_timestamp"`
	Reason         string `json:"reason"`
}

// EmergencyPrice 应急人工价格（限时有效，绕过聚合管线）
type EmergencyPrice struct {
	Price     sdkmath.Int `json:"price"`
	SetAt     int64       `json:"set_at"`
	ExpiresAt int64       `json:"expires_at"`
	SetBy     string      `json:"set_by"` // 设置者（应急响应角色）身份
}

// Expired 在给定时刻是否已过期
func (p *EmergencyPrice) Expired(nowUnix int64) bool {
	return nowUnix > p.ExpiresAt
}

// String 格式化应急价格信息
func (p *EmergencyPrice) String() string {
	return fmt.Sprintf("EmergencyPrice[price=%s, set_by=%s, expires_at=%d]", p.Price, p.SetBy, p.ExpiresAt)
}
