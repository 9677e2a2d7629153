// Package price 价格计算模块
package price

import (
	sdkmath "cosmossdk.io/math"

	"github.com/sotoJ24/TrustBridge-contracts/internal/types"
)

// 置信度计算参数
const (
	confidenceBonusMinSources = 3  // 数据源数达到该值时加分
	confidenceBonus           = 10 // 多数据源加分
	confidenceMax             = 100
)

// DeviationBps 计算价格偏差（基点）
// 公式: |new - old| * 10000 / old
// 约定: old <= 0 时返回最大偏差（10000基点），保证零基准价一定触发保护而不是除零
func DeviationBps(newPrice, oldPrice sdkmath.Int) uint64 {
	if oldPrice.IsNil() || !oldPrice.IsPositive() {
		return types.MaxDeviationBps
	}

	diff := newPrice.Sub(oldPrice).Abs()
	dev := diff.MulRaw(10000).Quo(oldPrice)
	if !dev.IsUint64() {
		return ^uint64(0)
	}
	return dev.Uint64()
}

// Confidence 计算置信度（0-100）
// 基础分为报价数据源占比，数据源数 >= 3 时额外加10分
func Confidence(validCount, totalCount uint32) uint32 {
	if totalCount == 0 {
		return 0
	}

	confidence := validCount * 100 / totalCount
	if validCount >= confidenceBonusMinSources {
		confidence += confidenceBonus
	}
	if confidence > confidenceMax {
		confidence = confidenceMax
	}
	return confidence
}

// Aggregate 加权聚合各数据源报价
// 过期判定: now - timestamp > maxStaleness 的数据源被剔除（等于边界视为新鲜）
// 聚合价格 = Σ(price_i × weight_i) / Σ(weight_i)，整数除法向零截断
// 没有任何有效数据源（或总权重为0）时返回 (nil, false)，调用方应保留原聚合结果
func Aggregate(sources []types.PriceSource, nowUnix int64, maxStaleness uint64) (*types.PriceData, bool) {
	if len(sources) == 0 {
		return nil, false
	}

	weightedSum := sdkmath.ZeroInt()
	var totalWeight uint64
	var validCount uint32

	for _, src := range sources {
		age := nowUnix - src.Timestamp
		if age > 0 && uint64(age) > maxStaleness {
			continue
		}

		weightedSum = weightedSum.Add(src.Price.MulRaw(int64(src.Weight)))
		totalWeight += uint64(src.Weight)
		validCount++
	}

	if validCount == 0 || totalWeight == 0 {
		return nil, false
	}

	aggregated := weightedSum.Quo(sdkmath.NewIntFromUint64(totalWeight))

	return &types.PriceData{
		Price:       aggregated,
		Timestamp:   nowUnix,
		SourceCount: validCount,
		Confidence:  Confidence(validCount, uint32(len(sources))),
	}, true
}
