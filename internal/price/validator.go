// Package price 价格计算模块
package price

import (
	sdkmath "cosmossdk.io/math"

	"github.com/sotoJ24/TrustBridge-contracts/internal/types"
)

// ValidatePrice 校验价格
// 规则: 价格 > 0
func ValidatePrice(p sdkmath.Int) error {
	if p.IsNil() || !p.IsPositive() {
		return types.ErrInvalidPrice.Wrapf("价格必须大于0，当前值: %s", p)
	}
	return nil
}

// ValidateWeight 校验数据源权重
// 规则: 权重 <= 100
func ValidateWeight(w uint32) error {
	if w > types.MaxSourceWeight {
		return types.ErrInvalidWeight.Wrapf("权重超过上限: %d > %d", w, types.MaxSourceWeight)
	}
	return nil
}
