// Package price 价格计算模块
package price

import (
	"strings"

	sdkmath "cosmossdk.io/math"

	"github.com/sotoJ24/TrustBridge-contracts/internal/types"
)

// ParseDecimal 将十进制字符串报价转换为带精度的整数价格
// 如 decimals=7 时 "123.45" -> 1234500000，多余小数位向零截断
func ParseDecimal(s string, decimals uint32) (sdkmath.Int, error) {
	dec, err := sdkmath.LegacyNewDecFromStr(s)
	if err != nil {
		return sdkmath.Int{}, types.ErrInvalidPrice.Wrapf("价格解析失败: %q: %v", s, err)
	}

	scale := sdkmath.NewIntWithDecimal(1, int(decimals))
	return dec.MulInt(scale).TruncateInt(), nil
}

// FormatDecimal 将整数价格格式化为十进制字符串（用于日志/告警展示）
func FormatDecimal(p sdkmath.Int, decimals uint32) string {
	if p.IsNil() {
		return "0"
	}

	s := sdkmath.LegacyNewDecFromIntWithPrec(p, int64(decimals)).String()
	// LegacyDec固定输出18位小数，展示时去掉多余的尾零
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	return s
}
