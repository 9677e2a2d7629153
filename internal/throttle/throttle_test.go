// Package throttle 写入瘦身单元测试
package throttle

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
)

// TestThrottlerFirstWrite 测试首次写入
func TestThrottlerFirstWrite(t *testing.T) {
	th := NewThrottler(1*time.Second, 30*time.Second, 30)
	now := time.Now()

	d := th.ShouldWrite("symbol:XLM", sdkmath.NewInt(100), now)
	assert.True(t, d.ShouldWrite, "首次写入应该放行")
}

// TestThrottlerMinInterval 测试最小写入间隔
func TestThrottlerMinInterval(t *testing.T) {
	th := NewThrottler(5*time.Second, 30*time.Second, 30)
	base := time.Now()

	th.ConfirmWrite("symbol:XLM", sdkmath.NewInt(100), base)

	// 间隔不足：即使价格变化很大也不写
	d := th.ShouldWrite("symbol:XLM", sdkmath.NewInt(200), base.Add(2*time.Second))
	assert.False(t, d.ShouldWrite, "未超过最小间隔应该跳过")

	// 间隔足够且价格变动达到阈值
	d = th.ShouldWrite("symbol:XLM", sdkmath.NewInt(200), base.Add(6*time.Second))
	assert.True(t, d.ShouldWrite, "超过最小间隔且变动达标应该写入")
}

// TestThrottlerChangeThreshold 测试价格变动阈值
func TestThrottlerChangeThreshold(t *testing.T) {
	th := NewThrottler(1*time.Second, 30*time.Second, 30) // 0.3%
	base := time.Now()

	th.ConfirmWrite("symbol:XLM", sdkmath.NewInt(100000), base)

	// 变动 0.02% < 0.3%
	d := th.ShouldWrite("symbol:XLM", sdkmath.NewInt(100020), base.Add(2*time.Second))
	assert.False(t, d.ShouldWrite, "变动过小应该跳过")

	// 变动 0.5% >= 0.3%
	d = th.ShouldWrite("symbol:XLM", sdkmath.NewInt(100500), base.Add(2*time.Second))
	assert.True(t, d.ShouldWrite, "变动达到阈值应该写入")
}

// TestThrottlerHeartbeat 测试最大间隔心跳写入
func TestThrottlerHeartbeat(t *testing.T) {
	th := NewThrottler(1*time.Second, 30*time.Second, 30)
	base := time.Now()

	th.ConfirmWrite("symbol:XLM", sdkmath.NewInt(100000), base)

	// 价格完全没变，但超过最大间隔必须写
	d := th.ShouldWrite("symbol:XLM", sdkmath.NewInt(100000), base.Add(31*time.Second))
	assert.True(t, d.ShouldWrite, "超过最大间隔应该心跳写入")
}

// TestThrottlerPerKeyState 测试按资产独立跟踪
func TestThrottlerPerKeyState(t *testing.T) {
	th := NewThrottler(5*time.Second, 30*time.Second, 30)
	base := time.Now()

	th.ConfirmWrite("symbol:XLM", sdkmath.NewInt(100), base)

	// 另一个资产没有写入过，应该放行
	d := th.ShouldWrite("symbol:USDC", sdkmath.NewInt(100), base.Add(1*time.Second))
	assert.True(t, d.ShouldWrite, "不同资产的状态应该互不影响")
}

// TestThrottlerReset 测试状态重置
func TestThrottlerReset(t *testing.T) {
	th := NewThrottler(5*time.Second, 30*time.Second, 30)
	base := time.Now()

	th.ConfirmWrite("symbol:XLM", sdkmath.NewInt(100), base)
	th.Reset("symbol:XLM")

	d := th.ShouldWrite("symbol:XLM", sdkmath.NewInt(100), base.Add(1*time.Second))
	assert.True(t, d.ShouldWrite, "重置后应该视为首次写入")

	th.ConfirmWrite("symbol:XLM", sdkmath.NewInt(100), base)
	th.ResetAll()
	d = th.ShouldWrite("symbol:XLM", sdkmath.NewInt(100), base.Add(1*time.Second))
	assert.True(t, d.ShouldWrite, "全量重置后应该视为首次写入")
}
