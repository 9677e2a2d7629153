// Package throttle 聚合结果写入瘦身模块
// 拉取模式下控制聚合价格的落盘频率，避免把几乎没有变化的价格反复覆盖写入
package throttle

import (
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/sotoJ24/TrustBridge-contracts/internal/price"
)

// Throttler 写入瘦身器
type Throttler struct {
	minInterval time.Duration // 最小写入间隔
	maxInterval time.Duration // 最大写入间隔（心跳，超过必写）
	changeBps   uint64        // 价格变动阈值（基点）

	mu        sync.RWMutex
	lastByKey map[string]*lastWrite // 每个资产的写入状态
}

// lastWrite 单个资产的写入状态
type lastWrite struct {
	at    time.Time
	price sdkmath.Int
}

// Decision 写入决策结果
type Decision struct {
	ShouldWrite bool   // 是否应该落盘
	Reason      string // 决策原因（用于日志）
}

// NewThrottler 创建写入瘦身器
// minInterval: 最小写入间隔
// maxInterval: 最大写入间隔（心跳）
// changeBps: 价格变动阈值（基点，如 30 表示 0.3%）
func NewThrottler(minInterval, maxInterval time.Duration, changeBps uint64) *Throttler {
	return &Throttler{
		minInterval: minInterval,
		maxInterval: maxInterval,
		changeBps:   changeBps,
		lastByKey:   make(map[string]*lastWrite),
	}
}

// ShouldWrite 判断是否应该写入新聚合价格
func (t *Throttler) ShouldWrite(key string, newPrice sdkmath.Int, now time.Time) *Decision {
	t.mu.RLock()
	last, exists := t.lastByKey[key]
	t.mu.RUnlock()

	// 首次写入
	if !exists {
		return &Decision{ShouldWrite: true, Reason: "首次写入"}
	}

	elapsed := now.Sub(last.at)

	// 规则1: 超过最大间隔 -> 强制写入（心跳）
	if elapsed >= t.maxInterval {
		return &Decision{ShouldWrite: true, Reason: "超过最大间隔，心跳写入"}
	}

	// 规则2: 未超过最小间隔 -> 不写入
	if elapsed < t.minInterval {
		return &Decision{ShouldWrite: false, Reason: "未超过最小写入间隔，跳过"}
	}

	// 规则3: 超过最小间隔且价格变动达到阈值 -> 写入
	if price.DeviationBps(newPrice, last.price) >= t.changeBps {
		return &Decision{ShouldWrite: true, Reason: "价格变动超过阈值"}
	}

	return &Decision{ShouldWrite: false, Reason: "价格变动过小，跳过"}
}

// ConfirmWrite 确认写入完成，更新状态
// 只有在实际落盘成功后才调用此方法
func (t *Throttler) ConfirmWrite(key string, p sdkmath.Int, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastByKey[key] = &lastWrite{at: now, price: p}
}

// Reset 重置某个资产的状态
func (t *Throttler) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.lastByKey, key)
}

// ResetAll 重置所有状态
func (t *Throttler) ResetAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastByKey = make(map[string]*lastWrite)
}
