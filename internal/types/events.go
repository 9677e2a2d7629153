// Package types 公共类型定义
package types

// 审计事件类型
// 每个状态变更操作都会发出一条事件，供外部监控系统（异常监控、限流模块）消费
const (
	EventTypeInitialized            = "initialized"
	EventTypePriceSubmitted         = "price_submitted"
	EventTypePriceAggregated        = "price_aggregated"
	EventTypeHeartbeatMissed        = "heartbeat_missed"
	EventTypeStalePrice             = "stale_price"
	EventTypeCircuitBreakerTripped  = "circuit_breaker_triggered"
	EventTypeCircuitBreakerReset    = "circuit_breaker_reset"
	EventTypeConfigUpdated          = "config_updated"
	EventTypeSourceAdded            = "source_added"
	EventTypeSourceRemoved          = "source_removed"
	EventTypeAdminAdded             = "admin_added"
	EventTypeAdminRemoved           = "admin_removed"
	EventTypeResponderAdded         = "responder_added"
	EventTypeResponderRemoved       = "responder_removed"
	EventTypeEmergencyPriceSet      = "emergency_price_set"
	EventTypePriceDeviationAlert    = "price_deviation_alert"
)

// 审计事件属性key
const (
	AttrKeyAsset       = "asset"
	AttrKeySourceID    = "source_id"
	AttrKeyAdmin       = "admin"
	AttrKeyResponder   = "responder"
	AttrKeyPrice       = "price"
	AttrKeyWeight      = "weight"
	AttrKeyReason      = "reason"
	AttrKeyAgeSeconds  = "age_seconds"
	AttrKeyDeviation   = "deviation_bps"
	AttrKeySourceCount = "source_count"
	AttrKeyConfidence  = "confidence"
	AttrKeyExpiresAt   = "expires_at"
	AttrKeyTimestamp   = "timestamp"
)

// Event 结构化审计事件
type Event struct {
	ID         string            `json:"id"`         // 事件ID（uuid）
	Type       string            `json:"type"`       // 事件类型
	Timestamp  int64             `json:"timestamp"`  // 发生时间（Unix秒）
	Attributes map[string]string `json:"attributes"` // 操作名、涉及的资产/身份、产生的值
}

// NewEvent 创建审计事件（ID由发射器填充）
func NewEvent(eventType string, nowUnix int64, attrs map[string]string) Event {
	if attrs == nil {
		attrs = make(map[string]string)
	}
	return Event{
		Type:       eventType,
		Timestamp:  nowUnix,
		Attributes: attrs,
	}
}
