// Package alert Lark告警模块
package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// AlertType 告警类型
type AlertType string

const (
	AlertTypeCircuitBreaker     AlertType = "CIRCUIT_BREAKER"     // 熔断触发
	AlertTypePriceDeviation     AlertType = "PRICE_DEVIATION"     // 价格偏差超限
	AlertTypeHeartbeatMissed    AlertType = "HEARTBEAT_MISSED"    // 心跳缺失
	AlertTypeStalePrice         AlertType = "STALE_PRICE"         // 价格过期
	AlertTypeInsufficientFeeds  AlertType = "INSUFFICIENT_FEEDS"  // 有效外部报价不足
	AlertTypeEmergencyPrice     AlertType = "EMERGENCY_PRICE"     // 应急价格设置
	AlertTypeFeedError          AlertType = "FEED_ERROR"          // 外部数据源错误
	AlertTypeReconnectFailed    AlertType = "RECONNECT_FAILED"    // 重连失败（达到最大次数）
)

// LarkAlert Lark告警管理器
type LarkAlert struct {
	webhookURL string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewLarkAlert 创建Lark告警管理器
// webhookURL为空时告警只打日志不外发
func NewLarkAlert(webhookURL string, logger *zap.SugaredLogger) *LarkAlert {
	return &LarkAlert{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// larkMessage Lark消息结构
type larkMessage struct {
	MsgType string      `json:"msg_type"`
	Content interface{} `json:"content,omitempty"`
	Card    interface{} `json:"card,omitempty"`
}

// larkTextContent 文本消息内容
type larkTextContent struct {
	Text string `json:"text"`
}

// larkResponse Lark API响应
type larkResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// SendAlert 发送告警
// asset为空时表示全局告警（如熔断器）
func (l *LarkAlert) SendAlert(alertType AlertType, asset string, details map[string]string) {
	l.logger.Warnf("[告警] %s asset=%s details=%v", alertType, asset, details)

	if l.webhookURL == "" {
		return
	}

	// 异步发送，不阻塞主流程
	go func() {
		if err := l.sendCardAlert(alertType, asset, details); err != nil {
			l.logger.Warnf("[告警] 发送Lark卡片告警失败: %v", err)
			// 降级为文本告警
			if err := l.sendTextAlert(alertType, asset, details); err != nil {
				l.logger.Warnf("[告警] 发送Lark文本告警也失败: %v", err)
			}
		}
	}()
}

// sendTextAlert 发送文本告警
func (l *LarkAlert) sendTextAlert(alertType AlertType, asset string, details map[string]string) error {
	text := fmt.Sprintf("【%s】资产: %s\n时间: %s\n",
		getAlertTitle(alertType),
		asset,
		time.Now().Format("2006-01-02 15:04:05"))

	for key, value := range details {
		text += fmt.Sprintf("%s: %s\n", key, value)
	}

	msg := larkMessage{
		MsgType: "text",
		Content: larkTextContent{Text: text},
	}

	return l.send(msg)
}

// sendCardAlert 发送卡片告警
func (l *LarkAlert) sendCardAlert(alertType AlertType, asset string, details map[string]string) error {
	template, title := getAlertStyle(alertType)

	fields := []map[string]interface{}{}

	if asset != "" {
		fields = append(fields, map[string]interface{}{
			"is_short": true,
			"text": map[string]interface{}{
				"tag":     "lark_md",
				"content": fmt.Sprintf("**资产**\n%s", asset),
			},
		})
	}

	fields = append(fields, map[string]interface{}{
		"is_short": true,
		"text": map[string]interface{}{
			"tag":     "lark_md",
			"content": fmt.Sprintf("**告警时间**\n%s", time.Now().Format("2006-01-02 15:04:05")),
		},
	})

	for key, value := range details {
		fields = append(fields, map[string]interface{}{
			"is_short": false,
			"text": map[string]interface{}{
				"tag":     "lark_md",
				"content": fmt.Sprintf("**%s**\n%s", key, value),
			},
		})
	}

	msg := larkMessage{
		MsgType: "interactive",
		Card: map[string]interface{}{
			"header": map[string]interface{}{
				"template": template,
				"title": map[string]interface{}{
					"tag":     "plain_text",
					"content": title,
				},
			},
			"elements": []map[string]interface{}{
				{
					"tag":    "div",
					"fields": fields,
				},
			},
		},
	}

	return l.send(msg)
}

// send 发送消息到Lark
func (l *LarkAlert) send(msg larkMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	resp, err := l.httpClient.Post(l.webhookURL, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("请求Lark失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取Lark响应失败: %w", err)
	}

	var larkResp larkResponse
	if err := json.Unmarshal(body, &larkResp); err != nil {
		return fmt.Errorf("解析Lark响应失败: %w", err)
	}

	if larkResp.Code != 0 {
		return fmt.Errorf("Lark返回错误: code=%d msg=%s", larkResp.Code, larkResp.Msg)
	}
	return nil
}

// getAlertTitle 获取告警标题
func getAlertTitle(alertType AlertType) string {
	switch alertType {
	case AlertTypeCircuitBreaker:
		return "熔断器触发"
	case AlertTypePriceDeviation:
		return "价格偏差超限"
	case AlertTypeHeartbeatMissed:
		return "心跳缺失"
	case AlertTypeStalePrice:
		return "价格已过期"
	case AlertTypeInsufficientFeeds:
		return "有效外部报价不足"
	case AlertTypeEmergencyPrice:
		return "应急价格已设置"
	case AlertTypeFeedError:
		return "外部数据源错误"
	case AlertTypeReconnectFailed:
		return "重连失败"
	default:
		return string(alertType)
	}
}

// getAlertStyle 获取告警样式（卡片颜色 + 标题）
func getAlertStyle(alertType AlertType) (template, title string) {
	title = getAlertTitle(alertType)

	switch alertType {
	case AlertTypeCircuitBreaker, AlertTypePriceDeviation, AlertTypeReconnectFailed:
		return "red", title
	case AlertTypeEmergencyPrice:
		return "purple", title
	case AlertTypeHeartbeatMissed, AlertTypeStalePrice, AlertTypeInsufficientFeeds, AlertTypeFeedError:
		return "orange", title
	default:
		return "grey", title
	}
}
