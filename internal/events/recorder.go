// Package events 审计事件模块
// 每个状态变更操作发出一条结构化事件，外部监控（异常监控、限流模块）从事件流消费，
// 引擎自身不反向调用它们
package events

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sotoJ24/TrustBridge-contracts/internal/types"
)

// StreamKey 审计事件流的Redis key
const StreamKey = "oracle:audit"

// maxStreamLen 事件流近似保留长度
const maxStreamLen = 100000

// Recorder 审计事件发射器
// 事件发射是尽力而为：失败只记日志，绝不让状态变更操作因此失败
type Recorder interface {
	Emit(ctx context.Context, evt types.Event)
}

// RedisRecorder 写入Redis stream的发射器
type RedisRecorder struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

// NewRedisRecorder 创建Redis事件发射器
func NewRedisRecorder(client *redis.Client, logger *zap.SugaredLogger) *RedisRecorder {
	return &RedisRecorder{
		client: client,
		logger: logger,
	}
}

// Emit 实现 Recorder
func (r *RedisRecorder) Emit(ctx context.Context, evt types.Event) {
	evt.ID = uuid.NewString()

	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		r.logger.Warnf("[审计] 序列化事件属性失败: %v", err)
		return
	}

	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":         evt.ID,
			"type":       evt.Type,
			"timestamp":  evt.Timestamp,
			"attributes": string(attrs),
		},
	}).Err()
	if err != nil {
		r.logger.Warnf("[审计] 写入事件流失败: type=%s err=%v", evt.Type, err)
		return
	}

	r.logger.Infof("[审计] %s %s", evt.Type, string(attrs))
}

// NopRecorder 空发射器（测试用）
type NopRecorder struct{}

// Emit 实现 Recorder
func (NopRecorder) Emit(context.Context, types.Event) {}
