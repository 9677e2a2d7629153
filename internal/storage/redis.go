// Package storage Redis存储模块
// 引擎的持久化存储：每个记录族独立读写，组件之间只通过key查找共享数据
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sotoJ24/TrustBridge-contracts/internal/types"
)

const (
	// Key布局
	keyPrefixSources    = "oracle:sources:"    // 按资产分键的hash，field为source_id
	keyPrefixAggregated = "oracle:aggregated:" // 按资产分键的聚合价格
	keyPrefixEmergency  = "oracle:emergency:"  // 按资产分键的应急价格
	keyBreaker          = "oracle:breaker"     // 全局熔断器（唯一实例）
	keyConfig           = "oracle:config"      // 预言机配置
	keyAdmins           = "oracle:admins"      // 管理员集合
	keyRegistry         = "oracle:registry"    // 受信数据源注册表（hash）
	keyResponders       = "oracle:responders"  // 应急响应角色集合（set）

	connectTimeout = 5 * time.Second
)

// RedisStore Redis存储
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 创建Redis存储
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis连接失败: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Client 底层Redis客户端（审计事件流等共用同一连接）
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close 关闭连接
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// ---- 按 (资产, 数据源) 分键的报价记录 ----

// SetPriceSource 覆盖写入某数据源对某资产的最新报价
// 每个 (asset, source_id) 只保留一条，覆盖更新而不追加
func (s *RedisStore) SetPriceSource(ctx context.Context, asset types.Asset, src types.PriceSource) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("序列化报价记录失败: %w", err)
	}
	return s.client.HSet(ctx, keyPrefixSources+asset.Key(), src.SourceID, data).Err()
}

// GetPriceSources 获取某资产的全部数据源报价记录（不做过期过滤）
func (s *RedisStore) GetPriceSources(ctx context.Context, asset types.Asset) ([]types.PriceSource, error) {
	fields, err := s.client.HGetAll(ctx, keyPrefixSources+asset.Key()).Result()
	if err != nil {
		return nil, fmt.Errorf("获取报价记录失败: %w", err)
	}

	sources := make([]types.PriceSource, 0, len(fields))
	for _, raw := range fields {
		var src types.PriceSource
		if err := json.Unmarshal([]byte(raw), &src); err != nil {
			return nil, fmt.Errorf("解析报价记录失败: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// RemovePriceSources 删除某资产下指定数据源的报价记录（数据源被移出注册表时调用）
func (s *RedisStore) RemovePriceSources(ctx context.Context, asset types.Asset, sourceID string) error {
	return s.client.HDel(ctx, keyPrefixSources+asset.Key(), sourceID).Err()
}

// ---- 按资产分键的聚合价格 ----

// SetAggregatedPrice 覆盖写入聚合价格
func (s *RedisStore) SetAggregatedPrice(ctx context.Context, asset types.Asset, data types.PriceData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("序列化聚合价格失败: %w", err)
	}
	return s.client.Set(ctx, keyPrefixAggregated+asset.Key(), raw, 0).Err()
}

// GetAggregatedPrice 获取聚合价格，不存在时返回 (nil, nil)
func (s *RedisStore) GetAggregatedPrice(ctx context.Context, asset types.Asset) (*types.PriceData, error) {
	raw, err := s.client.Get(ctx, keyPrefixAggregated+asset.Key()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("获取聚合价格失败: %w", err)
	}

	var data types.PriceData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("解析聚合价格失败: %w", err)
	}
	return &data, nil
}

// CommitSubmission 原子提交一次报价：数据源记录 + 新聚合价格一起写入
// 通过TxPipeline保证要么全部落盘要么全部不落盘
func (s *RedisStore) CommitSubmission(ctx context.Context, asset types.Asset, src types.PriceSource, agg *types.PriceData) error {
	srcData, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("序列化报价记录失败: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, keyPrefixSources+asset.Key(), src.SourceID, srcData)

	if agg != nil {
		aggData, err := json.Marshal(agg)
		if err != nil {
			return fmt.Errorf("序列化聚合价格失败: %w", err)
		}
		pipe.Set(ctx, keyPrefixAggregated+asset.Key(), aggData, 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("提交报价失败: %w", err)
	}
	return nil
}

// CommitInit 原子提交初始化状态：管理员集合、配置与熔断器一起写入
// 通过TxPipeline保证三条记录要么全部落盘要么全部不落盘，避免半初始化状态
func (s *RedisStore) CommitInit(ctx context.Context, admins types.AdminSet, cfg types.OracleConfig, cb types.CircuitBreaker) error {
	adminData, err := json.Marshal(admins)
	if err != nil {
		return fmt.Errorf("序列化管理员集合失败: %w", err)
	}
	cfgData, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}
	cbData, err := json.Marshal(cb)
	if err != nil {
		return fmt.Errorf("序列化熔断器状态失败: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyAdmins, adminData, 0)
	pipe.Set(ctx, keyConfig, cfgData, 0)
	pipe.Set(ctx, keyBreaker, cbData, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("提交初始化状态失败: %w", err)
	}
	return nil
}

// ---- 全局熔断器 ----

// SetCircuitBreaker 写入熔断器状态
func (s *RedisStore) SetCircuitBreaker(ctx context.Context, cb types.CircuitBreaker) error {
	raw, err := json.Marshal(cb)
	if err != nil {
		return fmt.Errorf("序列化熔断器状态失败: %w", err)
	}
	return s.client.Set(ctx, keyBreaker, raw, 0).Err()
}

// GetCircuitBreaker 获取熔断器状态，记录不存在时默认为未熔断
func (s *RedisStore) GetCircuitBreaker(ctx context.Context) (types.CircuitBreaker, error) {
	raw, err := s.client.Get(ctx, keyBreaker).Bytes()
	if err != nil {
		if err == redis.Nil {
			return types.CircuitBreaker{}, nil
		}
		return types.CircuitBreaker{}, fmt.Errorf("获取熔断器状态失败: %w", err)
	}

	var cb types.CircuitBreaker
	if err := json.Unmarshal(raw, &cb); err != nil {
		return types.CircuitBreaker{}, fmt.Errorf("解析熔断器状态失败: %w", err)
	}
	return cb, nil
}

// ---- 预言机配置 ----

// SetConfig 写入预言机配置
func (s *RedisStore) SetConfig(ctx context.Context, cfg types.OracleConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}
	return s.client.Set(ctx, keyConfig, raw, 0).Err()
}

// GetConfig 获取预言机配置，未初始化时返回 (nil, nil)
func (s *RedisStore) GetConfig(ctx context.Context) (*types.OracleConfig, error) {
	raw, err := s.client.Get(ctx, keyConfig).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("获取配置失败: %w", err)
	}

	var cfg types.OracleConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return &cfg, nil
}

// ---- 管理员集合 ----

// SetAdminSet 写入管理员集合
func (s *RedisStore) SetAdminSet(ctx context.Context, admins types.AdminSet) error {
	raw, err := json.Marshal(admins)
	if err != nil {
		return fmt.Errorf("序列化管理员集合失败: %w", err)
	}
	return s.client.Set(ctx, keyAdmins, raw, 0).Err()
}

// GetAdminSet 获取管理员集合，未初始化时返回 (nil, nil)
func (s *RedisStore) GetAdminSet(ctx context.Context) (*types.AdminSet, error) {
	raw, err := s.client.Get(ctx, keyAdmins).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("获取管理员集合失败: %w", err)
	}

	var admins types.AdminSet
	if err := json.Unmarshal(raw, &admins); err != nil {
		return nil, fmt.Errorf("解析管理员集合失败: %w", err)
	}
	return &admins, nil
}

// ---- 受信数据源注册表 ----

// PutTrustedSource 写入受信数据源
func (s *RedisStore) PutTrustedSource(ctx context.Context, src types.TrustedSource) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("序列化受信数据源失败: %w", err)
	}
	return s.client.HSet(ctx, keyRegistry, src.SourceID, raw).Err()
}

// GetTrustedSource 获取受信数据源，不存在时返回 (nil, nil)
func (s *RedisStore) GetTrustedSource(ctx context.Context, sourceID string) (*types.TrustedSource, error) {
	raw, err := s.client.HGet(ctx, keyRegistry, sourceID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("获取受信数据源失败: %w", err)
	}

	var src types.TrustedSource
	if err := json.Unmarshal(raw, &src); err != nil {
		return nil, fmt.Errorf("解析受信数据源失败: %w", err)
	}
	return &src, nil
}

// DeleteTrustedSource 删除受信数据源
func (s *RedisStore) DeleteTrustedSource(ctx context.Context, sourceID string) error {
	return s.client.HDel(ctx, keyRegistry, sourceID).Err()
}

// ListTrustedSources 列出全部受信数据源
func (s *RedisStore) ListTrustedSources(ctx context.Context) ([]types.TrustedSource, error) {
	fields, err := s.client.HGetAll(ctx, keyRegistry).Result()
	if err != nil {
		return nil, fmt.Errorf("列出受信数据源失败: %w", err)
	}

	sources := make([]types.TrustedSource, 0, len(fields))
	for _, raw := range fields {
		var src types.TrustedSource
		if err := json.Unmarshal([]byte(raw), &src); err != nil {
			return nil, fmt.Errorf("解析受信数据源失败: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// ---- 应急响应角色集合 ----

// AddResponder 添加应急响应角色
func (s *RedisStore) AddResponder(ctx context.Context, id string) error {
	return s.client.SAdd(ctx, keyResponders, id).Err()
}

// RemoveResponder 移除应急响应角色
func (s *RedisStore) RemoveResponder(ctx context.Context, id string) error {
	return s.client.SRem(ctx, keyResponders, id).Err()
}

// IsResponder 是否为应急响应角色
func (s *RedisStore) IsResponder(ctx context.Context, id string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, keyResponders, id).Result()
	if err != nil {
		return false, fmt.Errorf("查询应急响应角色失败: %w", err)
	}
	return ok, nil
}

// ---- 应急价格 ----

// SetEmergencyPrice 写入应急价格
func (s *RedisStore) SetEmergencyPrice(ctx context.Context, asset types.Asset, p types.EmergencyPrice) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("序列化应急价格失败: %w", err)
	}
	return s.client.Set(ctx, keyPrefixEmergency+asset.Key(), raw, 0).Err()
}

// GetEmergencyPrice 获取应急价格，不存在时返回 (nil, nil)
func (s *RedisStore) GetEmergencyPrice(ctx context.Context, asset types.Asset) (*types.EmergencyPrice, error) {
	raw, err := s.client.Get(ctx, keyPrefixEmergency+asset.Key()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("获取应急价格失败: %w", err)
	}

	var p types.EmergencyPrice
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("解析应急价格失败: %w", err)
	}
	return &p, nil
}

// DeleteEmergencyPrice 删除应急价格（过期后清除，避免悄悄续命）
func (s *RedisStore) DeleteEmergencyPrice(ctx context.Context, asset types.Asset) error {
	return s.client.Del(ctx, keyPrefixEmergency+asset.Key()).Err()
}
