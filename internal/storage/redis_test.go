// Package storage Redis存储单元测试
package storage

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sotoJ24/TrustBridge-contracts/internal/types"
)

// setupTestStore 创建基于miniredis的测试存储
func setupTestStore(t *testing.T) *RedisStore {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := NewRedisStore(mr.Addr(), "", 0)
	require.NoError(t, err, "应该成功连接miniredis")
	t.Cleanup(func() { store.Close() })

	return store
}

// TestPriceSourceCRUD 测试报价记录的读写与覆盖
func TestPriceSourceCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	asset := types.NewSymbolAsset("XLM")

	// 空记录
	sources, err := store.GetPriceSources(ctx, asset)
	require.NoError(t, err)
	assert.Empty(t, sources, "初始时应该没有报价记录")

	// 写入两个数据源
	require.NoError(t, store.SetPriceSource(ctx, asset, types.PriceSource{
		SourceID: "s1", Price: sdkmath.NewInt(100), Timestamp: 10, Weight: 60,
	}))
	require.NoError(t, store.SetPriceSource(ctx, asset, types.PriceSource{
		SourceID: "s2", Price: sdkmath.NewInt(200), Timestamp: 11, Weight: 40,
	}))

	sources, err = store.GetPriceSources(ctx, asset)
	require.NoError(t, err)
	assert.Len(t, sources, 2, "应该有2条报价记录")

	// 覆盖 s1，记录数不变
	require.NoError(t, store.SetPriceSource(ctx, asset, types.PriceSource{
		SourceID: "s1", Price: sdkmath.NewInt(150), Timestamp: 12, Weight: 60,
	}))
	sources, err = store.GetPriceSources(ctx, asset)
	require.NoError(t, err)
	assert.Len(t, sources, 2, "覆盖写入不应该增加记录数")

	for _, src := range sources {
		if src.SourceID == "s1" {
			assert.Equal(t, "150", src.Price.String(), "s1的价格应该被覆盖")
		}
	}

	// 删除 s1
	require.NoError(t, store.RemovePriceSources(ctx, asset, "s1"))
	sources, err = store.GetPriceSources(ctx, asset)
	require.NoError(t, err)
	assert.Len(t, sources, 1, "删除后应该剩1条记录")
}

// TestAggregatedPriceCRUD 测试聚合价格读写
func TestAggregatedPriceCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	asset := types.NewNativeAsset("CADDR")

	// 不存在时返回 (nil, nil)
	data, err := store.GetAggregatedPrice(ctx, asset)
	require.NoError(t, err, "不存在不应该是错误")
	assert.Nil(t, data, "不存在时应该返回nil")

	expected := types.PriceData{
		Price:       sdkmath.NewInt(1234500000),
		Timestamp:   100,
		SourceCount: 2,
		Confidence:  100,
	}
	require.NoError(t, store.SetAggregatedPrice(ctx, asset, expected))

	data, err = store.GetAggregatedPrice(ctx, asset)
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, expected.Price.String(), data.Price.String(), "价格应该一致")
	assert.Equal(t, expected.SourceCount, data.SourceCount, "数据源数应该一致")
	assert.Equal(t, expected.Confidence, data.Confidence, "置信度应该一致")
}

// TestCommitSubmission 测试报价记录与聚合价格的原子提交
func TestCommitSubmission(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	asset := types.NewSymbolAsset("USDC")

	src := types.PriceSource{SourceID: "s1", Price: sdkmath.NewInt(100), Timestamp: 10, Weight: 50}
	agg := &types.PriceData{Price: sdkmath.NewInt(100), Timestamp: 10, SourceCount: 1, Confidence: 100}

	require.NoError(t, store.CommitSubmission(ctx, asset, src, agg))

	sources, err := store.GetPriceSources(ctx, asset)
	require.NoError(t, err)
	assert.Len(t, sources, 1, "报价记录应该已写入")

	data, err := store.GetAggregatedPrice(ctx, asset)
	require.NoError(t, err)
	require.NotNil(t, data, "聚合价格应该已写入")
	assert.Equal(t, "100", data.Price.String())

	// 聚合结果为空时只写报价记录，保留旧聚合价格
	src2 := types.PriceSource{SourceID: "s2", Price: sdkmath.NewInt(999), Timestamp: 11, Weight: 50}
	require.NoError(t, store.CommitSubmission(ctx, asset, src2, nil))

	data, err = store.GetAggregatedPrice(ctx, asset)
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, "100", data.Price.String(), "旧聚合价格应该保留")
}

// TestCommitInit 测试初始化状态的原子提交
func TestCommitInit(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	admins := types.AdminSet{Admins: []string{"alice", "bob"}, MinSignatures: 2}
	cfg := types.OracleConfig{
		MaxPriceDeviationBps: 500,
		MaxStalenessSeconds:  300,
		MinSourcesRequired:   1,
		HeartbeatInterval:    60,
	}

	require.NoError(t, store.CommitInit(ctx, admins, cfg, types.CircuitBreaker{}))

	// 三条记录同批落盘，不存在只写了一部分的中间态
	gotAdmins, err := store.GetAdminSet(ctx)
	require.NoError(t, err)
	require.NotNil(t, gotAdmins, "管理员集合应该已写入")
	assert.Equal(t, admins.Admins, gotAdmins.Admins)

	gotCfg, err := store.GetConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, gotCfg, "配置应该与管理员集合一起写入")
	assert.Equal(t, cfg, *gotCfg)

	cb, err := store.GetCircuitBreaker(ctx)
	require.NoError(t, err)
	assert.False(t, cb.IsPaused, "熔断器应该初始化为未熔断")
}

// TestCircuitBreakerCRUD 测试熔断器状态读写
func TestCircuitBreakerCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// 记录不存在时默认未熔断
	cb, err := store.GetCircuitBreaker(ctx)
	require.NoError(t, err)
	assert.False(t, cb.IsPaused, "默认应该未熔断")

	require.NoError(t, store.SetCircuitBreaker(ctx, types.CircuitBreaker{
		IsPaused:       true,
		PauseTimestamp: 100,
		Reason:         types.PauseReasonDeviation,
	}))

	cb, err = store.GetCircuitBreaker(ctx)
	require.NoError(t, err)
	assert.True(t, cb.IsPaused, "应该处于熔断状态")
	assert.Equal(t, types.PauseReasonDeviation, cb.Reason, "熔断原因应该一致")
	assert.Equal(t, int64(100), cb.PauseTimestamp, "熔断时间应该一致")
}

// TestConfigAndAdminSetCRUD 测试配置与管理员集合读写
func TestConfigAndAdminSetCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	cfg, err := store.GetConfig(ctx)
	require.NoError(t, err)
	assert.Nil(t, cfg, "未初始化时配置应该为nil")

	admins, err := store.GetAdminSet(ctx)
	require.NoError(t, err)
	assert.Nil(t, admins, "未初始化时管理员集合应该为nil")

	require.NoError(t, store.SetConfig(ctx, types.OracleConfig{
		MaxPriceDeviationBps: 500,
		MaxStalenessSeconds:  300,
		MinSourcesRequired:   2,
		HeartbeatInterval:    60,
	}))
	require.NoError(t, store.SetAdminSet(ctx, types.AdminSet{
		Admins:        []string{"alice", "bob"},
		MinSignatures: 2,
	}))

	cfg, err = store.GetConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, uint32(500), cfg.MaxPriceDeviationBps)
	assert.Equal(t, uint32(2), cfg.MinSourcesRequired)

	admins, err = store.GetAdminSet(ctx)
	require.NoError(t, err)
	require.NotNil(t, admins)
	assert.Equal(t, []string{"alice", "bob"}, admins.Admins)
	assert.Equal(t, uint32(2), admins.MinSignatures)
}

// TestTrustedSourceRegistry 测试受信数据源注册表
func TestTrustedSourceRegistry(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	src, err := store.GetTrustedSource(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, src, "未注册的数据源应该返回nil")

	require.NoError(t, store.PutTrustedSource(ctx, types.TrustedSource{SourceID: "s1", Weight: 60}))
	require.NoError(t, store.PutTrustedSource(ctx, types.TrustedSource{SourceID: "s2", Weight: 40}))

	src, err = store.GetTrustedSource(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, src)
	assert.Equal(t, uint32(60), src.Weight, "权重应该一致")

	all, err := store.ListTrustedSources(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2, "应该有2个受信数据源")

	require.NoError(t, store.DeleteTrustedSource(ctx, "s1"))
	src, err = store.GetTrustedSource(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, src, "删除后应该查不到")
}

// TestResponderSet 测试应急响应角色集合
func TestResponderSet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	ok, err := store.IsResponder(ctx, "guardian")
	require.NoError(t, err)
	assert.False(t, ok, "未登记前不应该是响应者")

	require.NoError(t, store.AddResponder(ctx, "guardian"))
	ok, err = store.IsResponder(ctx, "guardian")
	require.NoError(t, err)
	assert.True(t, ok, "登记后应该是响应者")

	require.NoError(t, store.RemoveResponder(ctx, "guardian"))
	ok, err = store.IsResponder(ctx, "guardian")
	require.NoError(t, err)
	assert.False(t, ok, "移除后不应该是响应者")
}

// TestEmergencyPriceCRUD 测试应急价格读写
func TestEmergencyPriceCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	asset := types.NewSymbolAsset("XLM")

	p, err := store.GetEmergencyPrice(ctx, asset)
	require.NoError(t, err)
	assert.Nil(t, p, "不存在时应该返回nil")

	require.NoError(t, store.SetEmergencyPrice(ctx, asset, types.EmergencyPrice{
		Price:     sdkmath.NewInt(1000000),
		SetAt:     100,
		ExpiresAt: 400,
		SetBy:     "guardian",
	}))

	p, err = store.GetEmergencyPrice(ctx, asset)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "1000000", p.Price.String())
	assert.Equal(t, "guardian", p.SetBy)
	assert.Equal(t, int64(400), p.ExpiresAt)

	require.NoError(t, store.DeleteEmergencyPrice(ctx, asset))
	p, err = store.GetEmergencyPrice(ctx, asset)
	require.NoError(t, err)
	assert.Nil(t, p, "删除后应该返回nil")
}
