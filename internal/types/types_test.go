// Package types 公共类型单元测试
package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestAssetValidate 测试资产标识校验
func TestAssetValidate(t *testing.T) {
	testCases := []struct {
		name    string
		asset   Asset
		wantErr bool
	}{
		{
			name:    "合法原生资产",
			asset:   NewNativeAsset("CA7QYNF7SOWQ3GLR2BGMZEHXAVIRZA4KVWLTJJFC7MGXUA74P7UJVWVC"),
			wantErr: false,
		},
		{
			name:    "合法符号资产",
			asset:   NewSymbolAsset("XLM"),
			wantErr: false,
		},
		{
			name:    "原生资产地址为空",
			asset:   NewNativeAsset(""),
			wantErr: true,
		},
		{
			name:    "符号资产符号为空",
			asset:   NewSymbolAsset(""),
			wantErr: true,
		},
		{
			name:    "未知资产类型",
			asset:   Asset{Kind: "unknown"},
			wantErr: true,
		},
		{
			name:    "零值资产",
			asset:   Asset{},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.asset.Validate()
			if tc.wantErr {
				assert.Error(t, err, "应该返回错误")
				assert.True(t, ErrInvalidInput.Is(err), "应该是输入错误")
			} else {
				assert.NoError(t, err, "应该校验通过")
			}
		})
	}
}

// TestAssetKey 测试资产存储key
func TestAssetKey(t *testing.T) {
	native := NewNativeAsset("CADDR")
	symbol := NewSymbolAsset("XLM")

	assert.Equal(t, "native:CADDR", native.Key(), "原生资产key应该带native前缀")
	assert.Equal(t, "symbol:XLM", symbol.Key(), "符号资产key应该带symbol前缀")
	assert.NotEqual(t, NewSymbolAsset("A").Key(), NewNativeAsset("A").Key(), "不同形态的同名资产key应该不同")
}

// TestAdminSet 测试管理员集合操作
func TestAdminSet(t *testing.T) {
	s := AdminSet{Admins: []string{"alice", "bob"}, MinSignatures: 2}

	assert.True(t, s.Contains("alice"), "应该包含alice")
	assert.False(t, s.Contains("carol"), "不应该包含carol")

	// 重复添加不生效
	s.Add("alice")
	assert.Len(t, s.Admins, 2, "重复添加不应该增加人数")

	s.Add("carol")
	assert.Len(t, s.Admins, 3, "添加新管理员后应该是3人")

	assert.True(t, s.Remove("bob"), "移除已存在的管理员应该返回true")
	assert.False(t, s.Remove("bob"), "重复移除应该返回false")
	assert.Len(t, s.Admins, 2, "移除后应该剩2人")
}

// TestOracleConfigValidate 测试配置校验
func TestOracleConfigValidate(t *testing.T) {
	valid := OracleConfig{
		MaxPriceDeviationBps: 500,
		MaxStalenessSeconds:  300,
		MinSourcesRequired:   1,
		HeartbeatInterval:    60,
	}
	assert.NoError(t, valid.Validate(), "合法配置应该通过")

	invalid := valid
	invalid.MaxPriceDeviationBps = 10001
	assert.Error(t, invalid.Validate(), "偏差超过10000基点应该被拒绝")
}

// TestEmergencyPriceExpired 测试应急价格过期判定
func TestEmergencyPriceExpired(t *testing.T) {
	p := EmergencyPrice{ExpiresAt: 1000}

	assert.False(t, p.Expired(999), "到期前不应该过期")
	assert.False(t, p.Expired(1000), "恰好到期时刻不应该过期")
	assert.True(t, p.Expired(1001), "超过到期时刻应该过期")
}
