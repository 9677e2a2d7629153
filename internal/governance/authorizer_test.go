// Package governance 多方授权单元测试
package governance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sotoJ24/TrustBridge-contracts/internal/types"
)

// staticAdminLookup 固定管理员集合的成员检查
func staticAdminLookup(admins ...string) AdminLookup {
	set := make(map[string]bool, len(admins))
	for _, a := range admins {
		set[a] = true
	}
	return func(_ context.Context, id string) (bool, error) {
		return set[id], nil
	}
}

// TestMultisigSessionAuthorize 测试多签审批会话
func TestMultisigSessionAuthorize(t *testing.T) {
	lookup := staticAdminLookup("alice", "bob", "carol")

	testCases := []struct {
		name      string
		approvers []string
		quorum    uint32
		wantErr   bool
	}{
		{
			name:      "达到门限",
			approvers: []string{"alice", "bob"},
			quorum:    2,
			wantErr:   false,
		},
		{
			name:      "超过门限",
			approvers: []string{"alice", "bob", "carol"},
			quorum:    2,
			wantErr:   false,
		},
		{
			name:      "授权不足",
			approvers: []string{"alice"},
			quorum:    2,
			wantErr:   true,
		},
		{
			name:      "重复授权只计一次",
			approvers: []string{"alice", "alice", "alice"},
			quorum:    2,
			wantErr:   true,
		},
		{
			name:      "非管理员不计数",
			approvers: []string{"alice", "mallory"},
			quorum:    2,
			wantErr:   true,
		},
		{
			name:      "没有任何授权",
			approvers: nil,
			quorum:    1,
			wantErr:   true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			session := NewMultisigSession(lookup, tc.approvers...)
			err := session.Authorize(context.Background(), ActionPause, tc.quorum)
			if tc.wantErr {
				assert.Error(t, err, "应该拒绝授权")
				assert.True(t, types.ErrGovernanceDenied.Is(err), "应该是治理拒绝错误")
			} else {
				assert.NoError(t, err, "应该授权通过")
			}
		})
	}
}

// TestAutoApprove 测试直通授权器
func TestAutoApprove(t *testing.T) {
	auth := AutoApprove{}
	assert.NoError(t, auth.Authorize(context.Background(), ActionUpdateConfig, 99), "直通授权器应该放行所有操作")
}
