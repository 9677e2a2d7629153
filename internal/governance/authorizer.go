// Package governance 多方授权模块
// 引擎只依赖授权能力本身，签名收集/会话协议由外部协作方实现
package governance

import (
	"context"

	"github.com/sotoJ24/TrustBridge-contracts/internal/types"
)

// Action 受治理门控的操作
type Action string

const (
	ActionPause           Action = "pause"
	ActionResume          Action = "resume"
	ActionUpdateConfig    Action = "update_config"
	ActionAddSource       Action = "add_source"
	ActionRemoveSource    Action = "remove_source"
	ActionAddAdmin        Action = "add_admin"
	ActionRemoveAdmin     Action = "remove_admin"
	ActionAddResponder    Action = "add_responder"
	ActionRemoveResponder Action = "remove_responder"
)

// Authorizer 治理门控能力
// 给定配置的门限N，当且仅当至少N个不同的注册管理员已对本次调用授权时放行
type Authorizer interface {
	Authorize(ctx context.Context, action Action, requiredQuorum uint32) error
}

// AdminLookup 管理员成员检查能力（由引擎侧提供，通常查管理员集合记录）
type AdminLookup func(ctx context.Context, id string) (bool, error)

// MultisigSession 一次调用的审批会话
// 记录已对该调用授权的身份，授权时统计其中注册管理员的去重数量
type MultisigSession struct {
	isAdmin   AdminLookup
	approvers []string
}

// NewMultisigSession 创建审批会话
func NewMultisigSession(isAdmin AdminLookup, approvers ...string) *MultisigSession {
	return &MultisigSession{
		isAdmin:   isAdmin,
		approvers: approvers,
	}
}

// Authorize 实现 Authorizer
func (s *MultisigSession) Authorize(ctx context.Context, action Action, requiredQuorum uint32) error {
	seen := make(map[string]bool, len(s.approvers))
	var count uint32

	for _, id := range s.approvers {
		if seen[id] {
			continue
		}
		seen[id] = true

		ok, err := s.isAdmin(ctx, id)
		if err != nil {
			return err
		}
		if ok {
			count++
		}
	}

	if count < requiredQuorum {
		return types.ErrGovernanceDenied.Wrapf("操作 %s 授权不足: %d/%d", action, count, requiredQuorum)
	}
	return nil
}

// AutoApprove 本地运维模式授权器
// 单运维部署下直接放行所有治理操作，仅用于开发环境与引导初始化
type AutoApprove struct{}

// Authorize 实现 Authorizer
func (AutoApprove) Authorize(context.Context, Action, uint32) error {
	return nil
}
