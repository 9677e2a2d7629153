// Package types 公共类型定义
package types

import (
	sdkerrors "cosmossdk.io/errors"
)

// ModuleName 错误注册命名空间
const ModuleName = "oracle"

// 预言机哨兵错误
// 错误码与链上合约错误枚举保持一致，文本保留英文便于外部系统匹配
var (
	// 初始化
	ErrAlreadyInitialized = sdkerrors.Register(ModuleName, 2, "already initialized")
	ErrNotInitialized     = sdkerrors.Register(ModuleName, 3, "not initialized")

	// 输入校验（拒绝时不产生任何状态变更）
	ErrInvalidInput  = sdkerrors.Register(ModuleName, 4, "invalid input")
	ErrInvalidWeight = sdkerrors.Register(ModuleName, 5, "invalid weight")
	ErrInvalidPrice  = sdkerrors.Register(ModuleName, 6, "invalid price")

	// 授权（拒绝时不产生任何状态变更）
	ErrUnauthorizedSource = sdkerrors.Register(ModuleName, 7, "unauthorized source")
	ErrGovernanceDenied   = sdkerrors.Register(ModuleName, 8, "governance denied")
	ErrRoleDenied         = sdkerrors.Register(ModuleName, 9, "role denied")
	ErrInsufficientAdmins = sdkerrors.Register(ModuleName, 10, "insufficient admins")

	// 保护性拒绝
	// PriceDeviationExceeded 是唯一一个失败调用仍会提交状态变更的错误：
	// 触发它的提交被拒绝，但熔断器切换到暂停态的写入会保留
	ErrCircuitBreakerActive   = sdkerrors.Register(ModuleName, 11, "circuit breaker active")
	ErrPriceDeviationExceeded = sdkerrors.Register(ModuleName, 12, "price deviation exceeded")

	// 拉取聚合模式
	ErrInsufficientValidPrices = sdkerrors.Register(ModuleName, 13, "insufficient valid prices")
)
