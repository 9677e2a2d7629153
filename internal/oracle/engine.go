// Package oracle 预言机核心引擎
//
// 执行模型：所有公开操作由单一互斥锁严格串行，一次只执行一个调用；
// 每个调用先完成全部校验再落盘，因此失败的调用不会留下部分写入。
// 唯一的例外是偏差超限：该次提交被拒绝，但熔断器切换到暂停态的写入会保留。
package oracle

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"go.uber.org/zap"

	"github.com/sotoJ24/TrustBridge-contracts/internal/alert"
	"github.com/sotoJ24/TrustBridge-contracts/internal/events"
	"github.com/sotoJ24/TrustBridge-contracts/internal/governance"
	"github.com/sotoJ24/TrustBridge-contracts/internal/price"
	"github.com/sotoJ24/TrustBridge-contracts/internal/storage"
	"github.com/sotoJ24/TrustBridge-contracts/internal/types"
)

// Engine 预言机引擎
type Engine struct {
	store    *storage.RedisStore
	auth     governance.Authorizer
	recorder events.Recorder
	alerts   *alert.LarkAlert // 可为nil（无外发告警）
	logger   *zap.SugaredLogger

	now func() time.Time

	// 串行化：同一时刻只允许一个调用在执行
	mu sync.Mutex
}

// Option 引擎可选参数
type Option func(*Engine)

// WithClock 注入时钟（测试过期边界时使用）
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine 创建预言机引擎
func NewEngine(store *storage.RedisStore, auth governance.Authorizer, recorder events.Recorder, alerts *alert.LarkAlert, logger *zap.SugaredLogger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		auth:     auth,
		recorder: recorder,
		alerts:   alerts,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decimals 价格精度
func (e *Engine) Decimals() uint32 {
	return types.Decimals
}

// IsAdmin 是否为注册管理员（供授权会话做成员检查）
func (e *Engine) IsAdmin(ctx context.Context, id string) (bool, error) {
	admins, err := e.store.GetAdminSet(ctx)
	if err != nil {
		return false, err
	}
	if admins == nil {
		return false, nil
	}
	return admins.Contains(id), nil
}

// Init 初始化引擎：管理员集合、多签门限与预言机配置
func (e *Engine) Init(ctx context.Context, admins []string, minSignatures uint32, cfg types.OracleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing, err := e.store.GetAdminSet(ctx)
	if err != nil {
		return err
	}
	if existing != nil {
		return types.ErrAlreadyInitialized
	}

	if len(admins) == 0 {
		return types.ErrInvalidInput.Wrap("管理员集合为空")
	}
	if minSignatures == 0 || minSignatures > uint32(len(admins)) {
		return types.ErrInvalidInput.Wrapf("多签门限无效: %d（管理员数: %d）", minSignatures, len(admins))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// 三条记录原子写入，熔断器初始为未熔断
	adminSet := types.AdminSet{Admins: admins, MinSignatures: minSignatures}
	if err := e.store.CommitInit(ctx, adminSet, cfg, types.CircuitBreaker{}); err != nil {
		return err
	}

	e.emit(ctx, types.EventTypeInitialized, map[string]string{
		types.AttrKeyAdmin: strings.Join(admins, ","),
		"min_signatures":   strconv.FormatUint(uint64(minSignatures), 10),
	})
	e.logger.Infof("[引擎] 初始化完成: %d个管理员, 门限%d", len(admins), minSignatures)
	return nil
}

// SubmitPrice 受信数据源提交一次报价（推送模式）
//
// 校验顺序: 熔断器 -> 数据源注册表 -> 价格合法性 -> 偏差保护 -> 心跳信号，
// 全部通过后覆盖写入 (asset, source_id) 记录并同步触发聚合
func (e *Engine) SubmitPrice(ctx context.Context, asset types.Asset, newPrice sdkmath.Int, sourceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := asset.Validate(); err != nil {
		return err
	}
	cfg, err := e.requireInitialized(ctx)
	if err != nil {
		return err
	}

	cb, err := e.store.GetCircuitBreaker(ctx)
	if err != nil {
		return err
	}
	if cb.IsPaused {
		return types.ErrCircuitBreakerActive.Wrapf("熔断原因: %s", cb.Reason)
	}

	trusted, err := e.store.GetTrustedSource(ctx, sourceID)
	if err != nil {
		return err
	}
	if trusted == nil {
		return types.ErrUnauthorizedSource.Wrapf("数据源未注册: %s", sourceID)
	}

	if err := price.ValidatePrice(newPrice); err != nil {
		return err
	}

	now := e.nowUnix()

	prev, err := e.store.GetAggregatedPrice(ctx, asset)
	if err != nil {
		return err
	}
	if prev != nil {
		// 偏差保护：相对上一次聚合价格
		dev := price.DeviationBps(newPrice, prev.Price)
		if dev > uint64(cfg.MaxPriceDeviationBps) {
			// 自动熔断。本次提交被拒绝且不记录，但熔断状态会保留
			if err := e.tripBreaker(ctx, now, types.PauseReasonDeviation); err != nil {
				return err
			}
			if e.alerts != nil {
				e.alerts.SendAlert(alert.AlertTypePriceDeviation, asset.String(), map[string]string{
					"数据源":  sourceID,
					"提交价格": price.FormatDecimal(newPrice, types.Decimals),
					"上次价格": price.FormatDecimal(prev.Price, types.Decimals),
					"偏差":   strconv.FormatUint(dev, 10) + " bps",
					"上限":   strconv.FormatUint(uint64(cfg.MaxPriceDeviationBps), 10) + " bps",
				})
			}
			return types.ErrPriceDeviationExceeded.Wrapf("偏差 %d bps 超过上限 %d bps", dev, cfg.MaxPriceDeviationBps)
		}

		// 心跳检查：距上次聚合超过两个心跳周期只发信号，不阻塞提交
		if elapsed := now - prev.Timestamp; elapsed > 0 && uint64(elapsed) > cfg.HeartbeatInterval*2 {
			e.emit(ctx, types.EventTypeHeartbeatMissed, map[string]string{
				types.AttrKeyAsset:      asset.String(),
				types.AttrKeyAgeSeconds: strconv.FormatInt(elapsed, 10),
			})
			if e.alerts != nil {
				e.alerts.SendAlert(alert.AlertTypeHeartbeatMissed, asset.String(), map[string]string{
					"距上次聚合": strconv.FormatInt(elapsed, 10) + " 秒",
					"心跳周期":  strconv.FormatUint(cfg.HeartbeatInterval, 10) + " 秒",
				})
			}
		}
	}

	record := types.PriceSource{
		SourceID:  sourceID,
		Price:     newPrice,
		Timestamp: now,
		Weight:    trusted.Weight,
	}

	// 聚合输入 = 已有记录（本数据源的旧记录被替换）+ 本次记录
	sources, err := e.store.GetPriceSources(ctx, asset)
	if err != nil {
		return err
	}
	replaced := false
	for i := range sources {
		if sources[i].SourceID == sourceID {
			sources[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		sources = append(sources, record)
	}

	agg, ok := price.Aggregate(sources, now, cfg.MaxStalenessSeconds)
	var aggPtr *types.PriceData
	if ok {
		aggPtr = agg
	}

	if err := e.store.CommitSubmission(ctx, asset, record, aggPtr); err != nil {
		return err
	}

	e.emit(ctx, types.EventTypePriceSubmitted, map[string]string{
		types.AttrKeyAsset:     asset.String(),
		types.AttrKeySourceID:  sourceID,
		types.AttrKeyPrice:     newPrice.String(),
		types.AttrKeyTimestamp: strconv.FormatInt(now, 10),
	})
	if ok {
		e.emit(ctx, types.EventTypePriceAggregated, map[string]string{
			types.AttrKeyAsset:       asset.String(),
			types.AttrKeyPrice:       agg.Price.String(),
			types.AttrKeySourceCount: strconv.FormatUint(uint64(agg.SourceCount), 10),
			types.AttrKeyConfidence:  strconv.FormatUint(uint64(agg.Confidence), 10),
		})
	}
	return nil
}

// LastPrice 查询权威聚合价格
//
// 只有足够新鲜且数据源数达标时才返回结果；过期或数据源不足返回 (nil, nil)，
// 表示"当前没有可信答案"，与输入错误严格区分。
// 未过期的应急价格优先于聚合价格返回；已过期的应急价格在读取时被清除。
func (e *Engine) LastPrice(ctx context.Context, asset types.Asset) (*types.PriceData, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := asset.Validate(); err != nil {
		return nil, err
	}

	cfg, err := e.store.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, nil
	}

	now := e.nowUnix()

	em, err := e.store.GetEmergencyPrice(ctx, asset)
	if err != nil {
		return nil, err
	}
	if em != nil {
		if !em.Expired(now) {
			return &types.PriceData{
				Price:       em.Price,
				Timestamp:   em.SetAt,
				SourceCount: 1,
				Confidence:  100,
			}, nil
		}
		// 过期的应急价格不得继续生效
		if err := e.store.DeleteEmergencyPrice(ctx, asset); err != nil {
			return nil, err
		}
	}

	agg, err := e.store.GetAggregatedPrice(ctx, asset)
	if err != nil {
		return nil, err
	}
	if agg == nil {
		return nil, nil
	}

	if age := now - agg.Timestamp; age > 0 && uint64(age) > cfg.MaxStalenessSeconds {
		e.emit(ctx, types.EventTypeStalePrice, map[string]string{
			types.AttrKeyAsset:      asset.String(),
			types.AttrKeyAgeSeconds: strconv.FormatInt(age, 10),
		})
		if e.alerts != nil {
			e.alerts.SendAlert(alert.AlertTypeStalePrice, asset.String(), map[string]string{
				"价格年龄": strconv.FormatInt(age, 10) + " 秒",
				"过期上限": strconv.FormatUint(cfg.MaxStalenessSeconds, 10) + " 秒",
			})
		}
		return nil, nil
	}

	if agg.SourceCount < cfg.MinSourcesRequired {
		return nil, nil
	}

	return agg, nil
}

// GetPriceSources 获取某资产的全部原始报价记录（透明度/审计视图，不做过期过滤）
func (e *Engine) GetPriceSources(ctx context.Context, asset types.Asset) ([]types.PriceSource, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := asset.Validate(); err != nil {
		return nil, err
	}
	return e.store.GetPriceSources(ctx, asset)
}

// Pause 手动熔断（治理门控）
func (e *Engine) Pause(ctx context.Context, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.authorize(ctx, governance.ActionPause); err != nil {
		return err
	}
	return e.tripBreaker(ctx, e.nowUnix(), reason)
}

// Resume 解除熔断（治理门控，没有自动恢复）
func (e *Engine) Resume(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.authorize(ctx, governance.ActionResume); err != nil {
		return err
	}

	if err := e.store.SetCircuitBreaker(ctx, types.CircuitBreaker{}); err != nil {
		return err
	}
	e.emit(ctx, types.EventTypeCircuitBreakerReset, nil)
	e.logger.Infof("[引擎] 熔断已解除")
	return nil
}

// UpdateConfig 更新预言机配置（治理门控）
func (e *Engine) UpdateConfig(ctx context.Context, cfg types.OracleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.authorize(ctx, governance.ActionUpdateConfig); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := e.store.SetConfig(ctx, cfg); err != nil {
		return err
	}
	e.emit(ctx, types.EventTypeConfigUpdated, map[string]string{
		"max_price_deviation_bps": strconv.FormatUint(uint64(cfg.MaxPriceDeviationBps), 10),
		"max_staleness_seconds":   strconv.FormatUint(cfg.MaxStalenessSeconds, 10),
		"min_sources_required":    strconv.FormatUint(uint64(cfg.MinSourcesRequired), 10),
		"heartbeat_interval":      strconv.FormatUint(cfg.HeartbeatInterval, 10),
	})
	return nil
}

// AddSource 注册受信数据源（治理门控）
func (e *Engine) AddSource(ctx context.Context, sourceID string, weight uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.authorize(ctx, governance.ActionAddSource); err != nil {
		return err
	}
	if sourceID == "" {
		return types.ErrInvalidInput.Wrap("数据源标识为空")
	}
	if err := price.ValidateWeight(weight); err != nil {
		return err
	}

	if err := e.store.PutTrustedSource(ctx, types.TrustedSource{SourceID: sourceID, Weight: weight}); err != nil {
		return err
	}
	e.emit(ctx, types.EventTypeSourceAdded, map[string]string{
		types.AttrKeySourceID: sourceID,
		types.AttrKeyWeight:   strconv.FormatUint(uint64(weight), 10),
	})
	return nil
}

// RemoveSource 移除受信数据源（治理门控）
// 历史报价记录保留，由过期判定自然淘汰
func (e *Engine) RemoveSource(ctx context.Context, sourceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.authorize(ctx, governance.ActionRemoveSource); err != nil {
		return err
	}
	if sourceID == "" {
		return types.ErrInvalidInput.Wrap("数据源标识为空")
	}

	if err := e.store.DeleteTrustedSource(ctx, sourceID); err != nil {
		return err
	}
	e.emit(ctx, types.EventTypeSourceRemoved, map[string]string{
		types.AttrKeySourceID: sourceID,
	})
	return nil
}

// AddAdmin 添加管理员（治理门控）
func (e *Engine) AddAdmin(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.authorize(ctx, governance.ActionAddAdmin); err != nil {
		return err
	}
	if id == "" {
		return types.ErrInvalidInput.Wrap("管理员标识为空")
	}

	admins, err := e.requireAdminSet(ctx)
	if err != nil {
		return err
	}
	admins.Add(id)
	if err := e.store.SetAdminSet(ctx, *admins); err != nil {
		return err
	}
	e.emit(ctx, types.EventTypeAdminAdded, map[string]string{
		types.AttrKeyAdmin: id,
	})
	return nil
}

// RemoveAdmin 移除管理员（治理门控）
// 不变量：移除后管理员人数不得低于多签门限
func (e *Engine) RemoveAdmin(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.authorize(ctx, governance.ActionRemoveAdmin); err != nil {
		return err
	}

	admins, err := e.requireAdminSet(ctx)
	if err != nil {
		return err
	}
	if uint32(len(admins.Admins)) <= admins.MinSignatures {
		return types.ErrInsufficientAdmins.Wrapf("管理员数 %d 已等于多签门限 %d", len(admins.Admins), admins.MinSignatures)
	}
	if !admins.Remove(id) {
		return types.ErrInvalidInput.Wrapf("管理员不存在: %s", id)
	}

	if err := e.store.SetAdminSet(ctx, *admins); err != nil {
		return err
	}
	e.emit(ctx, types.EventTypeAdminRemoved, map[string]string{
		types.AttrKeyAdmin: id,
	})
	return nil
}

// AddResponder 添加应急响应角色（治理门控）
// 应急响应角色独立于治理多签，只拥有设置限时应急价格的能力
func (e *Engine) AddResponder(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.authorize(ctx, governance.ActionAddResponder); err != nil {
		return err
	}
	if id == "" {
		return types.ErrInvalidInput.Wrap("响应者标识为空")
	}

	if err := e.store.AddResponder(ctx, id); err != nil {
		return err
	}
	e.emit(ctx, types.EventTypeResponderAdded, map[string]string{
		types.AttrKeyResponder: id,
	})
	return nil
}

// RemoveResponder 移除应急响应角色（治理门控）
func (e *Engine) RemoveResponder(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.authorize(ctx, governance.ActionRemoveResponder); err != nil {
		return err
	}

	if err := e.store.RemoveResponder(ctx, id); err != nil {
		return err
	}
	e.emit(ctx, types.EventTypeResponderRemoved, map[string]string{
		types.AttrKeyResponder: id,
	})
	return nil
}

// EmergencySetPrice 应急响应角色设置限时人工价格，绕过聚合管线
// 到期后该价格自动失效，事件中带上设置者身份与到期时间以便审计
func (e *Engine) EmergencySetPrice(ctx context.Context, responder string, asset types.Asset, newPrice sdkmath.Int, duration time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := asset.Validate(); err != nil {
		return err
	}

	ok, err := e.store.IsResponder(ctx, responder)
	if err != nil {
		return err
	}
	if !ok {
		return types.ErrRoleDenied.Wrapf("非应急响应角色: %s", responder)
	}

	if err := price.ValidatePrice(newPrice); err != nil {
		return err
	}
	if duration <= 0 {
		return types.ErrInvalidInput.Wrapf("应急价格有效期无效: %v", duration)
	}

	now := e.nowUnix()
	record := types.EmergencyPrice{
		Price:     newPrice,
		SetAt:     now,
		ExpiresAt: now + int64(duration/time.Second),
		SetBy:     responder,
	}
	if err := e.store.SetEmergencyPrice(ctx, asset, record); err != nil {
		return err
	}

	e.emit(ctx, types.EventTypeEmergencyPriceSet, map[string]string{
		types.AttrKeyAsset:     asset.String(),
		types.AttrKeyResponder: responder,
		types.AttrKeyPrice:     newPrice.String(),
		types.AttrKeyExpiresAt: strconv.FormatInt(record.ExpiresAt, 10),
	})
	if e.alerts != nil {
		e.alerts.SendAlert(alert.AlertTypeEmergencyPrice, asset.String(), map[string]string{
			"设置者":  responder,
			"价格":   price.FormatDecimal(newPrice, types.Decimals),
			"到期时间": time.Unix(record.ExpiresAt, 0).Format("2006-01-02 15:04:05"),
		})
	}
	return nil
}

// GetCircuitBreaker 获取熔断器状态
func (e *Engine) GetCircuitBreaker(ctx context.Context) (types.CircuitBreaker, error) {
	return e.store.GetCircuitBreaker(ctx)
}

// GetConfig 获取预言机配置
func (e *Engine) GetConfig(ctx context.Context) (*types.OracleConfig, error) {
	return e.store.GetConfig(ctx)
}

// GetAdmins 获取全部管理员
func (e *Engine) GetAdmins(ctx context.Context) ([]string, error) {
	admins, err := e.store.GetAdminSet(ctx)
	if err != nil {
		return nil, err
	}
	if admins == nil {
		return nil, nil
	}
	return admins.Admins, nil
}

// ---- 内部辅助 ----

func (e *Engine) nowUnix() int64 {
	return e.now().Unix()
}

// requireInitialized 要求引擎已初始化并返回当前配置
func (e *Engine) requireInitialized(ctx context.Context) (*types.OracleConfig, error) {
	cfg, err := e.store.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, types.ErrNotInitialized
	}
	return cfg, nil
}

func (e *Engine) requireAdminSet(ctx context.Context) (*types.AdminSet, error) {
	admins, err := e.store.GetAdminSet(ctx)
	if err != nil {
		return nil, err
	}
	if admins == nil {
		return nil, types.ErrNotInitialized
	}
	return admins, nil
}

// authorize 治理门控：要求至少 min_signatures 个注册管理员已对本次调用授权
func (e *Engine) authorize(ctx context.Context, action governance.Action) error {
	admins, err := e.requireAdminSet(ctx)
	if err != nil {
		return err
	}
	return e.auth.Authorize(ctx, action, admins.MinSignatures)
}

// tripBreaker 写入熔断状态并发出事件/告警
func (e *Engine) tripBreaker(ctx context.Context, nowUnix int64, reason string) error {
	cb := types.CircuitBreaker{
		IsPaused:       true,
		PauseTimestamp: nowUnix,
		Reason:         reason,
	}
	if err := e.store.SetCircuitBreaker(ctx, cb); err != nil {
		return err
	}

	e.emit(ctx, types.EventTypeCircuitBreakerTripped, map[string]string{
		types.AttrKeyReason: reason,
	})
	if e.alerts != nil {
		e.alerts.SendAlert(alert.AlertTypeCircuitBreaker, "", map[string]string{
			"原因": reason,
		})
	}
	e.logger.Warnf("[引擎] 熔断器触发: %s", reason)
	return nil
}

func (e *Engine) emit(ctx context.Context, eventType string, attrs map[string]string) {
	e.recorder.Emit(ctx, types.NewEvent(eventType, e.nowUnix(), attrs))
}
