// Package aggregator 拉取聚合模块
// 推送模式之外的另一种部署形态：不接受数据源直接提交，而是按轮询周期
// 向配置的外部报价源取数，应用与推送模式完全相同的加权平均/偏差公式。
// 偏差超阈值在此模式下只告警不阻断（报价源无法作为第一方提交者被认证时的软化变体）
package aggregator

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sotoJ24/TrustBridge-contracts/internal/alert"
	"github.com/sotoJ24/TrustBridge-contracts/internal/events"
	"github.com/sotoJ24/TrustBridge-contracts/internal/feed"
	"github.com/sotoJ24/TrustBridge-contracts/internal/price"
	"github.com/sotoJ24/TrustBridge-contracts/internal/storage"
	"github.com/sotoJ24/TrustBridge-contracts/internal/throttle"
	"github.com/sotoJ24/TrustBridge-contracts/internal/types"
)

// Config 拉取聚合配置
type Config struct {
	PollInterval       time.Duration // 轮询周期
	HeartbeatTimeout   uint64        // 报价有效期（秒），超过视为未响应
	MinOraclesRequired uint32        // 所需最少有效报价源数
	DeviationAlertBps  uint64        // 单源偏差告警阈值（基点）
}

// Runner 拉取聚合器
type Runner struct {
	feeds     []feed.Feed
	assets    []types.Asset
	store     *storage.RedisStore
	recorder  events.Recorder
	alerts    *alert.LarkAlert // 可为nil
	throttler *throttle.Throttler
	cfg       Config
	logger    *zap.SugaredLogger

	now  func() time.Time
	done chan struct{}
}

// NewRunner 创建拉取聚合器
func NewRunner(feeds []feed.Feed, assets []types.Asset, store *storage.RedisStore, recorder events.Recorder, alerts *alert.LarkAlert, throttler *throttle.Throttler, cfg Config, logger *zap.SugaredLogger) *Runner {
	return &Runner{
		feeds:     feeds,
		assets:    assets,
		store:     store,
		recorder:  recorder,
		alerts:    alerts,
		throttler: throttler,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// SetClock 注入时钟（测试用）
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// Start 启动轮询循环
func (r *Runner) Start(ctx context.Context) {
	r.logger.Infof("[拉取聚合] 启动，轮询周期: %v, 报价源: %d个, 资产: %d个", r.cfg.PollInterval, len(r.feeds), len(r.assets))

	// 立即执行一次
	r.pollOnce(ctx)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Infof("[拉取聚合] 收到停止信号")
			return
		case <-r.done:
			r.logger.Infof("[拉取聚合] 停止")
			return
		case <-ticker.C:
			r.pollOnce(ctx)
		}
	}
}

// Stop 停止轮询
func (r *Runner) Stop() {
	close(r.done)
}

// pollOnce 对所有资产执行一轮聚合
func (r *Runner) pollOnce(ctx context.Context) {
	for _, asset := range r.assets {
		if err := r.AggregateAsset(ctx, asset); err != nil {
			r.logger.Warnf("[拉取聚合] %s 聚合失败: %v", asset, err)
		}
	}
}

// AggregateAsset 对单个资产执行一次拉取聚合
func (r *Runner) AggregateAsset(ctx context.Context, asset types.Asset) error {
	now := r.now()
	nowUnix := now.Unix()

	var sources []types.PriceSource
	var freshCount uint32

	for _, f := range r.feeds {
		quote, err := f.Fetch(ctx, asset)
		if err != nil {
			r.logger.Warnf("[拉取聚合] 报价源 %s 取数失败: %v", f.Name(), err)
			continue
		}

		ts := quote.Timestamp.Unix()
		sources = append(sources, types.PriceSource{
			SourceID:  f.Name(),
			Price:     quote.Price,
			Timestamp: ts,
			Weight:    f.Weight(),
		})

		if age := nowUnix - ts; age <= 0 || uint64(age) <= r.cfg.HeartbeatTimeout {
			freshCount++
		}
	}

	// 有效报价源不足时保留上一次聚合结果，不落盘
	if freshCount < r.cfg.MinOraclesRequired {
		if r.alerts != nil {
			r.alerts.SendAlert(alert.AlertTypeInsufficientFeeds, asset.String(), map[string]string{
				"有效报价源": strconv.FormatUint(uint64(freshCount), 10),
				"所需最少":  strconv.FormatUint(uint64(r.cfg.MinOraclesRequired), 10),
			})
		}
		return types.ErrInsufficientValidPrices.Wrapf("有效报价源 %d/%d", freshCount, r.cfg.MinOraclesRequired)
	}

	agg, ok := price.Aggregate(sources, nowUnix, r.cfg.HeartbeatTimeout)
	if !ok {
		return types.ErrInsufficientValidPrices.Wrap("没有可聚合的报价")
	}

	// 软校验：单源对聚合价的偏差超阈值只告警，不阻断本轮聚合
	r.checkSourceDeviation(ctx, asset, sources, agg)

	// 写入瘦身：变化太小或间隔太短时跳过落盘
	decision := r.throttler.ShouldWrite(asset.Key(), agg.Price, now)
	if !decision.ShouldWrite {
		r.logger.Debugf("[拉取聚合] %s 跳过落盘: %s", asset, decision.Reason)
		return nil
	}

	if err := r.store.SetAggregatedPrice(ctx, asset, *agg); err != nil {
		return err
	}
	r.throttler.ConfirmWrite(asset.Key(), agg.Price, now)

	r.recorder.Emit(ctx, types.NewEvent(types.EventTypePriceAggregated, nowUnix, map[string]string{
		types.AttrKeyAsset:       asset.String(),
		types.AttrKeyPrice:       agg.Price.String(),
		types.AttrKeySourceCount: strconv.FormatUint(uint64(agg.SourceCount), 10),
		types.AttrKeyConfidence:  strconv.FormatUint(uint64(agg.Confidence), 10),
	}))

	r.logger.Infof("[拉取聚合] %s 聚合完成: price=%s sources=%d confidence=%d (%s)",
		asset, price.FormatDecimal(agg.Price, types.Decimals), agg.SourceCount, agg.Confidence, decision.Reason)
	return nil
}

// checkSourceDeviation 检查各报价源与聚合价的偏差
func (r *Runner) checkSourceDeviation(ctx context.Context, asset types.Asset, sources []types.PriceSource, agg *types.PriceData) {
	if r.cfg.DeviationAlertBps == 0 {
		return
	}

	for _, src := range sources {
		dev := price.DeviationBps(src.Price, agg.Price)
		if dev <= r.cfg.DeviationAlertBps {
			continue
		}

		r.recorder.Emit(ctx, types.NewEvent(types.EventTypePriceDeviationAlert, agg.Timestamp, map[string]string{
			types.AttrKeyAsset:     asset.String(),
			types.AttrKeySourceID:  src.SourceID,
			types.AttrKeyPrice:     src.Price.String(),
			types.AttrKeyDeviation: strconv.FormatUint(dev, 10),
		}))
		if r.alerts != nil {
			r.alerts.SendAlert(alert.AlertTypePriceDeviation, asset.String(), map[string]string{
				"报价源":  src.SourceID,
				"源价格":  price.FormatDecimal(src.Price, types.Decimals),
				"聚合价格": price.FormatDecimal(agg.Price, types.Decimals),
				"偏差":   strconv.FormatUint(dev, 10) + " bps",
			})
		}
	}
}
