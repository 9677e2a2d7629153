// 多源价格预言机服务 - 主程序入口
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sotoJ24/TrustBridge-contracts/internal/aggregator"
	"github.com/sotoJ24/TrustBridge-contracts/internal/alert"
	"github.com/sotoJ24/TrustBridge-contracts/internal/config"
	"github.com/sotoJ24/TrustBridge-contracts/internal/events"
	"github.com/sotoJ24/TrustBridge-contracts/internal/feed"
	"github.com/sotoJ24/TrustBridge-contracts/internal/governance"
	"github.com/sotoJ24/TrustBridge-contracts/internal/oracle"
	"github.com/sotoJ24/TrustBridge-contracts/internal/storage"
	"github.com/sotoJ24/TrustBridge-contracts/internal/throttle"
	"github.com/sotoJ24/TrustBridge-contracts/internal/types"
)

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zapLogger.Sync()
	logger := zapLogger.Sugar()

	logger.Infof("========================================")
	logger.Infof("  多源价格预言机服务")
	logger.Infof("========================================")

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("加载配置失败: %v", err)
	}
	logger.Infof("配置加载完成: 模式=%s, 管理员=%d, 数据源=%d, 资产=%d",
		cfg.Mode, len(cfg.Governance.Admins), len(cfg.Sources), len(cfg.Assets))

	// 初始化Redis存储
	store, err := storage.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatalf("初始化Redis失败: %v", err)
	}
	defer store.Close()
	logger.Infof("Redis连接成功: %s", cfg.Redis.Addr)

	// 审计事件与告警
	recorder := events.NewRedisRecorder(store.Client(), logger)
	alerts := alert.NewLarkAlert(cfg.Lark.WebhookURL, logger)

	// 引擎：本地服务进程使用直通授权，多签审批走外部治理流程
	engine := oracle.NewEngine(store, governance.AutoApprove{}, recorder, alerts, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bootstrap(ctx, engine, cfg, logger); err != nil {
		logger.Fatalf("初始化引擎失败: %v", err)
	}

	// 拉取模式：启动轮询聚合
	var runner *aggregator.Runner
	if cfg.Mode == config.ModePull {
		runner, err = buildRunner(cfg, store, recorder, alerts, logger)
		if err != nil {
			logger.Fatalf("初始化拉取聚合失败: %v", err)
		}
		go runner.Start(ctx)
	}

	// 等待退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Infof("收到信号 %v，正在关闭...", sig)

	cancel()
	if runner != nil {
		runner.Stop()
	}

	logger.Infof("程序退出")
}

// bootstrap 初始化引擎状态：首次启动写入治理与聚合参数，并登记配置的数据源和响应者
func bootstrap(ctx context.Context, engine *oracle.Engine, cfg *config.Config, logger *zap.SugaredLogger) error {
	err := engine.Init(ctx, cfg.Governance.Admins, cfg.Governance.MinSignatures, cfg.ToOracleConfig())
	if err != nil {
		if !types.ErrAlreadyInitialized.Is(err) {
			return err
		}
		logger.Infof("[引擎] 已初始化，跳过")
	}

	for _, src := range cfg.Sources {
		if err := engine.AddSource(ctx, src.SourceID, src.Weight); err != nil {
			logger.Warnf("[引擎] 登记数据源 %s 失败: %v", src.SourceID, err)
		}
	}
	for _, r := range cfg.Governance.Responders {
		if err := engine.AddResponder(ctx, r); err != nil {
			logger.Warnf("[引擎] 登记响应者 %s 失败: %v", r, err)
		}
	}
	return nil
}

// buildRunner 根据配置组装拉取聚合器
func buildRunner(cfg *config.Config, store *storage.RedisStore, recorder events.Recorder, alerts *alert.LarkAlert, logger *zap.SugaredLogger) (*aggregator.Runner, error) {
	var feeds []feed.Feed
	for _, fc := range cfg.Feeds {
		switch fc.Type {
		case "http":
			feeds = append(feeds, feed.NewHTTPFeed(fc.Name, fc.Weight, fc.URL))
		case "ws":
			mappings := make([]feed.PairMapping, 0, len(fc.Pairs))
			for _, p := range fc.Pairs {
				mappings = append(mappings, feed.PairMapping{Pair: p.Pair, AssetKey: p.AssetKey})
			}
			wsFeed := feed.NewWSFeed(fc.Name, fc.Weight, fc.URL, mappings, logger, func(source string, err error) {
				logger.Errorf("[报价源] %s 不可恢复: %v", source, err)
			})
			if err := wsFeed.Start(); err != nil {
				return nil, err
			}
			feeds = append(feeds, wsFeed)
		}
	}

	assets := make([]types.Asset, 0, len(cfg.Assets))
	for _, ac := range cfg.Assets {
		asset, err := cfg.ParseAsset(ac)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}

	throttler := throttle.NewThrottler(
		time.Duration(cfg.Throttle.MinWriteInterval)*time.Second,
		time.Duration(cfg.Throttle.MaxWriteInterval)*time.Second,
		cfg.Throttle.ChangeBps,
	)

	return aggregator.NewRunner(feeds, assets, store, recorder, alerts, throttler, aggregator.Config{
		PollInterval:       time.Duration(cfg.Aggregator.PollIntervalSeconds) * time.Second,
		HeartbeatTimeout:   cfg.Aggregator.HeartbeatTimeout,
		MinOraclesRequired: cfg.Aggregator.MinOraclesRequired,
		DeviationAlertBps:  cfg.Aggregator.DeviationAlertBps,
	}, logger), nil
}
