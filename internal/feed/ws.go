// Package feed 外部报价源模块（拉取聚合模式）
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sotoJ24/TrustBridge-contracts/internal/price"
	"github.com/sotoJ24/TrustBridge-contracts/internal/types"
)

const (
	// 重连参数
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
	maxReconnectAttempts  = 10 // 最大重连次数
	// 心跳间隔
	pingInterval = 10 * time.Second
	// 频道
	channelTickers = "tickers"
)

// FatalErrorHandler 致命错误回调（重连失败达到最大次数）
type FatalErrorHandler func(source string, err error)

// PairMapping 交易对到资产key的映射
type PairMapping struct {
	Pair     string // 报价源使用的交易对（如 "BTC_USDT"）
	AssetKey string // 系统内部资产key（types.Asset.Key()）
}

// subscribeRequest 订阅请求
type subscribeRequest struct {
	Time    int64    `json:"time"`
	Channel string   `json:"channel"`
	Event   string   `json:"event"`
	Payload []string `json:"payload"`
}

// tickerMessage 行情推送
type tickerMessage struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Result  struct {
		Pair string `json:"currency_pair"`
		Last string `json:"last"`
		Time int64  `json:"time"`
	} `json:"result"`
}

// WSFeed WebSocket报价源
// 维持长连接订阅行情，缓存每个交易对的最新报价；Fetch 返回缓存值
type WSFeed struct {
	name              string
	weight            uint32
	wsURL             string
	pairMappings      []PairMapping
	assetToPair       map[string]string // AssetKey -> Pair
	pairToAsset       map[string]string // Pair -> AssetKey
	logger            *zap.SugaredLogger
	fatalErrorHandler FatalErrorHandler

	conn          *websocket.Conn
	heartbeatStop chan struct{} // 当前连接的心跳停止信号，连接替换时关闭
	done          chan struct{}
	reconnect     chan struct{}

	mu             sync.Mutex
	isRunning      bool
	isStopping     bool
	reconnectCount int // 当前连续重连次数

	cacheMu sync.RWMutex
	cache   map[string]Quote // AssetKey -> 最新报价
}

// NewWSFeed 创建WebSocket报价源
func NewWSFeed(name string, weight uint32, wsURL string, pairMappings []PairMapping, logger *zap.SugaredLogger, fatalHandler FatalErrorHandler) *WSFeed {
	assetToPair := make(map[string]string)
	pairToAsset := make(map[string]string)
	for _, m := range pairMappings {
		assetToPair[m.AssetKey] = m.Pair
		pairToAsset[m.Pair] = m.AssetKey
	}

	return &WSFeed{
		name:              name,
		weight:            weight,
		wsURL:             wsURL,
		pairMappings:      pairMappings,
		assetToPair:       assetToPair,
		pairToAsset:       pairToAsset,
		logger:            logger,
		fatalErrorHandler: fatalHandler,
		done:              make(chan struct{}),
		reconnect:         make(chan struct{}, 1),
		cache:             make(map[string]Quote),
	}
}

// Name 实现 Feed
func (f *WSFeed) Name() string {
	return f.name
}

// Weight 实现 Feed
func (f *WSFeed) Weight() uint32 {
	return f.weight
}

// Fetch 实现 Feed，返回缓存的最新报价
func (f *WSFeed) Fetch(_ context.Context, asset types.Asset) (*Quote, error) {
	f.cacheMu.RLock()
	quote, ok := f.cache[asset.Key()]
	f.cacheMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("报价源 %s 暂无 %s 的报价", f.name, asset)
	}
	return &quote, nil
}

// Start 启动客户端
func (f *WSFeed) Start() error {
	f.mu.Lock()
	if f.isRunning {
		f.mu.Unlock()
		return nil
	}
	f.isRunning = true
	f.mu.Unlock()

	// 初始连接
	if err := f.connect(); err != nil {
		return err
	}

	// 启动重连监听
	go f.reconnectLoop()

	return nil
}

// Stop 停止客户端
func (f *WSFeed) Stop() {
	f.mu.Lock()
	f.isRunning = false
	f.isStopping = true
	f.mu.Unlock()

	close(f.done)

	f.mu.Lock()
	if f.conn != nil {
		f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
		f.conn = nil
	}
	if f.heartbeatStop != nil {
		close(f.heartbeatStop)
		f.heartbeatStop = nil
	}
	f.mu.Unlock()
}

// connect 建立连接
func (f *WSFeed) connect() error {
	f.logger.Infof("[%s] 连接WebSocket: %s", f.name, f.wsURL)

	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("WebSocket连接失败: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	// 停掉上一条连接的心跳，保证同一时刻只有一个写入者
	if f.heartbeatStop != nil {
		close(f.heartbeatStop)
	}
	stop := make(chan struct{})
	f.heartbeatStop = stop
	f.mu.Unlock()

	f.logger.Infof("[%s] WebSocket连接成功", f.name)

	// 发送订阅请求
	if err := f.subscribe(); err != nil {
		conn.Close()
		return fmt.Errorf("订阅失败: %w", err)
	}

	// 启动心跳
	go f.heartbeat(conn, stop)

	// 启动消息读取
	go f.readMessages()

	return nil
}

// subscribe 发送订阅请求
func (f *WSFeed) subscribe() error {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("连接未建立")
	}

	var pairs []string
	for _, m := range f.pairMappings {
		pairs = append(pairs, m.Pair)
	}

	req := subscribeRequest{
		Time:    time.Now().Unix(),
		Channel: channelTickers,
		Event:   "subscribe",
		Payload: pairs,
	}

	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("发送订阅请求失败: %w", err)
	}

	f.logger.Infof("[%s] 订阅请求已发送: %d个交易对", f.name, len(pairs))
	return nil
}

// heartbeat 心跳保活
// 只向创建时绑定的连接写入，连接替换时通过stop信号退出
func (f *WSFeed) heartbeat(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.logger.Warnf("[%s] 发送心跳失败: %v", f.name, err)
				return
			}
		}
	}
}

// readMessages 读取并处理推送
func (f *WSFeed) readMessages() {
	for {
		f.mu.Lock()
		conn := f.conn
		stopping := f.isStopping
		f.mu.Unlock()

		if conn == nil || stopping {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			f.mu.Lock()
			stopping := f.isStopping
			f.mu.Unlock()
			if stopping {
				return
			}

			f.logger.Warnf("[%s] 读取消息失败: %v，准备重连", f.name, err)
			f.triggerReconnect()
			return
		}

		// 连接正常，重置重连计数
		f.mu.Lock()
		f.reconnectCount = 0
		f.mu.Unlock()

		f.handleMessage(data)
	}
}

// handleMessage 处理单条推送
func (f *WSFeed) handleMessage(data []byte) {
	var msg tickerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		f.logger.Warnf("[%s] 解析消息失败: %v", f.name, err)
		return
	}

	if msg.Channel != channelTickers || msg.Event != "update" {
		return
	}

	assetKey, ok := f.pairToAsset[msg.Result.Pair]
	if !ok {
		return
	}

	p, err := price.ParseDecimal(msg.Result.Last, types.Decimals)
	if err != nil {
		f.logger.Warnf("[%s] %s 价格无效: %v", f.name, msg.Result.Pair, err)
		return
	}

	ts := time.Unix(msg.Result.Time, 0)
	if msg.Result.Time == 0 {
		ts = time.Now()
	}

	f.cacheMu.Lock()
	f.cache[assetKey] = Quote{Price: p, Timestamp: ts}
	f.cacheMu.Unlock()
}

// triggerReconnect 触发重连（非阻塞）
func (f *WSFeed) triggerReconnect() {
	select {
	case f.reconnect <- struct{}{}:
	default:
	}
}

// reconnectLoop 重连循环，指数退避，连续失败达到上限后触发致命错误回调
func (f *WSFeed) reconnectLoop() {
	for {
		select {
		case <-f.done:
			return
		case <-f.reconnect:
			f.mu.Lock()
			if f.conn != nil {
				f.conn.Close()
				f.conn = nil
			}
			if f.heartbeatStop != nil {
				close(f.heartbeatStop)
				f.heartbeatStop = nil
			}
			f.reconnectCount++
			attempt := f.reconnectCount
			f.mu.Unlock()

			if attempt > maxReconnectAttempts {
				f.logger.Errorf("[%s] 连续重连失败达到上限 (%d次)", f.name, maxReconnectAttempts)
				if f.fatalErrorHandler != nil {
					f.fatalErrorHandler(f.name, fmt.Errorf("连续重连失败达到上限 (%d次)", maxReconnectAttempts))
				}
				return
			}

			delay := initialReconnectDelay << uint(attempt-1)
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			f.logger.Infof("[%s] 第%d次重连，等待 %v", f.name, attempt, delay)

			select {
			case <-f.done:
				return
			case <-time.After(delay):
			}

			if err := f.connect(); err != nil {
				f.logger.Warnf("[%s] 重连失败: %v", f.name, err)
				f.triggerReconnect()
			}
		}
	}
}
