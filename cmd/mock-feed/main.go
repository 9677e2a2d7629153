// 模拟报价源 - 本地联调用的HTTP报价服务
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// quoteResponse 报价接口响应（与真实报价源格式一致）
type quoteResponse struct {
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`     // 十进制字符串
	Timestamp int64  `json:"timestamp"` // Unix秒
}

// FeedServer 模拟报价服务器
type FeedServer struct {
	mu     sync.RWMutex
	prices map[string]float64 // asset key -> 当前价格
	jitter float64            // 每次请求的随机抖动幅度
}

// NewFeedServer 创建模拟报价服务器
func NewFeedServer(basePrices map[string]float64, jitter float64) *FeedServer {
	return &FeedServer{
		prices: basePrices,
		jitter: jitter,
	}
}

// handlePrice 返回带随机抖动的报价
func (s *FeedServer) handlePrice(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		http.Error(w, "缺少 symbol 参数", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	base, ok := s.prices[symbol]
	if !ok {
		s.mu.Unlock()
		http.Error(w, fmt.Sprintf("未知资产: %s", symbol), http.StatusNotFound)
		return
	}
	// 随机游走，让价格看起来像真的在动
	base = base * (1 + (rand.Float64()*2-1)*s.jitter)
	s.prices[symbol] = base
	s.mu.Unlock()

	resp := quoteResponse{
		Symbol:    symbol,
		Price:     fmt.Sprintf("%.7f", base),
		Timestamp: time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[模拟报价] 写入响应失败: %v", err)
	}

	log.Printf("[模拟报价] %s -> %s", symbol, resp.Price)
}

func main() {
	port := flag.String("port", "8090", "监听端口")
	pairs := flag.String("pairs", "symbol:XLM=0.1234567,symbol:USDC=1.0", "初始价格列表，格式: key=price,key=price")
	jitter := flag.Float64("jitter", 0.002, "每次请求的价格抖动幅度")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	basePrices := make(map[string]float64)
	for _, pair := range strings.Split(*pairs, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			log.Fatalf("无效的价格配置: %s", pair)
		}
		var p float64
		if _, err := fmt.Sscanf(parts[1], "%f", &p); err != nil {
			log.Fatalf("无效的价格: %s", parts[1])
		}
		basePrices[parts[0]] = p
	}

	server := NewFeedServer(basePrices, *jitter)

	http.HandleFunc("/price", server.handlePrice)

	log.Printf("[模拟报价] 启动于 :%s，资产数: %d", *port, len(basePrices))
	if err := http.ListenAndServe(":"+*port, nil); err != nil {
		log.Fatalf("[模拟报价] 启动失败: %v", err)
	}
}
