// Package feed 外部报价源模块（拉取聚合模式）
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/sotoJ24/TrustBridge-contracts/internal/price"
	"github.com/sotoJ24/TrustBridge-contracts/internal/types"
)

// Quote 外部报价
type Quote struct {
	Price     sdkmath.Int // 价格（带Decimals位精度的整数）
	Timestamp time.Time   // 报价时间
}

// Feed 外部报价源
// 拉取模式下聚合器按轮询周期向所有报价源取数
type Feed interface {
	// Name 报价源标识（作为聚合时的source_id）
	Name() string
	// Weight 聚合权重（0-100）
	Weight() uint32
	// Fetch 获取某资产的最新报价，暂无报价时返回错误
	Fetch(ctx context.Context, asset types.Asset) (*Quote, error)
}

// httpQuoteResponse HTTP报价源响应
type httpQuoteResponse struct {
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`     // 十进制字符串
	Timestamp int64  `json:"timestamp"` // Unix秒
}

// HTTPFeed HTTP轮询报价源
type HTTPFeed struct {
	name       string
	weight     uint32
	baseURL    string // 形如 http://host/price，请求时附加 ?symbol=
	httpClient *http.Client
}

// NewHTTPFeed 创建HTTP报价源
func NewHTTPFeed(name string, weight uint32, baseURL string) *HTTPFeed {
	return &HTTPFeed{
		name:    name,
		weight:  weight,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name 实现 Feed
func (f *HTTPFeed) Name() string {
	return f.name
}

// Weight 实现 Feed
func (f *HTTPFeed) Weight() uint32 {
	return f.weight
}

// Fetch 实现 Feed
func (f *HTTPFeed) Fetch(ctx context.Context, asset types.Asset) (*Quote, error) {
	reqURL := fmt.Sprintf("%s?symbol=%s", f.baseURL, url.QueryEscape(asset.Key()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("构建报价请求失败: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求报价源 %s 失败: %w", f.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("报价源 %s 返回状态码 %d", f.name, resp.StatusCode)
	}

	var quote httpQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, fmt.Errorf("解析报价源 %s 响应失败: %w", f.name, err)
	}

	p, err := price.ParseDecimal(quote.Price, types.Decimals)
	if err != nil {
		return nil, fmt.Errorf("报价源 %s 价格无效: %w", f.name, err)
	}

	return &Quote{
		Price:     p,
		Timestamp: time.Unix(quote.Timestamp, 0),
	}, nil
}
