package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"market-mirror-go/market"
)

const (
	// BinanceSpotRESTEndpoint 现货 REST 地址。
	BinanceSpotRESTEndpoint = "https://api.binance.com"

	restActionDepth  = "depth"
	restActionTrades = "trades"
)

// SnapshotSource 提供权威的 REST 快照，供重新播种和对账使用。
type SnapshotSource interface {
	Depth(ctx context.Context, symbol string, limit int) (market.DepthSnapshot, error)
	RecentTrades(ctx context.Context, symbol string, limit int) ([]market.Trade, error)
}

// BinanceRESTClient 只读的公共行情客户端，HTTPClient 可注入 httptest。
type BinanceRESTClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Limiter    RateLimiter
	Recorder   Recorder
}

// NewBinanceRESTClient 使用默认超时构建客户端。
func NewBinanceRESTClient(baseURL string, limiter RateLimiter, rec Recorder) *BinanceRESTClient {
	if baseURL == "" {
		baseURL = BinanceSpotRESTEndpoint
	}
	return &BinanceRESTClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: NewDefaultHTTPClient(),
		Limiter:    limiter,
		Recorder:   rec,
	}
}

type depthResp struct {
	LastUpdateID int64            `json:"lastUpdateId"`
	Bids         [][2]json.Number `json:"bids"`
	Asks         [][2]json.Number `json:"asks"`
}

type tradeResp struct {
	ID           int64       `json:"id"`
	Price        json.Number `json:"price"`
	Qty          json.Number `json:"qty"`
	Time         int64       `json:"time"`
	IsBuyerMaker bool        `json:"isBuyerMaker"`
}

// Depth 调用 /api/v3/depth 获取订单簿快照。
func (c *BinanceRESTClient) Depth(ctx context.Context, symbol string, limit int) (market.DepthSnapshot, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var resp depthResp
	if err := c.getJSON(ctx, restActionDepth, "/api/v3/depth", params, &resp); err != nil {
		return market.DepthSnapshot{}, err
	}
	bids, err := parseLevels(resp.Bids)
	if err != nil {
		return market.DepthSnapshot{}, fmt.Errorf("%w: depth bids: %v", ErrParse, err)
	}
	asks, err := parseLevels(resp.Asks)
	if err != nil {
		return market.DepthSnapshot{}, fmt.Errorf("%w: depth asks: %v", ErrParse, err)
	}
	return market.DepthSnapshot{LastUpdateID: resp.LastUpdateID, Bids: bids, Asks: asks}, nil
}

// RecentTrades 调用 /api/v3/trades，返回顺序与交易所一致（旧的在前）。
func (c *BinanceRESTClient) RecentTrades(ctx context.Context, symbol string, limit int) ([]market.Trade, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var resp []tradeResp
	if err := c.getJSON(ctx, restActionTrades, "/api/v3/trades", params, &resp); err != nil {
		return nil, err
	}
	out := make([]market.Trade, 0, len(resp))
	for _, r := range resp {
		price, err := decimal.NewFromString(r.Price.String())
		if err != nil {
			return nil, fmt.Errorf("%w: trade price %q: %v", ErrParse, r.Price, err)
		}
		qty, err := decimal.NewFromString(r.Qty.String())
		if err != nil {
			return nil, fmt.Errorf("%w: trade qty %q: %v", ErrParse, r.Qty, err)
		}
		out = append(out, market.Trade{
			ID:     r.ID,
			Price:  price,
			Qty:    qty,
			Side:   market.SideFromBuyerMaker(r.IsBuyerMaker),
			TimeMs: r.Time,
		})
	}
	return out, nil
}

func (c *BinanceRESTClient) getJSON(ctx context.Context, action, path string, params url.Values, out interface{}) error {
	if c == nil || c.HTTPClient == nil {
		return fmt.Errorf("http client not set")
	}
	rec := recorderOrNop(c.Recorder)
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return err
		}
	}
	endpoint := c.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	rec.RecordRESTRequest(action)
	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	rec.RecordRESTLatency(action, time.Since(start).Seconds())
	if err != nil {
		rec.RecordRESTError(action)
		return fmt.Errorf("%s request: %w", action, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		rec.RecordRESTError(action)
		return fmt.Errorf("%s status %d: %s", action, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		rec.RecordRESTError(action)
		return fmt.Errorf("%w: %s body: %v", ErrParse, action, err)
	}
	return nil
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
