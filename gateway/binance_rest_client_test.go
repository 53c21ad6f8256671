package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-mirror-go/market"
)

type countingRecorder struct {
	nopRecorder
	requests, errors int
	parseErrors      []string
	gaps             int
	trades           int
	depths           int
	connects         int
	disconnects      int
}

func (r *countingRecorder) RecordRESTRequest(string) { r.requests++ }
func (r *countingRecorder) RecordRESTError(string) { r.errors++ }
func (r *countingRecorder) RecordParseError(kind string) { r.parseErrors = append(r.parseErrors, kind) }
func (r *countingRecorder) RecordSequenceGap() { r.gaps++ }
func (r *countingRecorder) RecordTrade(market.Trade, float64) { r.trades++ }
func (r *countingRecorder) RecordDepthApplied(market.Top, int, int) { r.depths++ }
func (r *countingRecorder) RecordWSConnection() { r.connects++ }
func (r *countingRecorder) RecordWSDisconnect() { r.disconnects++ }

func TestBinanceRESTClientDepth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/depth", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		io.WriteString(w, `{"lastUpdateId":1027024,"bids":[["50000.00","1.5"],["49999.90","2"]],"asks":[["50000.10","0.7"]]}`)
	}))
	defer ts.Close()

	rec := &countingRecorder{}
	cli := &BinanceRESTClient{BaseURL: ts.URL, HTTPClient: ts.Client(), Recorder: rec}
	snap, err := cli.Depth(context.Background(), "btcusdt", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1027024), snap.LastUpdateID)
	require.Len(t, snap.Bids, 2)
	assert.True(t, snap.Bids[0].Price.Equal(decimal.RequireFromString("50000")))
	top := snap.Top()
	assert.True(t, top.HasBid && top.HasAsk)
	assert.True(t, top.Ask.Price.Equal(decimal.RequireFromString("50000.1")))
	assert.Equal(t, 1, rec.requests)
	assert.Equal(t, 0, rec.errors)
}

func TestBinanceRESTClientRecentTrades(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/trades", r.URL.Path)
		io.WriteString(w, `[{"id":28457,"price":"4.00000100","qty":"12.00000000","quoteQty":"48.000012","time":1499865549590,"isBuyerMaker":true,"isBestMatch":true}]`)
	}))
	defer ts.Close()

	cli := &BinanceRESTClient{BaseURL: ts.URL, HTTPClient: ts.Client()}
	trades, err := cli.RecentTrades(context.Background(), "BNBBTC", 1)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(28457), trades[0].ID)
	assert.Equal(t, market.TradeSideSell, trades[0].Side)
	assert.Equal(t, int64(1499865549590), trades[0].TimeMs)
	assert.True(t, trades[0].Qty.Equal(decimal.NewFromInt(12)))
}

func TestBinanceRESTClientErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v3/depth" {
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"code":-1003,"msg":"Too many requests"}`)
			return
		}
		io.WriteString(w, `[{"id":1,"price":"abc","qty":"1","time":1,"isBuyerMaker":false}]`)
	}))
	defer ts.Close()

	rec := &countingRecorder{}
	cli := &BinanceRESTClient{BaseURL: ts.URL, HTTPClient: ts.Client(), Recorder: rec}
	_, err := cli.Depth(context.Background(), "BTCUSDT", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	_, err = cli.RecentTrades(context.Background(), "BTCUSDT", 1)
	assert.True(t, errors.Is(err, ErrParse), "bad price should be a parse error: %v", err)
	assert.Equal(t, 2, rec.errors)
}

func TestBinanceRESTClientNotConfigured(t *testing.T) {
	var cli *BinanceRESTClient
	_, err := cli.Depth(context.Background(), "BTCUSDT", 5)
	assert.Error(t, err)
}
