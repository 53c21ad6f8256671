package gateway

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-mirror-go/market"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParseDepthUpdateRaw(t *testing.T) {
	raw := []byte(`{"e":"depthUpdate","E":1700000000123,"s":"BTCUSDT","U":157,"u":160,
		"b":[["100.00","1.5"],["99.50","2.0"]],
		"a":[["100.10","1.0"],["100.20","0.00000000"]]}`)
	ev, err := ParseStreamMessage(raw)
	require.NoError(t, err)
	require.Equal(t, EventDepth, ev.Kind)
	d := ev.Depth
	assert.Equal(t, "BTCUSDT", d.Symbol)
	assert.Equal(t, int64(157), d.FirstUpdateID)
	assert.Equal(t, int64(160), d.FinalUpdateID)
	assert.Equal(t, int64(1700000000123), d.EventTimeMs)
	require.Len(t, d.Bids, 2)
	require.Len(t, d.Asks, 2)
	assert.True(t, d.Bids[0].Price.Equal(dec("100")))
	assert.True(t, d.Bids[1].Qty.Equal(dec("2")))
	assert.True(t, d.Asks[1].Qty.IsZero())
}

func TestParseCombinedEnvelope(t *testing.T) {
	raw := []byte(`{
		"stream":"btcusdt@aggTrade",
		"data":{"e":"aggTrade","E":1,"s":"BTCUSDT","a":26129,"p":"100.05","q":"0.01","f":100,"l":105,"T":1700000000456,"m":false,"M":true}
	}`)
	ev, err := ParseStreamMessage(raw)
	require.NoError(t, err)
	require.Equal(t, EventTrade, ev.Kind)
	assert.Equal(t, int64(26129), ev.Trade.ID)
	assert.Equal(t, market.TradeSideBuy, ev.Trade.Side)
	assert.True(t, ev.Trade.Price.Equal(dec("100.05")))
	assert.Equal(t, int64(1700000000456), ev.Trade.TimeMs)
}

func TestParseRawTradeEvent(t *testing.T) {
	raw := []byte(`{"e":"trade","E":1,"s":"BTCUSDT","t":12345,"p":"0.001","q":"100","T":123456785,"m":true,"M":true}`)
	ev, err := ParseStreamMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), ev.Trade.ID)
	assert.Equal(t, market.TradeSideSell, ev.Trade.Side)
}

func TestParseTradeIDFieldByEvent(t *testing.T) {
	// trade 流上的 a 不是成交号
	ev, err := ParseStreamMessage([]byte(`{"e":"trade","t":500,"a":77,"p":"1","q":"1","T":1,"m":false}`))
	require.NoError(t, err)
	assert.Equal(t, int64(500), ev.Trade.ID)

	ev, err = ParseStreamMessage([]byte(`{"e":"aggTrade","a":77,"t":500,"p":"1","q":"1","T":1,"m":false}`))
	require.NoError(t, err)
	assert.Equal(t, int64(77), ev.Trade.ID)

	_, err = ParseStreamMessage([]byte(`{"e":"trade","a":77,"p":"1","q":"1","T":1,"m":false}`))
	assert.True(t, errors.Is(err, ErrParse))
}

func TestParseMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		kind EventKind
	}{
		{"not json", `{"e":`, 0},
		{"bad price", `{"e":"depthUpdate","b":[["abc","1"]],"a":[]}`, EventDepth},
		{"bad qty", `{"e":"depthUpdate","b":[],"a":[["1","x"]]}`, EventDepth},
		{"trade without id", `{"e":"aggTrade","p":"1","q":"1","T":1,"m":false}`, EventTrade},
		{"trade bad price", `{"e":"aggTrade","a":1,"p":"","q":"1","T":1,"m":false}`, EventTrade},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := ParseStreamMessage([]byte(tc.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrParse), "got %v", err)
			assert.Equal(t, tc.kind, ev.Kind)
		})
	}
}

func TestParseUnknownEvent(t *testing.T) {
	_, err := ParseStreamMessage([]byte(`{"result":null,"id":1}`))
	assert.True(t, errors.Is(err, ErrUnknownEvent))
	assert.False(t, errors.Is(err, ErrParse))
}
