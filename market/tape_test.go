package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func trade(id int64, qty string, side TradeSide) Trade {
	return Trade{ID: id, Price: d("100"), Qty: d(qty), Side: side, TimeMs: id}
}

func TestTradeTapeCapacityFIFO(t *testing.T) {
	tape := NewTradeTape()
	for i := int64(1); i <= 60; i++ {
		tape.Push(trade(i, "1", TradeSideBuy))
	}
	recent := tape.Recent()
	require.Len(t, recent, 50)
	assert.Equal(t, int64(60), recent[0].ID)
	assert.Equal(t, int64(11), recent[49].ID)
	for i := 1; i < len(recent); i++ {
		assert.Equal(t, recent[i-1].ID-1, recent[i].ID)
	}
}

func TestTradeTapeKeepsDuplicatesAndArrivalOrder(t *testing.T) {
	tape := NewTradeTape(WithCapacity(5))
	tape.Push(trade(3, "1", TradeSideBuy))
	tape.Push(trade(2, "1", TradeSideSell))
	tape.Push(trade(2, "1", TradeSideSell))
	ids := []int64{}
	for _, tr := range tape.Recent() {
		ids = append(ids, tr.ID)
	}
	assert.Equal(t, []int64{2, 2, 3}, ids)
}

func TestFlowRatio(t *testing.T) {
	tape := NewTradeTape()
	buy, sell := tape.FlowRatio()
	assert.Equal(t, 0.0, buy)
	assert.Equal(t, 0.0, sell)

	tape.Push(trade(1, "2", TradeSideBuy))
	tape.Push(trade(2, "2", TradeSideSell))
	buy, sell = tape.FlowRatio()
	assert.InDelta(t, 50.0, buy, 1e-9)
	assert.InDelta(t, 50.0, sell, 1e-9)

	small := NewTradeTape()
	small.Push(trade(1, "0.01", TradeSideBuy))
	buy, sell = small.FlowRatio()
	assert.InDelta(t, 100.0, buy, 1e-9)
	assert.InDelta(t, 0.0, sell, 1e-9)
}

func TestPulsesExpireIndependently(t *testing.T) {
	clk := newClock()
	tape := NewTradeTape(WithClock(clk.Now))

	tape.Push(trade(1, "0.1", TradeSideBuy))
	clk.Advance(800 * time.Millisecond)
	tape.Push(trade(2, "1", TradeSideSell))

	pulses := tape.Pulses()
	require.Len(t, pulses, 2)
	assert.Equal(t, int64(2), pulses[0].TradeID)
	assert.Equal(t, TradeSideSell, pulses[0].Side)
	assert.InDelta(t, 100.0, pulses[0].Magnitude, 1e-9)
	assert.InDelta(t, 30.0, pulses[1].Magnitude, 1e-9)

	// 第一个脉冲到期，第二个不受新成交影响
	clk.Advance(400 * time.Millisecond)
	pulses = tape.Pulses()
	require.Len(t, pulses, 1)
	assert.Equal(t, int64(2), pulses[0].TradeID)

	clk.Advance(800 * time.Millisecond)
	assert.Empty(t, tape.Pulses())
}

func TestPulsesCapped(t *testing.T) {
	clk := newClock()
	tape := NewTradeTape(WithClock(clk.Now))
	for i := int64(1); i <= 20; i++ {
		tape.Push(trade(i, "0.001", TradeSideBuy))
	}
	pulses := tape.Pulses()
	require.Len(t, pulses, MaxLivePulses)
	assert.Equal(t, int64(20), pulses[0].TradeID)
	assert.Equal(t, int64(8), pulses[MaxLivePulses-1].TradeID)
}

func TestFlashing(t *testing.T) {
	clk := newClock()
	tape := NewTradeTape(WithClock(clk.Now))
	tape.Push(trade(7, "1", TradeSideBuy))
	clk.Advance(300 * time.Millisecond)
	tape.Push(trade(8, "1", TradeSideBuy))
	assert.Equal(t, []int64{8, 7}, tape.Flashing())

	clk.Advance(150 * time.Millisecond)
	assert.Equal(t, []int64{8}, tape.Flashing())

	clk.Advance(300 * time.Millisecond)
	assert.Empty(t, tape.Flashing())
	// 闪烁与脉冲寿命无关
	assert.Len(t, tape.Pulses(), 2)
}

func TestTradeTapeReset(t *testing.T) {
	tape := NewTradeTape()
	tape.Push(trade(1, "1", TradeSideBuy))
	tape.Reset()
	assert.Equal(t, 0, tape.Len())
	assert.Empty(t, tape.Pulses())
	_, ok := tape.Latest()
	assert.False(t, ok)
}

func TestSideFromBuyerMaker(t *testing.T) {
	assert.Equal(t, TradeSideSell, SideFromBuyerMaker(true))
	assert.Equal(t, TradeSideBuy, SideFromBuyerMaker(false))
}
