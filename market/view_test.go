package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookWith(bids, asks []PriceLevel) *OrderBook {
	ob := NewOrderBook()
	ob.Apply(DepthDelta{Bids: bids, Asks: asks})
	return ob
}

func TestProjectCumulative(t *testing.T) {
	ob := bookWith([]PriceLevel{lv("100", "1.5"), lv("99.5", "2"), lv("99", "0.25"), lv("98", "4")}, nil)

	rows := Project(ob, SideBid, 3)
	require.Len(t, rows, 3)
	assert.True(t, rows[0].Price.Equal(d("100")))
	assert.True(t, rows[0].Cumulative.Equal(d("1.5")))
	assert.True(t, rows[1].Cumulative.Equal(d("3.5")))
	assert.True(t, rows[2].Cumulative.Equal(d("3.75")))

	for i := 1; i < len(rows); i++ {
		assert.False(t, rows[i].Cumulative.LessThan(rows[i-1].Cumulative), "cumulative must be non-decreasing")
	}
}

func TestProjectDepthLargerThanBook(t *testing.T) {
	ob := bookWith(nil, []PriceLevel{lv("101", "1"), lv("102", "2")})
	rows := Project(ob, SideAsk, 100)
	require.Len(t, rows, 2)
	assert.True(t, rows[1].Cumulative.Equal(d("3")))
	assert.Empty(t, Project(ob, SideAsk, 0))
	assert.Empty(t, Project(nil, SideAsk, 15))
}

func TestMaxCumulativeFloor(t *testing.T) {
	assert.True(t, MaxCumulative(nil).Equal(d("1")))
	assert.True(t, MaxCumulative([]ViewRow{{Cumulative: d("0.4")}}).Equal(d("1")))
	assert.True(t, MaxCumulative([]ViewRow{{Cumulative: d("2")}, {Cumulative: d("7.5")}}).Equal(d("7.5")))
}

func TestWidthPercent(t *testing.T) {
	rows := ProjectLevels([]PriceLevel{lv("1", "1"), lv("2", "3")}, 2)
	peak := MaxCumulative(rows)
	assert.InDelta(t, 25.0, WidthPercent(rows[0], peak), 1e-9)
	assert.InDelta(t, 100.0, WidthPercent(rows[1], peak), 1e-9)
	assert.InDelta(t, 0.0, WidthPercent(ViewRow{}, d("0")), 1e-9)
}

func TestSpread(t *testing.T) {
	bids := ProjectLevels([]PriceLevel{lv("100.00", "1.5")}, 30)
	asks := ProjectLevels([]PriceLevel{lv("100.10", "1")}, 30)
	spread, ok := Spread(bids, asks)
	require.True(t, ok)
	assert.True(t, spread.Equal(d("0.10")))

	spread, ok = Spread(bids, nil)
	assert.False(t, ok)
	assert.True(t, spread.IsZero())
}
