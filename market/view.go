package market

import "github.com/shopspring/decimal"

// DefaultDepth 为默认展示档数；DepthPresets 只是 UI 预设，任意正整数都可用。
const DefaultDepth = 30

var DepthPresets = []int{15, 30, 50, 100}

var one = decimal.NewFromInt(1)
var hundred = decimal.NewFromInt(100)

// ViewRow 是深度视图中的一行，Cumulative 为从最优价起的累计数量。
type ViewRow struct {
	Price      decimal.Decimal `json:"price"`
	Qty        decimal.Decimal `json:"qty"`
	Cumulative decimal.Decimal `json:"cumulative"`
}

// Project 取某侧前 depth 档并计算累计量。
func Project(book *OrderBook, s Side, depth int) []ViewRow {
	if book == nil || depth <= 0 {
		return []ViewRow{}
	}
	return ProjectLevels(book.SnapshotSortedLevels(s), depth)
}

// ProjectLevels 对已排序的档位做同样的投影。
func ProjectLevels(levels []PriceLevel, depth int) []ViewRow {
	if depth <= 0 {
		return []ViewRow{}
	}
	if depth > len(levels) {
		depth = len(levels)
	}
	rows := make([]ViewRow, 0, depth)
	acc := decimal.Zero
	for _, lv := range levels[:depth] {
		acc = acc.Add(lv.Qty)
		rows = append(rows, ViewRow{Price: lv.Price, Qty: lv.Qty, Cumulative: acc})
	}
	return rows
}

// MaxCumulative 返回视图中最大的累计量，下限为 1，用于归一化条宽。
func MaxCumulative(rows []ViewRow) decimal.Decimal {
	peak := one
	for _, r := range rows {
		if r.Cumulative.GreaterThan(peak) {
			peak = r.Cumulative
		}
	}
	return peak
}

// WidthPercent 把累计量换算为 0-100 的条宽。
func WidthPercent(row ViewRow, peak decimal.Decimal) float64 {
	if peak.LessThan(one) {
		peak = one
	}
	pct := row.Cumulative.Div(peak).Mul(hundred)
	if pct.IsNegative() {
		return 0
	}
	if pct.GreaterThan(hundred) {
		return 100
	}
	return pct.InexactFloat64()
}

// Spread 返回卖一减买一；任一侧为空时返回 (0, false)，不构造负价差。
func Spread(bids, asks []ViewRow) (decimal.Decimal, bool) {
	if len(bids) == 0 || len(asks) == 0 {
		return decimal.Zero, false
	}
	return asks[0].Price.Sub(bids[0].Price), true
}
