package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"market-mirror-go/market"
)

// Tolerances 是漂移判定阈值，差值严格小于阈值才算一致。
type Tolerances struct {
	BookPrice  decimal.Decimal
	TradePrice decimal.Decimal
	TradeQty   decimal.Decimal
	TradeTime  time.Duration
}

func DefaultTolerances() Tolerances {
	return Tolerances{
		BookPrice:  decimal.RequireFromString("0.5"),
		TradePrice: decimal.NewFromInt(1),
		TradeQty:   decimal.RequireFromString("0.001"),
		TradeTime:  10 * time.Second,
	}
}

// CompareBook 比较本地与权威的买一/卖一价格。
func CompareBook(local, remote market.Top, tol decimal.Decimal) *market.BookComparison {
	bidDiff := local.Bid.Price.Sub(remote.Bid.Price).Abs()
	askDiff := local.Ask.Price.Sub(remote.Ask.Price).Abs()
	return &market.BookComparison{
		LocalBid:  local.Bid.Price,
		LocalAsk:  local.Ask.Price,
		RemoteBid: remote.Bid.Price,
		RemoteAsk: remote.Ask.Price,
		BidDiff:   bidDiff,
		AskDiff:   askDiff,
		InSync:    bidDiff.LessThan(tol) && askDiff.LessThan(tol),
	}
}

// CompareTrade 比较本地与权威的最新成交。
func CompareTrade(local, remote market.Trade, tol Tolerances) *market.TradeComparison {
	priceOK := local.Price.Sub(remote.Price).Abs().LessThan(tol.TradePrice)
	qtyOK := local.Qty.Sub(remote.Qty).Abs().LessThan(tol.TradeQty)
	dt := local.TimeMs - remote.TimeMs
	if dt < 0 {
		dt = -dt
	}
	timeOK := dt < tol.TradeTime.Milliseconds()
	return &market.TradeComparison{
		LocalPrice:   local.Price,
		RemotePrice:  remote.Price,
		LocalQty:     local.Qty,
		RemoteQty:    remote.Qty,
		LocalTimeMs:  local.TimeMs,
		RemoteTimeMs: remote.TimeMs,
		InSync:       priceOK && qtyOK && timeOK,
	}
}

// latestTrade 取 id 最大的一笔，兼容新在前/旧在前两种顺序。
func latestTrade(trades []market.Trade) (market.Trade, bool) {
	if len(trades) == 0 {
		return market.Trade{}, false
	}
	latest := trades[0]
	for _, t := range trades[1:] {
		if t.ID > latest.ID {
			latest = t
		}
	}
	return latest, true
}
