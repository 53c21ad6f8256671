package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide 按主动方划分成交方向。
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// SideFromBuyerMaker: 买方是 maker 说明卖方主动成交。
func SideFromBuyerMaker(buyerIsMaker bool) TradeSide {
	if buyerIsMaker {
		return TradeSideSell
	}
	return TradeSideBuy
}

// Trade represents a normalized trade tick. Immutable once created.
type Trade struct {
	ID     int64           `json:"id"`
	Price  decimal.Decimal `json:"price"`
	Qty    decimal.Decimal `json:"qty"`
	Side   TradeSide       `json:"side"`
	TimeMs int64           `json:"time"`
}

func (t Trade) Time() time.Time { return time.UnixMilli(t.TimeMs) }

func (t Trade) IsBuy() bool { return t.Side == TradeSideBuy }
