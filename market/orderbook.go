package market

import (
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrSequenceGap 表示已播种的订单簿收到的增量与 lastUpdateID 不连续。
var ErrSequenceGap = errors.New("depth sequence gap")

// Side 标识订单簿的一侧。
type Side int

const (
	SideBid Side = iota
	SideAsk
)

func (s Side) String() string {
	if s == SideAsk {
		return "ask"
	}
	return "bid"
}

// PriceLevel 为某价格上的剩余挂单量（不是增量）。
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
}

// Top 为买一/卖一，Has* 为 false 表示该侧为空。
type Top struct {
	Bid    PriceLevel `json:"bid"`
	Ask    PriceLevel `json:"ask"`
	HasBid bool       `json:"hasBid"`
	HasAsk bool       `json:"hasAsk"`
}

// OrderBook 维护价格->数量映射，价格以规范化十进制字符串为键，
// 因此 "100.00" 与 "100.0" 落在同一档。
type OrderBook struct {
	mu           sync.RWMutex
	bids         map[string]PriceLevel
	asks         map[string]PriceLevel
	lastUpdateID int64
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids: make(map[string]PriceLevel),
		asks: make(map[string]PriceLevel),
	}
}

func levelKey(p decimal.Decimal) string { return p.String() }

func (ob *OrderBook) side(s Side) map[string]PriceLevel {
	if s == SideAsk {
		return ob.asks
	}
	return ob.bids
}

// ApplyDelta 将 side 上 price 档的数量设为 qty，qty 为 0 表示删除该档。
func (ob *OrderBook) ApplyDelta(s Side, price, qty decimal.Decimal) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.setLocked(ob.side(s), price, qty)
}

func (ob *OrderBook) setLocked(m map[string]PriceLevel, price, qty decimal.Decimal) {
	key := levelKey(price)
	if qty.IsZero() {
		delete(m, key)
		return
	}
	m[key] = PriceLevel{Price: price, Qty: qty}
}

// Apply 在一次写锁内应用整条 depth 消息（先 bids 后 asks），读者不会看到半条消息。
//
// 仅当订单簿已由快照播种（lastUpdateID > 0）且消息带序号时才校验序号：
// u <= lastUpdateID 的消息已包含在快照内，跳过并返回 false；
// U > lastUpdateID+1 说明中间丢了消息，返回 ErrSequenceGap 且不做任何修改。
func (ob *OrderBook) Apply(d DepthDelta) (bool, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	if ob.lastUpdateID > 0 && d.FinalUpdateID > 0 {
		if d.FinalUpdateID <= ob.lastUpdateID {
			return false, nil
		}
		if d.FirstUpdateID > ob.lastUpdateID+1 {
			return false, ErrSequenceGap
		}
	}
	for _, lv := range d.Bids {
		ob.setLocked(ob.bids, lv.Price, lv.Qty)
	}
	for _, lv := range d.Asks {
		ob.setLocked(ob.asks, lv.Price, lv.Qty)
	}
	if ob.lastUpdateID > 0 && d.FinalUpdateID > 0 {
		ob.lastUpdateID = d.FinalUpdateID
	}
	return true, nil
}

// ApplySnapshot 清空并用权威快照重新播种。
func (ob *OrderBook) ApplySnapshot(snap DepthSnapshot) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.bids = make(map[string]PriceLevel, len(snap.Bids))
	ob.asks = make(map[string]PriceLevel, len(snap.Asks))
	for _, lv := range snap.Bids {
		ob.setLocked(ob.bids, lv.Price, lv.Qty)
	}
	for _, lv := range snap.Asks {
		ob.setLocked(ob.asks, lv.Price, lv.Qty)
	}
	ob.lastUpdateID = snap.LastUpdateID
}

// Reset 丢弃全部档位，重连后旧状态不可信。
func (ob *OrderBook) Reset() {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.bids = make(map[string]PriceLevel)
	ob.asks = make(map[string]PriceLevel)
	ob.lastUpdateID = 0
}

func (ob *OrderBook) LastUpdateID() int64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.lastUpdateID
}

// SnapshotSortedLevels 返回某侧全部档位的拷贝，bids 降序、asks 升序。
func (ob *OrderBook) SnapshotSortedLevels(s Side) []PriceLevel {
	ob.mu.RLock()
	m := ob.side(s)
	out := make([]PriceLevel, 0, len(m))
	for _, lv := range m {
		out = append(out, lv)
	}
	ob.mu.RUnlock()
	sortLevels(out, s)
	return out
}

// SortedLevels 在同一读锁内拷贝两侧，保证买卖两侧来自同一时刻。
func (ob *OrderBook) SortedLevels() (bids, asks []PriceLevel) {
	ob.mu.RLock()
	bids = make([]PriceLevel, 0, len(ob.bids))
	for _, lv := range ob.bids {
		bids = append(bids, lv)
	}
	asks = make([]PriceLevel, 0, len(ob.asks))
	for _, lv := range ob.asks {
		asks = append(asks, lv)
	}
	ob.mu.RUnlock()
	sortLevels(bids, SideBid)
	sortLevels(asks, SideAsk)
	return bids, asks
}

func sortLevels(levels []PriceLevel, s Side) {
	if s == SideAsk {
		sort.Slice(levels, func(i, j int) bool { return levels[i].Price.LessThan(levels[j].Price) })
		return
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price.GreaterThan(levels[j].Price) })
}

// Best 在同一读锁内返回买一和卖一。
func (ob *OrderBook) Best() Top {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	var top Top
	for _, lv := range ob.bids {
		if !top.HasBid || lv.Price.GreaterThan(top.Bid.Price) {
			top.Bid = lv
			top.HasBid = true
		}
	}
	for _, lv := range ob.asks {
		if !top.HasAsk || lv.Price.LessThan(top.Ask.Price) {
			top.Ask = lv
			top.HasAsk = true
		}
	}
	return top
}

// Mid 返回中间价；若缺失任一侧返回 false。
func (ob *OrderBook) Mid() (decimal.Decimal, bool) {
	top := ob.Best()
	if !top.HasBid || !top.HasAsk {
		return decimal.Zero, false
	}
	return top.Bid.Price.Add(top.Ask.Price).Div(decimal.NewFromInt(2)), true
}

// Volume 返回某档数量，不存在时为 0。
func (ob *OrderBook) Volume(s Side, price decimal.Decimal) decimal.Decimal {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if lv, ok := ob.side(s)[levelKey(price)]; ok {
		return lv.Qty
	}
	return decimal.Zero
}

func (ob *OrderBook) Len(s Side) int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return len(ob.side(s))
}
