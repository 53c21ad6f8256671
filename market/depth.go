package market

// DepthDelta 是一条已解码的增量深度消息。
// FirstUpdateID/FinalUpdateID 对应交易所的 U/u，未知时为 0。
type DepthDelta struct {
	Symbol        string
	EventTimeMs   int64
	FirstUpdateID int64
	FinalUpdateID int64
	Bids          []PriceLevel
	Asks          []PriceLevel
}

// Empty 表示消息不含任何档位变更。
func (d DepthDelta) Empty() bool {
	return len(d.Bids) == 0 && len(d.Asks) == 0
}

// DepthSnapshot 是 REST 拉取的权威深度快照，bids 降序、asks 升序。
type DepthSnapshot struct {
	LastUpdateID int64
	Bids         []PriceLevel
	Asks         []PriceLevel
}

// Top 取快照的买一/卖一。
func (s DepthSnapshot) Top() Top {
	var top Top
	if len(s.Bids) > 0 {
		top.Bid, top.HasBid = s.Bids[0], true
	}
	if len(s.Asks) > 0 {
		top.Ask, top.HasAsk = s.Asks[0], true
	}
	return top
}
