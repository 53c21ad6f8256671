package market

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Service 是单个交易对的行情镜像：持有订单簿、成交带与同步状态，
// 对外只暴露拷贝出来的只读视图，并在每次变更后通知订阅者。
//
// OnDepth/OnTrade 必须由同一个 goroutine 按到达顺序调用。
type Service struct {
	symbol string
	book   *OrderBook
	tape   *TradeTape
	pub    *Publisher

	mu    sync.RWMutex
	sync  SyncStatus
	epoch uint64 // 每次 Reset 加一
	last  time.Time
	now   func() time.Time
}

func NewService(symbol string, pub *Publisher, opts ...TapeOption) *Service {
	if pub == nil {
		pub = NewPublisher()
	}
	return &Service{
		symbol: symbol,
		book:   NewOrderBook(),
		tape:   NewTradeTape(opts...),
		pub:    pub,
		sync:   InitialSyncStatus(),
		now:    time.Now,
	}
}

func (s *Service) Symbol() string { return s.symbol }

func (s *Service) Publisher() *Publisher { return s.pub }

func (s *Service) Book() *OrderBook { return s.book }

func (s *Service) Tape() *TradeTape { return s.tape }

// OnDepth 应用一条增量深度消息。返回 false 表示消息早于当前快照被跳过；
// ErrSequenceGap 表示需要重新拉取快照。
func (s *Service) OnDepth(d DepthDelta) (bool, error) {
	applied, err := s.book.Apply(d)
	if err != nil || !applied {
		return applied, err
	}
	s.touch()
	s.pub.Notify()
	return true, nil
}

// OnTrade 把成交推入成交带。
func (s *Service) OnTrade(t Trade) {
	s.tape.Push(t)
	s.touch()
	s.pub.Notify()
}

// Reseed 用权威快照重置订单簿。
func (s *Service) Reseed(snap DepthSnapshot) {
	s.book.ApplySnapshot(snap)
	s.touch()
	s.pub.Notify()
}

// ResetBook 在重连时丢弃订单簿，成交带保留。
func (s *Service) ResetBook() {
	s.book.Reset()
	s.pub.Notify()
}

// Reset 在切换交易对或销毁时清空全部状态。
func (s *Service) Reset() {
	s.book.Reset()
	s.tape.Reset()
	s.mu.Lock()
	s.sync = InitialSyncStatus()
	s.epoch++
	s.last = time.Time{}
	s.mu.Unlock()
	s.pub.Notify()
}

func (s *Service) touch() {
	s.mu.Lock()
	s.last = s.now()
	s.mu.Unlock()
}

// SetSyncStatus 由对账模块写入最新结论。
func (s *Service) SetSyncStatus(st SyncStatus) {
	s.mu.Lock()
	s.sync = st
	s.mu.Unlock()
	s.pub.Notify()
}

// SyncEpoch 标识当前状态代次，Reset 之后改变。
func (s *Service) SyncEpoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// UpdateSyncStatus 在锁内读改写对账结论。epoch 已过期（期间发生过 Reset）时不写入，返回 false。
func (s *Service) UpdateSyncStatus(epoch uint64, fn func(st *SyncStatus)) (SyncStatus, bool) {
	s.mu.Lock()
	if epoch != s.epoch {
		st := s.sync
		s.mu.Unlock()
		return st, false
	}
	fn(&s.sync)
	st := s.sync
	s.mu.Unlock()
	s.pub.Notify()
	return st, true
}

func (s *Service) SyncStatus() SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sync
}

func (s *Service) CurrentBidView(depth int) []ViewRow { return Project(s.book, SideBid, depth) }

func (s *Service) CurrentAskView(depth int) []ViewRow { return Project(s.book, SideAsk, depth) }

// SpreadValue 返回卖一减买一，任一侧为空时返回 (0, false)。
func (s *Service) SpreadValue() (decimal.Decimal, bool) {
	top := s.book.Best()
	if !top.HasBid || !top.HasAsk {
		return decimal.Zero, false
	}
	return top.Ask.Price.Sub(top.Bid.Price), true
}

func (s *Service) Top() Top { return s.book.Best() }

func (s *Service) Mid() (decimal.Decimal, bool) { return s.book.Mid() }

func (s *Service) RecentTrades() []Trade { return s.tape.Recent() }

func (s *Service) LatestTrade() (Trade, bool) { return s.tape.Latest() }

func (s *Service) FlowRatio() (buyPct, sellPct float64) { return s.tape.FlowRatio() }

func (s *Service) Pulses() []Pulse { return s.tape.Pulses() }

func (s *Service) Flashing() []int64 { return s.tape.Flashing() }

// Imbalance 返回前 levels 档的买卖量失衡度。
func (s *Service) Imbalance(levels int) float64 {
	return CalculateImbalanceFromOrderBook(s.book, levels)
}

// Staleness 返回距离上次更新的时间间隔；如无数据返回一年。
func (s *Service) Staleness() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last.IsZero() {
		return time.Hour * 24 * 365
	}
	return s.now().Sub(s.last)
}

// Snapshot 汇总当前全部只读视图。
func (s *Service) Snapshot(depth int) Snapshot {
	if depth <= 0 {
		depth = DefaultDepth
	}
	bidLevels, askLevels := s.book.SortedLevels()
	bids := ProjectLevels(bidLevels, depth)
	asks := ProjectLevels(askLevels, depth)
	spread, ok := Spread(bids, asks)
	buy, sell := s.FlowRatio()
	return Snapshot{
		Symbol:    s.symbol,
		Depth:     depth,
		Bids:      bids,
		Asks:      asks,
		MaxBid:    MaxCumulative(bids),
		MaxAsk:    MaxCumulative(asks),
		Spread:    spread,
		HasSpread: ok,
		Imbalance: CalculateImbalance(sumQty(bids), sumQty(asks)),
		Trades:    s.RecentTrades(),
		BuyPct:    buy,
		SellPct:   sell,
		Pulses:    s.Pulses(),
		Flashing:  s.Flashing(),
		Sync:      s.SyncStatus(),
		Timestamp: s.now().UnixMilli(),
	}
}

func sumQty(rows []ViewRow) float64 {
	if len(rows) == 0 {
		return 0
	}
	return rows[len(rows)-1].Cumulative.InexactFloat64()
}
