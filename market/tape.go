package market

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultTapeCapacity = 50
	MaxLivePulses       = 13
	DefaultPulseTTL     = 1200 * time.Millisecond
	DefaultFlashTTL     = 400 * time.Millisecond
)

// pulseScale 把成交量换算为 0-100 的脉冲幅度。
var pulseScale = decimal.NewFromInt(300)

// Pulse 是随成交产生、按 TTL 衰减的瞬时标注，不属于持久状态。
type Pulse struct {
	TradeID   int64     `json:"tradeId"`
	Side      TradeSide `json:"side"`
	Magnitude float64   `json:"magnitude"`
	CreatedAt time.Time `json:"createdAt"`
}

type flash struct {
	id int64
	at time.Time
}

// TapeOption 配置 TradeTape。
type TapeOption func(*TradeTape)

func WithCapacity(n int) TapeOption {
	return func(t *TradeTape) {
		if n > 0 {
			t.capacity = n
		}
	}
}

func WithPulseTTL(d time.Duration) TapeOption {
	return func(t *TradeTape) {
		if d > 0 {
			t.pulseTTL = d
		}
	}
}

func WithFlashTTL(d time.Duration) TapeOption {
	return func(t *TradeTape) {
		if d > 0 {
			t.flashTTL = d
		}
	}
}

// WithClock 注入时钟，便于测试过期逻辑。
func WithClock(now func() time.Time) TapeOption {
	return func(t *TradeTape) {
		if now != nil {
			t.now = now
		}
	}
}

// TradeTape 按到达顺序保存最近的成交，最新在前，超出容量时淘汰最旧的。
// 同一 id 重复到达不去重，保持与交易所推送一致。
//
// 脉冲与闪烁按各自的 TTL 独立过期，过期项在每次读写时惰性清理。
type TradeTape struct {
	mu       sync.RWMutex
	trades   []Trade
	pulses   []Pulse
	flashes  []flash
	capacity int
	pulseTTL time.Duration
	flashTTL time.Duration
	now      func() time.Time
}

func NewTradeTape(opts ...TapeOption) *TradeTape {
	t := &TradeTape{
		capacity: DefaultTapeCapacity,
		pulseTTL: DefaultPulseTTL,
		flashTTL: DefaultFlashTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.trades = make([]Trade, 0, t.capacity)
	return t
}

// Push 把成交放到最前面，并生成对应的脉冲和闪烁。
func (t *TradeTape) Push(tr Trade) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()

	keep := len(t.trades)
	if keep > t.capacity-1 {
		keep = t.capacity - 1
	}
	next := make([]Trade, 0, t.capacity)
	next = append(next, tr)
	next = append(next, t.trades[:keep]...)
	t.trades = next

	t.pruneLocked(now)
	p := Pulse{TradeID: tr.ID, Side: tr.Side, Magnitude: pulseMagnitude(tr.Qty), CreatedAt: now}
	pulses := make([]Pulse, 0, MaxLivePulses)
	pulses = append(pulses, p)
	for _, old := range t.pulses {
		if len(pulses) == MaxLivePulses {
			break
		}
		pulses = append(pulses, old)
	}
	t.pulses = pulses

	t.flashes = append([]flash{{id: tr.ID, at: now}}, t.flashes...)
}

func pulseMagnitude(qty decimal.Decimal) float64 {
	m := qty.Mul(pulseScale)
	if m.IsNegative() {
		return 0
	}
	if m.GreaterThan(hundred) {
		return 100
	}
	return m.InexactFloat64()
}

func (t *TradeTape) pruneLocked(now time.Time) {
	live := t.pulses[:0]
	for _, p := range t.pulses {
		if now.Sub(p.CreatedAt) < t.pulseTTL {
			live = append(live, p)
		}
	}
	t.pulses = live

	lf := t.flashes[:0]
	for _, f := range t.flashes {
		if now.Sub(f.at) < t.flashTTL {
			lf = append(lf, f)
		}
	}
	t.flashes = lf
}

// Recent 返回最新在前的成交拷贝。
func (t *TradeTape) Recent() []Trade {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Trade, len(t.trades))
	copy(out, t.trades)
	return out
}

// Latest 返回最新一笔成交。
func (t *TradeTape) Latest() (Trade, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.trades) == 0 {
		return Trade{}, false
	}
	return t.trades[0], true
}

func (t *TradeTape) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.trades)
}

func (t *TradeTape) Capacity() int { return t.capacity }

// FlowRatio 按成交量计算主动买/卖占比（百分比），空 tape 返回 (0, 0)。
func (t *TradeTape) FlowRatio() (buyPct, sellPct float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	buys, sells := decimal.Zero, decimal.Zero
	for _, tr := range t.trades {
		if tr.IsBuy() {
			buys = buys.Add(tr.Qty)
		} else {
			sells = sells.Add(tr.Qty)
		}
	}
	total := buys.Add(sells)
	if total.IsZero() {
		total = one
	}
	return buys.Div(total).Mul(hundred).InexactFloat64(), sells.Div(total).Mul(hundred).InexactFloat64()
}

// Pulses 返回仍在 TTL 内的脉冲，最新在前。
func (t *TradeTape) Pulses() []Pulse {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(t.now())
	out := make([]Pulse, len(t.pulses))
	copy(out, t.pulses)
	return out
}

// Flashing 返回仍处于高亮期的成交 id，最新在前。
func (t *TradeTape) Flashing() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(t.now())
	out := make([]int64, 0, len(t.flashes))
	for _, f := range t.flashes {
		out = append(out, f.id)
	}
	return out
}

func (t *TradeTape) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trades = make([]Trade, 0, t.capacity)
	t.pulses = nil
	t.flashes = nil
}
