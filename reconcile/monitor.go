// Package reconcile 周期性地把本地推导的盘口/最新成交与 REST 权威快照比对，
// 只产出同步结论，从不修改订单簿或成交带。
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"market-mirror-go/gateway"
	"market-mirror-go/infrastructure/logger"
	"market-mirror-go/market"
)

const (
	DefaultInterval  = 7 * time.Second
	DefaultBookLimit = 5

	CheckBook  = "book"
	CheckTrade = "trade"
)

// LocalState 是被检查的本地行情，market.Service 实现了它。
type LocalState interface {
	Top() market.Top
	LatestTrade() (market.Trade, bool)
	SyncStatus() market.SyncStatus
	SyncEpoch() uint64
	UpdateSyncStatus(epoch uint64, fn func(*market.SyncStatus)) (market.SyncStatus, bool)
}

// Recorder 接收对账指标。
type Recorder interface {
	RecordSyncCheck(check string, inSync bool)
	RecordSyncFailure(check string)
	SetInSync(inSync bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordSyncCheck(string, bool) {}
func (nopRecorder) RecordSyncFailure(string) {}
func (nopRecorder) SetInSync(bool) {}

// Option 配置 Monitor。
type Option func(*Monitor)

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

func WithTolerances(t Tolerances) Option {
	return func(m *Monitor) { m.tol = t }
}

func WithRecorder(r Recorder) Option {
	return func(m *Monitor) {
		if r != nil {
			m.rec = r
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// Monitor 在独立的 goroutine 上运行，拉取失败或延迟都不会阻塞行情更新。
type Monitor struct {
	symbol string
	local  LocalState
	source gateway.SnapshotSource
	rec    Recorder
	log    *logger.Logger
	now    func() time.Time

	mu       sync.RWMutex
	interval time.Duration
	tol      Tolerances
	retune   chan struct{}

	checkMu sync.Mutex
}

func NewMonitor(symbol string, local LocalState, source gateway.SnapshotSource, opts ...Option) *Monitor {
	m := &Monitor{
		symbol:   symbol,
		local:    local,
		source:   source,
		rec:      nopRecorder{},
		log:      logger.NewNop(),
		now:      time.Now,
		interval: DefaultInterval,
		tol:      DefaultTolerances(),
		retune:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetTolerances 热更新阈值，下一次检查生效。
func (m *Monitor) SetTolerances(t Tolerances) {
	m.mu.Lock()
	m.tol = t
	m.mu.Unlock()
}

func (m *Monitor) Tolerances() Tolerances {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tol
}

// SetInterval 热更新检查周期，Run 会重建 ticker。
func (m *Monitor) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.interval = d
	m.mu.Unlock()
	select {
	case m.retune <- struct{}{}:
	default:
	}
}

func (m *Monitor) Interval() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.interval
}

// Status 返回最近一次结论。
func (m *Monitor) Status() market.SyncStatus {
	return m.local.SyncStatus()
}

// Run 按周期检查直到 ctx 结束。
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.retune:
			ticker.Reset(m.Interval())
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// CheckNow 同步执行一次检查并写回本地状态。
// 任一拉取失败时沿用上一次的 InSync；否则 InSync 为本次实际执行的检查结果之与。
// 本地为空的一侧不检查；都没执行时结论不变。
func (m *Monitor) CheckNow(ctx context.Context) market.SyncStatus {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()

	tol := m.Tolerances()
	epoch := m.local.SyncEpoch()
	var (
		bookCmp  *market.BookComparison
		tradeCmp *market.TradeComparison
		lastErr  string
	)
	ran, failed := false, false
	verdict := true

	if top := m.local.Top(); top.HasBid && top.HasAsk {
		cmp, err := m.checkBook(ctx, top, tol)
		if err != nil {
			failed = true
			lastErr = err.Error()
			m.fetchFailed(CheckBook, err)
		} else {
			ran = true
			bookCmp = cmp
			verdict = verdict && cmp.InSync
			m.rec.RecordSyncCheck(CheckBook, cmp.InSync)
		}
	}

	if local, ok := m.local.LatestTrade(); ok {
		cmp, err := m.checkTrade(ctx, local, tol)
		if err != nil {
			failed = true
			lastErr = err.Error()
			m.fetchFailed(CheckTrade, err)
		} else {
			ran = true
			tradeCmp = cmp
			verdict = verdict && cmp.InSync
			m.rec.RecordSyncCheck(CheckTrade, cmp.InSync)
		}
	}

	if !ran && !failed {
		return m.local.SyncStatus()
	}
	checkedAt := m.now()
	next, ok := m.local.UpdateSyncStatus(epoch, func(st *market.SyncStatus) {
		if bookCmp != nil {
			st.Book = bookCmp
		}
		if tradeCmp != nil {
			st.Trade = tradeCmp
		}
		if ran && !failed {
			st.InSync = verdict
		}
		st.LastError = lastErr
		st.CheckedAt = checkedAt
	})
	if !ok {
		// 检查期间本地状态被重置，结果作废
		return next
	}
	m.rec.SetInSync(next.InSync)
	m.logResult(next)
	return next
}

func (m *Monitor) checkBook(ctx context.Context, local market.Top, tol Tolerances) (*market.BookComparison, error) {
	snap, err := m.source.Depth(ctx, m.symbol, DefaultBookLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch depth: %w", err)
	}
	remote := snap.Top()
	if !remote.HasBid || !remote.HasAsk {
		return nil, fmt.Errorf("fetch depth: empty side in snapshot")
	}
	return CompareBook(local, remote, tol.BookPrice), nil
}

func (m *Monitor) checkTrade(ctx context.Context, local market.Trade, tol Tolerances) (*market.TradeComparison, error) {
	trades, err := m.source.RecentTrades(ctx, m.symbol, 1)
	if err != nil {
		return nil, fmt.Errorf("fetch trades: %w", err)
	}
	remote, ok := latestTrade(trades)
	if !ok {
		return nil, fmt.Errorf("fetch trades: empty response")
	}
	return CompareTrade(local, remote, tol), nil
}

func (m *Monitor) fetchFailed(check string, err error) {
	m.rec.RecordSyncFailure(check)
	m.log.LogSync("sync_fetch_failed", map[string]interface{}{
		"symbol": m.symbol,
		"check":  check,
		"error":  err.Error(),
	})
}

func (m *Monitor) logResult(st market.SyncStatus) {
	fields := map[string]interface{}{
		"symbol": m.symbol,
		"inSync": st.InSync,
	}
	if st.Book != nil {
		fields["bidDiff"] = st.Book.BidDiff.String()
		fields["askDiff"] = st.Book.AskDiff.String()
	}
	if st.Trade != nil {
		fields["tradeInSync"] = st.Trade.InSync
	}
	m.log.LogSync("sync_check", fields)
}
