package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"market-mirror-go/market"
)

const (
	// BinanceSpotWSEndpoint 现货 combined stream 地址。
	BinanceSpotWSEndpoint = "wss://stream.binance.com:9443"

	DefaultDepthStream       = "depth@100ms"
	DefaultTradeStream       = "aggTrade"
	DefaultSnapshotLimit     = 1000
	defaultReadTimeout       = 30 * time.Second
	defaultReconnectDelay    = time.Second
	defaultMaxReconnectDelay = 30 * time.Second
	handshakeTimeout         = 10 * time.Second
)

// Feed 订阅单个交易对的深度增量与成交流。
// 每次（重新）连接都会丢弃本地订单簿并用 REST 快照重新播种。
type Feed struct {
	BaseEndpoint      string
	Dialer            *websocket.Dialer
	Snapshots         SnapshotSource
	SnapshotLimit     int
	Recorder          Recorder
	Logger            *zap.Logger
	Events            EventLog
	DepthStream       string
	TradeStream       string
	ReadTimeout       time.Duration
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

func NewFeed(baseEndpoint string, snapshots SnapshotSource, rec Recorder, logger *zap.Logger) *Feed {
	if baseEndpoint == "" {
		baseEndpoint = BinanceSpotWSEndpoint
	}
	return &Feed{
		BaseEndpoint: baseEndpoint,
		Dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		Snapshots:         snapshots,
		SnapshotLimit:     DefaultSnapshotLimit,
		Recorder:          rec,
		Logger:            logger,
		DepthStream:       DefaultDepthStream,
		TradeStream:       DefaultTradeStream,
		ReadTimeout:       defaultReadTimeout,
		ReconnectDelay:    defaultReconnectDelay,
		MaxReconnectDelay: defaultMaxReconnectDelay,
	}
}

// StreamURL 构建 combined stream 地址，例如
// wss://stream.binance.com:9443/stream?streams=btcusdt@depth@100ms/btcusdt@aggTrade
func (f *Feed) StreamURL(symbol string) (string, error) {
	if symbol == "" {
		return "", fmt.Errorf("symbol required")
	}
	base := f.BaseEndpoint
	if base == "" {
		base = BinanceSpotWSEndpoint
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", base, err)
	}
	lower := strings.ToLower(symbol)
	streams := []string{
		lower + "@" + orDefault(f.DepthStream, DefaultDepthStream),
		lower + "@" + orDefault(f.TradeStream, DefaultTradeStream),
	}
	u.Path = "/stream"
	q := u.Query()
	q.Set("streams", strings.Join(streams, "/"))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open 建立第一条连接并在后台持续读取，消息交给 svc。
// 首次拨号失败直接返回错误；之后的断线由会话自行退避重连。
func (f *Feed) Open(ctx context.Context, symbol string, svc *market.Service) (*Session, error) {
	if svc == nil {
		return nil, fmt.Errorf("market service required")
	}
	handler := &MarketDataHandler{Svc: svc, Recorder: f.Recorder, Logger: f.logger(), Events: f.Events}
	return f.OpenWithHandler(ctx, symbol, svc, handler)
}

// OpenWithHandler 与 Open 相同，但允许替换消息处理器。
func (f *Feed) OpenWithHandler(ctx context.Context, symbol string, svc *market.Service, handler WSHandler) (*Session, error) {
	conn, err := f.dial(ctx, symbol)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:      uuid.New(),
		Symbol:  strings.ToUpper(symbol),
		feed:    f,
		svc:     svc,
		handler: handler,
		cancel:  cancel,
		done:    make(chan struct{}),
		conn:    conn,
	}
	s.log = f.logger().With(
		zap.String("session", s.ID.String()),
		zap.String("symbol", s.Symbol),
	)
	go s.run(runCtx, conn)
	return s, nil
}

func (f *Feed) dial(ctx context.Context, symbol string) (*websocket.Conn, error) {
	endpoint, err := f.StreamURL(symbol)
	if err != nil {
		return nil, err
	}
	dialer := f.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	recorderOrNop(f.Recorder).RecordWSConnection()
	return conn, nil
}

func (f *Feed) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

// Session 是一次订阅；Close 之后不会再有任何消息写入 market.Service。
type Session struct {
	ID     uuid.UUID
	Symbol string

	feed    *Feed
	svc     *market.Service
	handler WSHandler
	log     *zap.Logger

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	conn       *websocket.Conn
	reconnects int
}

// Close 停止会话并等待读循环退出，可重复调用。
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.mu.Unlock()
	})
	<-s.done
	return nil
}

// Done 在读循环退出后关闭。
func (s *Session) Done() <-chan struct{} { return s.done }

// Reconnects 返回会话建立以来的重连次数。
func (s *Session) Reconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

func (s *Session) run(ctx context.Context, conn *websocket.Conn) {
	defer close(s.done)
	rec := recorderOrNop(s.feed.Recorder)
	delay := orDuration(s.feed.ReconnectDelay, defaultReconnectDelay)
	for {
		err := s.serve(ctx, conn)
		_ = conn.Close()
		rec.RecordWSDisconnect()
		if ctx.Err() != nil {
			s.log.Info("feed session closed")
			return
		}
		s.log.Warn("feed disconnected, reconnecting", zap.Error(err), zap.Duration("delay", delay))

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			next, err := s.feed.dial(ctx, s.Symbol)
			if err == nil {
				conn = next
				break
			}
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("feed reconnect failed", zap.Error(err))
			delay *= 2
			if ceiling := orDuration(s.feed.MaxReconnectDelay, defaultMaxReconnectDelay); delay > ceiling {
				delay = ceiling
			}
		}
		delay = orDuration(s.feed.ReconnectDelay, defaultReconnectDelay)

		s.mu.Lock()
		s.conn = conn
		s.reconnects++
		s.mu.Unlock()
		// Close 可能恰好发生在拨号期间
		if ctx.Err() != nil {
			_ = conn.Close()
			rec.RecordWSDisconnect()
			return
		}
	}
}

// serve 播种并读取一条连接直到出错。
func (s *Session) serve(ctx context.Context, conn *websocket.Conn) error {
	readTimeout := orDuration(s.feed.ReadTimeout, defaultReadTimeout)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	s.reseed(ctx)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.handler.OnRawMessage(message); err != nil {
			if errors.Is(err, market.ErrSequenceGap) {
				s.log.Warn("depth sequence gap, resyncing", zap.Error(err))
				s.reseed(ctx)
				continue
			}
			return err
		}
	}
}

// reseed 丢弃本地订单簿并在可用时拉取 REST 快照。
// 快照失败时退化为纯增量构建。
func (s *Session) reseed(ctx context.Context) {
	s.svc.ResetBook()
	if s.feed.Snapshots == nil {
		return
	}
	limit := s.feed.SnapshotLimit
	if limit <= 0 {
		limit = DefaultSnapshotLimit
	}
	snap, err := s.feed.Snapshots.Depth(ctx, s.Symbol, limit)
	if err != nil {
		s.log.Warn("depth snapshot failed, building from deltas", zap.Error(err))
		return
	}
	s.svc.Reseed(snap)
	s.log.Info("book seeded from snapshot",
		zap.Int64("last_update_id", snap.LastUpdateID),
		zap.Int("bids", len(snap.Bids)),
		zap.Int("asks", len(snap.Asks)),
	)
	top := s.svc.Top()
	eventLogOrNop(s.feed.Events).LogFeed("depth_snapshot", map[string]interface{}{
		"symbol":       s.Symbol,
		"lastUpdateId": snap.LastUpdateID,
		"bid":          top.Bid.Price.String(),
		"ask":          top.Ask.Price.String(),
	})
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
