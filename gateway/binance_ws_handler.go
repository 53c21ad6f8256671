package gateway

import (
	"errors"

	"go.uber.org/zap"

	"market-mirror-go/market"
)

// WSHandler 接收 websocket 原始消息；返回错误时会话需要重新同步。
type WSHandler interface {
	OnRawMessage(msg []byte) error
}

// MarketDataHandler 解析 depth/trade 推送并写入 market.Service。
type MarketDataHandler struct {
	Svc      *market.Service
	Recorder Recorder
	Logger   *zap.Logger
	Events   EventLog
}

func (k EventKind) String() string {
	switch k {
	case EventDepth:
		return "depth"
	case EventTrade:
		return "trade"
	default:
		return "message"
	}
}

// OnRawMessage 解析失败的消息被丢弃并计数，不影响后续消息；
// 只有深度断档会以 market.ErrSequenceGap 返回。
func (h *MarketDataHandler) OnRawMessage(msg []byte) error {
	rec := recorderOrNop(h.Recorder)
	ev, err := ParseStreamMessage(msg)
	if err != nil {
		if errors.Is(err, ErrUnknownEvent) {
			h.logger().Debug("ignore stream message", zap.Error(err))
			return nil
		}
		rec.RecordParseError(ev.Kind.String())
		h.logger().Warn("drop malformed message",
			zap.String("kind", ev.Kind.String()),
			zap.Error(err),
		)
		return nil
	}
	if h.Svc == nil {
		return nil
	}
	switch ev.Kind {
	case EventDepth:
		return h.onDepth(ev.Depth, rec)
	case EventTrade:
		h.Svc.OnTrade(ev.Trade)
		buy, _ := h.Svc.FlowRatio()
		rec.RecordTrade(ev.Trade, buy)
		eventLogOrNop(h.Events).LogTrade("trade_print", map[string]interface{}{
			"symbol": h.Svc.Symbol(),
			"id":     ev.Trade.ID,
			"price":  ev.Trade.Price.String(),
			"qty":    ev.Trade.Qty.String(),
			"side":   string(ev.Trade.Side),
		})
	}
	return nil
}

func (h *MarketDataHandler) onDepth(d market.DepthDelta, rec Recorder) error {
	applied, err := h.Svc.OnDepth(d)
	if err != nil {
		if errors.Is(err, market.ErrSequenceGap) {
			rec.RecordSequenceGap()
			eventLogOrNop(h.Events).LogFeed("sequence_gap", map[string]interface{}{
				"symbol":        h.Svc.Symbol(),
				"firstUpdateId": d.FirstUpdateID,
				"lastUpdateId":  h.Svc.Book().LastUpdateID(),
			})
		}
		return err
	}
	if applied {
		book := h.Svc.Book()
		rec.RecordDepthApplied(book.Best(), book.Len(market.SideBid), book.Len(market.SideAsk))
	}
	return nil
}

func (h *MarketDataHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
