package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"market-mirror-go/market"
)

// ErrParse 表示推送消息字段无法解析；整条消息被丢弃，不会产生部分修改。
var ErrParse = errors.New("malformed stream message")

// ErrUnknownEvent 表示消息类型不是 depth/trade，调用方可直接忽略。
var ErrUnknownEvent = errors.New("unknown stream event")

// CombinedMessage 对应 binance combined stream 包装。
type CombinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// DepthUpdate 对应 <symbol>@depth 增量消息。
type DepthUpdate struct {
	Event         string           `json:"e"`
	EventTime     int64            `json:"E"`
	Symbol        string           `json:"s"`
	FirstUpdateID int64            `json:"U"`
	FinalUpdateID int64            `json:"u"`
	Bids          [][2]json.Number `json:"b"`
	Asks          [][2]json.Number `json:"a"`
}

// AggTrade 对应 <symbol>@aggTrade 消息，也用于解码 @trade（成交号取 t）。
type AggTrade struct {
	Event        string      `json:"e"`
	EventTime    int64       `json:"E"`
	Symbol       string      `json:"s"`
	AggID        *int64      `json:"a"`
	TradeID      *int64      `json:"t"`
	Price        json.Number `json:"p"`
	Qty          json.Number `json:"q"`
	TradeTime    int64       `json:"T"`
	BuyerIsMaker bool        `json:"m"`
}

// EventKind 区分解码后的消息类型。
type EventKind int

const (
	EventDepth EventKind = iota + 1
	EventTrade
)

// StreamEvent 是解码后的单条推送。
type StreamEvent struct {
	Kind  EventKind
	Depth market.DepthDelta
	Trade market.Trade
}

type eventHeader struct {
	Event string `json:"e"`
}

// ParseStreamMessage 解析原始或 combined 包装的 depthUpdate / aggTrade / trade 消息。
// 解析在任何状态修改之前完成。
func ParseStreamMessage(raw []byte) (StreamEvent, error) {
	payload := raw
	var msg CombinedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return StreamEvent{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(msg.Data) > 0 {
		payload = msg.Data
	}
	var head eventHeader
	if err := json.Unmarshal(payload, &head); err != nil {
		return StreamEvent{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	switch head.Event {
	case "depthUpdate":
		d, err := ParseDepthUpdate(payload)
		return StreamEvent{Kind: EventDepth, Depth: d}, err
	case "aggTrade", "trade":
		t, err := ParseTrade(payload)
		return StreamEvent{Kind: EventTrade, Trade: t}, err
	default:
		return StreamEvent{}, fmt.Errorf("%w: %q", ErrUnknownEvent, head.Event)
	}
}

// ParseDepthUpdate 解析 depthUpdate 负载；数量为 "0" 表示删除该档。
func ParseDepthUpdate(payload []byte) (market.DepthDelta, error) {
	var u DepthUpdate
	if err := json.Unmarshal(payload, &u); err != nil {
		return market.DepthDelta{}, fmt.Errorf("%w: depth: %v", ErrParse, err)
	}
	bids, err := parseLevels(u.Bids)
	if err != nil {
		return market.DepthDelta{}, fmt.Errorf("%w: bids: %v", ErrParse, err)
	}
	asks, err := parseLevels(u.Asks)
	if err != nil {
		return market.DepthDelta{}, fmt.Errorf("%w: asks: %v", ErrParse, err)
	}
	return market.DepthDelta{
		Symbol:        u.Symbol,
		EventTimeMs:   u.EventTime,
		FirstUpdateID: u.FirstUpdateID,
		FinalUpdateID: u.FinalUpdateID,
		Bids:          bids,
		Asks:          asks,
	}, nil
}

// ParseTrade 解析 aggTrade/trade 负载。
func ParseTrade(payload []byte) (market.Trade, error) {
	var a AggTrade
	if err := json.Unmarshal(payload, &a); err != nil {
		return market.Trade{}, fmt.Errorf("%w: trade: %v", ErrParse, err)
	}
	// aggTrade 的成交号是 a；trade 流里 a 不是成交号，只认 t
	idField := a.AggID
	switch a.Event {
	case "trade":
		idField = a.TradeID
	case "aggTrade":
	default:
		if idField == nil {
			idField = a.TradeID
		}
	}
	if idField == nil {
		return market.Trade{}, fmt.Errorf("%w: trade: missing id", ErrParse)
	}
	id := *idField
	price, err := decimal.NewFromString(a.Price.String())
	if err != nil {
		return market.Trade{}, fmt.Errorf("%w: trade price %q: %v", ErrParse, a.Price, err)
	}
	qty, err := decimal.NewFromString(a.Qty.String())
	if err != nil {
		return market.Trade{}, fmt.Errorf("%w: trade qty %q: %v", ErrParse, a.Qty, err)
	}
	return market.Trade{
		ID:     id,
		Price:  price,
		Qty:    qty,
		Side:   market.SideFromBuyerMaker(a.BuyerIsMaker),
		TimeMs: a.TradeTime,
	}, nil
}

func parseLevels(raw [][2]json.Number) ([]market.PriceLevel, error) {
	out := make([]market.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		price, err := decimal.NewFromString(pair[0].String())
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", pair[0], err)
		}
		qty, err := decimal.NewFromString(pair[1].String())
		if err != nil {
			return nil, fmt.Errorf("qty %q: %w", pair[1], err)
		}
		out = append(out, market.PriceLevel{Price: price, Qty: qty})
	}
	return out, nil
}
