package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookComparison 记录一次本地买一/卖一与权威快照的比对结果。
type BookComparison struct {
	LocalBid  decimal.Decimal `json:"localBid"`
	LocalAsk  decimal.Decimal `json:"localAsk"`
	RemoteBid decimal.Decimal `json:"remoteBid"`
	RemoteAsk decimal.Decimal `json:"remoteAsk"`
	BidDiff   decimal.Decimal `json:"bidDiff"`
	AskDiff   decimal.Decimal `json:"askDiff"`
	InSync    bool            `json:"inSync"`
}

// TradeComparison 记录一次最新成交的比对结果。
type TradeComparison struct {
	LocalPrice   decimal.Decimal `json:"localPrice"`
	RemotePrice  decimal.Decimal `json:"remotePrice"`
	LocalQty     decimal.Decimal `json:"localQty"`
	RemoteQty    decimal.Decimal `json:"remoteQty"`
	LocalTimeMs  int64           `json:"localTime"`
	RemoteTimeMs int64           `json:"remoteTime"`
	InSync       bool            `json:"inSync"`
}

// SyncStatus 为漂移检测的结论及产生它的最近比对。
// Book/Trade 指向的比对结果创建后不再修改。
type SyncStatus struct {
	InSync    bool             `json:"inSync"`
	Book      *BookComparison  `json:"book,omitempty"`
	Trade     *TradeComparison `json:"trade,omitempty"`
	CheckedAt time.Time        `json:"checkedAt"`
	LastError string           `json:"lastError,omitempty"`
}

// InitialSyncStatus 在首次检查前视为同步。
func InitialSyncStatus() SyncStatus {
	return SyncStatus{InSync: true}
}
