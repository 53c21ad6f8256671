package market

import "github.com/shopspring/decimal"

// Snapshot represents a market snapshot handed to the presentation layer.
// Every field is a copy; holding it never pins engine state.
type Snapshot struct {
	Symbol    string          `json:"symbol"`
	Depth     int             `json:"depth"`
	Bids      []ViewRow       `json:"bids"`
	Asks      []ViewRow       `json:"asks"`
	MaxBid    decimal.Decimal `json:"maxBid"`
	MaxAsk    decimal.Decimal `json:"maxAsk"`
	Spread    decimal.Decimal `json:"spread"`
	HasSpread bool            `json:"hasSpread"`
	Imbalance float64         `json:"imbalance"`
	Trades    []Trade         `json:"trades"`
	BuyPct    float64         `json:"buyPct"`
	SellPct   float64         `json:"sellPct"`
	Pulses    []Pulse         `json:"pulses"`
	Flashing  []int64         `json:"flashing"`
	Sync      SyncStatus      `json:"sync"`
	Timestamp int64           `json:"ts"`
}
