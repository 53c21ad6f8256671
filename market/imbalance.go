package market

// CalculateImbalance calculates the imbalance between bid and ask volumes
// Imbalance = (BidVol - AskVol) / (BidVol + AskVol)
func CalculateImbalance(bidVolumeTop float64, askVolumeTop float64) float64 {
	totalVolume := bidVolumeTop + askVolumeTop
	if totalVolume == 0 {
		return 0
	}
	return (bidVolumeTop - askVolumeTop) / totalVolume
}

// CalculateImbalanceFromOrderBook calculates imbalance using full order book data
// levels specifies how many levels to consider from the top
func CalculateImbalanceFromOrderBook(book *OrderBook, levels int) float64 {
	if book == nil || levels <= 0 {
		return 0
	}
	bids, asks := book.SortedLevels()
	return CalculateImbalance(
		sumQty(ProjectLevels(bids, levels)),
		sumQty(ProjectLevels(asks, levels)),
	)
}
