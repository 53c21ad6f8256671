package market

import "testing"

func TestDepthSnapshotTop(t *testing.T) {
	snap := DepthSnapshot{
		LastUpdateID: 1,
		Bids:         []PriceLevel{lv("100", "1"), lv("99", "2")},
	}
	top := snap.Top()
	if !top.HasBid || top.HasAsk {
		t.Fatalf("unexpected flags %+v", top)
	}
	if !top.Bid.Price.Equal(d("100")) {
		t.Fatalf("unexpected bid %s", top.Bid.Price)
	}
	if !(DepthDelta{}).Empty() {
		t.Fatalf("zero delta should be empty")
	}
}
