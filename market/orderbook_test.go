package market

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func lv(p, q string) PriceLevel { return PriceLevel{Price: d(p), Qty: d(q)} }

func TestOrderBookApplyAndMid(t *testing.T) {
	ob := NewOrderBook()
	ob.Apply(DepthDelta{
		Bids: []PriceLevel{lv("100", "1"), lv("99.5", "2")},
		Asks: []PriceLevel{lv("101", "1.5"), lv("102", "3")},
	})
	top := ob.Best()
	if !top.Bid.Price.Equal(d("100")) || !top.Ask.Price.Equal(d("101")) {
		t.Fatalf("unexpected best bid/ask: %s/%s", top.Bid.Price, top.Ask.Price)
	}
	if mid, ok := ob.Mid(); !ok || !mid.Equal(d("100.5")) {
		t.Fatalf("unexpected mid %s", mid)
	}
	// 删除一档
	ob.ApplyDelta(SideBid, d("100"), decimal.Zero)
	if top = ob.Best(); !top.Bid.Price.Equal(d("99.5")) {
		t.Fatalf("expected best bid 99.5 got %s", top.Bid.Price)
	}
}

func TestOrderBookZeroRemovesLevel(t *testing.T) {
	ob := NewOrderBook()
	ob.ApplyDelta(SideBid, d("100.00"), d("2.5"))
	ob.ApplyDelta(SideBid, d("100.00"), d("0"))
	for _, l := range ob.SnapshotSortedLevels(SideBid) {
		if l.Price.Equal(d("100")) {
			t.Fatalf("level 100.00 should be removed")
		}
	}
	if ob.Len(SideBid) != 0 {
		t.Fatalf("expected empty bid side, got %d", ob.Len(SideBid))
	}
}

func TestOrderBookPriceKeyNormalized(t *testing.T) {
	ob := NewOrderBook()
	ob.ApplyDelta(SideAsk, d("100.10"), d("1"))
	ob.ApplyDelta(SideAsk, d("100.1"), d("3"))
	if ob.Len(SideAsk) != 1 {
		t.Fatalf("expected one level, got %d", ob.Len(SideAsk))
	}
	if q := ob.Volume(SideAsk, d("100.100")); !q.Equal(d("3")) {
		t.Fatalf("unexpected qty %s", q)
	}
	ob.ApplyDelta(SideAsk, d("100.1000"), d("0.000"))
	if ob.Len(SideAsk) != 0 {
		t.Fatalf("expected level removed")
	}
}

func TestOrderBookApplyIdempotentPerCall(t *testing.T) {
	ob := NewOrderBook()
	ob.ApplyDelta(SideBid, d("50"), d("1"))
	ob.ApplyDelta(SideBid, d("50"), d("1"))
	levels := ob.SnapshotSortedLevels(SideBid)
	if len(levels) != 1 || !levels[0].Qty.Equal(d("1")) {
		t.Fatalf("unexpected levels %+v", levels)
	}
}

func TestSnapshotSortedLevelsOrdering(t *testing.T) {
	ob := NewOrderBook()
	ob.Apply(DepthDelta{
		Bids: []PriceLevel{lv("99", "1"), lv("101", "1"), lv("100", "1")},
		Asks: []PriceLevel{lv("105", "1"), lv("103", "1"), lv("104", "1")},
	})
	bids := ob.SnapshotSortedLevels(SideBid)
	for i := 1; i < len(bids); i++ {
		if !bids[i-1].Price.GreaterThan(bids[i].Price) {
			t.Fatalf("bids not descending: %+v", bids)
		}
	}
	asks := ob.SnapshotSortedLevels(SideAsk)
	for i := 1; i < len(asks); i++ {
		if !asks[i-1].Price.LessThan(asks[i].Price) {
			t.Fatalf("asks not ascending: %+v", asks)
		}
	}
	// 返回的是拷贝
	bids[0].Qty = d("999")
	if ob.Volume(SideBid, d("101")).Equal(d("999")) {
		t.Fatalf("snapshot must not alias book state")
	}
}

func TestOrderBookRandomDeltasMatchModel(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ob := NewOrderBook()
	model := map[string]decimal.Decimal{}
	for i := 0; i < 5000; i++ {
		price := decimal.New(int64(9900+rng.Intn(200)), -2)
		qty := decimal.Zero
		if rng.Intn(3) != 0 {
			qty = decimal.New(int64(rng.Intn(5000)), -3)
		}
		ob.ApplyDelta(SideBid, price, qty)
		if qty.IsZero() {
			delete(model, price.String())
		} else {
			model[price.String()] = qty
		}
	}
	levels := ob.SnapshotSortedLevels(SideBid)
	if len(levels) != len(model) {
		t.Fatalf("level count %d != model %d", len(levels), len(model))
	}
	seen := map[string]bool{}
	for _, l := range levels {
		key := l.Price.String()
		if seen[key] {
			t.Fatalf("duplicate price %s", key)
		}
		seen[key] = true
		if l.Qty.IsZero() {
			t.Fatalf("zero quantity stored at %s", key)
		}
		if !model[key].Equal(l.Qty) {
			t.Fatalf("qty mismatch at %s: %s vs %s", key, l.Qty, model[key])
		}
	}
}

func TestOrderBookSequenceAfterSnapshot(t *testing.T) {
	ob := NewOrderBook()
	ob.ApplySnapshot(DepthSnapshot{
		LastUpdateID: 100,
		Bids:         []PriceLevel{lv("10", "1")},
		Asks:         []PriceLevel{lv("11", "1")},
	})

	// 快照之前的消息被跳过
	applied, err := ob.Apply(DepthDelta{FirstUpdateID: 90, FinalUpdateID: 100, Bids: []PriceLevel{lv("10", "0")}})
	if err != nil || applied {
		t.Fatalf("stale delta should be skipped: applied=%v err=%v", applied, err)
	}
	// 跨越快照边界的消息被应用
	applied, err = ob.Apply(DepthDelta{FirstUpdateID: 95, FinalUpdateID: 105, Bids: []PriceLevel{lv("10", "2")}})
	if err != nil || !applied {
		t.Fatalf("straddling delta should apply: applied=%v err=%v", applied, err)
	}
	if ob.LastUpdateID() != 105 {
		t.Fatalf("unexpected last update id %d", ob.LastUpdateID())
	}
	// 断档
	_, err = ob.Apply(DepthDelta{FirstUpdateID: 110, FinalUpdateID: 112, Bids: []PriceLevel{lv("10", "5")}})
	if !errors.Is(err, ErrSequenceGap) {
		t.Fatalf("expected sequence gap, got %v", err)
	}
	if q := ob.Volume(SideBid, d("10")); !q.Equal(d("2")) {
		t.Fatalf("gap delta must not mutate, qty=%s", q)
	}
}

func TestOrderBookResetClearsSequence(t *testing.T) {
	ob := NewOrderBook()
	ob.ApplySnapshot(DepthSnapshot{LastUpdateID: 7, Bids: []PriceLevel{lv("1", "1"), lv("2", "0")}})
	if ob.Len(SideBid) != 1 {
		t.Fatalf("zero qty level from snapshot must not be stored")
	}
	ob.Reset()
	if ob.Len(SideBid) != 0 || ob.LastUpdateID() != 0 {
		t.Fatalf("reset did not clear book")
	}
	// 未播种时不校验序号
	if applied, err := ob.Apply(DepthDelta{FirstUpdateID: 500, FinalUpdateID: 501, Asks: []PriceLevel{lv("3", "1")}}); err != nil || !applied {
		t.Fatalf("unseeded book should apply any delta: %v %v", applied, err)
	}
}
