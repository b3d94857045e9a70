package grid

import "testing"

func TestBuyAmountCappedByRemainingHeadroom(t *testing.T) {
	got := BuyAmount(dec(10000), dec(0.2), dec(9500))
	// by-ratio = 2000, headroom = 500 -> headroom wins
	if !got.Equal(dec(500)) {
		t.Fatalf("expected 500 headroom cap, got %s", got)
	}
}

func TestBuyAmountUsesRatioWhenHeadroomAmple(t *testing.T) {
	got := BuyAmount(dec(10000), dec(0.2), dec(0))
	if !got.Equal(dec(2000)) {
		t.Fatalf("expected 2000 by ratio, got %s", got)
	}
}

func TestBuyQtyRoundsDownToLotSize(t *testing.T) {
	qty := BuyQty(dec(999), dec(10)) // 99.9 shares -> floor to 0 lots of 100
	if qty != 0 {
		t.Fatalf("expected 0 (below 100-share minimum), got %d", qty)
	}
	qty = BuyQty(dec(10500), dec(10)) // 1050 shares -> floor to 1000
	if qty != 1000 {
		t.Fatalf("expected 1000, got %d", qty)
	}
}

func TestSellQtyRespectsAvailableCeiling(t *testing.T) {
	qty := SellQty(250, dec(0.5)) // 125 -> floor to 100
	if qty != 100 {
		t.Fatalf("expected 100, got %d", qty)
	}
	if qty := SellQty(50, dec(1.0)); qty != 0 {
		t.Fatalf("expected 0 below lot minimum, got %d", qty)
	}
}
