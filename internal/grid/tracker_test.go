package grid

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestPriceTrackerIdleTransitionsOnFirstMove(t *testing.T) {
	tr := NewPriceTracker(dec(100), dec(0.03))
	if cb := tr.Observe(dec(101)); cb != NoCallback {
		t.Fatalf("expected no callback on idle->up transition, got %v", cb)
	}
	if tr.State() != StateTrackingUp {
		t.Fatalf("expected TRACKING_UP, got %v", tr.State())
	}
}

func TestPriceTrackerCallbackDownFiresOnPullback(t *testing.T) {
	tr := NewPriceTracker(dec(100), dec(0.03))
	tr.Observe(dec(110)) // idle -> tracking up, peak=110
	tr.Observe(dec(112)) // new peak
	cb := tr.Observe(dec(108)) // well past the 3% drop threshold
	if cb != CallbackDown {
		t.Fatalf("expected CallbackDown past 3%% drawdown, got %v", cb)
	}
	if tr.State() != StateTrackingDown {
		t.Fatalf("expected state to flip to TRACKING_DOWN, got %v", tr.State())
	}
}

func TestPriceTrackerCallbackUpFiresOnBounce(t *testing.T) {
	tr := NewPriceTracker(dec(100), dec(0.03))
	tr.Observe(dec(90)) // idle -> tracking down, trough=90
	tr.Observe(dec(88)) // new trough
	cb := tr.Observe(dec(92)) // well past the 3% bounce threshold
	if cb != CallbackUp {
		t.Fatalf("expected CallbackUp past 3%% bounce, got %v", cb)
	}
}

func TestPriceTrackerNoCallbackBelowThreshold(t *testing.T) {
	tr := NewPriceTracker(dec(100), dec(0.03))
	tr.Observe(dec(110))
	if cb := tr.Observe(dec(109)); cb != NoCallback {
		t.Fatalf("small pullback under threshold should not fire, got %v", cb)
	}
}

func TestPriceTrackerResetClearsExtrema(t *testing.T) {
	tr := NewPriceTracker(dec(100), dec(0.03))
	tr.Observe(dec(110))
	tr.Reset(dec(105))
	if tr.State() != StateIdle {
		t.Fatalf("expected IDLE after reset, got %v", tr.State())
	}
}

func TestBandIndexSignAndMagnitude(t *testing.T) {
	center := dec(100)
	interval := dec(0.02)
	if k := BandIndex(dec(100), center, interval); k != 0 {
		t.Fatalf("at center expected band 0, got %d", k)
	}
	if k := BandIndex(dec(102.5), center, interval); k != 1 {
		t.Fatalf("expected band 1 at +2.5%%, got %d", k)
	}
	if k := BandIndex(dec(97), center, interval); k >= 0 {
		t.Fatalf("expected negative band below center, got %d", k)
	}
}

func TestBandTrackerArmsOnCrossThenConsumesOnce(t *testing.T) {
	bt := NewBandTracker()
	center, interval := dec(100), dec(0.02)
	bt.Observe(dec(100), center, interval) // seed lastBand, no cross
	dir := bt.Observe(dec(97), center, interval)
	if dir != CrossDown {
		t.Fatalf("expected CrossDown, got %v", dir)
	}
	bt.Arm(dir)
	if !bt.ConsumeBuyArm() {
		t.Fatal("expected buy arm to be set after CrossDown")
	}
	if bt.ConsumeBuyArm() {
		t.Fatal("consuming buy arm twice should return false the second time")
	}
}

func TestBandTrackerResetClearsArms(t *testing.T) {
	bt := NewBandTracker()
	bt.Observe(dec(100), dec(100), dec(0.02))
	dir := bt.Observe(dec(103), dec(100), dec(0.02))
	bt.Arm(dir)
	bt.Reset()
	if bt.ConsumeSellArm() {
		t.Fatal("expected sell arm cleared after Reset")
	}
}
