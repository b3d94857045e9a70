// Package grid implements GridSession: the grid-trading state machine of
// spec §4.4. PriceTracker, the band-crossing detector, and order sizing
// are grounded on the teacher's formulas packages for the arithmetic
// idiom (plain functions over float/decimal series) generalized to the
// cross+callback signal composition this spec specifies; GridSession's
// lifecycle and locking discipline are grounded on the teacher's
// TradeSafetyService/grid-session-equivalent pattern of holding one lock
// per unit of concurrent work.
package grid

import (
	"github.com/shopspring/decimal"
)

// TrackerState is one of PriceTracker's three states.
type TrackerState int

const (
	StateIdle TrackerState = iota
	StateTrackingUp
	StateTrackingDown
)

func (s TrackerState) String() string {
	switch s {
	case StateTrackingUp:
		return "TRACKING_UP"
	case StateTrackingDown:
		return "TRACKING_DOWN"
	default:
		return "IDLE"
	}
}

// CallbackKind reports which reversal PriceTracker just detected.
type CallbackKind int

const (
	NoCallback CallbackKind = iota
	CallbackUp              // reversal up from a trough: candidate BUY trigger
	CallbackDown             // reversal down from a peak: candidate SELL trigger
)

// PriceTracker detects local price reversals against a session's center,
// per spec §4.4. Comparisons use decimal.Decimal so the 1e-6 fraction
// precision the spec calls for is exact rather than float-approximate.
type PriceTracker struct {
	state        TrackerState
	center       decimal.Decimal
	peak         decimal.Decimal
	trough       decimal.Decimal
	callbackFrac decimal.Decimal
}

// NewPriceTracker starts IDLE against center with the session's configured
// callback ratio.
func NewPriceTracker(center, callbackRatio decimal.Decimal) *PriceTracker {
	return &PriceTracker{state: StateIdle, center: center, callbackFrac: callbackRatio}
}

// Reset returns the tracker to IDLE against a new center, forgetting both
// extrema (used after a grid rebuild).
func (t *PriceTracker) Reset(newCenter decimal.Decimal) {
	t.state = StateIdle
	t.center = newCenter
	t.peak = decimal.Zero
	t.trough = decimal.Zero
}

// State returns the tracker's current state.
func (t *PriceTracker) State() TrackerState { return t.state }

// Observe advances the state machine with tick price p, returning the
// callback (if any) fired on this tick.
func (t *PriceTracker) Observe(p decimal.Decimal) CallbackKind {
	switch t.state {
	case StateIdle:
		switch {
		case p.GreaterThan(t.center):
			t.state = StateTrackingUp
			t.peak = p
		case p.LessThan(t.center):
			t.state = StateTrackingDown
			t.trough = p
		}
		return NoCallback

	case StateTrackingUp:
		if p.GreaterThanOrEqual(t.peak) {
			t.peak = p
			return NoCallback
		}
		drop := t.peak.Sub(p).Div(t.peak)
		if drop.GreaterThanOrEqual(t.callbackFrac) {
			t.state = StateTrackingDown
			t.trough = p
			return CallbackDown
		}
		return NoCallback

	case StateTrackingDown:
		if p.LessThanOrEqual(t.trough) {
			t.trough = p
			return NoCallback
		}
		rise := p.Sub(t.trough).Div(t.trough)
		if rise.GreaterThanOrEqual(t.callbackFrac) {
			t.state = StateTrackingUp
			t.peak = p
			return CallbackUp
		}
		return NoCallback
	}
	return NoCallback
}

// BandIndex computes the signed band index k = floor((p/center - 1) /
// price_interval) for the given center and price_interval.
func BandIndex(p, center, priceInterval decimal.Decimal) int {
	if center.IsZero() {
		return 0
	}
	ratio := p.Div(center).Sub(decimal.NewFromInt(1)).Div(priceInterval)
	return int(ratio.Floor().IntPart())
}

// CrossDirection reports how the band index moved between two observations.
type CrossDirection int

const (
	NoCross CrossDirection = iota
	CrossDown               // band index decreased: candidate buy-arm
	CrossUp                  // band index increased: candidate sell-arm
)

// BandTracker wraps the band-crossing detector: signed band index plus
// the resulting buy/sell arming state machine (spec §4.4 "cross +
// callback composition"). The 60-second cooldown is kept by the session,
// not here.
type BandTracker struct {
	lastBand   int
	hasLast    bool
	armedBuy   bool
	armedSell  bool
}

// NewBandTracker starts with no observed band index.
func NewBandTracker() *BandTracker {
	return &BandTracker{}
}

// Observe updates the tracked band index for price p, returning the cross
// direction detected (NoCross if k is unchanged or this is the first
// observation). Cooldown gating is the caller's responsibility (session
// OnTick tracks last-cross-time per symbol); this type only tracks index
// state and arming flags.
func (b *BandTracker) Observe(p, center, priceInterval decimal.Decimal) CrossDirection {
	k := BandIndex(p, center, priceInterval)
	if !b.hasLast {
		b.lastBand = k
		b.hasLast = true
		return NoCross
	}
	if k == b.lastBand {
		return NoCross
	}
	dir := CrossUp
	if k < b.lastBand {
		dir = CrossDown
	}
	b.lastBand = k
	return dir
}

// Arm records that direction has armed the session for a future callback.
func (b *BandTracker) Arm(dir CrossDirection) {
	switch dir {
	case CrossDown:
		b.armedBuy = true
	case CrossUp:
		b.armedSell = true
	}
}

// ConsumeBuyArm reports and clears whether a downward cross has armed a
// buy, to be combined with a CallbackUp from PriceTracker.
func (b *BandTracker) ConsumeBuyArm() bool {
	if !b.armedBuy {
		return false
	}
	b.armedBuy = false
	return true
}

// ConsumeSellArm is the BUY-arm's symmetric counterpart.
func (b *BandTracker) ConsumeSellArm() bool {
	if !b.armedSell {
		return false
	}
	b.armedSell = false
	return true
}

// Reset clears the tracked band index and both arm flags (used alongside
// PriceTracker.Reset on a grid rebuild).
func (b *BandTracker) Reset() {
	b.hasLast = false
	b.armedBuy = false
	b.armedSell = false
}
