// Package domain provides the core domain models shared across the
// trading supervisor: positions, trades, grid sessions and their
// configuration, and the broker-facing value types.
package domain

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

var symbolPattern = regexp.MustCompile(`^[036]\d{5}\.(SH|SZ)$`)

// ValidateSymbol checks symbol against the six-digit-plus-exchange-suffix
// format (spec §6), validated at every input boundary.
func ValidateSymbol(symbol string) error {
	if !symbolPattern.MatchString(symbol) {
		return newValidationError("symbol", "must match ^[036]\\d{5}\\.(SH|SZ)$")
	}
	return nil
}

// Side identifies the direction of a trade or order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PriceType selects how an order is priced at submission.
type PriceType string

const (
	PriceTypeLimit  PriceType = "LIMIT"
	PriceTypeMarket PriceType = "MARKET"
)

// OrderStatus is the broker-reported lifecycle state of an order.
// Terminal states are FILLED, CANCELLED, REJECTED, PART_CANCELLED.
type OrderStatus string

const (
	OrderPending       OrderStatus = "PENDING"
	OrderSubmitted     OrderStatus = "SUBMITTED"
	OrderAccepted      OrderStatus = "ACCEPTED"
	OrderPartFilled    OrderStatus = "PART_FILLED"
	OrderFilled        OrderStatus = "FILLED"
	OrderPartCancelled OrderStatus = "PART_CANCELLED"
	OrderCancelled     OrderStatus = "CANCELLED"
	OrderRejected      OrderStatus = "REJECTED"
)

// IsTerminal reports whether the status will never transition further.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected, OrderPartCancelled:
		return true
	default:
		return false
	}
}

// Money is a monetary value. The supervisor trades a single account in a
// single currency, so Money carries no currency tag.
type Money = decimal.Decimal

// Round applies the 2-decimal persistence-boundary rounding rule from the
// data model: money is kept at full decimal precision in memory and is
// rounded only when it crosses into storage or the JSON wire format.
func Round(m Money) Money {
	return m.Round(2)
}

// Position is a live holding in the broker account, enriched with the
// per-stock risk state tracked by RiskEngine.
//
// Invariants: 0 <= Available <= Volume; MarketValue = CurrentPrice*Volume;
// ProfitRatio = (CurrentPrice-AvgCost)/AvgCost; HighestPrice is monotonic
// non-decreasing for as long as the position is held.
type Position struct {
	Symbol               string
	Volume               int
	Available            int
	AvgCost              decimal.Decimal
	BaseCost             decimal.Decimal
	CurrentPrice         decimal.Decimal
	HighestPrice         decimal.Decimal
	StopLossPrice        decimal.Decimal
	FirstProfitTriggered bool
	OpenDate             time.Time
}

// MarketValue returns CurrentPrice*Volume.
func (p Position) MarketValue() decimal.Decimal {
	return p.CurrentPrice.Mul(decimal.NewFromInt(int64(p.Volume)))
}

// ProfitRatio returns (CurrentPrice-AvgCost)/AvgCost, or zero if AvgCost is
// not yet established (no position opened).
func (p Position) ProfitRatio() decimal.Decimal {
	if p.AvgCost.IsZero() {
		return decimal.Zero
	}
	return p.CurrentPrice.Sub(p.AvgCost).Div(p.AvgCost)
}

// Trade is an immutable, append-only record of an executed fill.
type Trade struct {
	ID          int64
	Symbol      string
	TradeTime   time.Time
	Side        Side
	Price       decimal.Decimal
	Volume      int
	Commission  decimal.Decimal
	OrderID     string
	StrategyTag string
}

// Amount returns Price*Volume.
func (t Trade) Amount() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(int64(t.Volume)))
}

// RiskLevel selects a preset bundle of grid thresholds.
type RiskLevel string

const (
	RiskAggressive   RiskLevel = "aggressive"
	RiskModerate     RiskLevel = "moderate"
	RiskConservative RiskLevel = "conservative"
)

// GridConfig parameterizes one GridSession. Fractions are decimal.Decimal
// so the 1e-6-precision comparisons in the spec are exact rather than
// float-approximate.
type GridConfig struct {
	PriceIntervalFrac decimal.Decimal // 0.0001 - 0.20
	PositionRatio     decimal.Decimal // 0.01 - 1.00
	CallbackRatio     decimal.Decimal // 0.001 - 0.10
	MaxInvestment     decimal.Decimal
	MaxDeviation      decimal.Decimal // > 0
	TargetProfit      decimal.Decimal // > 0
	StopLoss          decimal.Decimal // < 0
	RiskLevel         RiskLevel

	// OverboughtGateEnabled additionally suppresses a GridBuy signal when
	// RiskLevel != aggressive and RSI(14) >= 70. Default false: pure
	// price-based callback logic is unaffected unless explicitly opted in.
	OverboughtGateEnabled bool
}

// Validate checks the GridConfig invariants from the data model.
func (c GridConfig) Validate() error {
	lo, hi := decimal.NewFromFloat(0.0001), decimal.NewFromFloat(0.20)
	if c.PriceIntervalFrac.LessThan(lo) || c.PriceIntervalFrac.GreaterThan(hi) {
		return newValidationError("price_interval", "must be in [0.0001, 0.20]")
	}
	lo, hi = decimal.NewFromFloat(0.01), decimal.NewFromFloat(1.00)
	if c.PositionRatio.LessThan(lo) || c.PositionRatio.GreaterThan(hi) {
		return newValidationError("position_ratio", "must be in [0.01, 1.00]")
	}
	lo, hi = decimal.NewFromFloat(0.001), decimal.NewFromFloat(0.10)
	if c.CallbackRatio.LessThan(lo) || c.CallbackRatio.GreaterThan(hi) {
		return newValidationError("callback_ratio", "must be in [0.001, 0.10]")
	}
	if c.MaxInvestment.IsNegative() {
		return newValidationError("max_investment", "must be >= 0")
	}
	if !c.MaxDeviation.IsPositive() {
		return newValidationError("max_deviation", "must be > 0")
	}
	if !c.TargetProfit.IsPositive() {
		return newValidationError("target_profit", "must be > 0")
	}
	if !c.StopLoss.IsNegative() {
		return newValidationError("stop_loss", "must be < 0")
	}
	if c.TargetProfit.LessThan(c.StopLoss.Abs()) {
		return newValidationError("target_profit", "must be >= |stop_loss|")
	}
	switch c.RiskLevel {
	case RiskAggressive, RiskModerate, RiskConservative:
	default:
		return newValidationError("risk_level", "must be aggressive, moderate or conservative")
	}
	return nil
}

// SessionStatus is the lifecycle state of a GridSession.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionStopped   SessionStatus = "stopped"
	SessionCompleted SessionStatus = "completed"
)

// IsTerminal reports whether the session has exited and will not resume.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStopped || s == SessionCompleted
}

// ExitReason names why a GridSession left the active state.
type ExitReason string

const (
	ExitNone            ExitReason = ""
	ExitPositionCleared ExitReason = "POSITION_CLEARED"
	ExitStopLoss        ExitReason = "STOP_LOSS"
	ExitTargetProfit    ExitReason = "TARGET_PROFIT"
	ExitDeviation       ExitReason = "DEVIATION"
	ExitTimeUp          ExitReason = "TIME_UP"
	ExitError           ExitReason = "ERROR"
)

// GridStats accumulates the running statistics for one GridSession.
type GridStats struct {
	BuyCount          int
	SellCount         int
	CurrentInvestment decimal.Decimal
	RealizedPnL       decimal.Decimal
	TotalBuyAmount    decimal.Decimal
	TotalSellAmount   decimal.Decimal
}

// TradeCount returns BuyCount+SellCount (invariant #4 in the spec).
func (s GridStats) TradeCount() int {
	return s.BuyCount + s.SellCount
}

// ProfitRatio returns (total sells - total buys)/max_investment.
func (s GridStats) ProfitRatio(maxInvestment decimal.Decimal) decimal.Decimal {
	if maxInvestment.IsZero() {
		return decimal.Zero
	}
	return s.TotalSellAmount.Sub(s.TotalBuyAmount).Div(maxInvestment)
}

// GridSession is a time-bounded grid-trading run on one symbol.
type GridSession struct {
	SessionID          string
	Symbol             string
	Status             SessionStatus
	ExitReason         ExitReason
	CenterPrice        decimal.Decimal
	CurrentCenterPrice decimal.Decimal
	StartTime          time.Time
	EndTime            time.Time
	DurationDays       int
	Config             GridConfig
	Stats              GridStats
}

// GridTradeEvent records one grid fill for history/UI display.
type GridTradeEvent struct {
	ID        int64
	SessionID string
	Symbol    string
	Side      Side
	BandIndex int
	Price     decimal.Decimal
	Volume    int
	Timestamp time.Time
}

// RiskTemplate is a named, reusable bundle of risk/grid thresholds.
type RiskTemplate struct {
	Name        string
	Description string
	Config      GridConfig
	IsDefault   bool
	UsageCount  int
}

// WatchlistEntry is one symbol the supervisor tracks.
//
// Symbol must match ^[036]\d{5}\.(SH|SZ)$.
type WatchlistEntry struct {
	Symbol      string
	Market      string
	DisplayName string
}

// Tick is a point-in-time market data snapshot for one symbol.
type Tick struct {
	Symbol    string
	Last      decimal.Decimal
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	PrevClose decimal.Decimal
	Volume    int64
	Amount    decimal.Decimal
	Timestamp time.Time
	Source    string
}

// IntentReason tags why a TradeIntent was raised.
type IntentReason string

const (
	ReasonStopLoss   IntentReason = "STOP_LOSS"
	ReasonFirstTP    IntentReason = "FIRST_TP"
	ReasonTrailingTP IntentReason = "TRAILING_TP"
	ReasonReplenish  IntentReason = "REPLENISH"
	ReasonGridBuy    IntentReason = "GRID_BUY"
	ReasonGridSell   IntentReason = "GRID_SELL"
)

// TradeIntent is a risk- or grid-rule-emitted candidate order, not yet
// submitted to the broker.
type TradeIntent struct {
	Symbol   string
	Side     Side
	Quantity int
	Price    decimal.Decimal
	Reason   IntentReason
	RaisedAt time.Time
}

// ValidationError reports a single invalid field, used to surface
// user-input failures verbatim to API callers (spec §7).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
