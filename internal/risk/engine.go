// Package risk implements the continuously-evaluated rule pipeline that
// watches every open position and raises TradeIntent values for stop-loss,
// take-profit, and replenishment. Grounded on the teacher's
// trading.TradeSafetyService layered-validation pipeline, generalized from
// a one-shot pre-trade check into a repeating per-tick evaluation that
// emits intents rather than allow/deny verdicts.
package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/solovex/gridtrader/internal/config"
	"github.com/solovex/gridtrader/internal/domain"
)

const intentCooldown = 60 * time.Second

// Engine evaluates the four-layer rule pipeline of spec §4.3 against one
// Position snapshot at a time, rate-limiting repeated intents for the
// same symbol+reason pair.
type Engine struct {
	cfg *config.Store
	log zerolog.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time // key: symbol + "|" + reason
}

// New builds an Engine reading thresholds from cfg on every Evaluate call,
// so a live config update takes effect on the very next tick.
func New(cfg *config.Store, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		log:      log.With().Str("component", "risk_engine").Logger(),
		lastSent: make(map[string]time.Time),
	}
}

// Evaluate runs the four-layer pipeline against pos at pos.CurrentPrice,
// in evaluation order (stop-loss, first take-profit, trailing take-profit,
// replenishment), returning at most one intent per position per tick:
// the first layer that fires ends the cycle.
//
// Contract note: stop-loss dominates take-profit, which dominates
// replenishment, within the same cycle (spec §4.3 tie-break rule) — this
// is naturally satisfied by returning on the first match.
func (e *Engine) Evaluate(pos domain.Position, now time.Time) []domain.TradeIntent {
	if pos.AvgCost.IsZero() {
		e.log.Debug().Str("symbol", pos.Symbol).Msg("skip: missing avg_cost")
		return nil
	}
	cfg := e.cfg.Snapshot()

	if intent, ok := e.stopLoss(cfg, pos, now); ok {
		return []domain.TradeIntent{intent}
	}

	if intent, ok := e.firstTakeProfit(cfg, pos, now); ok {
		return []domain.TradeIntent{intent}
	}
	if intent, ok := e.trailingTakeProfit(cfg, pos, now); ok {
		return []domain.TradeIntent{intent}
	}
	if intent, ok := e.replenishment(cfg, pos, now); ok {
		return []domain.TradeIntent{intent}
	}
	return nil
}

// stopLoss is layer 1: profit_ratio <= stop_loss_ratio sells the full
// available quantity.
func (e *Engine) stopLoss(cfg config.Config, pos domain.Position, now time.Time) (domain.TradeIntent, bool) {
	if !cfg.StopLossEnabled || pos.Available <= 0 {
		return domain.TradeIntent{}, false
	}
	if pos.ProfitRatio().GreaterThan(cfg.StopLossRatio) {
		return domain.TradeIntent{}, false
	}
	if !e.allow(pos.Symbol, domain.ReasonStopLoss, now) {
		return domain.TradeIntent{}, false
	}
	return e.sell(pos, pos.Available, domain.ReasonStopLoss, now), true
}

// firstTakeProfit is layer 2: a one-time partial exit once profit_ratio
// clears first_take_profit_ratio.
func (e *Engine) firstTakeProfit(cfg config.Config, pos domain.Position, now time.Time) (domain.TradeIntent, bool) {
	if !cfg.FirstTakeProfitEnabled || pos.FirstProfitTriggered || pos.Available <= 0 {
		return domain.TradeIntent{}, false
	}
	if pos.ProfitRatio().LessThan(cfg.FirstTakeProfitRatio) {
		return domain.TradeIntent{}, false
	}
	qty := floorToLot(decimal.NewFromInt(int64(pos.Volume)).Mul(cfg.FirstTakeProfitSellFraction))
	if qty < 100 || qty > pos.Available {
		return domain.TradeIntent{}, false
	}
	if !e.allow(pos.Symbol, domain.ReasonFirstTP, now) {
		return domain.TradeIntent{}, false
	}
	return e.sell(pos, qty, domain.ReasonFirstTP, now), true
}

// trailingTakeProfit is layer 3: walk the dynamic table from the highest
// profit_floor down, exiting fully on the first floor whose pullback
// threshold from the position's peak has also been breached.
func (e *Engine) trailingTakeProfit(cfg config.Config, pos domain.Position, now time.Time) (domain.TradeIntent, bool) {
	if pos.Available <= 0 || pos.HighestPrice.IsZero() {
		return domain.TradeIntent{}, false
	}
	peakProfit := pos.HighestPrice.Sub(pos.AvgCost).Div(pos.AvgCost)
	pullback := pos.HighestPrice.Sub(pos.CurrentPrice).Div(pos.HighestPrice)

	for _, rung := range cfg.DynamicTakeProfit {
		if peakProfit.LessThan(rung.ProfitFloor) {
			continue
		}
		if pullback.LessThan(rung.TrailingPullback) {
			continue
		}
		if !e.allow(pos.Symbol, domain.ReasonTrailingTP, now) {
			return domain.TradeIntent{}, false
		}
		return e.sell(pos, pos.Available, domain.ReasonTrailingTP, now), true
	}
	return domain.TradeIntent{}, false
}

// replenishment is layer 4: a small additional buy once the price has
// drawn down from base_cost enough, subject to both position caps.
func (e *Engine) replenishment(cfg config.Config, pos domain.Position, now time.Time) (domain.TradeIntent, bool) {
	if !cfg.ReplenishmentEnabled || pos.BaseCost.IsZero() || pos.CurrentPrice.IsZero() {
		return domain.TradeIntent{}, false
	}
	drawdown := pos.BaseCost.Sub(pos.CurrentPrice).Div(pos.BaseCost)
	if drawdown.LessThan(cfg.ReplenishmentDrawdownRatio) {
		return domain.TradeIntent{}, false
	}

	unit := floorToLot(cfg.SingleBuyAmount.Div(pos.CurrentPrice))
	if unit < 100 {
		return domain.TradeIntent{}, false
	}

	addedValue := pos.CurrentPrice.Mul(decimal.NewFromInt(int64(unit)))
	positionValueAfter := pos.MarketValue().Add(addedValue)
	if positionValueAfter.GreaterThan(cfg.SingleStockMaxPosition) {
		return domain.TradeIntent{}, false
	}
	// Total portfolio cap check is the caller's responsibility when it
	// has the full portfolio in view; Engine only sees one position at a
	// time, so it is enforced by EvaluatePortfolio below.

	if !e.allow(pos.Symbol, domain.ReasonReplenish, now) {
		return domain.TradeIntent{}, false
	}
	return domain.TradeIntent{
		Symbol: pos.Symbol, Side: domain.SideBuy, Quantity: unit,
		Price: pos.CurrentPrice, Reason: domain.ReasonReplenish, RaisedAt: now,
	}, true
}

// EvaluatePortfolio runs Evaluate across every position, additionally
// enforcing the portfolio-wide total_max_position cap on replenishment
// intents (spec §4.3 layer 4, "total portfolio value would not exceed
// total_max_position").
func (e *Engine) EvaluatePortfolio(positions []domain.Position, now time.Time) []domain.TradeIntent {
	cfg := e.cfg.Snapshot()
	totalValue := decimal.Zero
	for _, pos := range positions {
		totalValue = totalValue.Add(pos.MarketValue())
	}

	var out []domain.TradeIntent
	for _, pos := range positions {
		for _, intent := range e.Evaluate(pos, now) {
			if intent.Reason == domain.ReasonReplenish {
				added := intent.Price.Mul(decimal.NewFromInt(int64(intent.Quantity)))
				if totalValue.Add(added).GreaterThan(cfg.TotalMaxPosition) {
					continue
				}
			}
			out = append(out, intent)
		}
	}
	return out
}

func (e *Engine) sell(pos domain.Position, qty int, reason domain.IntentReason, now time.Time) domain.TradeIntent {
	return domain.TradeIntent{
		Symbol: pos.Symbol, Side: domain.SideSell, Quantity: qty,
		Price: pos.CurrentPrice, Reason: reason, RaisedAt: now,
	}
}

// allow enforces the 60-second same-symbol-same-reason rate limit.
func (e *Engine) allow(symbol string, reason domain.IntentReason, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := symbol + "|" + string(reason)
	if last, ok := e.lastSent[key]; ok && now.Sub(last) < intentCooldown {
		return false
	}
	e.lastSent[key] = now
	return true
}

// floorToLot rounds d down to the nearest multiple of 100 shares.
func floorToLot(d decimal.Decimal) int {
	lots := d.Div(decimal.NewFromInt(100)).Floor()
	return int(lots.IntPart()) * 100
}
