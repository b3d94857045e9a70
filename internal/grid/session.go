package grid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/solovex/gridtrader/internal/domain"
	"github.com/solovex/gridtrader/internal/events"
	"github.com/solovex/gridtrader/internal/indicators"
)

// PositionProvider is the narrow PositionRegistry capability a Session
// needs: read the live position and register the fills it produces.
type PositionProvider interface {
	Get(symbol string) (domain.Position, bool)
	RegisterFill(ctx context.Context, symbol string, side domain.Side, price decimal.Decimal, volume int) error
}

// OrderPlacer is the narrow TradeExecutor capability a Session needs.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, symbol string, side domain.Side, qty int, price decimal.Decimal, priceType domain.PriceType) (string, error)
}

// TradeRecorder is the narrow Store capability a Session needs to
// durably log its own fills into grid_trades, independent of the
// in-memory TradeExecuted bus event used for live SSE updates.
type TradeRecorder interface {
	RecordTrade(ctx context.Context, event domain.GridTradeEvent) error
}

// TradeLedger is the narrow positions.SQLStore capability a Session needs
// to append its fills to the immutable trade_records ledger (spec §3),
// the same ledger a manually- or risk-dispatched order's fill lands in.
type TradeLedger interface {
	InsertTrade(ctx context.Context, trade domain.Trade) error
}

// overboughtThreshold is the RSI(14) level at or above which the
// auxiliary gate suppresses a GridBuy signal (spec §4.4).
const overboughtThreshold = 70
const overboughtLookback = 30

// OverboughtChecker is the narrow indicators capability tryBuy consults
// when Config.OverboughtGateEnabled is set.
type OverboughtChecker interface {
	Closes(ctx context.Context, symbol string, limit int) ([]float64, error)
}

const lockTimeout = 5 * time.Second
const crossCooldown = 60 * time.Second
const maxConsecutiveFailures = 3

// Session is one GridSession: the owner of a PriceTracker and BandTracker
// for a single symbol, advanced one tick at a time through OnTick. Spec
// §5 gives each session its own lock, acquired with a bounded timeout so
// a stuck session cannot stall the orchestrator's sweep of every session.
type Session struct {
	mu sync.Mutex

	meta   domain.GridSession
	symbol string

	tracker     *PriceTracker
	bandTracker *BandTracker
	lastCross   time.Time

	positions PositionProvider
	executor  OrderPlacer
	recorder  TradeRecorder
	ledger    TradeLedger
	history   OverboughtChecker
	bus       *events.Bus
	log       zerolog.Logger

	consecutiveFailures int
}

// NewSession builds a Session in the active state, ready for its first tick.
// history may be nil, in which case Config.OverboughtGateEnabled is
// ignored and every GridBuy is evaluated on price alone.
func NewSession(meta domain.GridSession, positions PositionProvider, executor OrderPlacer, recorder TradeRecorder, ledger TradeLedger, history OverboughtChecker, bus *events.Bus, log zerolog.Logger) *Session {
	return &Session{
		meta:        meta,
		symbol:      meta.Symbol,
		tracker:     NewPriceTracker(meta.CenterPrice, meta.Config.CallbackRatio),
		bandTracker: NewBandTracker(),
		positions:   positions,
		executor:    executor,
		recorder:    recorder,
		ledger:      ledger,
		history:     history,
		bus:         bus,
		log:         log.With().Str("component", "grid_session").Str("session_id", meta.SessionID).Str("symbol", meta.Symbol).Logger(),
	}
}

// Snapshot returns a copy of the session's durable metadata for persistence.
func (s *Session) Snapshot() domain.GridSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// IsActive reports whether the session is still in the active state.
func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.Status == domain.SessionActive
}

// OnTick advances the session by one tick: PriceTracker, band-crossing,
// signal composition, order sizing, fund accounting, rebuild check, then
// exit-condition check, all under the session's own lock with a 5-second
// acquisition timeout (spec §4.4, §5).
func (s *Session) OnTick(ctx context.Context, tick domain.Tick) error {
	if !s.tryLock(lockTimeout) {
		s.log.Warn().Msg("lock acquisition timed out, skipping tick")
		return nil
	}
	defer s.mu.Unlock()

	if s.meta.Status != domain.SessionActive {
		return nil
	}
	if tick.Last.IsZero() {
		// Pre-market zero tick: skip without state change (spec §8 edge case).
		return nil
	}

	if err := s.step(ctx, tick); err != nil {
		s.consecutiveFailures++
		s.log.Error().Err(err).Int("consecutive_failures", s.consecutiveFailures).Msg("tick failed")
		if s.consecutiveFailures >= maxConsecutiveFailures {
			s.terminate(domain.SessionStopped, domain.ExitError)
		}
		return err
	}
	s.consecutiveFailures = 0

	s.checkRebuild(tick.Last)
	s.checkExitConditions(tick.Last, time.Now())
	return nil
}

func (s *Session) tryLock(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.mu.Lock()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *Session) step(ctx context.Context, tick domain.Tick) error {
	pos, held := s.positions.Get(s.symbol)
	if !held {
		return nil
	}

	center := s.meta.CurrentCenterPrice
	crossDir := s.bandTracker.Observe(tick.Last, center, s.meta.Config.PriceIntervalFrac)
	if crossDir != NoCross {
		if time.Since(s.lastCross) >= crossCooldown {
			s.bandTracker.Arm(crossDir)
			s.lastCross = time.Now()
		}
	}

	callback := s.tracker.Observe(tick.Last)

	switch callback {
	case CallbackUp:
		if s.bandTracker.ConsumeBuyArm() {
			if err := s.tryBuy(ctx, tick.Last); err != nil {
				return err
			}
		}
	case CallbackDown:
		if s.bandTracker.ConsumeSellArm() {
			if err := s.tryGridSell(ctx, tick.Last, pos); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) tryBuy(ctx context.Context, price decimal.Decimal) error {
	if s.overboughtGateBlocks(ctx) {
		return nil
	}

	amount := BuyAmount(s.meta.Config.MaxInvestment, s.meta.Config.PositionRatio, s.meta.Stats.CurrentInvestment)
	qty := BuyQty(amount, price)
	if qty == 0 {
		return nil
	}

	orderID, err := s.executor.PlaceOrder(ctx, s.symbol, domain.SideBuy, qty, price, domain.PriceTypeLimit)
	if err != nil {
		return fmt.Errorf("grid buy %s: %w", s.symbol, err)
	}
	if err := s.positions.RegisterFill(ctx, s.symbol, domain.SideBuy, price, qty); err != nil {
		return fmt.Errorf("register grid buy fill %s: %w", s.symbol, err)
	}
	s.recordTrade(ctx, domain.SideBuy, price, qty, orderID)

	s.meta.Stats.CurrentInvestment = s.meta.Stats.CurrentInvestment.Add(price.Mul(decimal.NewFromInt(int64(qty))))
	s.meta.Stats.BuyCount++
	s.meta.Stats.TotalBuyAmount = s.meta.Stats.TotalBuyAmount.Add(price.Mul(decimal.NewFromInt(int64(qty))))

	s.bus.Emit(events.TradeExecuted, "grid", &events.TradeExecutedData{
		Symbol: s.symbol, Side: string(domain.SideBuy), Quantity: qty, Price: price.String(), OrderID: orderID,
	})
	s.log.Info().Int("qty", qty).Str("price", price.String()).Str("order_id", orderID).Msg("grid buy filled")
	return nil
}

func (s *Session) tryGridSell(ctx context.Context, price decimal.Decimal, pos domain.Position) error {
	qty := SellQty(pos.Available, s.meta.Config.PositionRatio)
	if qty == 0 {
		return nil
	}

	orderID, err := s.executor.PlaceOrder(ctx, s.symbol, domain.SideSell, qty, price, domain.PriceTypeLimit)
	if err != nil {
		return fmt.Errorf("grid sell %s: %w", s.symbol, err)
	}
	if err := s.positions.RegisterFill(ctx, s.symbol, domain.SideSell, price, qty); err != nil {
		return fmt.Errorf("register grid sell fill %s: %w", s.symbol, err)
	}
	s.recordTrade(ctx, domain.SideSell, price, qty, orderID)

	amount := price.Mul(decimal.NewFromInt(int64(qty)))
	s.meta.Stats.CurrentInvestment = s.meta.Stats.CurrentInvestment.Sub(amount)
	if s.meta.Stats.CurrentInvestment.IsNegative() {
		s.meta.Stats.CurrentInvestment = decimal.Zero
	}
	s.meta.Stats.SellCount++
	s.meta.Stats.TotalSellAmount = s.meta.Stats.TotalSellAmount.Add(amount)
	s.meta.Stats.RealizedPnL = s.meta.Stats.RealizedPnL.Add(price.Sub(pos.AvgCost).Mul(decimal.NewFromInt(int64(qty))))

	s.bus.Emit(events.TradeExecuted, "grid", &events.TradeExecutedData{
		Symbol: s.symbol, Side: string(domain.SideSell), Quantity: qty, Price: price.String(), OrderID: orderID,
	})
	s.log.Info().Int("qty", qty).Str("price", price.String()).Str("order_id", orderID).Msg("grid sell filled")
	return nil
}

// overboughtGateBlocks reports whether the auxiliary RSI gate should
// suppress this tick's GridBuy signal. Disabled by default; even enabled,
// it never applies to the aggressive risk level. A history lookup
// failure allows the buy through rather than blocking on a data outage.
func (s *Session) overboughtGateBlocks(ctx context.Context) bool {
	if !s.meta.Config.OverboughtGateEnabled || s.history == nil {
		return false
	}
	if s.meta.Config.RiskLevel == domain.RiskAggressive {
		return false
	}
	closes, err := s.history.Closes(ctx, s.symbol, overboughtLookback)
	if err != nil {
		s.log.Warn().Err(err).Msg("overbought gate: failed to fetch close history, allowing buy")
		return false
	}
	if indicators.OverboughtGate(closes, overboughtThreshold) {
		s.log.Info().Msg("grid buy suppressed by overbought gate")
		return true
	}
	return false
}

// recordTrade appends one fill to grid_trades for history/UI display and
// to trade_records for the permanent fill ledger; failures are logged,
// not propagated, since the fill itself already succeeded and was
// registered against the live position.
func (s *Session) recordTrade(ctx context.Context, side domain.Side, price decimal.Decimal, qty int, orderID string) {
	now := time.Now().UTC()

	if s.recorder != nil {
		event := domain.GridTradeEvent{
			SessionID: s.meta.SessionID,
			Symbol:    s.symbol,
			Side:      side,
			BandIndex: BandIndex(price, s.meta.CurrentCenterPrice, s.meta.Config.PriceIntervalFrac),
			Price:     price,
			Volume:    qty,
			Timestamp: now,
		}
		if err := s.recorder.RecordTrade(ctx, event); err != nil {
			s.log.Error().Err(err).Str("side", string(side)).Msg("failed to record grid trade")
		}
	}

	if s.ledger != nil {
		trade := domain.Trade{
			Symbol:      s.symbol,
			TradeTime:   now,
			Side:        side,
			Price:       price,
			Volume:      qty,
			OrderID:     orderID,
			StrategyTag: "grid",
		}
		if err := s.ledger.InsertTrade(ctx, trade); err != nil {
			s.log.Error().Err(err).Str("side", string(side)).Msg("failed to insert trade record")
		}
	}
}

// checkRebuild performs a grid rebuild when current_center_price has
// drifted from center_price by more than half a band (spec §4.4).
func (s *Session) checkRebuild(price decimal.Decimal) {
	if s.meta.CenterPrice.IsZero() {
		return
	}
	deviation := s.meta.CurrentCenterPrice.Sub(s.meta.CenterPrice).Abs().Div(s.meta.CenterPrice)
	half := s.meta.Config.PriceIntervalFrac.Div(decimal.NewFromInt(2))
	if deviation.LessThan(half) {
		return
	}
	s.meta.CurrentCenterPrice = price
	s.tracker.Reset(price)
	s.bandTracker.Reset()
	s.log.Info().Str("new_center", price.String()).Msg("grid rebuilt")
}

// checkExitConditions evaluates the five exit conditions in spec order,
// first match wins.
func (s *Session) checkExitConditions(price decimal.Decimal, now time.Time) {
	pos, held := s.positions.Get(s.symbol)
	if !held || pos.Volume == 0 {
		s.terminate(domain.SessionCompleted, domain.ExitPositionCleared)
		return
	}

	pairedOps := s.meta.Stats.BuyCount > 0 && s.meta.Stats.SellCount > 0
	profitRatio := s.meta.Stats.ProfitRatio(s.meta.Config.MaxInvestment)

	if pairedOps && profitRatio.LessThanOrEqual(s.meta.Config.StopLoss) {
		s.terminate(domain.SessionStopped, domain.ExitStopLoss)
		return
	}
	if pairedOps && profitRatio.GreaterThanOrEqual(s.meta.Config.TargetProfit) {
		s.terminate(domain.SessionCompleted, domain.ExitTargetProfit)
		return
	}
	if !s.meta.CenterPrice.IsZero() {
		deviation := s.meta.CurrentCenterPrice.Sub(s.meta.CenterPrice).Abs().Div(s.meta.CenterPrice)
		if deviation.GreaterThanOrEqual(s.meta.Config.MaxDeviation) {
			s.terminate(domain.SessionStopped, domain.ExitDeviation)
			return
		}
	}
	if !now.Before(s.meta.EndTime) {
		s.terminate(domain.SessionCompleted, domain.ExitTimeUp)
		return
	}
}

func (s *Session) terminate(status domain.SessionStatus, reason domain.ExitReason) {
	if s.meta.Status != domain.SessionActive {
		return
	}
	s.meta.Status = status
	s.meta.ExitReason = reason
	s.meta.EndTime = time.Now()
	s.bus.Emit(events.GridSessionStopped, "grid", &events.GridSessionStoppedData{
		SessionID: s.meta.SessionID, Symbol: s.symbol, ExitReason: string(reason),
	})
	s.log.Info().Str("status", string(status)).Str("reason", string(reason)).Msg("grid session terminated")
}

// Stop forces the session to a terminal state outside the normal
// exit-condition evaluation, e.g. from an operator-initiated API call.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminate(domain.SessionStopped, domain.ExitNone)
}
