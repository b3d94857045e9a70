package broker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/solovex/gridtrader/internal/domain"
	"github.com/solovex/gridtrader/internal/events"
)

// fillRegistrar is the narrow PositionRegistry capability the callback
// needs to apply a fill outside the grid session's own synchronous path
// (manual actions and risk-engine intents, both routed through
// Dispatcher rather than a Session's direct OrderPlacer).
type fillRegistrar interface {
	RegisterFill(ctx context.Context, symbol string, side domain.Side, price domain.Money, volume int) error
}

// tradeRecorder is the narrow trade-ledger capability the callback needs
// to append an immutable trade_records row alongside the position update.
type tradeRecorder interface {
	InsertTrade(ctx context.Context, trade domain.Trade) error
}

// EventCallback implements domain.OrderCallback: every dispatcher
// callback either updates the PositionRegistry or logs/emits a bus event,
// so manual and risk-driven orders leave the same trail as grid fills do.
type EventCallback struct {
	registry fillRegistrar
	trades   tradeRecorder
	bus      *events.Bus
	log      zerolog.Logger
}

// NewEventCallback builds a callback wired to registry, the trade ledger
// and bus.
func NewEventCallback(registry fillRegistrar, trades tradeRecorder, bus *events.Bus, log zerolog.Logger) *EventCallback {
	return &EventCallback{
		registry: registry,
		trades:   trades,
		bus:      bus,
		log:      log.With().Str("component", "order_callback").Logger(),
	}
}

// OnOrder logs a submission/cancellation acknowledgement.
func (c *EventCallback) OnOrder(status domain.OrderUpdate) {
	c.log.Info().Str("order_id", status.OrderID).Str("status", string(status.Status)).Msg("order status update")
	if c.bus != nil {
		c.bus.Emit(events.SystemStatusChanged, "broker", &events.SystemStatusChangedData{
			Status: "order_" + string(status.Status), Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// OnFill applies a reported fill to the PositionRegistry and emits
// TradeExecuted, the same trail a grid session's synchronous fill leaves.
func (c *EventCallback) OnFill(deal domain.Deal) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.registry.RegisterFill(ctx, deal.Symbol, deal.Side, deal.Price, deal.Volume); err != nil {
		c.log.Error().Err(err).Str("symbol", deal.Symbol).Str("order_id", deal.OrderID).Msg("failed to register fill")
	}
	if c.trades != nil {
		trade := domain.Trade{
			Symbol:      deal.Symbol,
			TradeTime:   time.Now().UTC(),
			Side:        deal.Side,
			Price:       deal.Price,
			Volume:      deal.Volume,
			OrderID:     deal.OrderID,
			StrategyTag: "dispatcher",
		}
		if err := c.trades.InsertTrade(ctx, trade); err != nil {
			c.log.Error().Err(err).Str("symbol", deal.Symbol).Str("order_id", deal.OrderID).Msg("failed to insert trade record")
		}
	}
	if c.bus != nil {
		c.bus.Emit(events.TradeExecuted, "broker", &events.TradeExecutedData{
			Symbol: deal.Symbol, Side: string(deal.Side), Quantity: deal.Volume, Price: deal.Price.String(), OrderID: deal.OrderID,
		})
	}
}

// OnAccount logs a fresh account snapshot; the dashboard pulls this data
// on demand via QueryAccount instead, so this is a log-only observation.
func (c *EventCallback) OnAccount(snapshot domain.AccountSnapshot) {
	c.log.Debug().Str("available", snapshot.Available.String()).Str("total_asset", snapshot.TotalAsset.String()).Msg("account snapshot received")
}

// OnError surfaces a dispatcher-level failure to the bus's error channel.
func (c *EventCallback) OnError(err error) {
	c.log.Error().Err(err).Msg("order dispatcher error")
	if c.bus != nil {
		c.bus.EmitError("broker", err, nil)
	}
}
