package broker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/solovex/gridtrader/internal/domain"
)

// LastPriceFunc resolves the last known tick price for a symbol, used by
// the simulator to fill market orders.
type LastPriceFunc func(symbol string) (decimal.Decimal, bool)

// SimExecutor is a paper-trading TradeExecutor: it fills every order
// immediately at the requested price (or the last tick for a market
// order). It rejects only a non-positive quantity, an unknown side,
// insufficient simulated cash or position, or a market order with no
// last price.
type SimExecutor struct {
	mu        sync.Mutex
	nextOrder uint64
	cash      decimal.Decimal
	positions map[string]domain.Position
	lastPrice LastPriceFunc
	log       zerolog.Logger
}

// NewSimExecutor starts the simulator with startingCash and a callback to
// resolve market-order fill prices.
func NewSimExecutor(startingCash decimal.Decimal, lastPrice LastPriceFunc, log zerolog.Logger) *SimExecutor {
	return &SimExecutor{
		cash:      startingCash,
		positions: make(map[string]domain.Position),
		lastPrice: lastPrice,
		log:       log.With().Str("component", "sim_executor").Logger(),
	}
}

// PlaceOrder fills immediately; a market order uses the last known tick,
// a limit order fills at the requested price exactly.
func (e *SimExecutor) PlaceOrder(ctx context.Context, symbol string, side domain.Side, qty int, price decimal.Decimal, priceType domain.PriceType) (string, error) {
	if qty <= 0 {
		return "", fmt.Errorf("quantity must be positive")
	}

	fillPrice := price
	if priceType == domain.PriceTypeMarket {
		last, ok := e.lastPrice(symbol)
		if !ok {
			return "", fmt.Errorf("no tick available to fill market order for %s", symbol)
		}
		fillPrice = last
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	amount := fillPrice.Mul(decimal.NewFromInt(int64(qty)))
	switch side {
	case domain.SideBuy:
		if e.cash.LessThan(amount) {
			return "", fmt.Errorf("insufficient simulated cash: have %s, need %s", e.cash, amount)
		}
		e.cash = e.cash.Sub(amount)
		e.applyFill(symbol, qty, fillPrice)
	case domain.SideSell:
		pos, exists := e.positions[symbol]
		if !exists || pos.Available < qty {
			return "", fmt.Errorf("insufficient simulated position in %s to sell %d", symbol, qty)
		}
		e.cash = e.cash.Add(amount)
		e.applyFill(symbol, -qty, fillPrice)
	default:
		return "", fmt.Errorf("invalid side %q", side)
	}

	orderID := atomic.AddUint64(&e.nextOrder, 1)
	e.log.Info().Str("symbol", symbol).Str("side", string(side)).Int("qty", qty).
		Str("fill_price", fillPrice.String()).Msg("simulated fill")
	return fmt.Sprintf("SIM-%d", orderID), nil
}

// applyFill updates the in-memory position under e.mu, held by the caller.
// signedQty is positive for a buy, negative for a sell.
func (e *SimExecutor) applyFill(symbol string, signedQty int, price decimal.Decimal) {
	pos, exists := e.positions[symbol]
	if !exists {
		pos = domain.Position{Symbol: symbol, CurrentPrice: price, HighestPrice: price}
	}

	if signedQty > 0 {
		totalCost := pos.AvgCost.Mul(decimal.NewFromInt(int64(pos.Volume))).Add(price.Mul(decimal.NewFromInt(int64(signedQty))))
		pos.Volume += signedQty
		pos.Available += signedQty
		if pos.Volume > 0 {
			pos.AvgCost = totalCost.Div(decimal.NewFromInt(int64(pos.Volume)))
		}
		if pos.BaseCost.IsZero() {
			pos.BaseCost = pos.AvgCost
		}
	} else {
		sold := -signedQty
		pos.Volume -= sold
		pos.Available -= sold
	}
	pos.CurrentPrice = price
	if price.GreaterThan(pos.HighestPrice) {
		pos.HighestPrice = price
	}

	if pos.Volume <= 0 {
		delete(e.positions, symbol)
		return
	}
	e.positions[symbol] = pos
}

// CancelOrder is a no-op: simulated orders fill synchronously in PlaceOrder
// and never remain pending.
func (e *SimExecutor) CancelOrder(ctx context.Context, orderID string) error {
	return nil
}

func (e *SimExecutor) QueryAccount(ctx context.Context) (domain.AccountSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	marketValue := decimal.Zero
	for _, pos := range e.positions {
		marketValue = marketValue.Add(pos.MarketValue())
	}
	return domain.AccountSnapshot{
		Available:   e.cash,
		TotalAsset:  e.cash.Add(marketValue),
		MarketValue: marketValue,
	}, nil
}

func (e *SimExecutor) QueryPositions(ctx context.Context) ([]domain.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.Position, 0, len(e.positions))
	for _, pos := range e.positions {
		out = append(out, pos)
	}
	return out, nil
}

// SetCredentials is a no-op; the simulator has no broker session.
func (e *SimExecutor) SetCredentials(apiKey, apiSecret string) {}

// IsConnected is always true: the simulator has no external dependency.
func (e *SimExecutor) IsConnected() bool { return true }

var _ domain.BrokerClient = (*SimExecutor)(nil)
