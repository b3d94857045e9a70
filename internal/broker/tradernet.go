// Package broker provides TradeExecutor implementations: a broker-backed
// executor wrapping the Tradernet SDK, and a paper-trading simulator.
package broker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/solovex/gridtrader/internal/clients/tradernet/sdk"
	"github.com/solovex/gridtrader/internal/domain"
)

// sdkClient is the narrow slice of the Tradernet SDK the executor needs,
// kept as an interface so tests can inject a fake.
type sdkClient interface {
	Buy(symbol string, quantity int, price float64, duration string, useMargin bool, customOrderID *int) (interface{}, error)
	Sell(symbol string, quantity int, price float64, duration string, useMargin bool, customOrderID *int) (interface{}, error)
	Cancel(orderID int) (interface{}, error)
	AccountSummary() (interface{}, error)
	UserInfo() (interface{}, error)
}

// TradernetExecutor implements domain.BrokerClient against the live broker.
type TradernetExecutor struct {
	client sdkClient
	log    zerolog.Logger
}

// NewTradernetExecutor builds its own SDK client from apiKey and apiSecret.
func NewTradernetExecutor(apiKey, apiSecret string, log zerolog.Logger) *TradernetExecutor {
	return &TradernetExecutor{
		client: sdk.NewClient(apiKey, apiSecret, log),
		log:    log.With().Str("component", "tradernet_executor").Logger(),
	}
}

// PlaceOrder submits a BUY or SELL order. priceType==Market sends price=0
// to the SDK, which the broker interprets as a market order.
func (e *TradernetExecutor) PlaceOrder(ctx context.Context, symbol string, side domain.Side, qty int, price decimal.Decimal, priceType domain.PriceType) (string, error) {
	limit, _ := price.Float64()
	if priceType == domain.PriceTypeMarket {
		limit = 0
	}

	var result interface{}
	var err error
	switch side {
	case domain.SideBuy:
		result, err = e.client.Buy(symbol, qty, limit, "day", false, nil)
	case domain.SideSell:
		result, err = e.client.Sell(symbol, qty, limit, "day", false, nil)
	default:
		return "", fmt.Errorf("invalid side %q", side)
	}
	if err != nil {
		e.log.Error().Err(err).Str("symbol", symbol).Str("side", string(side)).Msg("place order failed")
		return "", fmt.Errorf("place order: %w", err)
	}

	return extractOrderID(result)
}

// CancelOrder cancels a pending order by its string-encoded broker ID.
func (e *TradernetExecutor) CancelOrder(ctx context.Context, orderID string) error {
	id, err := parseOrderID(orderID)
	if err != nil {
		return err
	}
	if _, err := e.client.Cancel(id); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}

// QueryAccount returns the account's available cash, total asset value,
// and market value, parsed from the raw getPositionJson response.
func (e *TradernetExecutor) QueryAccount(ctx context.Context) (domain.AccountSnapshot, error) {
	raw, err := e.client.AccountSummary()
	if err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("query account: %w", err)
	}
	return parseAccountSnapshot(raw), nil
}

// QueryPositions returns the broker's view of open positions, parsed from
// the same getPositionJson response as QueryAccount.
func (e *TradernetExecutor) QueryPositions(ctx context.Context) ([]domain.Position, error) {
	raw, err := e.client.AccountSummary()
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	return parsePositions(raw), nil
}

// SetCredentials recreates the underlying SDK client with new keys.
func (e *TradernetExecutor) SetCredentials(apiKey, apiSecret string) {
	e.client = sdk.NewClient(apiKey, apiSecret, e.log)
}

// IsConnected probes the broker with a lightweight identity call.
func (e *TradernetExecutor) IsConnected() bool {
	_, err := e.client.UserInfo()
	return err == nil
}

var _ domain.BrokerClient = (*TradernetExecutor)(nil)
