package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// DataSource is the capability a MarketDataHub aggregates. Each concrete
// source (broker feed, public fallback feed) serializes its own calls
// internally; the hub never calls the same source concurrently with itself.
type DataSource interface {
	// Name identifies the source for health tracking and logging.
	Name() string

	// GetTick fetches the latest tick for symbol. Implementations never
	// panic; a transient failure is returned as an error and counted
	// against the source's health.
	GetTick(ctx context.Context, symbol string) (Tick, error)

	// Subscribe performs one-time validation that each symbol is
	// obtainable from this source.
	Subscribe(ctx context.Context, symbols []string) error
}

// BrokerClient is the capability abstraction over the broker SDK, named
// TradeExecutor in the spec. A simulation implementation mirrors this
// contract without hitting a real broker.
type BrokerClient interface {
	PlaceOrder(ctx context.Context, symbol string, side Side, qty int, price decimal.Decimal, priceType PriceType) (orderID string, err error)
	CancelOrder(ctx context.Context, orderID string) error
	QueryAccount(ctx context.Context) (AccountSnapshot, error)
	QueryPositions(ctx context.Context) ([]Position, error)

	// SetCredentials rotates API credentials without requiring a restart.
	SetCredentials(apiKey, apiSecret string)
	IsConnected() bool
}

// OrderCallback is invoked from the order-dispatch worker's callback queue,
// never from the broker SDK's own I/O thread (spec §5, §9).
type OrderCallback interface {
	OnOrder(status OrderUpdate)
	OnFill(deal Deal)
	OnAccount(snapshot AccountSnapshot)
	OnError(err error)
}

// OrderUpdate reports a broker-side order status transition.
type OrderUpdate struct {
	OrderID string
	Status  OrderStatus
}

// Deal reports one fill (partial or full) against an order.
type Deal struct {
	OrderID string
	Symbol  string
	Side    Side
	Price   Money
	Volume  int
}

// AccountSnapshot is the broker account summary used by the dashboard.
type AccountSnapshot struct {
	Available   Money
	TotalAsset  Money
	MarketValue Money
}
