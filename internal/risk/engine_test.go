package risk

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/solovex/gridtrader/internal/config"
	"github.com/solovex/gridtrader/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	store := config.NewStore(cfg, nil)
	return New(store, zerolog.Nop())
}

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestStopLossTriggersFullExit(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now()
	pos := domain.Position{
		Symbol: "AAPL.US", Volume: 200, Available: 200,
		AvgCost: d(100), BaseCost: d(100), CurrentPrice: d(92), HighestPrice: d(100),
	}
	intents := e.Evaluate(pos, now)
	require.Len(t, intents, 1)
	require.Equal(t, domain.ReasonStopLoss, intents[0].Reason)
	require.Equal(t, 200, intents[0].Quantity)
}

func TestFirstTakeProfitPartialExit(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now()
	pos := domain.Position{
		Symbol: "AAPL.US", Volume: 200, Available: 200,
		AvgCost: d(100), BaseCost: d(100), CurrentPrice: d(106), HighestPrice: d(106),
	}
	intents := e.Evaluate(pos, now)
	require.Len(t, intents, 1)
	require.Equal(t, domain.ReasonFirstTP, intents[0].Reason)
	require.Equal(t, 100, intents[0].Quantity) // floor(200*0.6/100)*100 = 100
}

func TestFirstTakeProfitSkippedOnceTriggered(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now()
	pos := domain.Position{
		Symbol: "AAPL.US", Volume: 200, Available: 200,
		AvgCost: d(100), BaseCost: d(100), CurrentPrice: d(106), HighestPrice: d(106),
		FirstProfitTriggered: true,
	}
	intents := e.Evaluate(pos, now)
	require.Empty(t, intents)
}

func TestTrailingTakeProfitFromSpecExample(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now()
	// avg_cost=10, highest=12 (20% peak profit, clears 0.10 and 0.05 floors),
	// current=11.63 -> pullback (12-11.63)/12 = 3.08% >= 3% floor's pullback.
	// First take-profit has already fired, so the trailing layer is reached.
	pos := domain.Position{
		Symbol: "0001.SZ", Volume: 1000, Available: 1000,
		AvgCost: d(10), BaseCost: d(10), CurrentPrice: d(11.63), HighestPrice: d(12),
		FirstProfitTriggered: true,
	}
	intents := e.Evaluate(pos, now)
	require.Len(t, intents, 1)
	require.Equal(t, domain.ReasonTrailingTP, intents[0].Reason)
	require.Equal(t, 1000, intents[0].Quantity)
}

func TestRateLimitSuppressesRepeatWithin60Seconds(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now()
	pos := domain.Position{
		Symbol: "AAPL.US", Volume: 200, Available: 200,
		AvgCost: d(100), BaseCost: d(100), CurrentPrice: d(92), HighestPrice: d(100),
	}
	first := e.Evaluate(pos, now)
	require.Len(t, first, 1)

	second := e.Evaluate(pos, now.Add(30*time.Second))
	require.Empty(t, second, "same symbol+reason within 60s must be suppressed")

	third := e.Evaluate(pos, now.Add(61*time.Second))
	require.Len(t, third, 1)
}

func TestReplenishmentRequiresDrawdownAndCaps(t *testing.T) {
	e := newTestEngine(t)
	store := e.cfg
	cur := store.Snapshot()
	cur.ReplenishmentEnabled = true
	cur.ReplenishmentDrawdownRatio = d(0.05)
	cur.SingleBuyAmount = d(10000)
	cur.SingleStockMaxPosition = d(1000000)
	e.cfg = testStore(cur)

	now := time.Now()
	// 94 is a 6% drawdown from base_cost 100: past the 5% replenishment
	// threshold but above the -7% stop-loss; 10000/94 buys one 100-share lot.
	pos := domain.Position{
		Symbol: "AAPL.US", Volume: 100, Available: 100,
		AvgCost: d(100), BaseCost: d(100), CurrentPrice: d(94), HighestPrice: d(100),
	}
	intents := e.Evaluate(pos, now)
	require.Len(t, intents, 1)
	require.Equal(t, domain.ReasonReplenish, intents[0].Reason)
	require.Equal(t, domain.SideBuy, intents[0].Side)
}

func testStore(cfg config.Config) *config.Store {
	return config.NewStore(cfg, nil)
}
