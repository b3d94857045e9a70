package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/solovex/gridtrader/internal/broker"
	"github.com/solovex/gridtrader/internal/config"
	"github.com/solovex/gridtrader/internal/domain"
	"github.com/solovex/gridtrader/internal/events"
	"github.com/solovex/gridtrader/internal/positions"
	"github.com/solovex/gridtrader/internal/risk"
)

type memStore struct{ saved map[string]domain.Position }

func (m *memStore) Upsert(ctx context.Context, pos domain.Position) error {
	m.saved[pos.Symbol] = pos
	return nil
}
func (m *memStore) Delete(ctx context.Context, symbol string) error {
	delete(m.saved, symbol)
	return nil
}
func (m *memStore) LoadAll(ctx context.Context) ([]domain.Position, error) { return nil, nil }
func (m *memStore) InsertTrade(ctx context.Context, trade domain.Trade) error { return nil }

func nopLogger() zerolog.Logger { return zerolog.Nop() }

type noopCallback struct{}

func (noopCallback) OnOrder(status domain.OrderUpdate)         {}
func (noopCallback) OnFill(deal domain.Deal)                   {}
func (noopCallback) OnAccount(snapshot domain.AccountSnapshot) {}
func (noopCallback) OnError(err error)                         {}

func newTestOrchestratorDeps(t *testing.T) (*positions.Registry, *risk.Engine) {
	t.Helper()
	store := &memStore{saved: map[string]domain.Position{}}
	bus := events.NewBus(nopLogger())
	registry := positions.NewRegistry(store, bus, nopLogger())

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfgStore := config.NewStore(cfg, nil)
	engine := risk.New(cfgStore, nopLogger())
	return registry, engine
}

func TestSetMonitoringAndAutoTradingToggle(t *testing.T) {
	registry, engine := newTestOrchestratorDeps(t)
	o := New(registry, nil, nil, engine, nil, nil, nil, nopLogger())

	if o.IsMonitoring() || o.IsAutoTrading() {
		t.Fatal("both flags must start false")
	}
	o.SetMonitoring(true)
	o.SetAutoTrading(true)
	if !o.IsMonitoring() || !o.IsAutoTrading() {
		t.Fatal("expected both flags set after toggling")
	}
}

func TestWatchSymbolsRoundTrip(t *testing.T) {
	registry, engine := newTestOrchestratorDeps(t)
	o := New(registry, nil, nil, engine, nil, nil, nil, nopLogger())

	o.SetWatchSymbols([]string{"600000.SH", "000001.SZ"})
	got := o.symbols()
	if len(got) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(got))
	}
}

func TestRunRiskPassDispatchesStopLossIntent(t *testing.T) {
	registry, engine := newTestOrchestratorDeps(t)
	ctx := context.Background()
	if err := registry.Upsert(ctx, "600000.SH", 100, decimal.NewFromInt(100), decimal.NewFromInt(85)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	simExec := broker.NewSimExecutor(decimal.NewFromInt(100000), func(symbol string) (decimal.Decimal, bool) {
		return decimal.NewFromInt(85), true
	}, nopLogger())
	// Give the simulated broker the same 100 shares so the stop-loss sell can fill.
	if _, err := simExec.PlaceOrder(ctx, "600000.SH", domain.SideBuy, 100, decimal.NewFromInt(85), domain.PriceTypeLimit); err != nil {
		t.Fatalf("seed simulated position: %v", err)
	}
	dispatcher := broker.NewDispatcher(simExec, noopCallback{}, 25, 5, nopLogger())
	dispatcher.Start(1)
	defer dispatcher.Stop()

	o := New(registry, nil, nil, engine, dispatcher, nil, nil, nopLogger())
	o.runRiskPass(ctx)

	time.Sleep(10 * time.Millisecond) // let the dispatcher worker process the job

	held, err := simExec.QueryPositions(ctx)
	if err != nil {
		t.Fatalf("query simulated positions: %v", err)
	}
	if len(held) != 0 {
		t.Fatalf("expected the stop-loss sell to close the simulated position, still holding %d", len(held))
	}
}
