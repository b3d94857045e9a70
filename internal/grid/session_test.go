package grid

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/solovex/gridtrader/internal/domain"
	"github.com/solovex/gridtrader/internal/events"
)

type fakePositions struct {
	pos domain.Position
	ok  bool
}

func (f *fakePositions) Get(symbol string) (domain.Position, bool) { return f.pos, f.ok }

func (f *fakePositions) RegisterFill(ctx context.Context, symbol string, side domain.Side, price decimal.Decimal, volume int) error {
	switch side {
	case domain.SideBuy:
		f.pos.Volume += volume
		f.pos.Available += volume
	case domain.SideSell:
		f.pos.Volume -= volume
		f.pos.Available -= volume
		if f.pos.Volume <= 0 {
			f.ok = false
		}
	}
	return nil
}

type fakeExecutor struct {
	nextID int
}

func (f *fakeExecutor) PlaceOrder(ctx context.Context, symbol string, side domain.Side, qty int, price decimal.Decimal, priceType domain.PriceType) (string, error) {
	f.nextID++
	return "ord-" + string(rune('0'+f.nextID)), nil
}

func testLogger() zerolog.Logger { return zerolog.Nop() }

func newTestSessionMeta(symbol string, center decimal.Decimal) domain.GridSession {
	return domain.GridSession{
		SessionID:          "sess-1",
		Symbol:             symbol,
		Status:             domain.SessionActive,
		CenterPrice:        center,
		CurrentCenterPrice: center,
		StartTime:          time.Now(),
		EndTime:            time.Now().Add(24 * time.Hour),
		Config: domain.GridConfig{
			PriceIntervalFrac: dec(0.02),
			PositionRatio:     dec(0.2),
			CallbackRatio:     dec(0.03),
			MaxInvestment:     dec(10000),
			MaxDeviation:      dec(0.15),
			TargetProfit:      dec(0.1),
			StopLoss:          dec(-0.1),
			RiskLevel:         domain.RiskModerate,
		},
	}
}

func TestSessionExitsOnPositionCleared(t *testing.T) {
	positions := &fakePositions{ok: false}
	executor := &fakeExecutor{}
	bus := events.NewBus(testLogger())
	s := NewSession(newTestSessionMeta("AAPL", dec(100)), positions, executor, nil, nil, nil, bus, testLogger())

	if err := s.OnTick(context.Background(), domain.Tick{Symbol: "AAPL", Last: dec(100)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := s.Snapshot()
	if snap.Status != domain.SessionCompleted || snap.ExitReason != domain.ExitPositionCleared {
		t.Fatalf("expected completed/position_cleared, got %v/%v", snap.Status, snap.ExitReason)
	}
}

func TestSessionExitsOnTimeUp(t *testing.T) {
	positions := &fakePositions{ok: true, pos: domain.Position{Symbol: "AAPL", Volume: 100, Available: 100, AvgCost: dec(100)}}
	executor := &fakeExecutor{}
	bus := events.NewBus(testLogger())
	meta := newTestSessionMeta("AAPL", dec(100))
	meta.EndTime = time.Now().Add(-time.Minute)
	s := NewSession(meta, positions, executor, nil, nil, nil, bus, testLogger())

	if err := s.OnTick(context.Background(), domain.Tick{Symbol: "AAPL", Last: dec(100)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := s.Snapshot()
	if snap.Status != domain.SessionCompleted || snap.ExitReason != domain.ExitTimeUp {
		t.Fatalf("expected completed/time_up, got %v/%v", snap.Status, snap.ExitReason)
	}
}

func TestSessionExitsOnDeviation(t *testing.T) {
	positions := &fakePositions{ok: true, pos: domain.Position{Symbol: "AAPL", Volume: 100, Available: 100, AvgCost: dec(100)}}
	executor := &fakeExecutor{}
	bus := events.NewBus(testLogger())
	meta := newTestSessionMeta("AAPL", dec(100))
	meta.CurrentCenterPrice = dec(120) // 20% drift > 15% MaxDeviation
	s := NewSession(meta, positions, executor, nil, nil, nil, bus, testLogger())

	if err := s.OnTick(context.Background(), domain.Tick{Symbol: "AAPL", Last: dec(120)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := s.Snapshot()
	if snap.Status != domain.SessionStopped || snap.ExitReason != domain.ExitDeviation {
		t.Fatalf("expected stopped/deviation, got %v/%v", snap.Status, snap.ExitReason)
	}
}

func TestSessionIgnoresZeroTick(t *testing.T) {
	positions := &fakePositions{ok: true, pos: domain.Position{Symbol: "AAPL", Volume: 100, Available: 100, AvgCost: dec(100)}}
	executor := &fakeExecutor{}
	bus := events.NewBus(testLogger())
	s := NewSession(newTestSessionMeta("AAPL", dec(100)), positions, executor, nil, nil, nil, bus, testLogger())

	if err := s.OnTick(context.Background(), domain.Tick{Symbol: "AAPL", Last: decimal.Zero}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Snapshot().Status != domain.SessionActive {
		t.Fatal("zero tick must not change session state")
	}
}

func TestSessionStopIsIdempotent(t *testing.T) {
	positions := &fakePositions{ok: true}
	executor := &fakeExecutor{}
	bus := events.NewBus(testLogger())
	s := NewSession(newTestSessionMeta("AAPL", dec(100)), positions, executor, nil, nil, nil, bus, testLogger())

	s.Stop()
	s.Stop() // must not panic or overwrite the first exit reason
	if s.Snapshot().Status != domain.SessionStopped {
		t.Fatal("expected stopped after Stop()")
	}
}
