package grid

import (
	"context"
	"testing"

	"github.com/solovex/gridtrader/internal/database"
	"github.com/solovex/gridtrader/internal/domain"
	"github.com/solovex/gridtrader/internal/events"
)

func newTestManager(t *testing.T) (*Manager, *fakePositions) {
	t.Helper()
	db, err := database.Open(database.Config{Path: "file::memory:?cache=shared"})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := NewStore(db.Conn())
	positions := &fakePositions{ok: true, pos: domain.Position{Symbol: "AAPL", Volume: 100, Available: 100, AvgCost: dec(100)}}
	executor := &fakeExecutor{}
	bus := events.NewBus(testLogger())
	return NewManager(store, positions, executor, nil, nil, bus, testLogger()), positions
}

func TestManagerStartRejectsSecondActiveSessionForSymbol(t *testing.T) {
	mgr, _ := newTestManager(t)
	cfg := newTestSessionMeta("AAPL", dec(100)).Config

	if _, err := mgr.Start(context.Background(), "AAPL", dec(100), 30, cfg); err != nil {
		t.Fatalf("first start should succeed: %v", err)
	}
	if _, err := mgr.Start(context.Background(), "AAPL", dec(100), 30, cfg); err == nil {
		t.Fatal("expected second start for same symbol to fail")
	}
}

func TestManagerStartRejectsWithoutPosition(t *testing.T) {
	mgr, positions := newTestManager(t)
	positions.ok = false
	cfg := newTestSessionMeta("AAPL", dec(100)).Config

	if _, err := mgr.Start(context.Background(), "AAPL", dec(100), 30, cfg); err == nil {
		t.Fatal("expected start without a held position to fail")
	}
}

func TestManagerOnTickRoutesToCorrectSession(t *testing.T) {
	mgr, _ := newTestManager(t)
	cfg := newTestSessionMeta("AAPL", dec(100)).Config
	if _, err := mgr.Start(context.Background(), "AAPL", dec(100), 30, cfg); err != nil {
		t.Fatalf("start: %v", err)
	}

	mgr.OnTick(context.Background(), domain.Tick{Symbol: "MSFT", Last: dec(50)})
	if len(mgr.Active()) != 1 {
		t.Fatal("tick for an unrelated symbol must not affect AAPL's session")
	}
}

func TestManagerStopRemovesFromActiveSet(t *testing.T) {
	mgr, _ := newTestManager(t)
	cfg := newTestSessionMeta("AAPL", dec(100)).Config
	if _, err := mgr.Start(context.Background(), "AAPL", dec(100), 30, cfg); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := mgr.Stop(context.Background(), "AAPL"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(mgr.Active()) != 0 {
		t.Fatal("expected no active sessions after Stop")
	}
}

func TestManagerRecoverRehydratesActiveSessions(t *testing.T) {
	mgr, positions := newTestManager(t)
	cfg := newTestSessionMeta("AAPL", dec(100)).Config
	session, err := mgr.Start(context.Background(), "AAPL", dec(100), 30, cfg)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// Advance tracker state so the snapshot round-trips non-default values.
	session.tracker.Observe(dec(110))
	store := mgr.store
	if err := store.Save(context.Background(), session); err != nil {
		t.Fatalf("save: %v", err)
	}

	fresh := NewManager(store, positions, &fakeExecutor{}, nil, nil, events.NewBus(testLogger()), testLogger())
	if err := fresh.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	recovered, ok := fresh.Get("AAPL")
	if !ok {
		t.Fatal("expected AAPL session to be recovered")
	}
	if recovered.tracker.State() != StateTrackingUp {
		t.Fatalf("expected recovered tracker state TRACKING_UP, got %v", recovered.tracker.State())
	}
}
