package marketdata

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/solovex/gridtrader/internal/domain"
)

type fakeSource struct {
	name    string
	tick    domain.Tick
	err     error
	calls   int
}

func (f *fakeSource) Name() string { return f.name }
func (f *fakeSource) GetTick(ctx context.Context, symbol string) (domain.Tick, error) {
	f.calls++
	if f.err != nil {
		return domain.Tick{}, f.err
	}
	return f.tick, nil
}
func (f *fakeSource) Subscribe(ctx context.Context, symbols []string) error { return f.err }

func nopLog() zerolog.Logger { return zerolog.Nop() }

func TestHubLiveModeOnlyUsesPrimary(t *testing.T) {
	primary := &fakeSource{name: "primary", err: errors.New("down")}
	secondary := &fakeSource{name: "secondary", tick: domain.Tick{Symbol: "AAPL", Last: decimal.NewFromInt(100)}}
	hub := NewHub([]domain.DataSource{primary, secondary}, false, nopLog())

	_, err := hub.GetTick(context.Background(), "AAPL")
	if err == nil {
		t.Fatal("expected failure: live mode must not fall back to secondary")
	}
	if secondary.calls != 0 {
		t.Fatal("secondary source must not be called in live mode")
	}
}

func TestHubSimulationModeFailsOver(t *testing.T) {
	primary := &fakeSource{name: "primary", err: errors.New("down")}
	secondary := &fakeSource{name: "secondary", tick: domain.Tick{Symbol: "AAPL", Last: decimal.NewFromInt(100)}}
	hub := NewHub([]domain.DataSource{primary, secondary}, true, nopLog())

	tick, err := hub.GetTick(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("expected fallback success, got %v", err)
	}
	if !tick.Last.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected secondary's tick, got %s", tick.Last)
	}
}

func TestHubMarksSourceUnhealthyAfterThreshold(t *testing.T) {
	primary := &fakeSource{name: "primary", err: errors.New("down")}
	secondary := &fakeSource{name: "secondary", tick: domain.Tick{Symbol: "AAPL", Last: decimal.NewFromInt(100)}}
	hub := NewHub([]domain.DataSource{primary, secondary}, true, nopLog())

	for i := 0; i < unhealthyThreshold; i++ {
		if _, err := hub.GetTick(context.Background(), "AAPL"); err != nil {
			t.Fatalf("unexpected failure on call %d: %v", i, err)
		}
	}
	snap := hub.HealthSnapshot()
	if snap["primary"] {
		t.Fatal("expected primary marked unhealthy after repeated failures")
	}
}

func TestHubRecordsSuccessResetsErrorCount(t *testing.T) {
	primary := &fakeSource{name: "primary", tick: domain.Tick{Symbol: "AAPL", Last: decimal.NewFromInt(50)}}
	hub := NewHub([]domain.DataSource{primary}, false, nopLog())

	if _, err := hub.GetTick(context.Background(), "AAPL"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := hub.HealthSnapshot()
	if !snap["primary"] {
		t.Fatal("expected primary to remain healthy")
	}
}
