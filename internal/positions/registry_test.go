package positions

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/solovex/gridtrader/internal/domain"
)

type fakeStore struct {
	saved   map[string]domain.Position
	deleted []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(map[string]domain.Position)}
}

func (f *fakeStore) Upsert(_ context.Context, pos domain.Position) error {
	f.saved[pos.Symbol] = pos
	return nil
}

func (f *fakeStore) Delete(_ context.Context, symbol string) error {
	delete(f.saved, symbol)
	f.deleted = append(f.deleted, symbol)
	return nil
}

func (f *fakeStore) LoadAll(_ context.Context) ([]domain.Position, error) {
	out := make([]domain.Position, 0, len(f.saved))
	for _, pos := range f.saved {
		out = append(out, pos)
	}
	return out, nil
}

func (f *fakeStore) InsertTrade(_ context.Context, _ domain.Trade) error { return nil }

func newTestRegistry()(*Registry, *fakeStore) {
	store := newFakeStore()
	return NewRegistry(store, nil, zerolog.Nop()), store
}

func TestRegisterFillBuyThenSell(t *testing.T) {
	reg, store := newTestRegistry()
	ctx := context.Background()

	require.NoError(t, reg.RegisterFill(ctx, "AAPL.US", domain.SideBuy, decimal.NewFromInt(100), 100))
	pos, ok := reg.Get("AAPL.US")
	require.True(t, ok)
	require.Equal(t, 100, pos.Volume)
	require.Equal(t, 0, pos.Available, "a buy fill does not raise available until the T+1 rollover")
	require.True(t, pos.AvgCost.Equal(decimal.NewFromInt(100)))

	require.NoError(t, reg.RegisterFill(ctx, "AAPL.US", domain.SideBuy, decimal.NewFromInt(200), 100))
	pos, _ = reg.Get("AAPL.US")
	require.True(t, pos.AvgCost.Equal(decimal.NewFromInt(150)), "avg cost should be volume-weighted mean")

	require.NoError(t, reg.ApplyT1Rollover(ctx))
	require.NoError(t, reg.RegisterFill(ctx, "AAPL.US", domain.SideSell, decimal.NewFromInt(180), 150))
	pos, ok = reg.Get("AAPL.US")
	require.True(t, ok)
	require.Equal(t, 50, pos.Volume)
	require.Equal(t, 50, pos.Available)
	require.Contains(t, store.saved, "AAPL.US")
}

func TestRegisterFillSellClearsPosition(t *testing.T) {
	reg, store := newTestRegistry()
	ctx := context.Background()

	require.NoError(t, reg.RegisterFill(ctx, "MSFT.US", domain.SideBuy, decimal.NewFromInt(100), 100))
	require.NoError(t, reg.ApplyT1Rollover(ctx))
	require.NoError(t, reg.RegisterFill(ctx, "MSFT.US", domain.SideSell, decimal.NewFromInt(120), 100))

	_, ok := reg.Get("MSFT.US")
	require.False(t, ok, "fully sold position must be removed from the live registry")
	require.Contains(t, store.deleted, "MSFT.US")
}

func TestRegisterFillSellExceedsAvailableRejected(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()

	require.NoError(t, reg.RegisterFill(ctx, "TSLA.US", domain.SideBuy, decimal.NewFromInt(100), 100))
	err := reg.RegisterFill(ctx, "TSLA.US", domain.SideSell, decimal.NewFromInt(100), 200)
	require.Error(t, err)
}

func TestVersionBumpsOnMutation(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()

	v0 := reg.Version()
	require.NoError(t, reg.RegisterFill(ctx, "NVDA.US", domain.SideBuy, decimal.NewFromInt(50), 10))
	require.Greater(t, reg.Version(), v0)
}

func TestApplyT1RolloverPromotesAvailable(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()

	require.NoError(t, reg.Upsert(ctx, "AMD.US", 100, decimal.NewFromInt(50), decimal.NewFromInt(55)))
	reg.mu.Lock()
	pos := reg.bySymbol["AMD.US"]
	pos.Available = 0
	reg.bySymbol["AMD.US"] = pos
	reg.mu.Unlock()

	require.NoError(t, reg.ApplyT1Rollover(ctx))
	pos, ok := reg.Get("AMD.US")
	require.True(t, ok)
	require.Equal(t, pos.Volume, pos.Available)
}
