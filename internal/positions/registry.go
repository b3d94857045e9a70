// Package positions owns the in-memory view of open positions: the single
// authority other components query for current holdings, enriched with
// per-stock risk state (highest-since-open, stop-loss price, first-profit
// flag, base cost). Grounded on the teacher's repository-over-domain-model
// split (portfolio.PositionRepository / portfolio.Position), generalized
// from a pure SQL repository into a guarded in-memory map backed by one.
package positions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/solovex/gridtrader/internal/domain"
	"github.com/solovex/gridtrader/internal/events"
)

// Store is the narrow persistence capability Registry needs; satisfied by
// *positions.SQLStore.
type Store interface {
	Upsert(ctx context.Context, pos domain.Position) error
	Delete(ctx context.Context, symbol string) error
	LoadAll(ctx context.Context) ([]domain.Position, error)
	InsertTrade(ctx context.Context, trade domain.Trade) error
}

// Registry is the PositionRegistry of spec §4.2: exclusive owner of the
// in-memory position map. Readers run in parallel under the read lock;
// mutations (Upsert/Remove/RegisterFill/RefreshPrices) serialize under
// the write lock, per the single-rwmutex discipline of spec §5.
type Registry struct {
	mu       sync.RWMutex
	bySymbol map[string]domain.Position
	version  uint64

	store Store
	bus   *events.Bus
	log   zerolog.Logger
}

// NewRegistry constructs an empty Registry; call LoadFromStore to hydrate
// it from persisted state at startup.
func NewRegistry(store Store, bus *events.Bus, log zerolog.Logger) *Registry {
	return &Registry{
		bySymbol: make(map[string]domain.Position),
		store:    store,
		bus:      bus,
		log:      log.With().Str("component", "position_registry").Logger(),
	}
}

// LoadFromStore rehydrates the in-memory map from durable storage; called
// once at startup before any tick or order activity begins.
func (r *Registry) LoadFromStore(ctx context.Context) error {
	all, err := r.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pos := range all {
		r.bySymbol[pos.Symbol] = pos
	}
	r.version++
	r.log.Info().Int("count", len(all)).Msg("positions loaded from store")
	return nil
}

// Get returns a copy of the position for symbol, or false if not held.
func (r *Registry) Get(symbol string) (domain.Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.bySymbol[symbol]
	return pos, ok
}

// All returns a snapshot copy of every held position.
func (r *Registry) All() []domain.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Position, 0, len(r.bySymbol))
	for _, pos := range r.bySymbol {
		out = append(out, pos)
	}
	return out
}

// Version returns the monotonic positions_version counter bumped on every
// mutation, used by APIFacade for ETag-style conditional GETs.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Upsert creates or replaces the position for symbol with an explicit
// volume/avg_cost/current_price, recomputing derived fields. currentPrice
// of zero keeps whatever price is already on record.
func (r *Registry) Upsert(ctx context.Context, symbol string, volume int, avgCost decimal.Decimal, currentPrice decimal.Decimal) error {
	r.mu.Lock()
	existing, had := r.bySymbol[symbol]
	pos := existing
	if !had {
		pos = domain.Position{Symbol: symbol, OpenDate: time.Now()}
	}
	pos.Volume = volume
	pos.Available = volume
	pos.AvgCost = avgCost
	if pos.BaseCost.IsZero() {
		pos.BaseCost = avgCost
	}
	if !currentPrice.IsZero() {
		pos.CurrentPrice = currentPrice
	}
	if pos.CurrentPrice.GreaterThan(pos.HighestPrice) {
		pos.HighestPrice = pos.CurrentPrice
	}
	r.bySymbol[symbol] = pos
	r.version++
	r.mu.Unlock()

	if err := r.store.Upsert(ctx, pos); err != nil {
		return fmt.Errorf("persist position %s: %w", symbol, err)
	}
	r.emitChanged(symbol, "upsert")
	return nil
}

// Remove deletes symbol's live position entry; history is retained in
// trade_records, only the live registry entry is dropped (spec §4.1
// ownership note).
func (r *Registry) Remove(ctx context.Context, symbol string) error {
	r.mu.Lock()
	delete(r.bySymbol, symbol)
	r.version++
	r.mu.Unlock()

	if err := r.store.Delete(ctx, symbol); err != nil {
		return fmt.Errorf("delete position %s: %w", symbol, err)
	}
	r.emitChanged(symbol, "removed")
	return nil
}

// RegisterFill updates volume/avg_cost/available deterministically from
// one trade fill. A BUY increases volume immediately but available only
// on the next trading-day boundary (T+1 semantics, spec §4.2 invariant);
// a SELL decreases both volume and available at once. Volume reaching
// zero removes the live entry.
func (r *Registry) RegisterFill(ctx context.Context, symbol string, side domain.Side, price decimal.Decimal, volume int) error {
	r.mu.Lock()
	pos, had := r.bySymbol[symbol]
	if !had {
		if side == domain.SideSell {
			r.mu.Unlock()
			return fmt.Errorf("sell fill for %s with no open position", symbol)
		}
		pos = domain.Position{Symbol: symbol, OpenDate: time.Now(), BaseCost: price}
	}

	switch side {
	case domain.SideBuy:
		totalCost := pos.AvgCost.Mul(decimal.NewFromInt(int64(pos.Volume))).Add(price.Mul(decimal.NewFromInt(int64(volume))))
		pos.Volume += volume
		if pos.Volume > 0 {
			pos.AvgCost = totalCost.Div(decimal.NewFromInt(int64(pos.Volume)))
		}
		if pos.BaseCost.IsZero() {
			pos.BaseCost = pos.AvgCost
		}
	case domain.SideSell:
		if volume > pos.Available {
			r.mu.Unlock()
			return fmt.Errorf("sell fill volume %d exceeds available %d for %s", volume, pos.Available, symbol)
		}
		pos.Volume -= volume
		pos.Available -= volume
	default:
		r.mu.Unlock()
		return fmt.Errorf("invalid side %q", side)
	}

	pos.CurrentPrice = price
	if price.GreaterThan(pos.HighestPrice) {
		pos.HighestPrice = price
	}

	cleared := pos.Volume <= 0
	if !cleared {
		r.bySymbol[symbol] = pos
	} else {
		delete(r.bySymbol, symbol)
	}
	r.version++
	r.mu.Unlock()

	var persistErr error
	if cleared {
		persistErr = r.store.Delete(ctx, symbol)
	} else {
		persistErr = r.store.Upsert(ctx, pos)
	}
	if persistErr != nil {
		return fmt.Errorf("persist fill for %s: %w", symbol, persistErr)
	}

	r.emitChanged(symbol, "fill")
	return nil
}

// ApplyT1Rollover promotes volume to available for every position, run
// once per trading-day boundary to realize the T+1 settlement invariant.
func (r *Registry) ApplyT1Rollover(ctx context.Context) error {
	r.mu.Lock()
	changed := make([]domain.Position, 0)
	for symbol, pos := range r.bySymbol {
		if pos.Available != pos.Volume {
			pos.Available = pos.Volume
			r.bySymbol[symbol] = pos
			changed = append(changed, pos)
		}
	}
	if len(changed) > 0 {
		r.version++
	}
	r.mu.Unlock()

	for _, pos := range changed {
		if err := r.store.Upsert(ctx, pos); err != nil {
			return fmt.Errorf("persist T+1 rollover for %s: %w", pos.Symbol, err)
		}
	}
	if len(changed) > 0 {
		r.emitChanged("*", "t1_rollover")
	}
	return nil
}

// RefreshPrices pulls a fresh tick per held symbol from source and
// recomputes every derived field. A source error for one symbol is
// logged and skipped; it does not abort the sweep (spec §4.2, §8 edge
// case: pre-market last==0 falls back to the last known price).
func (r *Registry) RefreshPrices(ctx context.Context, source domain.DataSource) {
	symbols := r.symbols()
	for _, symbol := range symbols {
		tick, err := source.GetTick(ctx, symbol)
		if err != nil {
			r.log.Warn().Err(err).Str("symbol", symbol).Msg("refresh price failed, keeping last known")
			continue
		}
		if tick.Last.IsZero() {
			continue
		}
		r.updatePrice(symbol, tick.Last)
	}
	if err := r.persistPrices(ctx, symbols); err != nil {
		r.log.Warn().Err(err).Msg("persisting refreshed prices failed")
	}
	r.emitChanged("*", "refresh_prices")
}

func (r *Registry) symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.bySymbol))
	for symbol := range r.bySymbol {
		out = append(out, symbol)
	}
	return out
}

func (r *Registry) updatePrice(symbol string, price decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.bySymbol[symbol]
	if !ok {
		return
	}
	pos.CurrentPrice = price
	if price.GreaterThan(pos.HighestPrice) {
		pos.HighestPrice = price
	}
	r.bySymbol[symbol] = pos
	r.version++
}

func (r *Registry) persistPrices(ctx context.Context, symbols []string) error {
	for _, symbol := range symbols {
		pos, ok := r.Get(symbol)
		if !ok {
			continue
		}
		if err := r.store.Upsert(ctx, pos); err != nil {
			return err
		}
	}
	return nil
}

// MarkFirstProfitTriggered records that the first take-profit layer has
// already fired for symbol, so RiskEngine does not re-fire it.
func (r *Registry) MarkFirstProfitTriggered(ctx context.Context, symbol string) error {
	r.mu.Lock()
	pos, ok := r.bySymbol[symbol]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("no position for %s", symbol)
	}
	pos.FirstProfitTriggered = true
	r.bySymbol[symbol] = pos
	r.version++
	r.mu.Unlock()

	return r.store.Upsert(ctx, pos)
}

// SetStopLossPrice updates the per-position stop-loss price used by
// RiskEngine's layer 1 check.
func (r *Registry) SetStopLossPrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	r.mu.Lock()
	pos, ok := r.bySymbol[symbol]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("no position for %s", symbol)
	}
	pos.StopLossPrice = price
	r.bySymbol[symbol] = pos
	r.version++
	r.mu.Unlock()

	return r.store.Upsert(ctx, pos)
}

func (r *Registry) emitChanged(symbol, reason string) {
	if r.bus == nil {
		return
	}
	volume := 0
	if pos, ok := r.Get(symbol); ok {
		volume = pos.Volume
	}
	r.bus.Emit(events.PositionsChanged, "positions", &events.PositionsChangedData{Symbol: symbol, Volume: volume, Reason: reason})
}
