package grid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/solovex/gridtrader/internal/domain"
	"github.com/solovex/gridtrader/internal/events"
)

// Manager owns every live Session, keyed by symbol, and is the entry
// point the orchestrator drives per tick. Grounded on spec §4.4's session
// lifecycle (Start/Stop/Recovery) and §5's "one grid worker per active
// session, sessions processed round-robin" scheduling note.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session // keyed by symbol

	store     *Store
	positions PositionProvider
	executor  OrderPlacer
	ledger    TradeLedger
	history   OverboughtChecker
	bus       *events.Bus
	log       zerolog.Logger
}

// NewManager builds an empty Manager; call Recover at startup before
// accepting ticks. ledger may be nil, in which case grid fills are
// recorded to grid_trades only, not to the trade_records ledger; history
// may be nil, in which case every session's overbought gate is inert
// regardless of its Config.OverboughtGateEnabled setting.
func NewManager(store *Store, positions PositionProvider, executor OrderPlacer, ledger TradeLedger, history OverboughtChecker, bus *events.Bus, log zerolog.Logger) *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		store:     store,
		positions: positions,
		executor:  executor,
		ledger:    ledger,
		history:   history,
		bus:       bus,
		log:       log.With().Str("component", "grid_manager").Logger(),
	}
}

// Start begins a new GridSession for symbol. Preconditions: a position
// must already exist for symbol and no other active session may exist
// for it (spec §4.4). The active-session check carries a 5-second
// timeout; the position check is an in-memory registry lookup.
func (m *Manager) Start(ctx context.Context, symbol string, centerPrice decimal.Decimal, durationDays int, cfg domain.GridConfig) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid config: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	active, err := m.store.HasActiveSession(checkCtx, symbol)
	if err != nil {
		return nil, fmt.Errorf("check existing session: %w", err)
	}
	if active {
		return nil, fmt.Errorf("symbol %s already has an active grid session", symbol)
	}

	// A plain map lookup; posCtx is created with the same 5-second budget
	// but the lookup does not take a context.
	posCtx, posCancel := context.WithTimeout(ctx, lockTimeout)
	defer posCancel()
	_ = posCtx
	if _, held := m.positions.Get(symbol); !held {
		return nil, fmt.Errorf("no position held for %s, cannot start grid session", symbol)
	}

	meta := domain.GridSession{
		SessionID:          uuid.NewString(),
		Symbol:             symbol,
		Status:             domain.SessionActive,
		CenterPrice:        centerPrice,
		CurrentCenterPrice: centerPrice,
		StartTime:          time.Now(),
		EndTime:            time.Now().AddDate(0, 0, durationDays),
		DurationDays:       durationDays,
		Config:             cfg,
	}

	session := NewSession(meta, m.positions, m.executor, m.store, m.ledger, m.history, m.bus, m.log)

	m.mu.Lock()
	m.sessions[symbol] = session
	m.mu.Unlock()

	if err := m.store.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("persist new session: %w", err)
	}

	m.bus.Emit(events.GridSessionStarted, "grid", &events.GridSessionStartedData{
		SessionID: meta.SessionID, Symbol: symbol, CenterPrice: centerPrice.String(),
	})
	m.log.Info().Str("symbol", symbol).Str("session_id", meta.SessionID).Msg("grid session started")
	return session, nil
}

// Stop terminates the active session for symbol, if any, and persists
// its final state.
func (m *Manager) Stop(ctx context.Context, symbol string) error {
	m.mu.Lock()
	session, ok := m.sessions[symbol]
	if ok {
		delete(m.sessions, symbol)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no active session for %s", symbol)
	}

	session.Stop()
	return m.store.Save(ctx, session)
}

// OnTick feeds tick to every active session for its symbol, and persists
// sessions that just left the active state (their final stats/status).
func (m *Manager) OnTick(ctx context.Context, tick domain.Tick) {
	m.mu.RLock()
	session, ok := m.sessions[tick.Symbol]
	m.mu.RUnlock()
	if !ok {
		return
	}

	wasActive := session.IsActive()
	if err := session.OnTick(ctx, tick); err != nil {
		m.log.Warn().Err(err).Str("symbol", tick.Symbol).Msg("session tick error")
	}

	if wasActive && !session.IsActive() {
		m.mu.Lock()
		delete(m.sessions, tick.Symbol)
		m.mu.Unlock()
	}

	if err := m.store.Save(ctx, session); err != nil {
		m.log.Warn().Err(err).Str("symbol", tick.Symbol).Msg("persist session failed")
	}
}

// Active returns a snapshot of every currently active session's symbol.
func (m *Manager) Active() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sessions))
	for symbol := range m.sessions {
		out = append(out, symbol)
	}
	return out
}

// Get returns the live Session for symbol, if any is active.
func (m *Manager) Get(symbol string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[symbol]
	return s, ok
}

// Recover rehydrates every 'active' session from the store at process
// start: config, stats, and center prices load from the row; the
// PriceTracker/BandTracker restore from the cached snapshot when present,
// otherwise reset to IDLE so the next tick re-seeds them (spec §4.4).
// Must complete within 2 seconds for ~100 sessions; a single indexed
// query plus in-memory reconstruction easily clears that bound.
func (m *Manager) Recover(ctx context.Context) error {
	stored, err := m.store.LoadActive(ctx)
	if err != nil {
		return fmt.Errorf("load active sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range stored {
		session := NewSession(row.meta, m.positions, m.executor, m.store, m.ledger, m.history, m.bus, m.log)
		if err := restoreTrackerSnapshot(row.snapshot, session.tracker, session.bandTracker); err != nil {
			m.log.Warn().Err(err).Str("session_id", row.meta.SessionID).Msg("snapshot restore failed, tracker reset to IDLE")
		}
		m.sessions[row.meta.Symbol] = session
	}
	m.log.Info().Int("count", len(stored)).Msg("grid sessions recovered")
	return nil
}
