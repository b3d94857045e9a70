package grid

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/solovex/gridtrader/internal/domain"
)

// trackerSnapshot is the msgpack-serialized PriceTracker/BandTracker state
// cached in grid_sessions.snapshot, so Recovery does not have to wait for
// a fresh tick to re-learn a session's peak/trough.
type trackerSnapshot struct {
	State         int    `msgpack:"state"`
	Center        string `msgpack:"center"`
	Peak          string `msgpack:"peak"`
	Trough        string `msgpack:"trough"`
	LastBandIndex int    `msgpack:"last_band_index"`
	HasLastBand   bool   `msgpack:"has_last_band"`
	ArmedBuy      bool   `msgpack:"armed_buy"`
	ArmedSell     bool   `msgpack:"armed_sell"`
}

func (s *Session) buildSnapshot() ([]byte, error) {
	snap := trackerSnapshot{
		State:         int(s.tracker.state),
		Center:        s.tracker.center.String(),
		Peak:          s.tracker.peak.String(),
		Trough:        s.tracker.trough.String(),
		LastBandIndex: s.bandTracker.lastBand,
		HasLastBand:   s.bandTracker.hasLast,
		ArmedBuy:      s.bandTracker.armedBuy,
		ArmedSell:     s.bandTracker.armedSell,
	}
	return msgpack.Marshal(&snap)
}

func restoreTrackerSnapshot(data []byte, tracker *PriceTracker, band *BandTracker) error {
	if len(data) == 0 {
		return nil
	}
	var snap trackerSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("unmarshal tracker snapshot: %w", err)
	}
	tracker.state = TrackerState(snap.State)
	tracker.center = decimalOrZero(snap.Center)
	tracker.peak = decimalOrZero(snap.Peak)
	tracker.trough = decimalOrZero(snap.Trough)
	band.lastBand = snap.LastBandIndex
	band.hasLast = snap.HasLastBand
	band.armedBuy = snap.ArmedBuy
	band.armedSell = snap.ArmedSell
	return nil
}

func decimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Store persists GridSession metadata and tracker snapshots to the
// grid_sessions table, grounded on the positions package's SQLStore
// (same database/sql + explicit transaction idiom).
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-migrated *sql.DB.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save upserts one session's metadata and tracker snapshot.
func (st *Store) Save(ctx context.Context, s *Session) error {
	meta := s.Snapshot()
	snapshot, err := s.buildSnapshot()
	if err != nil {
		return fmt.Errorf("build snapshot for %s: %w", meta.SessionID, err)
	}

	const query = `
		INSERT INTO grid_sessions
			(session_id, symbol, status, exit_reason, center_price, current_center_price,
			 start_time, end_time, duration_days, price_interval, position_ratio,
			 callback_ratio, max_investment, max_deviation, target_profit, stop_loss,
			 risk_level, buy_count, sell_count, current_investment, realized_pnl,
			 total_buy_amount, total_sell_amount, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			status = excluded.status,
			exit_reason = excluded.exit_reason,
			current_center_price = excluded.current_center_price,
			end_time = excluded.end_time,
			buy_count = excluded.buy_count,
			sell_count = excluded.sell_count,
			current_investment = excluded.current_investment,
			realized_pnl = excluded.realized_pnl,
			total_buy_amount = excluded.total_buy_amount,
			total_sell_amount = excluded.total_sell_amount,
			snapshot = excluded.snapshot
	`

	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, query,
		meta.SessionID, meta.Symbol, string(meta.Status), string(meta.ExitReason),
		meta.CenterPrice.String(), meta.CurrentCenterPrice.String(),
		meta.StartTime.UTC().Format(time.RFC3339), meta.EndTime.UTC().Format(time.RFC3339), meta.DurationDays,
		meta.Config.PriceIntervalFrac.String(), meta.Config.PositionRatio.String(), meta.Config.CallbackRatio.String(),
		meta.Config.MaxInvestment.String(), meta.Config.MaxDeviation.String(), meta.Config.TargetProfit.String(),
		meta.Config.StopLoss.String(), string(meta.Config.RiskLevel),
		meta.Stats.BuyCount, meta.Stats.SellCount, meta.Stats.CurrentInvestment.String(), meta.Stats.RealizedPnL.String(),
		meta.Stats.TotalBuyAmount.String(), meta.Stats.TotalSellAmount.String(), snapshot,
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", meta.SessionID, err)
	}
	return tx.Commit()
}

// storedSession is one row loaded for recovery.
type storedSession struct {
	meta     domain.GridSession
	snapshot []byte
}

// Meta exposes the session metadata to callers outside this package (the
// HTTP layer's session listing), leaving the raw tracker snapshot
// internal to recovery.
func (s storedSession) Meta() domain.GridSession { return s.meta }

// LoadActive returns every session whose status is 'active', for
// recovery at process start (spec §4.4, must complete within 2s for
// ~100 sessions — a single indexed SELECT comfortably meets this).
func (st *Store) LoadActive(ctx context.Context) ([]storedSession, error) {
	rows, err := st.db.QueryContext(ctx, `
		SELECT session_id, symbol, status, exit_reason, center_price, current_center_price,
		       start_time, end_time, duration_days, price_interval, position_ratio,
		       callback_ratio, max_investment, max_deviation, target_profit, stop_loss,
		       risk_level, buy_count, sell_count, current_investment, realized_pnl,
		       total_buy_amount, total_sell_amount, snapshot
		FROM grid_sessions WHERE status = 'active'
	`)
	if err != nil {
		return nil, fmt.Errorf("query active sessions: %w", err)
	}
	defer rows.Close()

	var out []storedSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSession(rows *sql.Rows) (storedSession, error) {
	var s storedSession
	var status, exitReason, riskLevel string
	var centerPrice, currentCenter, priceInterval, positionRatio, callbackRatio string
	var maxInvestment, maxDeviation, targetProfit, stopLoss string
	var currentInvestment, realizedPnL, totalBuyAmount, totalSellAmount string
	var startTime, endTime string

	err := rows.Scan(
		&s.meta.SessionID, &s.meta.Symbol, &status, &exitReason, &centerPrice, &currentCenter,
		&startTime, &endTime, &s.meta.DurationDays, &priceInterval, &positionRatio,
		&callbackRatio, &maxInvestment, &maxDeviation, &targetProfit, &stopLoss,
		&riskLevel, &s.meta.Stats.BuyCount, &s.meta.Stats.SellCount, &currentInvestment, &realizedPnL,
		&totalBuyAmount, &totalSellAmount, &s.snapshot,
	)
	if err != nil {
		return s, err
	}

	s.meta.Status = domain.SessionStatus(status)
	s.meta.ExitReason = domain.ExitReason(exitReason)
	s.meta.CenterPrice = decimalOrZero(centerPrice)
	s.meta.CurrentCenterPrice = decimalOrZero(currentCenter)
	if t, err := time.Parse(time.RFC3339, startTime); err == nil {
		s.meta.StartTime = t
	}
	if t, err := time.Parse(time.RFC3339, endTime); err == nil {
		s.meta.EndTime = t
	}
	s.meta.Config = domain.GridConfig{
		PriceIntervalFrac: decimalOrZero(priceInterval),
		PositionRatio:     decimalOrZero(positionRatio),
		CallbackRatio:     decimalOrZero(callbackRatio),
		MaxInvestment:     decimalOrZero(maxInvestment),
		MaxDeviation:      decimalOrZero(maxDeviation),
		TargetProfit:      decimalOrZero(targetProfit),
		StopLoss:          decimalOrZero(stopLoss),
		RiskLevel:         domain.RiskLevel(riskLevel),
	}
	s.meta.Stats.CurrentInvestment = decimalOrZero(currentInvestment)
	s.meta.Stats.RealizedPnL = decimalOrZero(realizedPnL)
	s.meta.Stats.TotalBuyAmount = decimalOrZero(totalBuyAmount)
	s.meta.Stats.TotalSellAmount = decimalOrZero(totalSellAmount)
	return s, nil
}

// LoadAll returns every persisted session regardless of status, newest
// start_time first, for the dashboard's session list (GET /api/grid/sessions).
func (st *Store) LoadAll(ctx context.Context) ([]storedSession, error) {
	rows, err := st.db.QueryContext(ctx, `
		SELECT session_id, symbol, status, exit_reason, center_price, current_center_price,
		       start_time, end_time, duration_days, price_interval, position_ratio,
		       callback_ratio, max_investment, max_deviation, target_profit, stop_loss,
		       risk_level, buy_count, sell_count, current_investment, realized_pnl,
		       total_buy_amount, total_sell_amount, snapshot
		FROM grid_sessions ORDER BY start_time DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query all sessions: %w", err)
	}
	defer rows.Close()

	var out []storedSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LoadLatestBySymbol returns the most recently started session for symbol,
// active or not, or ok=false if none was ever created.
func (st *Store) LoadLatestBySymbol(ctx context.Context, symbol string) (meta domain.GridSession, ok bool, err error) {
	rows, err := st.db.QueryContext(ctx, `
		SELECT session_id, symbol, status, exit_reason, center_price, current_center_price,
		       start_time, end_time, duration_days, price_interval, position_ratio,
		       callback_ratio, max_investment, max_deviation, target_profit, stop_loss,
		       risk_level, buy_count, sell_count, current_investment, realized_pnl,
		       total_buy_amount, total_sell_amount, snapshot
		FROM grid_sessions WHERE symbol = ? ORDER BY start_time DESC LIMIT 1
	`, symbol)
	if err != nil {
		return meta, false, fmt.Errorf("query latest session for %s: %w", symbol, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return meta, false, rows.Err()
	}
	s, err := scanSession(rows)
	if err != nil {
		return meta, false, fmt.Errorf("scan session: %w", err)
	}
	return s.meta, true, nil
}

// HasActiveSession reports whether symbol already has an active session,
// enforced by the unique partial index but checked early so Start can
// fail fast with a clear error.
func (st *Store) HasActiveSession(ctx context.Context, symbol string) (bool, error) {
	var count int
	err := st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM grid_sessions WHERE symbol = ? AND status = 'active'`, symbol).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check active session for %s: %w", symbol, err)
	}
	return count > 0, nil
}

// RecordTrade appends one grid fill to grid_trades for history/UI display.
func (st *Store) RecordTrade(ctx context.Context, event domain.GridTradeEvent) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := st.db.ExecContext(ctx, `
		INSERT INTO grid_trades (session_id, stock_code, grid_level, side, price, volume, status, create_time, update_time)
		VALUES (?, ?, ?, ?, ?, ?, 'COMPLETED', ?, ?)
	`, event.SessionID, event.Symbol, event.BandIndex, string(event.Side), event.Price.String(), event.Volume, now, now)
	if err != nil {
		return fmt.Errorf("record grid trade: %w", err)
	}
	return nil
}
