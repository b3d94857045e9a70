package positions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solovex/gridtrader/internal/domain"
)

// SQLStore persists positions to the positions table, grounded on the
// teacher's PositionRepository (raw database/sql, INSERT OR REPLACE
// upserts, explicit transactions) translated from its float64 columns to
// this codebase's decimal-as-TEXT money columns.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an already-migrated *sql.DB.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Upsert inserts or replaces the row for pos.Symbol.
func (s *SQLStore) Upsert(ctx context.Context, pos domain.Position) error {
	const query = `
		INSERT INTO positions
			(symbol, volume, available, avg_cost, base_cost, current_price,
			 highest_price, stop_loss_price, first_profit_triggered, open_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			volume = excluded.volume,
			available = excluded.available,
			avg_cost = excluded.avg_cost,
			base_cost = excluded.base_cost,
			current_price = excluded.current_price,
			highest_price = excluded.highest_price,
			stop_loss_price = excluded.stop_loss_price,
			first_profit_triggered = excluded.first_profit_triggered
	`

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, query,
		pos.Symbol,
		pos.Volume,
		pos.Available,
		pos.AvgCost.String(),
		pos.BaseCost.String(),
		pos.CurrentPrice.String(),
		pos.HighestPrice.String(),
		pos.StopLossPrice.String(),
		boolToInt(pos.FirstProfitTriggered),
		pos.OpenDate.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert position %s: %w", pos.Symbol, err)
	}
	return tx.Commit()
}

// Delete removes the row for symbol; a missing row is not an error.
func (s *SQLStore) Delete(ctx context.Context, symbol string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM positions WHERE symbol = ?", symbol)
	if err != nil {
		return fmt.Errorf("delete position %s: %w", symbol, err)
	}
	return nil
}

// LoadAll returns every persisted position, used once at startup to
// rehydrate the in-memory Registry.
func (s *SQLStore) LoadAll(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, volume, available, avg_cost, base_cost, current_price,
		       highest_price, stop_loss_price, first_profit_triggered, open_date
		FROM positions
	`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

func scanPosition(rows *sql.Rows) (domain.Position, error) {
	var pos domain.Position
	var avgCost, baseCost, current, highest, stopLoss string
	var firstProfit int
	var openDate string

	err := rows.Scan(
		&pos.Symbol,
		&pos.Volume,
		&pos.Available,
		&avgCost,
		&baseCost,
		&current,
		&highest,
		&stopLoss,
		&firstProfit,
		&openDate,
	)
	if err != nil {
		return pos, err
	}

	pos.AvgCost = decimalOrZero(avgCost)
	pos.BaseCost = decimalOrZero(baseCost)
	pos.CurrentPrice = decimalOrZero(current)
	pos.HighestPrice = decimalOrZero(highest)
	pos.StopLossPrice = decimalOrZero(stopLoss)
	pos.FirstProfitTriggered = firstProfit != 0
	if t, err := time.Parse(time.RFC3339, openDate); err == nil {
		pos.OpenDate = t
	}
	return pos, nil
}

// InsertTrade appends one immutable fill record to trade_records (spec
// §3: Trade is append-only, never updated or deleted).
func (s *SQLStore) InsertTrade(ctx context.Context, trade domain.Trade) error {
	const query = `
		INSERT INTO trade_records
			(symbol, trade_time, side, price, volume, amount, order_id, commission, strategy_tag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		trade.Symbol,
		trade.TradeTime.UTC().Format(time.RFC3339),
		string(trade.Side),
		trade.Price.String(),
		trade.Volume,
		trade.Amount().String(),
		trade.OrderID,
		trade.Commission.String(),
		trade.StrategyTag,
	)
	if err != nil {
		return fmt.Errorf("insert trade record %s: %w", trade.Symbol, err)
	}
	return nil
}

func decimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SQLStore)(nil)
