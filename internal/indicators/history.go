package indicators

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// HistoryReader fetches the recent daily closes Compute needs, grounded on
// the same database/sql read pattern as positions.SQLStore.
type HistoryReader struct {
	db *sql.DB
}

// NewHistoryReader wraps an already-migrated *sql.DB.
func NewHistoryReader(db *sql.DB) *HistoryReader {
	return &HistoryReader{db: db}
}

// Closes returns up to limit most-recent daily closes for symbol, oldest
// first (the ordering talib's moving-window functions expect).
func (h *HistoryReader) Closes(ctx context.Context, symbol string, limit int) ([]float64, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT close FROM stock_daily_data
		WHERE symbol = ?
		ORDER BY trade_date DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query closes for %s: %w", symbol, err)
	}
	defer rows.Close()

	var reversed []float64
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan close: %w", err)
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		reversed = append(reversed, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	closes := make([]float64, len(reversed))
	for i, v := range reversed {
		closes[len(reversed)-1-i] = v
	}
	return closes, nil
}
