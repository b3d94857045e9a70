package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/solovex/gridtrader/internal/domain"
)

type positionView struct {
	Symbol               string `json:"symbol"`
	Volume               int    `json:"volume"`
	Available            int    `json:"available"`
	AvgCost              string `json:"avg_cost"`
	CurrentPrice         string `json:"current_price"`
	MarketValue          string `json:"market_value"`
	ProfitRatio          string `json:"profit_ratio"`
	HighestPrice         string `json:"highest_price"`
	StopLossPrice        string `json:"stop_loss_price"`
	FirstProfitTriggered bool   `json:"first_profit_triggered"`
}

func toPositionView(p domain.Position) positionView {
	return positionView{
		Symbol:               p.Symbol,
		Volume:               p.Volume,
		Available:            p.Available,
		AvgCost:              domain.Round(p.AvgCost).String(),
		CurrentPrice:         domain.Round(p.CurrentPrice).String(),
		MarketValue:          domain.Round(p.MarketValue()).String(),
		ProfitRatio:          p.ProfitRatio().String(),
		HighestPrice:         domain.Round(p.HighestPrice).String(),
		StopLossPrice:        domain.Round(p.StopLossPrice).String(),
		FirstProfitTriggered: p.FirstProfitTriggered,
	}
}

// handlePositions implements GET /api/positions?version=N: the client's
// cached version short-circuits to {no_change:true} when the
// PositionRegistry hasn't mutated since, per the ETag-style scheme spec §5
// describes.
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	current := s.deps.Registry.Version()

	if raw := r.URL.Query().Get("version"); raw != "" {
		if clientVersion, err := strconv.ParseUint(raw, 10, 64); err == nil && clientVersion == current {
			writeOK(w, map[string]interface{}{"no_change": true, "version": current})
			return
		}
	}

	all := s.deps.Registry.All()
	views := make([]positionView, 0, len(all))
	for _, p := range all {
		views = append(views, toPositionView(p))
	}
	writeOK(w, map[string]interface{}{"positions": views, "version": current})
}

type tradeRecordView struct {
	ID          int64  `json:"id"`
	Symbol      string `json:"symbol"`
	TradeTime   string `json:"trade_time"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	Volume      int    `json:"volume"`
	Amount      string `json:"amount"`
	OrderID     string `json:"order_id"`
	Commission  string `json:"commission"`
	StrategyTag string `json:"strategy_tag"`
}

// handleTradeRecords implements GET /api/trade-records: the most recent
// 200 fills, newest first.
func (s *Server) handleTradeRecords(w http.ResponseWriter, r *http.Request) {
	rows, err := s.deps.DB.Conn().QueryContext(r.Context(), `
		SELECT id, symbol, trade_time, side, price, volume, amount, order_id, commission, strategy_tag
		FROM trade_records ORDER BY trade_time DESC LIMIT 200
	`)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rows.Close()

	var out []tradeRecordView
	for rows.Next() {
		var v tradeRecordView
		var tradeTime string
		if err := rows.Scan(&v.ID, &v.Symbol, &tradeTime, &v.Side, &v.Price, &v.Volume, &v.Amount, &v.OrderID, &v.Commission, &v.StrategyTag); err != nil {
			writeError(w, err)
			return
		}
		if t, err := time.Parse(time.RFC3339, tradeTime); err == nil {
			v.TradeTime = t.UTC().Format(time.RFC3339)
		} else {
			v.TradeTime = tradeTime
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"trade_records": out})
}
