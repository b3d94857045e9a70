package server

import (
	"net/http"
	"time"

	"github.com/solovex/gridtrader/internal/domain"
	"github.com/solovex/gridtrader/internal/events"
)

type monitorStartRequest struct {
	Symbols []string `json:"symbols"`
}

// loadWatchlist reads every tracked symbol when a monitor-start request
// doesn't supply an explicit symbol list.
func (s *Server) loadWatchlist(r *http.Request) ([]string, error) {
	rows, err := s.deps.DB.Conn().QueryContext(r.Context(), `SELECT symbol FROM watchlist`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, err
		}
		out = append(out, symbol)
	}
	return out, rows.Err()
}

// handleMonitorStart implements POST /api/monitor/start: flips the
// orchestrator's is-monitoring flag and (re)seeds its watch list, either
// from the request body or the persisted watchlist table.
func (s *Server) handleMonitorStart(w http.ResponseWriter, r *http.Request) {
	var req monitorStartRequest
	_ = decodeJSON(r, &req) // empty body is valid: fall back to the watchlist table

	symbols := req.Symbols
	if len(symbols) == 0 {
		loaded, err := s.loadWatchlist(r)
		if err != nil {
			writeError(w, err)
			return
		}
		symbols = loaded
	}
	for _, symbol := range symbols {
		if err := domain.ValidateSymbol(symbol); err != nil {
			writeError(w, err)
			return
		}
	}

	s.deps.Orchestrator.SetWatchSymbols(symbols)
	s.deps.Orchestrator.SetMonitoring(true)
	if s.deps.Bus != nil {
		s.deps.Bus.Emit(events.SystemStatusChanged, "monitor", &events.SystemStatusChangedData{
			Status: "monitoring_started", Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
	writeOK(w, map[string]interface{}{"monitoring": true, "symbols": symbols})
}

// handleMonitorStop implements POST /api/monitor/stop.
func (s *Server) handleMonitorStop(w http.ResponseWriter, r *http.Request) {
	s.deps.Orchestrator.SetMonitoring(false)
	if s.deps.Bus != nil {
		s.deps.Bus.Emit(events.SystemStatusChanged, "monitor", &events.SystemStatusChangedData{
			Status: "monitoring_stopped", Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
	writeOK(w, map[string]interface{}{"monitoring": false})
}
