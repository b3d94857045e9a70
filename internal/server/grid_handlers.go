package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/solovex/gridtrader/internal/domain"
	"github.com/solovex/gridtrader/internal/grid"
	"github.com/solovex/gridtrader/internal/indicators"
)

// gridConfigPayload is the JSON shape of domain.GridConfig used both for
// GET /api/grid/config's defaults and POST /api/grid/start's body.
type gridConfigPayload struct {
	PriceIntervalFrac string `json:"price_interval_frac"`
	PositionRatio     string `json:"position_ratio"`
	CallbackRatio     string `json:"callback_ratio"`
	MaxInvestment     string `json:"max_investment"`
	MaxDeviation      string `json:"max_deviation"`
	TargetProfit      string `json:"target_profit"`
	StopLoss          string `json:"stop_loss"`
	RiskLevel         string `json:"risk_level"`
	OverboughtGate    bool   `json:"overbought_gate_enabled"`
}

func configToPayload(c domain.GridConfig) gridConfigPayload {
	return gridConfigPayload{
		PriceIntervalFrac: c.PriceIntervalFrac.String(),
		PositionRatio:     c.PositionRatio.String(),
		CallbackRatio:     c.CallbackRatio.String(),
		MaxInvestment:     c.MaxInvestment.String(),
		MaxDeviation:      c.MaxDeviation.String(),
		TargetProfit:      c.TargetProfit.String(),
		StopLoss:          c.StopLoss.String(),
		RiskLevel:         string(c.RiskLevel),
		OverboughtGate:    c.OverboughtGateEnabled,
	}
}

func payloadToConfig(p gridConfigPayload) (domain.GridConfig, error) {
	parse := func(field, raw string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, &domain.ValidationError{Field: field, Message: "must be a decimal number"}
		}
		return d, nil
	}

	var cfg domain.GridConfig
	var err error
	if cfg.PriceIntervalFrac, err = parse("price_interval_frac", p.PriceIntervalFrac); err != nil {
		return cfg, err
	}
	if cfg.PositionRatio, err = parse("position_ratio", p.PositionRatio); err != nil {
		return cfg, err
	}
	if cfg.CallbackRatio, err = parse("callback_ratio", p.CallbackRatio); err != nil {
		return cfg, err
	}
	if cfg.MaxInvestment, err = parse("max_investment", p.MaxInvestment); err != nil {
		return cfg, err
	}
	if cfg.MaxDeviation, err = parse("max_deviation", p.MaxDeviation); err != nil {
		return cfg, err
	}
	if cfg.TargetProfit, err = parse("target_profit", p.TargetProfit); err != nil {
		return cfg, err
	}
	if cfg.StopLoss, err = parse("stop_loss", p.StopLoss); err != nil {
		return cfg, err
	}
	cfg.RiskLevel = domain.RiskLevel(p.RiskLevel)
	cfg.OverboughtGateEnabled = p.OverboughtGate
	return cfg, nil
}

// handleGridDefaultConfig returns the three built-in risk-level presets,
// for the "new grid session" form to pre-fill from.
func (s *Server) handleGridDefaultConfig(w http.ResponseWriter, r *http.Request) {
	presets := grid.Presets()
	out := make(map[string]gridConfigPayload, len(presets))
	for level, cfg := range presets {
		out[string(level)] = configToPayload(cfg)
	}
	writeOK(w, out)
}

type gridStartRequest struct {
	Symbol       string             `json:"symbol"`
	CenterPrice  string             `json:"center_price"`
	DurationDays int                `json:"duration_days"`
	RiskLevel    string             `json:"risk_level"`
	Config       *gridConfigPayload `json:"config"`
}

// handleGridStart implements POST /api/grid/start: a symbol plus either a
// named risk_level (resolved against the built-in presets) or a fully
// explicit config overrides the preset.
func (s *Server) handleGridStart(w http.ResponseWriter, r *http.Request) {
	var req gridStartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, &domain.ValidationError{Field: "body", Message: "invalid JSON body"})
		return
	}
	if err := domain.ValidateSymbol(req.Symbol); err != nil {
		writeError(w, err)
		return
	}
	centerPrice, err := decimal.NewFromString(req.CenterPrice)
	if err != nil {
		writeError(w, &domain.ValidationError{Field: "center_price", Message: "must be a decimal number"})
		return
	}
	if req.DurationDays <= 0 {
		writeError(w, &domain.ValidationError{Field: "duration_days", Message: "must be > 0"})
		return
	}

	var cfg domain.GridConfig
	if req.Config != nil {
		cfg, err = payloadToConfig(*req.Config)
		if err != nil {
			writeError(w, err)
			return
		}
	} else {
		preset, ok := grid.Presets()[domain.RiskLevel(req.RiskLevel)]
		if !ok {
			writeError(w, &domain.ValidationError{Field: "risk_level", Message: "must be aggressive, moderate or conservative, or supply an explicit config"})
			return
		}
		cfg = preset
	}

	session, err := s.deps.GridManager.Start(r.Context(), req.Symbol, centerPrice, req.DurationDays, cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, sessionView(session.Snapshot()))
}

// handleGridStop implements POST /api/grid/stop/{session_id}. The
// GridManager is keyed by symbol, so the session_id path param is
// resolved against the active sessions first.
func (s *Server) handleGridStop(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	for _, symbol := range s.deps.GridManager.Active() {
		session, ok := s.deps.GridManager.Get(symbol)
		if !ok || session.Snapshot().SessionID != sessionID {
			continue
		}
		if err := s.deps.GridManager.Stop(r.Context(), symbol); err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, nil)
		return
	}
	writeErrorStatus(w, http.StatusNotFound, "no active session with that id")
}

type sessionSummary struct {
	SessionID          string `json:"session_id"`
	Symbol             string `json:"symbol"`
	Status             string `json:"status"`
	ExitReason         string `json:"exit_reason"`
	CenterPrice        string `json:"center_price"`
	CurrentCenterPrice string `json:"current_center_price"`
	StartTime          string `json:"start_time"`
	EndTime            string `json:"end_time"`
	DurationDays       int    `json:"duration_days"`
	Config             gridConfigPayload `json:"config"`
	BuyCount           int    `json:"buy_count"`
	SellCount          int    `json:"sell_count"`
	CurrentInvestment  string `json:"current_investment"`
	RealizedPnL        string `json:"realized_pnl"`
	TotalBuyAmount     string `json:"total_buy_amount"`
	TotalSellAmount    string `json:"total_sell_amount"`
	ProfitRatio        string `json:"profit_ratio"`
}

func sessionView(meta domain.GridSession) sessionSummary {
	return sessionSummary{
		SessionID:          meta.SessionID,
		Symbol:             meta.Symbol,
		Status:             string(meta.Status),
		ExitReason:         string(meta.ExitReason),
		CenterPrice:        meta.CenterPrice.String(),
		CurrentCenterPrice: meta.CurrentCenterPrice.String(),
		StartTime:          meta.StartTime.UTC().Format(time.RFC3339),
		EndTime:            meta.EndTime.UTC().Format(time.RFC3339),
		DurationDays:       meta.DurationDays,
		Config:             configToPayload(meta.Config),
		BuyCount:           meta.Stats.BuyCount,
		SellCount:          meta.Stats.SellCount,
		CurrentInvestment:  meta.Stats.CurrentInvestment.String(),
		RealizedPnL:        meta.Stats.RealizedPnL.String(),
		TotalBuyAmount:     meta.Stats.TotalBuyAmount.String(),
		TotalSellAmount:    meta.Stats.TotalSellAmount.String(),
		ProfitRatio:        meta.Stats.ProfitRatio(meta.Config.MaxInvestment).String(),
	}
}

// handleGridSessions implements GET /api/grid/sessions: every session
// ever started, newest first.
func (s *Server) handleGridSessions(w http.ResponseWriter, r *http.Request) {
	rows, err := s.deps.GridStore.LoadAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]sessionSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, sessionView(row.Meta()))
	}
	writeOK(w, map[string]interface{}{"sessions": out})
}

// handleGridSession implements GET /api/grid/session/{symbol}: the live
// session if one is active, otherwise the most recently stored one.
func (s *Server) handleGridSession(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if err := domain.ValidateSymbol(symbol); err != nil {
		writeError(w, err)
		return
	}

	if live, ok := s.deps.GridManager.Get(symbol); ok {
		writeOK(w, sessionView(live.Snapshot()))
		return
	}

	meta, ok, err := s.deps.GridStore.LoadLatestBySymbol(r.Context(), symbol)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeErrorStatus(w, http.StatusNotFound, "no grid session for that symbol")
		return
	}
	writeOK(w, sessionView(meta))
}

// handleRiskTemplates implements GET /api/grid/risk-templates: the three
// built-in presets plus any user-saved templates.
func (s *Server) handleRiskTemplates(w http.ResponseWriter, r *http.Request) {
	presets := grid.Presets()
	out := make([]domain.RiskTemplate, 0, len(presets))
	for level, cfg := range presets {
		out = append(out, domain.RiskTemplate{
			Name:        string(level),
			Description: "built-in " + string(level) + " preset",
			Config:      cfg,
			IsDefault:   level == domain.RiskModerate,
		})
	}
	if s.deps.TemplateStore != nil {
		saved, err := s.deps.TemplateStore.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		out = append(out, saved...)
	}
	writeOK(w, map[string]interface{}{"templates": out})
}

// handleGridIndicators implements GET /api/grid/indicators/{symbol}: the
// auxiliary RSI/EMA/Bollinger/volatility snapshot GridEngine's overbought
// gate (and the dashboard's indicator panel) both read.
func (s *Server) handleGridIndicators(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if err := domain.ValidateSymbol(symbol); err != nil {
		writeError(w, err)
		return
	}
	closes, err := s.deps.History.Closes(r.Context(), symbol, 250)
	if err != nil {
		writeError(w, err)
		return
	}
	snap := indicators.Compute(closes)
	writeOK(w, snap)
}
