package server

import (
	"net/http"
)

// statusView mirrors spec §6's GET /api/status: account snapshot plus the
// monitoring/auto-trading flags the dashboard's connection indicator reads.
type statusView struct {
	Account struct {
		Available   string `json:"available"`
		TotalAsset  string `json:"total_asset"`
		MarketValue string `json:"market_value"`
	} `json:"account_info"`
	Monitoring struct {
		AutoTradingEnabled bool `json:"autoTradingEnabled"`
		AllowBuy           bool `json:"allowBuy"`
		AllowSell          bool `json:"allowSell"`
		SimulationMode     bool `json:"simulationMode"`
		IsMonitoring       bool `json:"isMonitoring"`
	} `json:"monitoring"`
}

func (s *Server) buildStatus(r *http.Request) statusView {
	var view statusView
	cfg := s.deps.CfgStore.Snapshot()

	if s.deps.Broker != nil {
		if acct, err := s.deps.Broker.QueryAccount(r.Context()); err == nil {
			view.Account.Available = acct.Available.String()
			view.Account.TotalAsset = acct.TotalAsset.String()
			view.Account.MarketValue = acct.MarketValue.String()
		} else {
			s.log.Warn().Err(err).Msg("failed to query broker account for status")
		}
	}

	view.Monitoring.AllowBuy = cfg.AllowBuy
	view.Monitoring.AllowSell = cfg.AllowSell
	view.Monitoring.SimulationMode = cfg.SimulationMode
	if s.deps.Orchestrator != nil {
		view.Monitoring.AutoTradingEnabled = s.deps.Orchestrator.IsAutoTrading()
		view.Monitoring.IsMonitoring = s.deps.Orchestrator.IsMonitoring()
	}
	return view
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeOK(w, s.buildStatus(r))
}
