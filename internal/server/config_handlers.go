package server

import (
	"net/http"

	"github.com/solovex/gridtrader/internal/domain"
	"github.com/solovex/gridtrader/internal/events"
)

// configView is the JSON-friendly projection of config.Config, decimals
// rendered as strings so the dashboard never parses a float itself.
type configView struct {
	SimulationMode bool `json:"simulationMode"`

	SingleBuyAmount             string `json:"singleBuyAmount"`
	FirstProfitSell             string `json:"firstProfitSell"`
	FirstProfitSellEnabled      bool   `json:"firstProfitSellEnabled"`
	StockGainSellPencent        string `json:"stockGainSellPencent"`
	StopLossBuy                 string `json:"stopLossBuy"`
	StopLossBuyEnabled          bool   `json:"stopLossBuyEnabled"`
	StockStopLoss               string `json:"stockStopLoss"`
	StopLossEnabled             bool   `json:"StopLossEnabled"`
	SingleStockMaxPosition      string `json:"singleStockMaxPosition"`
	TotalMaxPosition            string `json:"totalMaxPosition"`
	AllowBuy                    bool   `json:"allowBuy"`
	AllowSell                   bool   `json:"allowSell"`
	GlobalAllowBuySell          bool   `json:"globalAllowBuySell"`
	ConnectPort                 int    `json:"connectPort"`
	TotalAccounts                string `json:"totalAccounts"`
}

// configRanges documents the accepted range for every numeric key, shown
// by the dashboard's settings form.
var configRanges = map[string]string{
	"singleBuyAmount":        "> 0",
	"firstProfitSell":        "> 0",
	"stockGainSellPencent":   "[0, 1]",
	"stopLossBuy":            "> 0",
	"stockStopLoss":          "<= 0",
	"singleStockMaxPosition": "> 0",
	"totalMaxPosition":       "> 0",
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.deps.CfgStore.Snapshot()
	view := configView{
		SimulationMode:         cfg.SimulationMode,
		SingleBuyAmount:        cfg.SingleBuyAmount.String(),
		FirstProfitSell:        cfg.FirstTakeProfitRatio.String(),
		FirstProfitSellEnabled: cfg.FirstTakeProfitEnabled,
		StockGainSellPencent:   cfg.FirstTakeProfitSellFraction.String(),
		StopLossBuy:            cfg.ReplenishmentDrawdownRatio.String(),
		StopLossBuyEnabled:     cfg.ReplenishmentEnabled,
		StockStopLoss:          cfg.StopLossRatio.String(),
		StopLossEnabled:        cfg.StopLossEnabled,
		SingleStockMaxPosition: cfg.SingleStockMaxPosition.String(),
		TotalMaxPosition:       cfg.TotalMaxPosition.String(),
		AllowBuy:               cfg.AllowBuy,
		AllowSell:              cfg.AllowSell,
		GlobalAllowBuySell:     cfg.GlobalAllowBuySell,
		ConnectPort:            cfg.BrokerPort,
		TotalAccounts:          cfg.BrokerHost,
	}
	writeOK(w, map[string]interface{}{"config": view, "ranges": configRanges})
}

func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var fields map[string]string
	if err := decodeJSON(r, &fields); err != nil {
		writeError(w, &domain.ValidationError{Field: "body", Message: "must be a JSON object of string key/value pairs"})
		return
	}
	if err := s.deps.CfgStore.Update(fields); err != nil {
		writeError(w, err)
		return
	}
	if s.deps.Bus != nil {
		for k, v := range fields {
			s.deps.Bus.Emit(events.SettingsChanged, "config", &events.SettingsChangedData{Key: k, Value: v})
		}
	}
	writeOK(w, nil)
}
