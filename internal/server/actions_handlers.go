package server

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/solovex/gridtrader/internal/domain"
)

type executeBuyRequest struct {
	Symbol    string `json:"symbol"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`      // empty => market order
	PriceType string `json:"price_type"` // "LIMIT" or "MARKET", defaults from Price
}

// handleExecuteBuy implements POST /api/actions/execute_buy: a manual,
// operator-triggered buy that bypasses RiskEngine/GridEngine and goes
// straight to the order dispatcher, for the "buy now" dashboard action.
func (s *Server) handleExecuteBuy(w http.ResponseWriter, r *http.Request) {
	var req executeBuyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, &domain.ValidationError{Field: "body", Message: "invalid JSON body"})
		return
	}
	if err := domain.ValidateSymbol(req.Symbol); err != nil {
		writeError(w, err)
		return
	}
	if req.Quantity <= 0 {
		writeError(w, &domain.ValidationError{Field: "quantity", Message: "must be > 0"})
		return
	}

	priceType := domain.PriceTypeMarket
	price := decimal.Zero
	if req.Price != "" {
		parsed, err := decimal.NewFromString(req.Price)
		if err != nil {
			writeError(w, &domain.ValidationError{Field: "price", Message: "must be a decimal number"})
			return
		}
		price = parsed
		priceType = domain.PriceTypeLimit
	}
	if req.PriceType != "" {
		priceType = domain.PriceType(req.PriceType)
	}

	orderID, err := s.deps.Dispatcher.PlaceOrder(r.Context(), req.Symbol, domain.SideBuy, req.Quantity, price, priceType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"order_id": orderID})
}

type holdingsInitRequest struct {
	Symbol       string `json:"symbol"`
	Volume       int    `json:"volume"`
	AvgCost      string `json:"avg_cost"`
	CurrentPrice string `json:"current_price"`
}

// handleHoldingsInit implements POST /api/holdings/init: seeds or
// corrects a position directly (e.g. importing an existing brokerage
// holding the supervisor didn't place itself).
func (s *Server) handleHoldingsInit(w http.ResponseWriter, r *http.Request) {
	var req holdingsInitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, &domain.ValidationError{Field: "body", Message: "invalid JSON body"})
		return
	}
	if err := domain.ValidateSymbol(req.Symbol); err != nil {
		writeError(w, err)
		return
	}
	if req.Volume < 0 {
		writeError(w, &domain.ValidationError{Field: "volume", Message: "must be >= 0"})
		return
	}
	avgCost, err := decimal.NewFromString(req.AvgCost)
	if err != nil {
		writeError(w, &domain.ValidationError{Field: "avg_cost", Message: "must be a decimal number"})
		return
	}
	currentPrice := avgCost
	if req.CurrentPrice != "" {
		currentPrice, err = decimal.NewFromString(req.CurrentPrice)
		if err != nil {
			writeError(w, &domain.ValidationError{Field: "current_price", Message: "must be a decimal number"})
			return
		}
	}

	if err := s.deps.Registry.Upsert(r.Context(), req.Symbol, req.Volume, avgCost, currentPrice); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}
