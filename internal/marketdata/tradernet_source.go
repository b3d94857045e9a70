// Package marketdata implements MarketDataHub: ordered-source failover
// over the broker's quote feed and a public fallback feed, grounded on
// the teacher's multi-source market-data idiom
// (internal/clients/tradernet + internal/modules/market in trader-go).
package marketdata

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/solovex/gridtrader/internal/clients/tradernet/sdk"
	"github.com/solovex/gridtrader/internal/domain"
)

// TradernetSource is the primary DataSource, wrapping the broker SDK's
// batch quote endpoint. Grounded on sdk.Client.GetQuotes; the raw
// getStockQuotesJson response isn't documented in the teacher's
// comments the way result.ps is, so parsing here tolerates the handful
// of key-name variants Tradernet's API is known to use across endpoints.
type TradernetSource struct {
	client *sdk.Client
	log    zerolog.Logger
}

// NewTradernetSource wraps an already-authenticated SDK client.
func NewTradernetSource(client *sdk.Client, log zerolog.Logger) *TradernetSource {
	return &TradernetSource{client: client, log: log.With().Str("component", "tradernet_source").Logger()}
}

func (s *TradernetSource) Name() string { return "tradernet" }

// Subscribe validates each symbol is quotable by fetching it once.
func (s *TradernetSource) Subscribe(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	_, err := s.client.GetQuotes(symbols)
	if err != nil {
		return fmt.Errorf("subscribe validation failed: %w", err)
	}
	return nil
}

// GetTick fetches a single symbol's quote. The batch endpoint is reused
// rather than adding a single-symbol call the SDK doesn't expose.
func (s *TradernetSource) GetTick(ctx context.Context, symbol string) (domain.Tick, error) {
	raw, err := s.client.GetQuotes([]string{symbol})
	if err != nil {
		return domain.Tick{}, fmt.Errorf("get quote for %s: %w", symbol, err)
	}
	tick, ok := parseQuote(raw, symbol)
	if !ok {
		return domain.Tick{}, fmt.Errorf("no quote returned for %s", symbol)
	}
	tick.Source = s.Name()
	return tick, nil
}

// parseQuote navigates getStockQuotesJson's result looking for the row
// matching symbol. Tradernet quote rows are keyed by ticker under a
// "quotes" or "result" array; each row's price fields vary by endpoint
// version ("ltp"/"last"/"ltr"/"close" for last trade, "pp"/"prev_close"/
// "pclose" for previous close; "c" is the ticker), so every candidate key
// is tried in order.
func parseQuote(raw interface{}, symbol string) (domain.Tick, bool) {
	rows := extractQuoteRows(raw)
	for _, row := range rows {
		m, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		ticker := firstString(m, "c", "ticker", "symbol", "instr_name")
		if ticker != "" && ticker != symbol {
			continue
		}
		return domain.Tick{
			Symbol:    symbol,
			Last:      firstDecimal(m, "ltp", "last", "ltr", "close"),
			Open:      firstDecimal(m, "op", "open"),
			High:      firstDecimal(m, "hi", "high"),
			Low:       firstDecimal(m, "lo", "low"),
			PrevClose: firstDecimal(m, "pp", "prev_close", "pclose"),
			Amount:    firstDecimal(m, "vol_shares", "amount"),
		}, true
	}
	return domain.Tick{}, false
}

func extractQuoteRows(raw interface{}) []interface{} {
	top, ok := raw.(map[string]interface{})
	if !ok {
		if arr, ok := raw.([]interface{}); ok {
			return arr
		}
		return nil
	}
	for _, key := range []string{"quotes", "result", "q", "data"} {
		if v, ok := top[key]; ok {
			if arr, ok := v.([]interface{}); ok {
				return arr
			}
		}
	}
	return nil
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func firstDecimal(m map[string]interface{}, keys ...string) decimal.Decimal {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if d, ok := decimalFromQuoteField(v); ok {
				return d
			}
		}
	}
	return decimal.Zero
}

func decimalFromQuoteField(v interface{}) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t), true
	case string:
		d, err := decimal.NewFromString(t)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

var _ domain.DataSource = (*TradernetSource)(nil)
