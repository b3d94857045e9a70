package broker

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solovex/gridtrader/internal/domain"
)

// extractOrderID pulls the broker-assigned order identifier out of a
// putTradeOrder response, checking order_id then id as a fallback.
func extractOrderID(raw interface{}) (string, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("unexpected order response shape %T", raw)
	}
	for _, key := range []string{"order_id", "id"} {
		if v, exists := m[key]; exists {
			return stringifyID(v), nil
		}
	}
	return "", fmt.Errorf("order response missing order_id/id: %v", m)
}

func stringifyID(v interface{}) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatInt(int64(t), 10)
	case int:
		return strconv.Itoa(t)
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

func parseOrderID(orderID string) (int, error) {
	id, err := strconv.Atoi(orderID)
	if err != nil {
		return 0, fmt.Errorf("order id %q is not numeric: %w", orderID, err)
	}
	return id, nil
}

// parseAccountSnapshot reads result.ps.acc[] cash entries, summing across
// currencies since the supervisor trades a single-currency account.
func parseAccountSnapshot(raw interface{}) domain.AccountSnapshot {
	ps := navigatePS(raw)
	var available, marketValue decimal.Decimal

	if acc, ok := ps["acc"].([]interface{}); ok {
		for _, entry := range acc {
			if e, ok := entry.(map[string]interface{}); ok {
				available = available.Add(decimalFromAny(e["s"]))
			}
		}
	}
	if pos, ok := ps["pos"].([]interface{}); ok {
		for _, entry := range pos {
			e, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			qty := decimalFromAny(e["q"])
			mktPrice := decimalFromAny(e["mkt_price"])
			marketValue = marketValue.Add(qty.Mul(mktPrice))
		}
	}

	return domain.AccountSnapshot{
		Available:   available,
		TotalAsset:  available.Add(marketValue),
		MarketValue: marketValue,
	}
}

// parsePositions reads result.ps.pos[] into domain.Position values.
// highest_price is seeded from mkt_price and base_cost from the average
// cost; stop_loss_price and first_profit_triggered are left zero.
func parsePositions(raw interface{}) []domain.Position {
	ps := navigatePS(raw)
	pos, ok := ps["pos"].([]interface{})
	if !ok {
		return nil
	}

	out := make([]domain.Position, 0, len(pos))
	for _, entry := range pos {
		e, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		symbol, _ := e["i"].(string)
		if symbol == "" {
			continue
		}
		qty := decimalFromAny(e["q"])
		volume, _ := qty.Float64()
		avgCost := decimalFromAny(e["bal_price_a"])
		current := decimalFromAny(e["mkt_price"])

		out = append(out, domain.Position{
			Symbol:       symbol,
			Volume:       int(volume),
			Available:    int(volume),
			AvgCost:      avgCost,
			BaseCost:     avgCost,
			CurrentPrice: current,
			HighestPrice: current,
			OpenDate:     time.Now(),
		})
	}
	return out
}

func navigatePS(raw interface{}) map[string]interface{} {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	result, ok := m["result"].(map[string]interface{})
	if !ok {
		return nil
	}
	ps, _ := result["ps"].(map[string]interface{})
	return ps
}

func decimalFromAny(v interface{}) decimal.Decimal {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t)
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}
