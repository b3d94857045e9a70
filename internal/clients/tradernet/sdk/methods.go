package sdk

import (
	"fmt"
	"strings"
)

// Duration IDs accepted by putTradeOrder.
var (
	DurationDay = 1
	DurationExt = 2
	DurationGTC = 3
)

// DurationMap maps duration strings to IDs.
var DurationMap = map[string]int{
	"day": DurationDay,
	"ext": DurationExt,
	"gtc": DurationGTC,
}

// UserInfo retrieves account identity information; used by IsConnected as
// a lightweight reachability probe.
func (c *Client) UserInfo() (interface{}, error) {
	return c.authorizedRequest("GetAllUserTexInfo", GetAllUserTexInfoParams{})
}

// AccountSummary retrieves current positions and cash balances.
// Response shape: result.ps.pos[] (i, q, bal_price_a, mkt_price, curr),
// result.ps.acc[] (curr, s).
func (c *Client) AccountSummary() (interface{}, error) {
	return c.authorizedRequest("getPositionJson", GetPositionJSONParams{})
}

// trade places an order. orderType: 1=Market, 2=Limit. quantity's sign
// selects buy (positive) vs sell (negative).
func (c *Client) trade(symbol string, quantity int, orderType int, limitPrice *float64, duration string, useMargin bool, customOrderID *int) (interface{}, error) {
	durationID, ok := DurationMap[strings.ToLower(duration)]
	if !ok {
		return nil, fmt.Errorf("unknown duration %s", duration)
	}
	if orderType == 2 && limitPrice == nil {
		return nil, fmt.Errorf("limit_price required for limit orders")
	}

	var actionID int
	switch {
	case quantity > 0 && !useMargin:
		actionID = 1
	case quantity > 0 && useMargin:
		actionID = 2
	case quantity < 0 && !useMargin:
		actionID = 3
	case quantity < 0 && useMargin:
		actionID = 4
	default:
		return nil, fmt.Errorf("zero quantity")
	}

	params := PutTradeOrderParams{
		InstrName:    symbol,
		ActionID:     actionID,
		OrderTypeID:  orderType,
		Qty:          absInt(quantity),
		LimitPrice:   limitPrice,
		ExpirationID: durationID,
		UserOrderID:  customOrderID,
	}
	return c.authorizedRequest("putTradeOrder", params)
}

// Buy places a buy order. price == 0 submits a market order.
func (c *Client) Buy(symbol string, quantity int, price float64, duration string, useMargin bool, customOrderID *int) (interface{}, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}
	orderType, limitPrice := 1, (*float64)(nil)
	if price != 0 {
		orderType = 2
		limitPrice = &price
	}
	return c.trade(symbol, quantity, orderType, limitPrice, duration, useMargin, customOrderID)
}

// Sell places a sell order. price == 0 submits a market order.
func (c *Client) Sell(symbol string, quantity int, price float64, duration string, useMargin bool, customOrderID *int) (interface{}, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}
	orderType, limitPrice := 1, (*float64)(nil)
	if price != 0 {
		orderType = 2
		limitPrice = &price
	}
	return c.trade(symbol, -quantity, orderType, limitPrice, duration, useMargin, customOrderID)
}

// Cancel cancels a pending order by its broker-assigned numeric ID.
func (c *Client) Cancel(orderID int) (interface{}, error) {
	params := map[string]interface{}{"order_id": orderID}
	result, err := c.authorizedRequest("delTradeOrder", params)
	if err != nil {
		return nil, err
	}
	resultMap, ok := result.(map[string]interface{})
	if !ok {
		return result, nil
	}
	errorCode, exists := resultMap["error_code"]
	if !exists {
		return result, nil
	}
	var code int
	switch v := errorCode.(type) {
	case float64:
		code = int(v)
	case int:
		code = v
	}
	if code == 0 {
		return result, nil
	}
	msg, _ := resultMap["error_message"].(string)
	return nil, fmt.Errorf("cancel order %d failed (code %d): %s", orderID, code, msg)
}

// GetPlaced returns currently pending orders (active=true) or all orders.
func (c *Client) GetPlaced(active bool) (interface{}, error) {
	activeOnly := 0
	if active {
		activeOnly = 1
	}
	return c.authorizedRequest("getNotifyOrderJson", GetNotifyOrderJSONParams{ActiveOnly: activeOnly})
}

// GetQuotes fetches quotes for a batch of symbols in one round trip.
func (c *Client) GetQuotes(symbols []string) (interface{}, error) {
	return c.authorizedRequest("getStockQuotesJson", GetStockQuotesJSONParams{Tickers: strings.Join(symbols, ",")})
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
