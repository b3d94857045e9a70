package sdk

// GetAllUserTexInfoParams carries no fields; UserInfo takes no parameters.
type GetAllUserTexInfoParams struct{}

// GetPositionJSONParams carries no fields; AccountSummary takes no parameters.
type GetPositionJSONParams struct{}

// PutTradeOrderParams places a buy/sell/cancel-replace order. Field order
// matches the API's documented positional encoding.
type PutTradeOrderParams struct {
	InstrName    string   `json:"instr_name"`
	ActionID     int      `json:"action_id"`
	OrderTypeID  int      `json:"order_type_id"`
	Qty          int      `json:"qty"`
	LimitPrice   *float64 `json:"limit_price,omitempty"`
	StopPrice    *float64 `json:"stop_price,omitempty"`
	ExpirationID int      `json:"expiration_id"`
	UserOrderID  *int     `json:"user_order_id,omitempty"`
}

// GetNotifyOrderJSONParams requests the pending-order list.
type GetNotifyOrderJSONParams struct {
	ActiveOnly int `json:"active_only"`
}

// GetStockQuotesJSONParams requests quotes for a comma-separated symbol list.
type GetStockQuotesJSONParams struct {
	Tickers string `json:"tickers"`
}
