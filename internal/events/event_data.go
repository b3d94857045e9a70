package events

import "encoding/json"

// EventData is implemented by every concrete payload type so Event.Data
// can be marshaled uniformly while handlers still get a typed value.
type EventData interface {
	EventType() EventType
}

// PriceUpdatedData reports a fresh tick for one symbol.
type PriceUpdatedData struct {
	Symbol string `json:"symbol"`
	Last   string `json:"last"`
	Source string `json:"source"`
}

func (d *PriceUpdatedData) EventType() EventType { return PriceUpdated }

// PositionsChangedData reports that the PositionRegistry's view of one
// symbol changed (fill, price refresh, or removal).
type PositionsChangedData struct {
	Symbol string `json:"symbol"`
	Volume int    `json:"volume"`
	Reason string `json:"reason"`
}

func (d *PositionsChangedData) EventType() EventType { return PositionsChanged }

// TradeExecutedData reports one broker fill.
type TradeExecutedData struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
	OrderID  string `json:"order_id,omitempty"`
}

func (d *TradeExecutedData) EventType() EventType { return TradeExecuted }

// GridSessionStartedData reports a new GridSession entering the active state.
type GridSessionStartedData struct {
	SessionID   string `json:"session_id"`
	Symbol      string `json:"symbol"`
	CenterPrice string `json:"center_price"`
}

func (d *GridSessionStartedData) EventType() EventType { return GridSessionStarted }

// GridSessionStoppedData reports a GridSession leaving the active state.
type GridSessionStoppedData struct {
	SessionID  string `json:"session_id"`
	Symbol     string `json:"symbol"`
	ExitReason string `json:"exit_reason"`
}

func (d *GridSessionStoppedData) EventType() EventType { return GridSessionStopped }

// RiskIntentRaisedData reports a TradeIntent raised by RiskEngine or
// GridEngine, before it is handed to the order dispatcher.
type RiskIntentRaisedData struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
	Reason   string `json:"reason"`
}

func (d *RiskIntentRaisedData) EventType() EventType { return RiskIntentRaised }

// SystemStatusChangedData reports an orchestrator-level state transition
// (is-monitoring flag, auto-trading flag, trade-hour boundary).
type SystemStatusChangedData struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (d *SystemStatusChangedData) EventType() EventType { return SystemStatusChanged }

// SettingsChangedData reports a live config field update.
type SettingsChangedData struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (d *SettingsChangedData) EventType() EventType { return SettingsChanged }

// TradernetStatusChangedData reports the broker connection flipping up or down.
type TradernetStatusChangedData struct {
	Connected bool   `json:"connected"`
	Timestamp string `json:"timestamp"`
}

func (d *TradernetStatusChangedData) EventType() EventType { return TradernetStatusChanged }

// ErrorEventData carries an error surfaced by a background worker.
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (d *ErrorEventData) EventType() EventType { return ErrorOccurred }

// MarshalJSON flattens Event so Data serializes as a nested object rather
// than an opaque interface value, matching what the SSE stream expects.
func (e *Event) MarshalJSON() ([]byte, error) {
	type alias Event
	return json.Marshal(&struct{ *alias }{alias: (*alias)(e)})
}
