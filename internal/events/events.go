// Package events provides the in-process publish/subscribe bus used to
// fan out domain occurrences to the SSE stream and the structured log,
// without coupling the grid engine, risk engine, and order dispatcher
// directly to the HTTP layer.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType names a kind of occurrence a subscriber can filter on.
type EventType string

const (
	PriceUpdated           EventType = "PRICE_UPDATED"
	PositionsChanged        EventType = "POSITIONS_CHANGED"
	TradeExecuted           EventType = "TRADE_EXECUTED"
	GridSessionStarted      EventType = "GRID_SESSION_STARTED"
	GridSessionStopped      EventType = "GRID_SESSION_STOPPED"
	RiskIntentRaised        EventType = "RISK_INTENT_RAISED"
	SystemStatusChanged     EventType = "SYSTEM_STATUS_CHANGED"
	SettingsChanged         EventType = "SETTINGS_CHANGED"
	TradernetStatusChanged  EventType = "TRADERNET_STATUS_CHANGED"
	ErrorOccurred           EventType = "ERROR_OCCURRED"
)

// Event is one occurrence carried on the Bus. Data is kept as a typed
// EventData value so SSE marshaling and log fields both come from the
// same struct.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// Handler receives one Event per call. Handlers must not block; the Bus
// invokes them synchronously on the emitting goroutine.
type Handler func(*Event)

// Bus is a thread-safe, in-process fan-out of events to subscribers,
// with every emission also logged at info level.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]subscription
	nextID      uint64
	log         zerolog.Logger
}

type subscription struct {
	id      uint64
	handler Handler
}

// NewBus creates an event bus that logs through log.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[EventType][]subscription),
		log:         log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers handler for eventType and returns an ID usable with
// Unsubscribe. A handler may be subscribed to multiple types by calling
// Subscribe once per type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})
	return id
}

// Unsubscribe removes the handler registered under id for eventType.
func (b *Bus) Unsubscribe(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[eventType]
	for i, s := range subs {
		if s.id == id {
			b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Emit publishes data under eventType, attributed to module, to every
// current subscriber of that type and to the structured log.
func (b *Bus) Emit(eventType EventType, module string, data EventData) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Module:    module,
		Data:      data,
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subscribers[eventType]))
	copy(subs, b.subscribers[eventType])
	b.mu.RUnlock()

	eventJSON, _ := json.Marshal(event)
	b.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("event emitted")

	for _, s := range subs {
		s.handler(event)
	}
}

// EmitError is a convenience wrapper for ErrorOccurred events.
func (b *Bus) EmitError(module string, err error, context map[string]interface{}) {
	b.Emit(ErrorOccurred, module, &ErrorEventData{Error: err.Error(), Context: context})
}
