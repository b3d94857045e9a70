package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/solovex/gridtrader/internal/events"
)

// sseEventTypes is every event type the dashboard's live feed subscribes
// to when the client doesn't pass an explicit ?types= filter.
var sseEventTypes = []events.EventType{
	events.PriceUpdated,
	events.PositionsChanged,
	events.TradeExecuted,
	events.GridSessionStarted,
	events.GridSessionStopped,
	events.RiskIntentRaised,
	events.SystemStatusChanged,
	events.SettingsChanged,
	events.TradernetStatusChanged,
	events.ErrorOccurred,
}

// handleSSE streams every Bus event to the client as it happens, grounded
// on the teacher's unified event stream: one goroutine per connection,
// a buffered channel so a slow client drops events rather than blocking
// Bus.Emit, and a 30s heartbeat to keep idle proxies from closing early.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if s.deps.Bus == nil {
		writeErrorStatus(w, http.StatusServiceUnavailable, "event bus not configured")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorStatus(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var allowed map[events.EventType]bool
	if raw := r.URL.Query().Get("types"); raw != "" {
		allowed = make(map[events.EventType]bool)
		for _, t := range strings.Split(raw, ",") {
			allowed[events.EventType(strings.TrimSpace(t))] = true
		}
	}

	ch := make(chan *events.Event, 100)
	handler := func(ev *events.Event) {
		if allowed != nil && !allowed[ev.Type] {
			return
		}
		select {
		case ch <- ev:
		default:
			s.log.Warn().Str("event_type", string(ev.Type)).Msg("sse channel full, dropping event")
		}
	}

	var ids []uint64
	var types []events.EventType
	if allowed == nil {
		types = sseEventTypes
	} else {
		for t := range allowed {
			types = append(types, t)
		}
	}
	for _, t := range types {
		ids = append(ids, s.deps.Bus.Subscribe(t, handler))
	}
	defer func() {
		for i, id := range ids {
			s.deps.Bus.Unsubscribe(types[i], id)
		}
	}()

	fmt.Fprintf(w, "data: {\"type\":\"connected\"}\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			payload, err := ev.MarshalJSON()
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, "data: {\"type\":\"heartbeat\"}\n\n")
			flusher.Flush()
		}
	}
}
