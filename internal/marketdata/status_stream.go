package marketdata

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/solovex/gridtrader/internal/events"
)

const (
	statusWriteWait      = 10 * time.Second
	statusDialTimeout    = 30 * time.Second
	baseReconnectDelay   = 5 * time.Second
	maxReconnectDelay    = 5 * time.Minute
	maxReconnectAttempts = 10
)

// MarketStatus is one exchange's reported trading status.
type MarketStatus struct {
	Code      string
	Status    string // "open" or "closed"
	UpdatedAt time.Time
}

// StatusStream holds a live WebSocket connection to a market-status feed
// and caches the last reported status per exchange code, adapted from the
// teacher's Tradernet market-status client (same HTTP/1.1-forced dial,
// reconnect-with-backoff, and read-loop shape) but generalized from
// Tradernet's specific wire schema to a minimal ["markets", [...]] frame.
type StatusStream struct {
	url  string
	http *http.Client
	bus  *events.Bus
	log  zerolog.Logger

	mu         sync.RWMutex
	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	connected  bool
	stopped    bool
	stopChan   chan struct{}

	cacheMu sync.RWMutex
	cache   map[string]MarketStatus
}

// http1Client forces HTTP/1.1 ALPN so the upgrade handshake survives a
// Cloudflare-fronted feed that would otherwise negotiate HTTP/2.
func http1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig:   &tls.Config{NextProtos: []string{"http/1.1"}},
			ForceAttemptHTTP2: false,
		},
	}
}

// NewStatusStream builds a StatusStream against feedURL, not yet connected.
func NewStatusStream(feedURL string, bus *events.Bus, log zerolog.Logger) *StatusStream {
	return &StatusStream{
		url:      feedURL,
		http:     http1Client(),
		bus:      bus,
		log:      log.With().Str("component", "status_stream").Logger(),
		cache:    make(map[string]MarketStatus),
		stopChan: make(chan struct{}),
	}
}

// Start dials the feed and begins the read loop; a failed initial dial
// falls back to the background reconnect loop rather than failing startup.
func (ws *StatusStream) Start() error {
	if err := ws.connect(); err != nil {
		ws.log.Warn().Err(err).Msg("initial market-status dial failed, retrying in background")
		go ws.reconnectLoop()
		return err
	}
	ws.mu.RLock()
	ctx := ws.connCtx
	ws.mu.RUnlock()
	go ws.readLoop(ctx)
	return nil
}

// Stop closes the connection and halts reconnection attempts.
func (ws *StatusStream) Stop() error {
	ws.mu.Lock()
	if ws.stopped {
		ws.mu.Unlock()
		return nil
	}
	ws.stopped = true
	ws.mu.Unlock()
	close(ws.stopChan)
	return ws.disconnect()
}

func (ws *StatusStream) connect() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(context.Background(), statusDialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, ws.url, &websocket.DialOptions{HTTPClient: ws.http})
	if err != nil {
		return fmt.Errorf("dial market status feed: %w", err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	ws.conn, ws.connCtx, ws.cancelFunc, ws.connected = conn, connCtx, connCancel, true

	subscribeCtx, subCancel := context.WithTimeout(connCtx, statusWriteWait)
	defer subCancel()
	payload, _ := json.Marshal([]string{"markets"})
	if err := conn.Write(subscribeCtx, websocket.MessageText, payload); err != nil {
		connCancel()
		conn.Close(websocket.StatusNormalClosure, "subscribe failed")
		ws.conn, ws.connCtx, ws.cancelFunc, ws.connected = nil, nil, nil, false
		return fmt.Errorf("subscribe to markets channel: %w", err)
	}
	ws.log.Info().Str("url", ws.url).Msg("connected to market status feed")
	return nil
}

func (ws *StatusStream) disconnect() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.conn == nil {
		return nil
	}
	if ws.cancelFunc != nil {
		ws.cancelFunc()
	}
	err := ws.conn.Close(websocket.StatusNormalClosure, "")
	ws.conn, ws.connCtx, ws.cancelFunc, ws.connected = nil, nil, nil, false
	return err
}

func (ws *StatusStream) readLoop(ctx context.Context) {
	defer func() {
		ws.mu.RLock()
		stopped := ws.stopped
		ws.mu.RUnlock()
		if !stopped {
			go ws.reconnectLoop()
		}
	}()

	for {
		select {
		case <-ws.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		ws.mu.RLock()
		conn := ws.conn
		ws.mu.RUnlock()
		if conn == nil {
			return
		}

		msgType, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				ws.log.Warn().Err(err).Msg("market status feed read error")
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}
		if err := ws.handleMessage(msg); err != nil {
			ws.log.Debug().Err(err).Msg("failed to handle market status frame")
		}
	}
}

// handleMessage parses a ["markets", [{code,status}, ...]] frame.
func (ws *StatusStream) handleMessage(raw []byte) error {
	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil || len(frame) < 2 {
		return fmt.Errorf("malformed status frame")
	}
	var channel string
	if err := json.Unmarshal(frame[0], &channel); err != nil || channel != "markets" {
		return nil
	}

	var entries []struct {
		Code   string `json:"code"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(frame[1], &entries); err != nil {
		return fmt.Errorf("parse markets payload: %w", err)
	}

	now := time.Now().UTC()
	openCount, closedCount := 0, 0
	ws.cacheMu.Lock()
	for _, e := range entries {
		ws.cache[e.Code] = MarketStatus{Code: e.Code, Status: e.Status, UpdatedAt: now}
		if e.Status == "open" {
			openCount++
		} else {
			closedCount++
		}
	}
	ws.cacheMu.Unlock()

	if ws.bus != nil {
		ws.bus.Emit(events.SystemStatusChanged, "market_status", &events.SystemStatusChangedData{
			Status:    fmt.Sprintf("markets_open=%d_closed=%d", openCount, closedCount),
			Timestamp: now.Format(time.RFC3339),
		})
	}
	return nil
}

func (ws *StatusStream) reconnectLoop() {
	attempt := 0
	for {
		select {
		case <-ws.stopChan:
			return
		default:
		}
		attempt++
		delay := statusBackoffDelay(attempt)
		select {
		case <-time.After(delay):
		case <-ws.stopChan:
			return
		}
		if err := ws.connect(); err != nil {
			ws.log.Error().Err(err).Int("attempt", attempt).Msg("market status reconnect failed")
			continue
		}
		ws.mu.RLock()
		ctx := ws.connCtx
		ws.mu.RUnlock()
		go ws.readLoop(ctx)
		return
	}
}

func statusBackoffDelay(attempt int) time.Duration {
	delay := float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxReconnectDelay) {
		delay = float64(maxReconnectDelay)
	}
	return time.Duration(delay)
}

// Status returns the last-known status for an exchange code.
func (ws *StatusStream) Status(code string) (MarketStatus, bool) {
	ws.cacheMu.RLock()
	defer ws.cacheMu.RUnlock()
	s, ok := ws.cache[code]
	return s, ok
}

// IsConnected reports whether the underlying WebSocket is currently up.
func (ws *StatusStream) IsConnected() bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.connected
}
