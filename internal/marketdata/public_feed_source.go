package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/solovex/gridtrader/internal/domain"
)

const (
	publicFeedDialTimeout      = 15 * time.Second
	publicFeedWriteWait        = 10 * time.Second
	publicFeedBaseReconnect    = 2 * time.Second
	publicFeedMaxReconnect     = 2 * time.Minute
	publicFeedMaxCacheStale    = 30 * time.Second
)

// wireTick is the public feed's wire format: symbol, last, open, high
// and low prices, and an ISO-8601 timestamp.
type wireTick struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Time   string  `json:"time"`
}

// PublicFeedSource is the fallback DataSource used when the broker feed
// is unhealthy. Its reconnect/backoff loop is adapted from the teacher's
// MarketStatusWebSocket (internal/clients/tradernet/websocket_client.go):
// same exponential-backoff reconnection discipline, repointed at a
// ticks channel instead of a market-status channel.
type PublicFeedSource struct {
	url string

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	stopped   bool

	cacheMu    sync.RWMutex
	cache      map[string]domain.Tick
	lastUpdate time.Time

	stopChan chan struct{}
	log      zerolog.Logger
}

// NewPublicFeedSource builds a feed client against feedURL, not yet connected.
func NewPublicFeedSource(feedURL string, log zerolog.Logger) *PublicFeedSource {
	return &PublicFeedSource{
		url:      feedURL,
		cache:    make(map[string]domain.Tick),
		stopChan: make(chan struct{}),
		log:      log.With().Str("component", "public_feed_source").Logger(),
	}
}

func (p *PublicFeedSource) Name() string { return "public_feed" }

// Start dials the feed and begins the read loop; failures fall back to
// the background reconnect loop rather than blocking the caller.
func (p *PublicFeedSource) Start() {
	if err := p.connect(); err != nil {
		p.log.Warn().Err(err).Msg("initial public feed connection failed, retrying in background")
		go p.reconnectLoop()
		return
	}
	go p.readLoop()
}

// Stop closes the connection and halts reconnection attempts.
func (p *PublicFeedSource) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()
	close(p.stopChan)
	p.disconnect()
}

func (p *PublicFeedSource) connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, err := url.Parse(p.url)
	if err != nil {
		return fmt.Errorf("parse feed url: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: publicFeedDialTimeout}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial public feed: %w", err)
	}

	p.conn = conn
	p.connected = true
	return nil
}

func (p *PublicFeedSource) disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(publicFeedWriteWait))
		_ = p.conn.Close()
		p.conn = nil
	}
	p.connected = false
}

func (p *PublicFeedSource) readLoop() {
	defer func() {
		p.mu.RLock()
		stopped := p.stopped
		p.mu.RUnlock()
		if !stopped {
			go p.reconnectLoop()
		}
	}()

	for {
		p.mu.RLock()
		conn := p.conn
		p.mu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			p.log.Warn().Err(err).Msg("public feed read error")
			return
		}

		var tick wireTick
		if err := json.Unmarshal(message, &tick); err != nil {
			p.log.Debug().Err(err).Msg("ignoring unparseable feed message")
			continue
		}
		p.store(tick)
	}
}

func (p *PublicFeedSource) store(wt wireTick) {
	if wt.Symbol == "" {
		return
	}
	ts := time.Now()
	if parsed, err := time.Parse(time.RFC3339, wt.Time); err == nil {
		ts = parsed
	}

	p.cacheMu.Lock()
	p.cache[wt.Symbol] = domain.Tick{
		Symbol:    wt.Symbol,
		Last:      decimal.NewFromFloat(wt.Last),
		Open:      decimal.NewFromFloat(wt.Open),
		High:      decimal.NewFromFloat(wt.High),
		Low:       decimal.NewFromFloat(wt.Low),
		Timestamp: ts,
		Source:    p.Name(),
	}
	p.lastUpdate = time.Now()
	p.cacheMu.Unlock()
}

func (p *PublicFeedSource) reconnectLoop() {
	attempt := 0
	for {
		select {
		case <-p.stopChan:
			return
		default:
		}

		attempt++
		delay := backoffDelay(attempt, publicFeedBaseReconnect, publicFeedMaxReconnect)
		select {
		case <-time.After(delay):
		case <-p.stopChan:
			return
		}

		if err := p.connect(); err != nil {
			p.log.Warn().Err(err).Int("attempt", attempt).Msg("public feed reconnect failed")
			continue
		}
		p.log.Info().Int("attempt", attempt).Msg("public feed reconnected")
		go p.readLoop()
		return
	}
}

func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	d := float64(base) * math.Pow(2, float64(attempt-1))
	if d > float64(max) {
		d = float64(max)
	}
	return time.Duration(d)
}

// Subscribe is a no-op: the public feed pushes every symbol it carries
// and GetTick simply reads whatever has arrived so far.
func (p *PublicFeedSource) Subscribe(ctx context.Context, symbols []string) error { return nil }

// GetTick returns the most recently received tick for symbol, if the
// cache isn't stale.
func (p *PublicFeedSource) GetTick(ctx context.Context, symbol string) (domain.Tick, error) {
	p.cacheMu.RLock()
	defer p.cacheMu.RUnlock()
	if time.Since(p.lastUpdate) > publicFeedMaxCacheStale {
		return domain.Tick{}, fmt.Errorf("public feed cache stale")
	}
	tick, ok := p.cache[symbol]
	if !ok {
		return domain.Tick{}, fmt.Errorf("no cached tick for %s", symbol)
	}
	return tick, nil
}

var _ domain.DataSource = (*PublicFeedSource)(nil)
