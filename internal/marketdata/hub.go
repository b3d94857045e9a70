package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/solovex/gridtrader/internal/domain"
)

const (
	unhealthyThreshold = 5
	healthSweepPeriod   = 30 * time.Second
)

type sourceHealth struct {
	source             domain.DataSource
	consecutiveErrors  int
	healthy            bool
	lastError          error
}

// Hub aggregates an ordered list of DataSources and fails over to the
// next healthy one on GetTick. The primary (first) source is always
// tried first in live mode; in simulation mode every configured source
// is eligible, matching spec §4.2's "live trading trusts only the
// primary feed, simulation may read from any configured source" policy.
type Hub struct {
	mu         sync.Mutex
	sources    []*sourceHealth
	simulation bool
	log        zerolog.Logger

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewHub builds a Hub over sources in priority order; sources[0] is the
// primary feed.
func NewHub(sources []domain.DataSource, simulation bool, log zerolog.Logger) *Hub {
	wrapped := make([]*sourceHealth, 0, len(sources))
	for _, s := range sources {
		wrapped = append(wrapped, &sourceHealth{source: s, healthy: true})
	}
	return &Hub{
		sources:    wrapped,
		simulation: simulation,
		log:        log.With().Str("component", "marketdata_hub").Logger(),
		stopChan:   make(chan struct{}),
	}
}

// StartHealthSweep launches the background loop that re-probes
// unhealthy sources every 30 seconds so a recovered feed rejoins
// rotation without requiring a restart.
func (h *Hub) StartHealthSweep(ctx context.Context, probeSymbol string) {
	go func() {
		ticker := time.NewTicker(healthSweepPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.sweep(ctx, probeSymbol)
			case <-h.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the health sweep goroutine.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
}

func (h *Hub) sweep(ctx context.Context, probeSymbol string) {
	h.mu.Lock()
	unhealthy := make([]*sourceHealth, 0)
	for _, sh := range h.sources {
		if !sh.healthy {
			unhealthy = append(unhealthy, sh)
		}
	}
	h.mu.Unlock()

	for _, sh := range unhealthy {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := sh.source.GetTick(probeCtx, probeSymbol)
		cancel()

		h.mu.Lock()
		if err == nil {
			sh.healthy = true
			sh.consecutiveErrors = 0
			h.log.Info().Str("source", sh.source.Name()).Msg("source recovered, rejoining rotation")
		} else {
			sh.lastError = err
		}
		h.mu.Unlock()
	}
}

// GetTick tries each eligible source in order, returning the first
// success. Live mode only considers the primary source (sources[0]);
// simulation mode tries every source, healthy ones first.
func (h *Hub) GetTick(ctx context.Context, symbol string) (domain.Tick, error) {
	h.mu.Lock()
	candidates := h.eligibleSourcesLocked()
	h.mu.Unlock()

	var lastErr error
	for _, sh := range candidates {
		tick, err := sh.source.GetTick(ctx, symbol)
		if err == nil {
			h.recordSuccess(sh)
			return tick, nil
		}
		lastErr = err
		h.recordFailure(sh)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no eligible market data source for %s", symbol)
	}
	return domain.Tick{}, fmt.Errorf("all sources failed for %s: %w", symbol, lastErr)
}

func (h *Hub) eligibleSourcesLocked() []*sourceHealth {
	if !h.simulation {
		if len(h.sources) == 0 {
			return nil
		}
		return []*sourceHealth{h.sources[0]}
	}

	healthy := make([]*sourceHealth, 0, len(h.sources))
	unhealthy := make([]*sourceHealth, 0)
	for _, sh := range h.sources {
		if sh.healthy {
			healthy = append(healthy, sh)
		} else {
			unhealthy = append(unhealthy, sh)
		}
	}
	return append(healthy, unhealthy...)
}

func (h *Hub) recordSuccess(sh *sourceHealth) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sh.consecutiveErrors = 0
	if !sh.healthy {
		sh.healthy = true
		h.log.Info().Str("source", sh.source.Name()).Msg("source healthy again after a successful call")
	}
}

func (h *Hub) recordFailure(sh *sourceHealth) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sh.consecutiveErrors++
	if sh.consecutiveErrors >= unhealthyThreshold && sh.healthy {
		sh.healthy = false
		h.log.Warn().Str("source", sh.source.Name()).Int("consecutive_errors", sh.consecutiveErrors).Msg("source marked unhealthy")
	}
}

// Subscribe validates symbols against every configured source.
func (h *Hub) Subscribe(ctx context.Context, symbols []string) error {
	h.mu.Lock()
	sources := make([]*sourceHealth, len(h.sources))
	copy(sources, h.sources)
	h.mu.Unlock()

	var firstErr error
	for _, sh := range sources {
		if err := sh.source.Subscribe(ctx, symbols); err != nil {
			h.log.Warn().Err(err).Str("source", sh.source.Name()).Msg("subscribe validation failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Name identifies the hub itself as a composite source, so it can be
// passed anywhere a domain.DataSource is expected.
func (h *Hub) Name() string { return "marketdata_hub" }

var _ domain.DataSource = (*Hub)(nil)

// HealthSnapshot reports each source's name and health, for the
// /api/system/health SPEC_FULL.md addition.
func (h *Hub) HealthSnapshot() map[string]bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]bool, len(h.sources))
	for _, sh := range h.sources {
		out[sh.source.Name()] = sh.healthy
	}
	return out
}
