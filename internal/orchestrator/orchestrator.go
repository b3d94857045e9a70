// Package orchestrator implements MonitorOrchestrator (spec §4.5): the
// top-level scheduler gating every trading action on the trade-hour
// calendar and the user's kill switches, and driving the data-refresh,
// risk, and maintenance loops. Grounded on the teacher's top-level
// service-runner pattern (goroutine-per-loop, context-cancelled
// shutdown) generalized to this spec's three specific loops.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/solovex/gridtrader/internal/broker"
	"github.com/solovex/gridtrader/internal/config"
	"github.com/solovex/gridtrader/internal/database"
	"github.com/solovex/gridtrader/internal/domain"
	"github.com/solovex/gridtrader/internal/grid"
	"github.com/solovex/gridtrader/internal/marketdata"
	"github.com/solovex/gridtrader/internal/positions"
	"github.com/solovex/gridtrader/internal/risk"
)

const (
	activeRefreshInterval = 1 * time.Second
	idleRefreshInterval   = 5 * time.Second
	riskLoopInterval      = 2 * time.Second
)

// Orchestrator owns the is-monitoring and auto-trading-enabled flags
// and drives every periodic loop the spec assigns to MonitorOrchestrator.
type Orchestrator struct {
	registry   *positions.Registry
	hub        *marketdata.Hub
	gridMgr    *grid.Manager
	riskEngine *risk.Engine
	dispatcher *broker.Dispatcher
	cfg        *config.Store
	db         *database.DB
	log        zerolog.Logger

	monitoring   atomic.Bool
	autoTrading  atomic.Bool
	symbolsMu    sync.RWMutex
	watchSymbols []string

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

// New builds an Orchestrator in the stopped state; call Start to begin
// its loops. monitoring and autoTrading both start false. The monitor
// routes flip monitoring; no HTTP route calls SetAutoTrading, and the
// globalAllowBuySell config key is not read by the orchestrator.
func New(registry *positions.Registry, hub *marketdata.Hub, gridMgr *grid.Manager, riskEngine *risk.Engine, dispatcher *broker.Dispatcher, cfg *config.Store, db *database.DB, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		registry:   registry,
		hub:        hub,
		gridMgr:    gridMgr,
		riskEngine: riskEngine,
		dispatcher: dispatcher,
		cfg:        cfg,
		db:         db,
		log:        log.With().Str("component", "orchestrator").Logger(),
		stopChan:   make(chan struct{}),
	}
}

// SetMonitoring toggles the UI-driven refresh cadence flag.
func (o *Orchestrator) SetMonitoring(on bool) { o.monitoring.Store(on) }

// IsMonitoring reports the current refresh-cadence flag.
func (o *Orchestrator) IsMonitoring() bool { return o.monitoring.Load() }

// SetAutoTrading toggles the global trading kill switch.
func (o *Orchestrator) SetAutoTrading(on bool) { o.autoTrading.Store(on) }

// IsAutoTrading reports the current kill-switch state.
func (o *Orchestrator) IsAutoTrading() bool { return o.autoTrading.Load() }

// SetWatchSymbols replaces the set of symbols the data-refresh loop polls.
func (o *Orchestrator) SetWatchSymbols(symbols []string) {
	o.symbolsMu.Lock()
	defer o.symbolsMu.Unlock()
	o.watchSymbols = append([]string(nil), symbols...)
}

func (o *Orchestrator) symbols() []string {
	o.symbolsMu.RLock()
	defer o.symbolsMu.RUnlock()
	return append([]string(nil), o.watchSymbols...)
}

// Start launches the data-refresh, risk, and maintenance loops as
// background goroutines. Call Stop to halt them.
func (o *Orchestrator) Start(ctx context.Context) {
	o.wg.Add(3)
	go o.dataRefreshLoop(ctx)
	go o.riskLoop(ctx)
	go o.maintenanceLoop(ctx)
}

// Stop halts every loop and waits for them to exit.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopChan) })
	o.wg.Wait()
}

// dataRefreshLoop runs PositionRegistry.RefreshPrices every tick, then
// feeds the latest tick to every active GridSession. The loop does
// nothing while monitoring is off. While it is on, RefreshPrices runs
// even off trade-hours, so the UI keeps showing quotes; GridSession
// ticks are fed only during trade hours and are not gated on the
// auto-trading flag.
func (o *Orchestrator) dataRefreshLoop(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(idleRefreshInterval)
	defer ticker.Stop()
	currentInterval := idleRefreshInterval

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopChan:
			return
		case <-ticker.C:
			if !o.monitoring.Load() {
				continue
			}

			wantInterval := idleRefreshInterval
			if IsTradeTime(time.Now()) {
				wantInterval = activeRefreshInterval
			}
			if wantInterval != currentInterval {
				ticker.Reset(wantInterval)
				currentInterval = wantInterval
			}

			o.registry.RefreshPrices(ctx, o.hub)

			if !IsTradeTime(time.Now()) {
				continue
			}
			o.feedGridSessions(ctx)
		}
	}
}

func (o *Orchestrator) feedGridSessions(ctx context.Context) {
	for _, symbol := range o.gridMgr.Active() {
		tick, err := o.hub.GetTick(ctx, symbol)
		if err != nil {
			o.log.Debug().Err(err).Str("symbol", symbol).Msg("no tick available for grid session")
			continue
		}
		o.gridMgr.OnTick(ctx, tick)
	}
}

// riskLoop evaluates RiskEngine against every held position and
// forwards any resulting intents to the order dispatcher. Skipped
// entirely off trade-hours, with auto-trading disabled, or with
// monitoring off (spec §4.5).
func (o *Orchestrator) riskLoop(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(riskLoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopChan:
			return
		case <-ticker.C:
			if !o.monitoring.Load() || !o.autoTrading.Load() || !IsTradeTime(time.Now()) {
				continue
			}
			o.runRiskPass(ctx)
		}
	}
}

func (o *Orchestrator) runRiskPass(ctx context.Context) {
	all := o.registry.All()
	now := time.Now()

	// EvaluatePortfolio alone: it already calls Evaluate per-position
	// internally while enforcing the portfolio-wide total_max_position
	// cap. A separate Evaluate loop here would reuse the same `now` and
	// starve EvaluatePortfolio's own Evaluate calls via Engine's 60s
	// same-symbol-same-reason cooldown, silently bypassing the cap.
	intents := o.riskEngine.EvaluatePortfolio(all, now)

	for _, intent := range intents {
		orderID, err := o.dispatcher.PlaceOrder(ctx, intent.Symbol, intent.Side, intent.Quantity, intent.Price, domain.PriceTypeLimit)
		if err != nil {
			o.log.Error().Err(err).Str("symbol", intent.Symbol).Str("reason", string(intent.Reason)).Msg("risk intent dispatch failed")
			continue
		}
		o.log.Info().Str("symbol", intent.Symbol).Str("reason", string(intent.Reason)).Str("order_id", orderID).Msg("risk intent dispatched")
	}
}
