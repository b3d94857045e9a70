// Package main is the entry point for the grid-trading supervisor: a
// single-process service that watches a symbol universe, runs automated
// grid-trading sessions against it, applies a stop-loss/take-profit risk
// overlay, and exposes the whole thing over HTTP/SSE for a dashboard.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/solovex/gridtrader/internal/broker"
	"github.com/solovex/gridtrader/internal/clients/tradernet/sdk"
	"github.com/solovex/gridtrader/internal/config"
	"github.com/solovex/gridtrader/internal/database"
	"github.com/solovex/gridtrader/internal/domain"
	"github.com/solovex/gridtrader/internal/events"
	"github.com/solovex/gridtrader/internal/grid"
	"github.com/solovex/gridtrader/internal/indicators"
	"github.com/solovex/gridtrader/internal/marketdata"
	"github.com/solovex/gridtrader/internal/orchestrator"
	"github.com/solovex/gridtrader/internal/positions"
	"github.com/solovex/gridtrader/internal/risk"
	"github.com/solovex/gridtrader/internal/server"
	"github.com/solovex/gridtrader/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{Level: "info", Pretty: true}).Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().Str("data_dir", cfg.DataDir).Int("port", cfg.Port).Bool("simulation", cfg.SimulationMode).Msg("starting gridtrader")

	db, err := database.Open(database.Config{
		Path:    filepath.Join(cfg.DataDir, "gridtrader.db"),
		Profile: database.ProfileStandard,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	migrateCancel()

	// Settings table overrides env vars at runtime (dashboard POST /api/config/save).
	settingsStore := config.NewSQLSettingsStore(db.Conn())
	cfgStore := config.NewStore(cfg, settingsStore)
	if all, err := settingsStore.All(); err != nil {
		log.Warn().Err(err).Msg("failed to load settings table, using environment defaults")
	} else if err := cfgStore.UpdateFromSettings(all); err != nil {
		log.Warn().Err(err).Msg("failed to apply persisted settings")
	}

	bus := events.NewBus(log)

	positionStore := positions.NewSQLStore(db.Conn())
	registry := positions.NewRegistry(positionStore, bus, log)
	loadCtx, loadCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := registry.LoadFromStore(loadCtx); err != nil {
		log.Warn().Err(err).Msg("failed to preload positions from store")
	}
	loadCancel()

	brokerClient, tradernetClient := buildBrokerClient(cfgStore.Snapshot(), registry, log)

	callback := broker.NewEventCallback(registry, positionStore, bus, log)
	dispatcher := broker.NewDispatcher(brokerClient, callback, 5, 10, log)
	dispatcher.Start(4)
	defer dispatcher.Stop()

	sources := buildDataSources(cfgStore.Snapshot(), tradernetClient, log)
	probeSymbol := os.Getenv("HEALTH_PROBE_SYMBOL")
	if probeSymbol == "" {
		probeSymbol = "600000.SH"
	}
	hub := marketdata.NewHub(sources, cfg.SimulationMode, log)
	hub.StartHealthSweep(context.Background(), probeSymbol)
	defer hub.Stop()

	var statusStream *marketdata.StatusStream
	if statusURL := os.Getenv("MARKET_STATUS_FEED_URL"); statusURL != "" && !cfg.SimulationMode {
		statusStream = marketdata.NewStatusStream(statusURL, bus, log)
		if err := statusStream.Start(); err != nil {
			log.Warn().Err(err).Msg("market status feed unavailable at startup, will keep retrying")
		}
		defer statusStream.Stop()
	}

	history := indicators.NewHistoryReader(db.Conn())

	gridStore := grid.NewStore(db.Conn())
	templateStore := grid.NewTemplateStore(db.Conn())
	gridManager := grid.NewManager(gridStore, registry, brokerClient, positionStore, history, bus, log)
	recoverCtx, recoverCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := gridManager.Recover(recoverCtx); err != nil {
		log.Error().Err(err).Msg("failed to recover active grid sessions")
	}
	recoverCancel()

	riskEngine := risk.New(cfgStore, log)

	orch := orchestrator.New(registry, hub, gridManager, riskEngine, dispatcher, cfgStore, db, log)

	srv := server.New(server.Deps{
		Log:           log,
		DB:            db,
		CfgStore:      cfgStore,
		Registry:      registry,
		GridManager:   gridManager,
		GridStore:     gridStore,
		TemplateStore: templateStore,
		History:       history,
		Broker:        brokerClient,
		Dispatcher:    dispatcher,
		Hub:           hub,
		Orchestrator:  orch,
		Bus:           bus,
		DataDir:       cfg.DataDir,
		Port:          cfg.Port,
		DevMode:       cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("server started")

	ctx, cancel := context.WithCancel(context.Background())
	orch.Start(ctx)
	log.Info().Msg("orchestrator started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")

	cancel()
	orch.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("shutdown complete")
}

// buildBrokerClient picks SimExecutor or TradernetExecutor per
// SimulationMode. Credentials live outside Config (spec §9 keeps secrets
// out of the settings table) and are read directly from the environment.
// It also returns a separate Tradernet SDK client built from the same
// credentials (nil in simulation mode) so the caller can build a matching
// live market-data source; the executor builds its own client.
func buildBrokerClient(cfg config.Config, registry *positions.Registry, log zerolog.Logger) (domain.BrokerClient, *sdk.Client) {
	if cfg.SimulationMode {
		lastPrice := func(symbol string) (decimal.Decimal, bool) {
			pos, ok := registry.Get(symbol)
			if !ok {
				return decimal.Zero, false
			}
			return pos.CurrentPrice, true
		}
		return broker.NewSimExecutor(decimal.NewFromInt(1_000_000), lastPrice, log), nil
	}

	apiKey := os.Getenv("TRADERNET_API_KEY")
	apiSecret := os.Getenv("TRADERNET_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		log.Warn().Msg("tradernet credentials not set, broker client will not be able to connect")
	}
	client := sdk.NewClient(apiKey, apiSecret, log)
	return broker.NewTradernetExecutor(apiKey, apiSecret, log), client
}

// buildDataSources returns the live Tradernet tick source first when
// running against the real broker (live mode reads only sources[0]),
// followed by the public-feed source, which is always present.
func buildDataSources(cfg config.Config, tradernetClient *sdk.Client, log zerolog.Logger) []domain.DataSource {
	feedURL := os.Getenv("PUBLIC_FEED_URL")
	if feedURL == "" {
		feedURL = fmt.Sprintf("http://%s:%d/quotes", cfg.BrokerHost, cfg.BrokerPort)
	}
	var sources []domain.DataSource
	if tradernetClient != nil {
		sources = append(sources, marketdata.NewTradernetSource(tradernetClient, log))
	}
	sources = append(sources, marketdata.NewPublicFeedSource(feedURL, log))
	return sources
}
