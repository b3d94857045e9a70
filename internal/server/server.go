// Package server implements the HTTP/SSE surface from spec §6: every
// endpoint is a thin adapter over PositionRegistry, GridManager, RiskEngine
// (via the order dispatcher), and MonitorOrchestrator, grounded on the
// teacher's go-chi router, middleware stack, and JSON envelope idiom.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/solovex/gridtrader/internal/broker"
	"github.com/solovex/gridtrader/internal/config"
	"github.com/solovex/gridtrader/internal/database"
	"github.com/solovex/gridtrader/internal/domain"
	"github.com/solovex/gridtrader/internal/events"
	"github.com/solovex/gridtrader/internal/grid"
	"github.com/solovex/gridtrader/internal/indicators"
	"github.com/solovex/gridtrader/internal/marketdata"
	"github.com/solovex/gridtrader/internal/orchestrator"
	"github.com/solovex/gridtrader/internal/positions"
)

// Deps collects every dependency a handler group needs. Built once in
// cmd/server/main.go and handed to New.
type Deps struct {
	Log zerolog.Logger

	DB            *database.DB
	CfgStore      *config.Store
	Registry      *positions.Registry
	GridManager   *grid.Manager
	GridStore     *grid.Store
	TemplateStore *grid.TemplateStore
	History       *indicators.HistoryReader
	Broker        domain.BrokerClient
	Dispatcher    *broker.Dispatcher
	Hub           *marketdata.Hub
	Orchestrator  *orchestrator.Orchestrator
	Bus           *events.Bus

	DataDir string
	Port    int
	DevMode bool
}

// Server is the HTTP server over one gridtrader process.
type Server struct {
	router *chi.Mux
	http   *http.Server
	log    zerolog.Logger
	deps   Deps
}

// New builds a Server with routes wired but not yet listening.
func New(deps Deps) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    deps.Log.With().Str("component", "server").Logger(),
		deps:   deps,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", deps.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // the SSE handler streams indefinitely
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	// The SSE stream is exempt: Timeout cancels the request context, which
	// would end the stream after 10 seconds.
	timeout := middleware.Timeout(10 * time.Second)
	s.router.Use(func(next http.Handler) http.Handler {
		timed := timeout(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/sse" {
				next.ServeHTTP(w, r)
				return
			}
			timed.ServeHTTP(w, r)
		})
	})
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !s.deps.DevMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/version", s.handleVersion)
		r.Get("/config", s.handleGetConfig)
		r.Post("/config/save", s.handleSaveConfig)
		r.Get("/status", s.handleStatus)
		r.Get("/positions", s.handlePositions)
		r.Get("/trade-records", s.handleTradeRecords)
		r.Get("/logs", s.handleLogsGet)
		r.Post("/logs/clear", s.handleLogsClear)

		r.Route("/monitor", func(r chi.Router) {
			r.Post("/start", s.handleMonitorStart)
			r.Post("/stop", s.handleMonitorStop)
		})

		r.Route("/actions", func(r chi.Router) {
			r.Post("/execute_buy", s.handleExecuteBuy)
		})

		r.Route("/holdings", func(r chi.Router) {
			r.Post("/init", s.handleHoldingsInit)
		})

		r.Route("/grid", func(r chi.Router) {
			r.Get("/config", s.handleGridDefaultConfig)
			r.Post("/start", s.handleGridStart)
			r.Post("/stop/{session_id}", s.handleGridStop)
			r.Get("/sessions", s.handleGridSessions)
			r.Get("/session/{symbol}", s.handleGridSession)
			r.Get("/risk-templates", s.handleRiskTemplates)
			r.Get("/indicators/{symbol}", s.handleGridIndicators)

			r.Route("/templates", func(r chi.Router) {
				r.Get("/", s.handleListTemplates)
				r.Post("/", s.handleCreateTemplate)
				r.Get("/{name}", s.handleGetTemplate)
				r.Put("/{name}", s.handleUpdateTemplate)
				r.Delete("/{name}", s.handleDeleteTemplate)
			})
		})

		r.Route("/system", func(r chi.Router) {
			r.Get("/health", s.handleSystemHealth)
		})

		r.Get("/sse", s.handleSSE)
	})
}

// Start begins serving HTTP requests; blocks until Shutdown or an error.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.deps.Port).Msg("starting HTTP server")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.http.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "healthy", "service": "gridtrader"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]string{"version": "1.0.0"})
}
