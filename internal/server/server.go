// Package server provides the HTTP server and routing for Stonecrest.
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

	"github.com/bensonidabosa/stonecrestcapital/internal/config"
	"github.com/bensonidabosa/stonecrestcapital/internal/di"
	assethandlers "github.com/bensonidabosa/stonecrestcapital/internal/modules/assets/handlers"
	cashflowshandlers "github.com/bensonidabosa/stonecrestcapital/internal/modules/cash_flows/handlers"
	copytradinghandlers "github.com/bensonidabosa/stonecrestcapital/internal/modules/copytrading/handlers"
	dividendhandlers "github.com/bensonidabosa/stonecrestcapital/internal/modules/dividends/handlers"
	portfoliohandlers "github.com/bensonidabosa/stonecrestcapital/internal/modules/portfolio/handlers"
	rebalancinghandlers "github.com/bensonidabosa/stonecrestcapital/internal/modules/rebalancing/handlers"
	strategyhandlers "github.com/bensonidabosa/stonecrestcapital/internal/modules/strategies/handlers"
	tradinghandlers "github.com/bensonidabosa/stonecrestcapital/internal/modules/trading/handlers"
	"github.com/bensonidabosa/stonecrestcapital/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container
	Jobs      *di.JobInstances // Optional; enables manual job triggers
	Port      int
	DevMode   bool
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	port           int
	container      *di.Container
	systemHandlers *SystemHandlers
	eventsHandlers *EventsHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	var jobs map[string]scheduler.Job
	if cfg.Jobs != nil {
		jobs = cfg.Jobs.ByName()
	}

	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		port:      cfg.Port,
		container: cfg.Container,
		systemHandlers: NewSystemHandlers(
			cfg.Log,
			cfg.Config.DataDir,
			cfg.Container.LedgerDB,
			cfg.Container.BackupService,
			jobs,
		),
		eventsHandlers: NewEventsHandlers(
			cfg.Container.EventBus,
			cfg.Container.EventJournal,
			cfg.Log,
		),
	}

	s.setupMiddleware()
	s.setupRoutes(cfg.DevMode)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Event streams stay open; request routes carry their own timeout
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes(devMode bool) {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Long-lived event streams, outside the request timeout
		r.Get("/events/stream", s.eventsHandlers.HandleStream)
		r.Get("/events/ws", s.eventsHandlers.HandleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			if !devMode {
				r.Use(middleware.Compress(5))
			}

			r.Get("/events", s.eventsHandlers.HandleRecent)

			r.Route("/system", func(r chi.Router) {
				r.Get("/status", s.systemHandlers.HandleSystemStatus)
				r.Get("/database", s.systemHandlers.HandleDatabaseStats)
				r.Get("/backups", s.systemHandlers.HandleListBackups)
				r.Post("/jobs/{name}", s.systemHandlers.HandleTriggerJob)
			})

			s.setupModuleRoutes(r)
		})
	})
}

func (s *Server) setupModuleRoutes(r chi.Router) {
	c := s.container

	assethandlers.NewHandler(c.AssetRepo, s.log).RegisterRoutes(r)

	portfoliohandlers.NewHandler(
		c.PortfolioService,
		c.PortfolioRepo,
		c.HoldingRepo,
		c.SnapshotRepo,
		s.log,
	).RegisterRoutes(r)

	strategyhandlers.NewHandler(
		c.StrategyService,
		c.StrategyRepo,
		c.AllocationRepo,
		c.StrategyEngine,
		c.Leaderboard,
		s.log,
	).RegisterRoutes(r)

	copytradinghandlers.NewHandler(
		c.CopyPropagator,
		c.RelationshipRepo,
		c.Leaderboard,
		s.log,
	).RegisterRoutes(r)

	tradinghandlers.NewTradingHandlers(c.Ledger, s.log).RegisterRoutes(r)
	cashflowshandlers.NewHandler(c.CashFlowService, s.log).RegisterRoutes(r)
	dividendhandlers.NewHandler(c.DividendService, s.log).RegisterRoutes(r)
	rebalancinghandlers.NewHandler(c.RebalancingService, s.log).RegisterRoutes(r)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
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
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
