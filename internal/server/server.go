// Package server provides the HTTP server and routing for the portfolio tracker.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/di"
	allocationhandlers "github.com/aristath/permanent/internal/modules/allocation/handlers"
	historyhandlers "github.com/aristath/permanent/internal/modules/history/handlers"
	ledgerhandlers "github.com/aristath/permanent/internal/modules/ledger/handlers"
	portfoliohandlers "github.com/aristath/permanent/internal/modules/portfolio/handlers"
	rebalancinghandlers "github.com/aristath/permanent/internal/modules/rebalancing/handlers"
	settingshandlers "github.com/aristath/permanent/internal/modules/settings/handlers"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	Container *di.Container // DI container with all services
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	port      int
	container *di.Container
	system    *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		port:      cfg.Port,
		container: cfg.Container,
		system:    NewSystemHandlers(cfg.Container, cfg.Log),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	c := s.container

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{}))

	s.router.Route("/api", func(r chi.Router) {
		// Any API read counts as client activity for the quote cache cadence
		r.Use(s.activityMiddleware)

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.system.HandleStatus)
			r.Get("/jobs", s.system.HandleJobs)
			r.Post("/jobs/{name}/run", s.system.HandleRunJob)
			r.Post("/refresh", s.system.HandleRefresh)
		})

		r.Route("/v2", func(r chi.Router) {
			portfoliohandlers.NewHandler(c.PortfolioService, c.Engine, s.log).RegisterRoutes(r)
			rebalancinghandlers.NewHandler(c.Engine, s.log).RegisterRoutes(r)
			allocationhandlers.NewHandler(c.Engine, s.log).RegisterRoutes(r)
			ledgerhandlers.NewHandler(c.LedgerService, c.Engine, s.log).RegisterRoutes(r)
			historyhandlers.NewHandler(c.HistoryService, c.Engine, s.log).RegisterRoutes(r)
			settingshandlers.NewHandler(c.SettingsService, c.Notifier, c.Mailer, s.log).RegisterRoutes(r)
		})
	})
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

// activityMiddleware marks the quote cache as in use
func (s *Server) activityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.container.QuoteCache != nil {
			s.container.QuoteCache.Touch()
		}
		next.ServeHTTP(w, r)
	})
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
