package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mselser95/polymarket-updown/pkg/healthprobe"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server provides HTTP endpoints for metrics, health checks and operations.
type Server struct {
	server        *http.Server
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
}

// Config holds server configuration. Nil sources disable their routes.
type Config struct {
	Port          string
	Logger        *zap.Logger
	HealthChecker *healthprobe.HealthChecker
	Books         BookReader
	Trades        TradeReader
	Breaker       BreakerControl
	Telemetry     http.Handler
}

// New creates a new HTTP server.
func New(cfg *Config) *Server {
	return &Server{
		server: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           NewRouter(cfg),
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger:        cfg.Logger,
		healthChecker: cfg.HealthChecker,
	}
}

// NewRouter builds the route table.
func NewRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Long-lived; kept outside the request timeout.
	if cfg.Telemetry != nil {
		r.Get("/ws/telemetry", cfg.Telemetry.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/metrics", promhttp.Handler().ServeHTTP)
		r.Get("/health", cfg.HealthChecker.Health())
		r.Get("/ready", cfg.HealthChecker.Ready())

		api := &apiHandler{
			books:   cfg.Books,
			trades:  cfg.Trades,
			breaker: cfg.Breaker,
			logger:  cfg.Logger,
		}

		if cfg.Books != nil {
			r.Get("/api/books", api.handleBooks)
		}
		if cfg.Trades != nil {
			r.Get("/api/trades", api.handleTrades)
			r.Get("/api/trades/{id}", api.handleTrade)
			r.Get("/api/stats", api.handleStats)
		}
		if cfg.Breaker != nil {
			r.Get("/api/breaker", api.handleBreaker)
			r.Post("/api/breaker/reset", api.handleBreakerReset)
		}
	})

	return r
}

// Start starts the HTTP server.
// This is a blocking call that returns when the server stops or encounters an error.
func (s *Server) Start() error {
	s.logger.Info("http-server-starting", zap.String("addr", s.server.Addr))

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http-server-shutting-down")

	err := s.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("http-server-shutdown-complete")
	return nil
}
