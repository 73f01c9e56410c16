package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/api"
	"github.com/inferloop/tsforecast/internal/config"
	"github.com/inferloop/tsforecast/internal/forecast"
	"github.com/inferloop/tsforecast/internal/observability/metrics"
	"github.com/inferloop/tsforecast/internal/storage/cache"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/interfaces"
)

// Server represents the HTTP server and the components it owns
type Server struct {
	httpServer   *http.Server
	router       *mux.Router
	cache        interfaces.Cache
	sweeper      *cache.Sweeper
	metrics      *metrics.PrometheusMetrics
	orchestrator *forecast.Orchestrator
	logger       *logrus.Logger
	config       *config.Config
}

// NewServer creates the forecasting server from a validated configuration
func NewServer(ctx context.Context, cfg *config.Config, version string, logger *logrus.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	if logger == nil {
		logger = logrus.New()
	}

	pm, err := metrics.NewPrometheusMetrics(nil, logger)
	if err != nil {
		return nil, err
	}

	c, err := NewCache(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	objects, err := NewObjectSource(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create object source: %w", err)
	}

	orchestrator, err := NewPipeline(cfg, c, objects, pm, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create forecast pipeline: %w", err)
	}

	handlers := api.NewHandlers(&api.HandlerConfig{
		Service: orchestrator,
		Cache:   c,
		Metrics: pm.Handler(),
		Version: version,
		Logger:  logger,
	})

	apiRouter := api.NewRouter(handlers, api.NewMiddlewareConfig(cfg, pm), logger)
	apiRouter.SetMetricsPath(cfg.Server.MetricsPath)
	router, err := apiRouter.SetupRoutes()
	if err != nil {
		return nil, fmt.Errorf("failed to set up routes: %w", err)
	}

	s := &Server{
		router:       router,
		cache:        c,
		metrics:      pm,
		orchestrator: orchestrator,
		logger:       logger,
		config:       cfg,
		httpServer: &http.Server{
			Addr:         cfg.GetAddress(),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}

	if c != nil {
		s.sweeper = cache.NewSweeper(c, cfg.Cache.SweepInterval, logger)
		s.sweeper.OnSweep(pm.RecordCacheSweep)
	}

	return s, nil
}

// Start starts the cache sweeper and serves HTTP until Stop is called
func (s *Server) Start(ctx context.Context) error {
	if s.sweeper != nil {
		s.sweeper.Start(ctx)
	}

	s.logger.WithFields(logrus.Fields{
		"address":    s.httpServer.Addr,
		"cache":      s.config.Cache.Backend,
		"strategies": s.orchestrator.Strategies(),
	}).Info("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server and releases the cache. The sweeper
// exits with the context passed to Start.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout())
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		s.logger.WithError(err).Error("Error shutting down HTTP server")
	}

	if s.cache != nil {
		if closeErr := s.cache.Close(); closeErr != nil {
			s.logger.WithError(closeErr).Warn("Error closing cache")
		}
	}

	s.logger.Info("HTTP server stopped")
	return err
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.config.Server.ShutdownTimeout > 0 {
		return s.config.Server.ShutdownTimeout
	}
	return constants.DefaultShutdownTimeout
}
