package api

import (
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/api/middleware"
	"github.com/inferloop/tsforecast/internal/config"
)

// MiddlewareConfig holds configuration for all middleware
type MiddlewareConfig struct {
	Logging   *middleware.LoggingConfig
	RateLimit *middleware.RateLimitConfig
	CORS      *middleware.CORSConfig
	Recorder  middleware.HTTPRecorder
}

// NewMiddlewareConfig derives middleware settings from the service configuration
func NewMiddlewareConfig(cfg *config.Config, recorder middleware.HTTPRecorder) *MiddlewareConfig {
	return &MiddlewareConfig{
		RateLimit: &middleware.RateLimitConfig{
			Enabled:           cfg.RateLimit.Enabled,
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			ExemptPaths:       []string{"/health", "/health/live", "/health/ready", cfg.Server.MetricsPath},
		},
		CORS:     &middleware.CORSConfig{AllowedOrigins: cfg.Server.AllowedOrigins},
		Recorder: recorder,
	}
}

// ApplyMiddleware applies all middleware to the router. Logging runs first
// so rejected requests are logged and counted too.
func ApplyMiddleware(r *mux.Router, config *MiddlewareConfig, logger *logrus.Logger) error {
	if config == nil {
		config = &MiddlewareConfig{}
	}

	rateLimiter, err := middleware.NewRateLimitMiddleware(config.RateLimit, logger)
	if err != nil {
		return err
	}

	r.Use(middleware.NewLoggingMiddleware(config.Logging, config.Recorder, logger).Middleware())
	r.Use(middleware.NewCORSMiddleware(config.CORS).Middleware())
	r.Use(rateLimiter.Middleware())

	return nil
}
