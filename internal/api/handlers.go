package api

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/api/handlers"
	"github.com/inferloop/tsforecast/pkg/interfaces"
)

// Service is the forecasting pipeline the API serves
type Service interface {
	handlers.Forecaster
	handlers.StrategyLister
}

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	Forecast *handlers.ForecastHandler
	Health   *handlers.HealthHandler
	Cache    *handlers.CacheHandler
	Metrics  http.Handler
}

// HandlerConfig contains the collaborators handlers are built from. Cache
// and Metrics may be nil.
type HandlerConfig struct {
	Service Service
	Cache   interfaces.Cache
	Metrics http.Handler
	Version string
	Logger  *logrus.Logger
}

// NewHandlers creates a new handlers instance with all HTTP handlers
func NewHandlers(config *HandlerConfig) *Handlers {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	return &Handlers{
		Forecast: handlers.NewForecastHandler(config.Service, config.Logger),
		Health:   handlers.NewHealthHandler(config.Version, config.Service, config.Cache, config.Logger),
		Cache:    handlers.NewCacheHandler(config.Cache, config.Logger),
		Metrics:  config.Metrics,
	}
}
