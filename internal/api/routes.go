package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/pkg/constants"
)

type Router struct {
	handlers    *Handlers
	middleware  *MiddlewareConfig
	metricsPath string
	logger      *logrus.Logger
}

func NewRouter(handlers *Handlers, middleware *MiddlewareConfig, logger *logrus.Logger) *Router {
	if logger == nil {
		logger = logrus.New()
	}
	return &Router{
		handlers:    handlers,
		middleware:  middleware,
		metricsPath: constants.DefaultMetricsPath,
		logger:      logger,
	}
}

// SetMetricsPath changes where the Prometheus handler is mounted
func (router *Router) SetMetricsPath(path string) {
	if path != "" {
		router.metricsPath = path
	}
}

func (router *Router) SetupRoutes() (*mux.Router, error) {
	r := mux.NewRouter()

	if err := ApplyMiddleware(r, router.middleware, router.logger); err != nil {
		return nil, err
	}

	if router.handlers.Metrics != nil {
		r.Handle(router.metricsPath, router.handlers.Metrics).Methods(http.MethodGet)
	}

	// Health endpoints
	r.HandleFunc("/", router.handlers.Health.GetRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", router.handlers.Health.GetHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", router.handlers.Health.GetLiveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", router.handlers.Health.GetReadiness).Methods(http.MethodGet)

	// Forecast endpoints
	r.HandleFunc("/forecast", router.handlers.Forecast.CreateForecast).Methods(http.MethodPost)
	r.HandleFunc("/cache", router.handlers.Cache.ClearCache).Methods(http.MethodDelete)

	// CORS preflight for all routes; the CORS middleware answers it
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r, nil
}
