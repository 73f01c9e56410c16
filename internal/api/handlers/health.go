package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/api/responses"
	"github.com/inferloop/tsforecast/pkg/constants"
	"github.com/inferloop/tsforecast/pkg/interfaces"
)

// StrategyLister reports the forecasting strategies a service accepts
type StrategyLister interface {
	Strategies() []string
}

// pinger is implemented by caches backed by a remote server
type pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	startTime  time.Time
	version    string
	strategies StrategyLister
	cache      interfaces.Cache
	logger     *logrus.Logger
}

type HealthStatus struct {
	Status     string                 `json:"status"`
	Service    string                 `json:"service"`
	Version    string                 `json:"version"`
	Timestamp  time.Time              `json:"timestamp"`
	Uptime     string                 `json:"uptime"`
	Strategies []string               `json:"strategies"`
	Checks     []HealthCheck          `json:"checks"`
	Cache      *interfaces.CacheStats `json:"cache,omitempty"`
}

type HealthCheck struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// NewHealthHandler creates a health handler. cache may be nil when caching is disabled.
func NewHealthHandler(version string, strategies StrategyLister, cache interfaces.Cache, logger *logrus.Logger) *HealthHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &HealthHandler{
		startTime:  time.Now(),
		version:    version,
		strategies: strategies,
		cache:      cache,
		logger:     logger,
	}
}

// GetRoot describes the running service
func (h *HealthHandler) GetRoot(w http.ResponseWriter, r *http.Request) {
	responses.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"service": constants.AppDescription,
		"version": h.version,
		"status":  "running",
	})
}

// GetHealth reports overall status and the accepted strategies. A failing
// cache degrades the service but does not make it unhealthy, since every
// request can still be served without it.
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := &HealthStatus{
		Status:    "healthy",
		Service:   constants.AppName,
		Version:   h.version,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    h.performChecks(r.Context()),
	}

	if h.strategies != nil {
		status.Strategies = h.strategies.Strategies()
	}

	for _, check := range status.Checks {
		if check.Status != "healthy" {
			status.Status = "degraded"
		}
	}

	if provider, ok := h.cache.(interfaces.StatsProvider); ok {
		stats, err := provider.Stats(r.Context())
		if err != nil {
			h.logger.WithError(err).Debug("Cache stats unavailable")
		} else {
			status.Cache = stats
		}
	}

	responses.WriteJSON(w, http.StatusOK, status)
}

// GetLiveness answers as long as the process serves HTTP
func (h *HealthHandler) GetLiveness(w http.ResponseWriter, r *http.Request) {
	responses.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "alive",
		"timestamp":  time.Now().UTC(),
		"uptime":     time.Since(h.startTime).Round(time.Second).String(),
		"goroutines": runtime.NumGoroutine(),
	})
}

// GetReadiness fails when a dependency check fails
func (h *HealthHandler) GetReadiness(w http.ResponseWriter, r *http.Request) {
	checks := h.performChecks(r.Context())

	code := http.StatusOK
	status := "ready"
	for _, check := range checks {
		if check.Status != "healthy" {
			code = http.StatusServiceUnavailable
			status = "not_ready"
		}
	}

	responses.WriteJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

func (h *HealthHandler) performChecks(ctx context.Context) []HealthCheck {
	checks := []HealthCheck{}

	p, ok := h.cache.(pinger)
	if !ok {
		return checks
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	check := HealthCheck{Name: "cache", Status: "healthy"}
	if err := p.Ping(ctx); err != nil {
		check.Status = "unhealthy"
		check.Error = err.Error()
	}
	check.Duration = time.Since(start)

	return append(checks, check)
}
