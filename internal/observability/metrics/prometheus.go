package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// PrometheusMetrics collects forecast pipeline and HTTP metrics on a private
// registry. Every recording method is a no-op on a nil receiver.
type PrometheusMetrics struct {
	logger   *logrus.Logger
	registry *prometheus.Registry
	config   *PrometheusConfig

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Forecast metrics
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	degradationsTotal *prometheus.CounterVec
	selectionsTotal   *prometheus.CounterVec

	// Cache metrics
	cacheLookupsTotal *prometheus.CounterVec
	cacheEvictedTotal prometheus.Counter
}

// PrometheusConfig configures Prometheus metrics
type PrometheusConfig struct {
	Namespace string            `json:"namespace"`
	Subsystem string            `json:"subsystem"`
	Labels    map[string]string `json:"labels"`
}

// NewPrometheusMetrics creates a new Prometheus metrics instance
func NewPrometheusMetrics(config *PrometheusConfig, logger *logrus.Logger) (*PrometheusMetrics, error) {
	if config == nil {
		config = getDefaultPrometheusConfig()
	}

	if logger == nil {
		logger = logrus.New()
	}

	pm := &PrometheusMetrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		config:   config,
	}

	pm.initializeMetrics()

	if err := pm.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return pm, nil
}

// Handler exposes the registry in the Prometheus text format
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the underlying registry
func (pm *PrometheusMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

// RecordHTTPRequest counts one served HTTP request
func (pm *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if pm == nil {
		return
	}
	pm.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	pm.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRequest counts one forecast and its latency
func (pm *PrometheusMetrics) RecordRequest(strategy, status string, duration time.Duration) {
	if pm == nil {
		return
	}
	pm.requestsTotal.WithLabelValues(strategy, status).Inc()
	pm.requestDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordDegradation counts a strategy falling back to the naive forecast
func (pm *PrometheusMetrics) RecordDegradation(strategy, reason string) {
	if pm == nil {
		return
	}
	pm.degradationsTotal.WithLabelValues(strategy, reason).Inc()
}

// RecordSelection counts the strategy chosen by auto-selection
func (pm *PrometheusMetrics) RecordSelection(strategy string) {
	if pm == nil {
		return
	}
	pm.selectionsTotal.WithLabelValues(strategy).Inc()
}

// ObserveCacheLookup counts a raw table cache hit or miss
func (pm *PrometheusMetrics) ObserveCacheLookup(hit bool) {
	if pm == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	pm.cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordCacheSweep counts entries removed by a sweep
func (pm *PrometheusMetrics) RecordCacheSweep(removed int) {
	if pm == nil || removed <= 0 {
		return
	}
	pm.cacheEvictedTotal.Add(float64(removed))
}

// initializeMetrics initializes all Prometheus metrics
func (pm *PrometheusMetrics) initializeMetrics() {
	namespace := pm.config.Namespace
	subsystem := pm.config.Subsystem
	labels := prometheus.Labels(pm.config.Labels)

	pm.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: labels,
		},
		[]string{"method", "path", "status"},
	)

	pm.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		},
		[]string{"method", "path"},
	)

	pm.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "requests_total",
			Help:        "Total number of forecast requests",
			ConstLabels: labels,
		},
		[]string{"strategy", "status"},
	)

	pm.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "duration_seconds",
			Help:        "Forecast request duration in seconds",
			Buckets:     []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			ConstLabels: labels,
		},
		[]string{"strategy"},
	)

	pm.degradationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "degradations_total",
			Help:        "Forecasts that fell back to the naive forecast",
			ConstLabels: labels,
		},
		[]string{"strategy", "reason"},
	)

	pm.selectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "selections_total",
			Help:        "Strategies chosen by auto-selection",
			ConstLabels: labels,
		},
		[]string{"strategy"},
	)

	pm.cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "cache_lookups_total",
			Help:        "Raw dataset cache lookups by result",
			ConstLabels: labels,
		},
		[]string{"result"},
	)

	pm.cacheEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "cache_swept_total",
			Help:        "Expired cache entries removed by the sweeper",
			ConstLabels: labels,
		},
	)
}

// registerMetrics registers all metrics with the registry
func (pm *PrometheusMetrics) registerMetrics() error {
	collectors := []prometheus.Collector{
		pm.httpRequestsTotal,
		pm.httpRequestDuration,
		pm.requestsTotal,
		pm.requestDuration,
		pm.degradationsTotal,
		pm.selectionsTotal,
		pm.cacheLookupsTotal,
		pm.cacheEvictedTotal,
	}

	for _, collector := range collectors {
		if err := pm.registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

func getDefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{
		Namespace: "forecast",
	}
}
