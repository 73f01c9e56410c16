package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/api/responses"
)

// HTTPRecorder receives one observation per served request
type HTTPRecorder interface {
	RecordHTTPRequest(method, path, status string, duration time.Duration)
}

// LoggingConfig contains logging middleware configuration
type LoggingConfig struct {
	Enabled              bool          `json:"enabled"`
	IncludeUserAgent     bool          `json:"include_user_agent"`
	ExcludePaths         []string      `json:"exclude_paths"`
	SlowRequestThreshold time.Duration `json:"slow_request_threshold"`
}

// LoggingMiddleware assigns request IDs, logs every request and reports it
// to an optional HTTPRecorder
type LoggingMiddleware struct {
	config   *LoggingConfig
	logger   *logrus.Logger
	recorder HTTPRecorder
}

// NewLoggingMiddleware creates a new logging middleware. recorder may be nil.
func NewLoggingMiddleware(config *LoggingConfig, recorder HTTPRecorder, logger *logrus.Logger) *LoggingMiddleware {
	if logger == nil {
		logger = logrus.New()
	}

	if config == nil {
		config = &LoggingConfig{
			Enabled:              true,
			IncludeUserAgent:     true,
			ExcludePaths:         []string{"/health", "/metrics"},
			SlowRequestThreshold: 5 * time.Second,
		}
	}

	return &LoggingMiddleware{
		config:   config,
		logger:   logger,
		recorder: recorder,
	}
}

// Middleware returns the HTTP middleware function
func (lm *LoggingMiddleware) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(responses.RequestIDHeader)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			w.Header().Set(responses.RequestIDHeader, requestID)

			start := time.Now()
			wrapper := newResponseWriter(w)

			next.ServeHTTP(wrapper, r)

			duration := time.Since(start)
			route := routeTemplate(r)

			if lm.recorder != nil {
				lm.recorder.RecordHTTPRequest(r.Method, route, strconv.Itoa(wrapper.statusCode), duration)
			}

			if !lm.config.Enabled || isExemptPath(r.URL.Path, lm.config.ExcludePaths) {
				return
			}

			fields := logrus.Fields{
				"request_id":  requestID,
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapper.statusCode,
				"size":        wrapper.size,
				"duration_ms": float64(duration.Microseconds()) / 1000,
				"remote_addr": r.RemoteAddr,
			}
			if lm.config.IncludeUserAgent {
				fields["user_agent"] = r.UserAgent()
			}

			entry := lm.logger.WithFields(fields)
			switch {
			case wrapper.statusCode >= 500:
				entry.Error("HTTP request failed")
			case wrapper.statusCode >= 400:
				entry.Warn("HTTP request rejected")
			case lm.config.SlowRequestThreshold > 0 && duration > lm.config.SlowRequestThreshold:
				entry.Warn("Slow HTTP request")
			default:
				entry.Info("HTTP request")
			}
		})
	}
}
