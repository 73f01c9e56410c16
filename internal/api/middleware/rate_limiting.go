package middleware

import (
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/inferloop/tsforecast/internal/api/responses"
	"github.com/inferloop/tsforecast/pkg/errors"
)

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool     `json:"enabled"`
	RequestsPerSecond float64  `json:"requests_per_second"`
	Burst             int      `json:"burst"`
	MaxClients        int      `json:"max_clients"`
	ExemptPaths       []string `json:"exempt_paths"`
	TrustedProxies    []string `json:"trusted_proxies"`
}

// RateLimitMiddleware applies a token bucket per client IP. The least
// recently seen clients are forgotten once MaxClients is reached.
type RateLimitMiddleware struct {
	config   *RateLimitConfig
	logger   *logrus.Logger
	limiters *lru.Cache[string, *rate.Limiter]
	mu       sync.Mutex
}

// NewRateLimitMiddleware creates a new rate limiting middleware
func NewRateLimitMiddleware(config *RateLimitConfig, logger *logrus.Logger) (*RateLimitMiddleware, error) {
	if logger == nil {
		logger = logrus.New()
	}

	if config == nil {
		config = &RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 10,
			Burst:             20,
			ExemptPaths:       []string{"/health", "/metrics"},
		}
	}

	if config.Burst < 1 {
		config.Burst = 1
	}
	if config.MaxClients <= 0 {
		config.MaxClients = 10000
	}

	limiters, err := lru.New[string, *rate.Limiter](config.MaxClients)
	if err != nil {
		return nil, err
	}

	return &RateLimitMiddleware{
		config:   config,
		logger:   logger,
		limiters: limiters,
	}, nil
}

// Middleware returns the HTTP middleware function
func (rlm *RateLimitMiddleware) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rlm.config.Enabled || isExemptPath(r.URL.Path, rlm.config.ExemptPaths) {
				next.ServeHTTP(w, r)
				return
			}

			key := clientIP(r, rlm.config.TrustedProxies)
			if !rlm.limiter(key).Allow() {
				rlm.logger.WithFields(logrus.Fields{
					"client": key,
					"path":   r.URL.Path,
				}).Warn("Rate limit exceeded")
				responses.WriteError(w, r, errors.NewRateLimitError("rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// limiter returns the bucket for key, creating it on first use
func (rlm *RateLimitMiddleware) limiter(key string) *rate.Limiter {
	rlm.mu.Lock()
	defer rlm.mu.Unlock()

	if l, ok := rlm.limiters.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(rlm.config.RequestsPerSecond), rlm.config.Burst)
	rlm.limiters.Add(key, l)
	return l
}
