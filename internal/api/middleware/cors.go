package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSConfig contains CORS configuration
type CORSConfig struct {
	AllowedOrigins []string      `json:"allowed_origins"`
	AllowedMethods []string      `json:"allowed_methods"`
	AllowedHeaders []string      `json:"allowed_headers"`
	MaxAge         time.Duration `json:"max_age"`
}

// CORSMiddleware answers preflight requests and sets the allow-origin header
// for origins on the allow list. A "*" entry allows every origin.
type CORSMiddleware struct {
	config *CORSConfig
}

// NewCORSMiddleware creates a new CORS middleware
func NewCORSMiddleware(config *CORSConfig) *CORSMiddleware {
	if config == nil {
		config = &CORSConfig{AllowedOrigins: []string{"*"}}
	}
	if len(config.AllowedMethods) == 0 {
		config.AllowedMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	if len(config.AllowedHeaders) == 0 {
		config.AllowedHeaders = []string{"Accept", "Content-Type", "X-Request-ID"}
	}
	if config.MaxAge == 0 {
		config.MaxAge = 24 * time.Hour
	}
	return &CORSMiddleware{config: config}
}

// Middleware returns the HTTP middleware function
func (cm *CORSMiddleware) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			headers := w.Header()

			if cm.allowAll() {
				headers.Set("Access-Control-Allow-Origin", "*")
			} else if origin != "" && cm.isOriginAllowed(origin) {
				headers.Set("Access-Control-Allow-Origin", origin)
				headers.Add("Vary", "Origin")
			}
			headers.Set("Access-Control-Expose-Headers", "X-Request-ID")

			if r.Method == http.MethodOptions {
				headers.Set("Access-Control-Allow-Methods", strings.Join(cm.config.AllowedMethods, ", "))
				headers.Set("Access-Control-Allow-Headers", strings.Join(cm.config.AllowedHeaders, ", "))
				headers.Set("Access-Control-Max-Age", strconv.Itoa(int(cm.config.MaxAge.Seconds())))
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (cm *CORSMiddleware) allowAll() bool {
	for _, o := range cm.config.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func (cm *CORSMiddleware) isOriginAllowed(origin string) bool {
	for _, o := range cm.config.AllowedOrigins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
