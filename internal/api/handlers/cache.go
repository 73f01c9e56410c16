package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/api/responses"
	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/interfaces"
)

type CacheHandler struct {
	cache  interfaces.Cache
	logger *logrus.Logger
}

// NewCacheHandler creates a cache handler. cache may be nil.
func NewCacheHandler(cache interfaces.Cache, logger *logrus.Logger) *CacheHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &CacheHandler{cache: cache, logger: logger}
}

// ClearCache drops every cached dataset
func (h *CacheHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		responses.WriteJSON(w, http.StatusOK, map[string]interface{}{"cleared": false, "reason": "cache disabled"})
		return
	}

	if err := h.cache.Clear(r.Context()); err != nil {
		h.logger.WithError(err).Error("Failed to clear cache")
		responses.WriteError(w, r, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeCacheFailed, "failed to clear cache"))
		return
	}

	h.logger.Info("Cache cleared")
	responses.WriteJSON(w, http.StatusOK, map[string]interface{}{"cleared": true})
}
