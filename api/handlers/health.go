package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/roundtable-ai/roundtable/store"
)

// HealthHandler reports liveness and store reachability.
type HealthHandler struct {
	stores []store.Store
	logger *zap.Logger
}

// NewHealthHandler creates the handler over the stores to probe.
func NewHealthHandler(logger *zap.Logger, stores ...store.Store) *HealthHandler {
	return &HealthHandler{stores: stores, logger: logger.With(zap.String("handler", "health"))}
}

// Health handles GET /healthz.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	for _, s := range h.stores {
		if err := s.Ping(r.Context()); err != nil {
			h.logger.Warn("store ping failed", zap.Error(err))
			WriteJSON(w, http.StatusServiceUnavailable, Response{Success: false})
			return
		}
	}
	WriteSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}
