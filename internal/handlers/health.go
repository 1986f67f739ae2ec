package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/quizgate/pkg/http"
)

// HealthChecker is implemented by the active code store
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler reports whether the code store is reachable
type HealthHandler struct {
	store   HealthChecker
	backend string
	logger  *slog.Logger
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(store HealthChecker, backend string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{store: store, backend: backend, logger: logger}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.HealthCheck(ctx); err != nil {
		h.logger.Warn("health check failed",
			slog.String("store", h.backend),
			slog.String("error", err.Error()))
		pkghttp.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Store: h.backend})
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok", Store: h.backend})
}
