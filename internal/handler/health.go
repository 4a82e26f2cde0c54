package handler

import (
	"context"
	"net/http"
)

// PingFunc checks one backing service.
type PingFunc func(ctx context.Context) error

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	db    PingFunc
	cache PingFunc
}

// NewHealthHandler creates a new HealthHandler. cache may be nil when Redis is not configured.
func NewHealthHandler(db, cache PingFunc) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

// Check handles GET /health.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]any{
		"status": "ok",
	}

	// Check DB
	if err := h.db(ctx); err != nil {
		status["database"] = "error"
		status["status"] = "degraded"
	} else {
		status["database"] = "ok"
	}

	// Check Redis
	if h.cache != nil {
		if err := h.cache(ctx); err != nil {
			status["cache"] = "error"
			status["status"] = "degraded"
		} else {
			status["cache"] = "ok"
		}
	}

	code := http.StatusOK
	if status["status"] == "degraded" {
		code = http.StatusServiceUnavailable
	}

	JSON(w, code, status)
}
