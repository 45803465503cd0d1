package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterHealth mounts the readiness endpoint, which verifies the
// database connection. Liveness is served by the router heartbeat.
func (h *Handler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", func(w http.ResponseWriter, req *http.Request) {
		if err := h.repo.Ping(req.Context()); err != nil {
			JSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  "database unreachable",
			})
			return
		}
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}
