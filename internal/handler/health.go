package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger is a dependency the server needs to be ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles the banner and health check endpoints.
type HealthHandler struct {
	banner string
	checks map[string]Pinger
}

// NewHealthHandler creates a health handler. checks maps a dependency name
// to its ping; nil entries are skipped.
func NewHealthHandler(banner string, checks map[string]Pinger) *HealthHandler {
	active := make(map[string]Pinger, len(checks))
	for name, c := range checks {
		if c != nil {
			active[name] = c
		}
	}
	return &HealthHandler{banner: banner, checks: active}
}

// Home handles GET /
func (h *HealthHandler) Home(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, h.banner)
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": name + ": " + err.Error(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
