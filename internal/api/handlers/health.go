// Package handlers contains HTTP request handlers
package handlers

import (
	"net/http"
	"time"
)

type HealthHandler struct {
	startTime time.Time
	catalog   CatalogStats
}

func NewHealthHandler(catalog CatalogStats) *HealthHandler {
	return &HealthHandler{startTime: time.Now(), catalog: catalog}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "OK"
	if !h.catalog.IsLoaded() {
		status = "DEGRADED"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   "1.0.0",
		"uptime":    time.Since(h.startTime).String(),
		"stations":  h.catalog.Count(),
	})
}
