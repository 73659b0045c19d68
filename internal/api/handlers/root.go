package handlers

import (
	"net/http"
)

type RootHandler struct{}

func NewRootHandler() *RootHandler {
	return &RootHandler{}
}

func (h *RootHandler) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "routeplanner",
		"description": "NYC subway route planning and live arrivals",
		"version":     "1.0.0",
		"endpoints": map[string]string{
			"GET /":                 "API information",
			"GET /health":           "Health check",
			"GET /stations":         "Station names usable for planning",
			"GET|POST /plan-route":  "Route between ?source= and ?destination=, mode=distance|transfers",
			"GET /nearest":          "Nearest station to ?lat=&lon=",
			"GET /by-location":      "Arrivals at the stations closest to ?lat=&lon=",
			"GET /by-route/{route}": "Arrivals at every station on a route",
			"GET /by-id/{ids}":      "Arrivals for comma-separated stop IDs",
			"GET /routes":           "All known routes",
		},
	})
}

func (h *RootHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error":   "Route not found",
		"message": "Check the root endpoint (/) for available routes",
	})
}
