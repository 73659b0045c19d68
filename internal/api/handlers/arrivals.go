package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/randytsao24/routeplanner/internal/transit"
)

const (
	defaultNearbyStations = 5
	maxNearbyStations     = 20
)

type ArrivalsHandler struct {
	feed ArrivalsProvider
}

func NewArrivalsHandler(feed ArrivalsProvider) *ArrivalsHandler {
	return &ArrivalsHandler{feed: feed}
}

// ByLocation returns arrivals at the stations closest to lat/lon
func (h *ArrivalsHandler) ByLocation(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := parseCoords(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	limit := parseIntQueryParam(r, "limit", defaultNearbyStations, 1, maxNearbyStations)
	data, err := h.feed.GetByPoint(r.Context(), lat, lon, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch arrivals", err)
		return
	}

	writeJSON(w, http.StatusOK, envelope(data))
}

// ByRoute returns arrivals at every station a route serves. An all
// lowercase route is redirected to its uppercase form; mixed case is
// looked up as given.
func (h *ArrivalsHandler) ByRoute(w http.ResponseWriter, r *http.Request) {
	route := r.PathValue("route")
	if isLower(route) {
		http.Redirect(w, r, "/by-route/"+strings.ToUpper(route), http.StatusMovedPermanently)
		return
	}

	data, err := h.feed.GetByRoute(r.Context(), route)
	switch {
	case errors.Is(err, transit.ErrUnknownRoute):
		writeError(w, http.StatusNotFound, "Route not found", err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to fetch arrivals", err)
		return
	}

	body := envelope(data)
	body["route"] = route
	writeJSON(w, http.StatusOK, body)
}

// ByID returns arrivals for comma-separated feed stop IDs
func (h *ArrivalsHandler) ByID(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, id := range strings.Split(r.PathValue("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "Station ID is required", nil)
		return
	}

	data, err := h.feed.GetByID(r.Context(), ids)
	switch {
	case errors.Is(err, transit.ErrUnknownStation):
		writeError(w, http.StatusNotFound, "Station not found", err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to fetch arrivals", err)
		return
	}

	writeJSON(w, http.StatusOK, envelope(data))
}

// Routes returns the sorted route inventory
func (h *ArrivalsHandler) Routes(w http.ResponseWriter, r *http.Request) {
	routes, err := h.feed.GetRoutes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list routes", err)
		return
	}

	var updated any
	if t := h.feed.LastUpdate(); !t.IsZero() {
		updated = t
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"routes":  routes,
		"count":   len(routes),
		"updated": updated,
	})
}

// isLower reports whether s has a cased letter and none are uppercase
func isLower(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			return false
		}
		if unicode.IsLower(r) {
			cased = true
		}
	}
	return cased
}

// envelope wraps records with the oldest update time among them, so
// clients see how stale the least fresh record is
func envelope(data []transit.StationArrivals) map[string]any {
	var oldest time.Time
	for _, rec := range data {
		if rec.LastUpdate.IsZero() {
			continue
		}
		if oldest.IsZero() || rec.LastUpdate.Before(oldest) {
			oldest = rec.LastUpdate
		}
	}

	var updated any
	if !oldest.IsZero() {
		updated = oldest
	}
	if data == nil {
		data = []transit.StationArrivals{}
	}
	return map[string]any{
		"success": true,
		"data":    data,
		"count":   len(data),
		"updated": updated,
	}
}
