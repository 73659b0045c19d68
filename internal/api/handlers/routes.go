package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/randytsao24/routeplanner/internal/location"
	"github.com/randytsao24/routeplanner/internal/models"
	"github.com/randytsao24/routeplanner/internal/planner"
)

type PlannerHandler struct {
	planner RoutePlanner
}

func NewPlannerHandler(p RoutePlanner) *PlannerHandler {
	return &PlannerHandler{planner: p}
}

// ListStations returns the station names accepted by PlanRoute
func (h *PlannerHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	names := h.planner.Names()

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"stations": names,
		"count":    len(names),
	})
}

// PlanRoute finds a route between two station names. Parameters come from
// the query string or a posted form.
func (h *PlannerHandler) PlanRoute(w http.ResponseWriter, r *http.Request) {
	source := strings.TrimSpace(r.FormValue("source"))
	destination := strings.TrimSpace(r.FormValue("destination"))
	mode := strings.ToLower(strings.TrimSpace(r.FormValue("mode")))

	if source == "" || destination == "" {
		writeError(w, http.StatusBadRequest, "source and destination are required", nil)
		return
	}

	plan, err := h.planner.Plan(source, destination, mode)
	switch {
	case errors.Is(err, planner.ErrStationNotFound):
		writeError(w, http.StatusNotFound, "Station not found", err)
		return
	case errors.Is(err, planner.ErrUnknownMode):
		writeError(w, http.StatusBadRequest, "Unknown mode", err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to plan route", err)
		return
	}

	response := map[string]any{
		"success":     true,
		"source":      source,
		"destination": destination,
		"mode":        plan.Mode,
		"found":       plan.Result.Found,
		"path":        plan.Result.Path,
		"hops":        plan.Result.Hops,
		"stations":    pathStations(plan.Stations),
	}

	if !plan.Result.Found {
		response["distance_km"] = nil
		response["message"] = "No path found"
	} else if plan.Mode == "distance" {
		response["distance_km"] = location.Round2(plan.Result.Distance)
		response["routes"] = plan.Result.Routes
	}

	writeJSON(w, http.StatusOK, response)
}

// Nearest returns the station closest to a coordinate
func (h *PlannerHandler) Nearest(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := parseCoords(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	nearest, ok := h.planner.Nearest(lat, lon)
	if !ok {
		writeError(w, http.StatusNotFound, "No stations loaded", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"lat":         lat,
		"lon":         lon,
		"station":     stationView(nearest.Station),
		"distance_km": location.Round2(nearest.DistanceKm),
	})
}

type stationJSON struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Location [2]float64 `json:"location"`
	Routes   []string   `json:"routes"`
}

func stationView(s models.Station) stationJSON {
	routes := s.Routes
	if routes == nil {
		routes = []string{}
	}
	return stationJSON{
		ID:       s.ID,
		Name:     s.Name,
		Location: [2]float64{s.Location.Lat, s.Location.Lon},
		Routes:   routes,
	}
}

func pathStations(stations []models.Station) []stationJSON {
	out := make([]stationJSON, len(stations))
	for i, s := range stations {
		out[i] = stationView(s)
	}
	return out
}
