package graph

import (
	"github.com/randytsao24/routeplanner/internal/location"
	"github.com/randytsao24/routeplanner/internal/models"
)

// DefaultThresholdKm is the walking distance under which two stations are
// considered adjacent
const DefaultThresholdKm = 1.0

// DistanceThreshold adds an edge A→B for every route label of A when B lies
// within ThresholdKm of A. Weight is the unrounded distance in kilometers.
//
// Edges are directed: a station with no routes has no outgoing edges even
// if its neighbors point at it.
type DistanceThreshold struct {
	ThresholdKm float64
}

// NewDistanceThreshold returns the strategy, falling back to the default
// threshold for non-positive values
func NewDistanceThreshold(thresholdKm float64) DistanceThreshold {
	if thresholdKm <= 0 {
		thresholdKm = DefaultThresholdKm
	}
	return DistanceThreshold{ThresholdKm: thresholdKm}
}

func (DistanceThreshold) Name() string { return "distance" }

func (DistanceThreshold) Key(s models.Station) string { return s.ID }

func (DistanceThreshold) Weighted() bool { return true }

// Build compares every ordered pair of stations, so it is quadratic in the
// catalog size
func (d DistanceThreshold) Build(stations []models.Station) *Graph {
	g := New()
	for _, s := range stations {
		g.AddNode(s.ID)
	}

	for _, a := range stations {
		for _, b := range stations {
			if a.ID == b.ID {
				continue
			}
			dist := location.Distance(a.Location, b.Location, location.Kilometers)
			if dist > d.ThresholdKm {
				continue
			}
			for _, route := range a.Routes {
				g.AddEdge(a.ID, Edge{To: b.ID, Route: route, Weight: dist})
			}
		}
	}
	return g
}

// SharedRoute connects two display names when their route sets intersect.
// Stations sharing a name are merged and their routes unioned, so distinct
// platforms with one name become a single node.
type SharedRoute struct{}

func (SharedRoute) Name() string { return "transfers" }

func (SharedRoute) Key(s models.Station) string { return s.Name }

func (SharedRoute) Weighted() bool { return false }

func (SharedRoute) Build(stations []models.Station) *Graph {
	var names []string
	routesByName := make(map[string]map[string]bool)
	for _, s := range stations {
		set, ok := routesByName[s.Name]
		if !ok {
			set = make(map[string]bool)
			routesByName[s.Name] = set
			names = append(names, s.Name)
		}
		for _, r := range s.Routes {
			set[r] = true
		}
	}

	g := New()
	for _, name := range names {
		g.AddNode(name)
	}

	for _, a := range names {
		for _, b := range names {
			if a == b || !intersects(routesByName[a], routesByName[b]) {
				continue
			}
			g.AddEdge(a, Edge{To: b, Weight: 1})
		}
	}
	return g
}

func intersects(a, b map[string]bool) bool {
	if len(b) < len(a) {
		a, b = b, a
	}
	for r := range a {
		if b[r] {
			return true
		}
	}
	return false
}

// ByName returns the strategy registered under name
func ByName(name string, thresholdKm float64) (Strategy, bool) {
	switch name {
	case "", "distance":
		return NewDistanceThreshold(thresholdKm), true
	case "transfers":
		return SharedRoute{}, true
	}
	return nil, false
}
