// Package models defines shared data types
package models

import "slices"

// Coordinate is a latitude/longitude pair in degrees
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Station represents a subway station in the catalog.
//
// ID may be a comma-joined composite of feed stop IDs when one physical
// station is served by several platforms.
type Station struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Location Coordinate `json:"location"`
	Routes   []string   `json:"routes"`
}

// HasRoute reports whether route serves the station
func (s Station) HasRoute(route string) bool {
	return slices.Contains(s.Routes, route)
}

// StationWithDistance is a Station with distance from a reference point
type StationWithDistance struct {
	Station
	DistanceKm float64 `json:"distance_km"`
}
