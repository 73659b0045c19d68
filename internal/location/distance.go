package location

import (
	"math"

	"github.com/randytsao24/routeplanner/internal/models"
)

// Unit is an earth radius; it selects the unit a distance is reported in.
type Unit float64

const (
	Kilometers Unit = 6371
	Miles      Unit = 3959
)

// Haversine calculates the great-circle distance between two lat/lng points
// in the given unit
func Haversine(lat1, lng1, lat2, lng2 float64, unit Unit) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return float64(unit) * c
}

// Distance is Haversine over two coordinates
func Distance(a, b models.Coordinate, unit Unit) float64 {
	return Haversine(a.Lat, a.Lon, b.Lat, b.Lon, unit)
}

// Round2 rounds to two decimal places. Only use it when reporting.
func Round2(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	return math.Round(v*100) / 100
}
