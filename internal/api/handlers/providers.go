package handlers

import (
	"context"
	"time"

	"github.com/randytsao24/routeplanner/internal/models"
	"github.com/randytsao24/routeplanner/internal/planner"
	"github.com/randytsao24/routeplanner/internal/transit"
)

// RoutePlanner abstracts route planning for testability.
type RoutePlanner interface {
	Plan(source, destination, mode string) (planner.Plan, error)
	Nearest(lat, lng float64) (models.StationWithDistance, bool)
	Names() []string
}

// ArrivalsProvider abstracts the live subway feed.
type ArrivalsProvider interface {
	GetByID(ctx context.Context, ids []string) ([]transit.StationArrivals, error)
	GetByPoint(ctx context.Context, lat, lng float64, limit int) ([]transit.StationArrivals, error)
	GetByRoute(ctx context.Context, route string) ([]transit.StationArrivals, error)
	GetRoutes(ctx context.Context) ([]string, error)
	LastUpdate() time.Time
}

// CatalogStats reports on the loaded station catalog.
type CatalogStats interface {
	Count() int
	IsLoaded() bool
}
