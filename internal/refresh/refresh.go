// Package refresh keeps the station catalog's route labels current
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/randytsao24/routeplanner/internal/location"
	"github.com/randytsao24/routeplanner/internal/models"
	"github.com/randytsao24/routeplanner/internal/transit"
)

// Feed is the part of the live feed the refresher needs
type Feed interface {
	GetByID(ctx context.Context, ids []string) ([]transit.StationArrivals, error)
}

// Refresher re-queries the feed for the routes at every station, swaps the
// result into the catalog and writes it back to disk
type Refresher struct {
	catalog  *location.Catalog
	feed     Feed
	path     string
	interval time.Duration
}

// New creates a refresher. An empty path skips persisting.
func New(catalog *location.Catalog, feed Feed, path string, interval time.Duration) *Refresher {
	return &Refresher{
		catalog:  catalog,
		feed:     feed,
		path:     path,
		interval: interval,
	}
}

// Run refreshes once immediately and then on every tick until ctx is done
func (r *Refresher) Run(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil {
		slog.Error("initial catalog refresh failed", "error", err)
	}
	if r.interval <= 0 {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				slog.Error("catalog refresh failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Refresh performs one cycle. Stations whose lookup fails keep their
// previous routes. When the feed is down altogether the cycle stops and the
// catalog is left as it was.
func (r *Refresher) Refresh(ctx context.Context) error {
	start := time.Now()
	snap := r.catalog.Snapshot()
	stations := snap.Stations()

	updated, failed := 0, 0
	for i, st := range stations {
		if err := ctx.Err(); err != nil {
			return err
		}

		records, err := r.feed.GetByID(ctx, location.FeedIDs(st.ID))
		if errors.Is(err, transit.ErrFeedUnavailable) {
			return fmt.Errorf("refresh aborted after %d stations: %w", i, err)
		}
		if err != nil {
			failed++
			slog.Warn("route lookup failed", "station", st.ID, "error", err)
			continue
		}
		stations[i] = withRoutes(st, records)
		updated++
	}

	if updated == 0 && len(stations) > 0 {
		return fmt.Errorf("no station could be refreshed (%d failures)", failed)
	}

	next := r.catalog.Replace(stations)

	if r.path != "" {
		if err := r.catalog.Save(r.path); err != nil {
			return fmt.Errorf("saving catalog: %w", err)
		}
	}

	slog.Info("catalog refreshed",
		"stations", next.Len(),
		"updated", updated,
		"failed", failed,
		"version", next.Version(),
		"duration", time.Since(start).String(),
	)
	return nil
}

func withRoutes(st models.Station, records []transit.StationArrivals) models.Station {
	seen := make(map[string]bool)
	routes := []string{}
	for _, rec := range records {
		for _, route := range rec.Routes {
			if !seen[route] {
				seen[route] = true
				routes = append(routes, route)
			}
		}
	}
	sort.Strings(routes)
	st.Routes = routes
	return st
}
