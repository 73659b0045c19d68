// Package planner answers route planning and nearest-station queries
// against the current catalog snapshot
package planner

import (
	"errors"
	"fmt"
	"time"

	"github.com/bluele/gcache"
	"github.com/randytsao24/routeplanner/internal/graph"
	"github.com/randytsao24/routeplanner/internal/location"
	"github.com/randytsao24/routeplanner/internal/models"
	"github.com/randytsao24/routeplanner/internal/pathfind"
)

const (
	graphCacheSize = 8
	graphCacheTTL  = time.Hour
)

var (
	// ErrStationNotFound is returned when a requested name is not in the catalog
	ErrStationNotFound = errors.New("station not found")
	// ErrUnknownMode is returned for a mode no strategy is registered under
	ErrUnknownMode = errors.New("unknown planning mode")
)

// StationSource supplies catalog snapshots
type StationSource interface {
	Snapshot() *location.Snapshot
}

// Plan is a planned route. Stations lists the station for each path key;
// under the transfers mode that is the first station carrying the name.
type Plan struct {
	Mode        string
	Source      models.Station
	Destination models.Station
	Result      pathfind.Result
	Stations    []models.Station
}

// Planner builds graphs on demand and caches them per catalog version
type Planner struct {
	catalog     StationSource
	thresholdKm float64
	graphs      gcache.Cache
}

// New creates a planner. thresholdKm configures the distance strategy.
func New(catalog StationSource, thresholdKm float64) *Planner {
	return &Planner{
		catalog:     catalog,
		thresholdKm: thresholdKm,
		graphs: gcache.New(graphCacheSize).
			LRU().
			Expiration(graphCacheTTL).
			Build(),
	}
}

// Plan finds a route between two station names. mode is "distance"
// (default) or "transfers". An unreachable destination is not an error;
// check Result.Found.
func (p *Planner) Plan(sourceName, destinationName, mode string) (Plan, error) {
	strategy, ok := graph.ByName(mode, p.thresholdKm)
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	snap := p.catalog.Snapshot()

	src, ok := snap.FindByName(sourceName)
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrStationNotFound, sourceName)
	}
	dst, ok := snap.FindByName(destinationName)
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrStationNotFound, destinationName)
	}

	g := p.graph(snap, strategy)
	search := pathfind.For(strategy)
	result := search(g, strategy.Key(src), strategy.Key(dst))

	return Plan{
		Mode:        strategy.Name(),
		Source:      src,
		Destination: dst,
		Result:      result,
		Stations:    resolve(snap, strategy, result.Path),
	}, nil
}

// Nearest returns the closest station to a point and its distance in km
func (p *Planner) Nearest(lat, lng float64) (models.StationWithDistance, bool) {
	return p.catalog.Snapshot().Nearest(lat, lng)
}

// Names returns the station names a query may use
func (p *Planner) Names() []string {
	return p.catalog.Snapshot().Names()
}

func (p *Planner) graph(snap *location.Snapshot, strategy graph.Strategy) *graph.Graph {
	key := fmt.Sprintf("%s@%d", strategy.Name(), snap.Version())
	if v, err := p.graphs.Get(key); err == nil {
		return v.(*graph.Graph)
	}

	g := strategy.Build(snap.Stations())
	_ = p.graphs.Set(key, g)
	return g
}

func resolve(snap *location.Snapshot, strategy graph.Strategy, keys []string) []models.Station {
	stations := make([]models.Station, 0, len(keys))
	for _, key := range keys {
		var st models.Station
		var ok bool
		if strategy.Weighted() {
			st, ok = snap.Get(key)
		} else {
			st, ok = snap.FindByName(key)
		}
		if ok {
			stations = append(stations, st)
		}
	}
	return stations
}
