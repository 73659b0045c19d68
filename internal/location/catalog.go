// Package location handles the station catalog and geographic lookups
package location

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/randytsao24/routeplanner/internal/models"
)

// IDSeparator joins the feed stop IDs of a composite station ID
const IDSeparator = ","

// stationRecord is the on-disk shape of a catalog entry. Older files carry
// the route list under "route".
type stationRecord struct {
	Name     string    `json:"name"`
	Location []float64 `json:"location"`
	Routes   []string  `json:"routes"`
	Route    []string  `json:"route,omitempty"`
}

// FeedIDs splits a station ID into its underlying feed stop IDs
func FeedIDs(stationID string) []string {
	parts := strings.Split(stationID, IDSeparator)
	ids := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// Snapshot is an immutable view of the catalog. Queries hold one for their
// whole duration.
type Snapshot struct {
	version  uint64
	stations []models.Station
	byID     map[string]int
	byFeedID map[string]int
}

// NewSnapshot indexes stations, keeping their order. A later duplicate ID
// replaces the earlier entry in place.
func NewSnapshot(stations []models.Station) *Snapshot {
	s := &Snapshot{
		byID:     make(map[string]int, len(stations)),
		byFeedID: make(map[string]int, len(stations)),
	}
	for _, st := range stations {
		if i, dup := s.byID[st.ID]; dup {
			s.stations[i] = st
			continue
		}
		s.byID[st.ID] = len(s.stations)
		s.stations = append(s.stations, st)
	}
	for i, st := range s.stations {
		for _, fid := range FeedIDs(st.ID) {
			if _, taken := s.byFeedID[fid]; !taken {
				s.byFeedID[fid] = i
			}
		}
	}
	return s
}

// Version increases every time the catalog is replaced
func (s *Snapshot) Version() uint64 { return s.version }

// Len returns the number of stations
func (s *Snapshot) Len() int { return len(s.stations) }

// Stations returns the stations in catalog order
func (s *Snapshot) Stations() []models.Station {
	return slices.Clone(s.stations)
}

// Get returns a station by its catalog ID
func (s *Snapshot) Get(id string) (models.Station, bool) {
	i, ok := s.byID[id]
	if !ok {
		return models.Station{}, false
	}
	return s.stations[i], true
}

// ByFeedID returns the station that contains the given feed stop ID
func (s *Snapshot) ByFeedID(feedID string) (models.Station, bool) {
	i, ok := s.byFeedID[feedID]
	if !ok {
		return models.Station{}, false
	}
	return s.stations[i], true
}

// FindByName returns the first station in catalog order with the name
func (s *Snapshot) FindByName(name string) (models.Station, bool) {
	for _, st := range s.stations {
		if st.Name == name {
			return st, true
		}
	}
	return models.Station{}, false
}

// Names returns the sorted unique display names
func (s *Snapshot) Names() []string {
	seen := make(map[string]bool, len(s.stations))
	var names []string
	for _, st := range s.stations {
		if !seen[st.Name] {
			seen[st.Name] = true
			names = append(names, st.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Routes returns every route label serving some station, sorted
func (s *Snapshot) Routes() []string {
	seen := make(map[string]bool)
	var routes []string
	for _, st := range s.stations {
		for _, r := range st.Routes {
			if !seen[r] {
				seen[r] = true
				routes = append(routes, r)
			}
		}
	}
	sort.Strings(routes)
	return routes
}

// ServedBy returns the stations served by route, in catalog order
func (s *Snapshot) ServedBy(route string) []models.Station {
	var result []models.Station
	for _, st := range s.stations {
		if st.HasRoute(route) {
			result = append(result, st)
		}
	}
	return result
}

// Nearest returns the station closest to a point, in kilometers.
// The first station in catalog order wins ties. It fails only when the
// catalog is empty.
func (s *Snapshot) Nearest(lat, lng float64) (models.StationWithDistance, bool) {
	best := -1
	bestDist := 0.0
	for i, st := range s.stations {
		dist := Haversine(lat, lng, st.Location.Lat, st.Location.Lon, Kilometers)
		if best < 0 || dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best < 0 {
		return models.StationWithDistance{}, false
	}
	return models.StationWithDistance{Station: s.stations[best], DistanceKm: bestDist}, true
}

// Closest returns the N closest stations to a point
func (s *Snapshot) Closest(lat, lng float64, limit int) []models.StationWithDistance {
	results := make([]models.StationWithDistance, 0, len(s.stations))
	for _, st := range s.stations {
		results = append(results, models.StationWithDistance{
			Station:    st,
			DistanceKm: Haversine(lat, lng, st.Location.Lat, st.Location.Lon, Kilometers),
		})
	}

	// Stable keeps catalog order between equal distances
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].DistanceKm < results[j].DistanceKm
	})

	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}

// Catalog owns the current station snapshot. Readers take a Snapshot;
// writers swap in a new one with Replace.
type Catalog struct {
	mu      sync.RWMutex
	current *Snapshot
	version uint64
	loaded  bool
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{current: NewSnapshot(nil)}
}

// Load reads the catalog from a JSON file and replaces the current snapshot
func (c *Catalog) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening stations file: %w", err)
	}
	defer file.Close()

	stations, err := ReadStations(file)
	if err != nil {
		return err
	}

	c.Replace(stations)

	c.mu.Lock()
	c.loaded = true
	c.mu.Unlock()
	return nil
}

// Save writes the current snapshot to path. The file is replaced atomically.
func (c *Catalog) Save(path string) error {
	snap := c.Snapshot()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".stations-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteStations(tmp, snap.stations); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing stations file: %w", err)
	}
	return nil
}

// Snapshot returns the current immutable snapshot
func (c *Catalog) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Replace installs a new set of stations and returns the new snapshot
func (c *Catalog) Replace(stations []models.Station) *Snapshot {
	next := NewSnapshot(stations)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.version++
	next.version = c.version
	c.current = next
	return next
}

// Count returns the number of loaded stations
func (c *Catalog) Count() int {
	return c.Snapshot().Len()
}

// IsLoaded returns true if data has been loaded
func (c *Catalog) IsLoaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// ReadStations decodes a catalog document, keeping the key order of the
// file as station order
func ReadStations(r io.Reader) ([]models.Station, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("reading stations JSON: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("stations JSON must be an object keyed by station ID")
	}

	var stations []models.Station
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("reading station ID: %w", err)
		}
		id, _ := tok.(string)

		var rec stationRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("parsing station %q: %w", id, err)
		}
		if len(rec.Location) != 2 {
			return nil, fmt.Errorf("station %q: location must be [lat, lon]", id)
		}

		routes := rec.Routes
		if routes == nil {
			routes = rec.Route
		}

		stations = append(stations, models.Station{
			ID:       id,
			Name:     rec.Name,
			Location: models.Coordinate{Lat: rec.Location[0], Lon: rec.Location[1]},
			Routes:   routes,
		})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("reading stations JSON: %w", err)
	}
	return stations, nil
}

// WriteStations encodes stations as a catalog document in the given order
func WriteStations(w io.Writer, stations []models.Station) error {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, st := range stations {
		if i > 0 {
			buf.WriteString(",")
		}
		key, err := json.Marshal(st.ID)
		if err != nil {
			return fmt.Errorf("encoding station ID: %w", err)
		}

		routes := st.Routes
		if routes == nil {
			routes = []string{}
		}
		rec, err := json.Marshal(stationRecord{
			Name:     st.Name,
			Location: []float64{st.Location.Lat, st.Location.Lon},
			Routes:   routes,
			Route:    routes,
		})
		if err != nil {
			return fmt.Errorf("encoding station %q: %w", st.ID, err)
		}

		buf.Write(key)
		buf.WriteString(":")
		buf.Write(rec)
	}
	buf.WriteString("}\n")

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing stations JSON: %w", err)
	}
	return nil
}
