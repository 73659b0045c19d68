// Package transit provides the live MTA subway feed client
package transit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/randytsao24/routeplanner/internal/cache"
	"github.com/randytsao24/routeplanner/internal/location"
	"github.com/randytsao24/routeplanner/internal/models"
	"golang.org/x/sync/singleflight"
	"google.golang.org/protobuf/proto"
)

// MTA GTFS-RT feed URLs by line group
var feedURLs = map[string]string{
	"ace":     "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-ace",
	"bdfm":    "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-bdfm",
	"g":       "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-g",
	"jz":      "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-jz",
	"nqrw":    "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-nqrw",
	"l":       "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-l",
	"1234567": "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs",
	"si":      "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-si",
}

const (
	DefaultMaxTrains  = 10
	DefaultMaxMinutes = 30
	// DefaultFailureBackoff is how long a failed fetch of every feed is
	// reported again without retrying
	DefaultFailureBackoff = 15 * time.Second

	snapshotKey = "all"
)

var (
	// ErrUnknownStation is returned for IDs that are not in the catalog
	ErrUnknownStation = errors.New("station not found")
	// ErrUnknownRoute is returned for routes that serve no station
	ErrUnknownRoute = errors.New("route not found")
	// ErrFeedUnavailable is returned when no feed could be fetched
	ErrFeedUnavailable = errors.New("subway feed unavailable")
)

// Arrival represents an upcoming train arrival
type Arrival struct {
	Route       string    `json:"route"`
	StopID      string    `json:"stop_id"`
	Direction   string    `json:"direction"`
	ArrivalTime time.Time `json:"time"`
	MinutesAway int       `json:"minutes_away"`
}

// StationArrivals is the live record for one feed stop or station
type StationArrivals struct {
	ID            string     `json:"id"`
	StationID     string     `json:"station_id"`
	Name          string     `json:"name"`
	Location      [2]float64 `json:"location"`
	Routes        []string   `json:"routes"`
	Northbound    []Arrival  `json:"N"`
	Southbound    []Arrival  `json:"S"`
	LastUpdate    time.Time  `json:"last_update"`
	DistanceMiles float64    `json:"distance_miles,omitempty"`
}

// StationSource supplies the catalog snapshot used to resolve stop IDs
type StationSource interface {
	Snapshot() *location.Snapshot
}

// feedSnapshot is every feed merged, keyed by parent stop ID
type feedSnapshot struct {
	arrivals  map[string][]Arrival
	fetchedAt time.Time
}

// SubwayService fetches real-time subway arrivals
type SubwayService struct {
	client     *http.Client
	apiKey     string
	feeds      map[string]string
	stations   StationSource
	snapshots  *cache.Cache[feedSnapshot]
	inflight   singleflight.Group
	maxTrains  int
	maxMinutes int
	backoff    time.Duration
	now        func() time.Time

	mu         sync.RWMutex
	lastUpdate time.Time
	failedAt   time.Time
}

// Option configures a SubwayService
type Option func(*SubwayService)

// WithAPIKey sends the key as x-api-key on feed requests
func WithAPIKey(key string) Option {
	return func(s *SubwayService) { s.apiKey = key }
}

// WithFeeds replaces the MTA feed URLs, keyed by feed name
func WithFeeds(feeds map[string]string) Option {
	return func(s *SubwayService) { s.feeds = feeds }
}

// WithLimits caps arrivals per direction and how far ahead they may be
func WithLimits(maxTrains, maxMinutes int) Option {
	return func(s *SubwayService) {
		s.maxTrains = maxTrains
		s.maxMinutes = maxMinutes
	}
}

// WithFailureBackoff sets how long ErrFeedUnavailable is returned from
// memory after every feed failed. Zero retries on every call.
func WithFailureBackoff(d time.Duration) Option {
	return func(s *SubwayService) { s.backoff = d }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *SubwayService) { s.now = now }
}

// NewSubwayService creates a new subway service
func NewSubwayService(stations StationSource, timeout, cacheTTL time.Duration, opts ...Option) *SubwayService {
	s := &SubwayService{
		client:     &http.Client{Timeout: timeout},
		feeds:      feedURLs,
		stations:   stations,
		snapshots:  cache.New[feedSnapshot](cacheTTL),
		maxTrains:  DefaultMaxTrains,
		maxMinutes: DefaultMaxMinutes,
		backoff:    DefaultFailureBackoff,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the feed cache
func (s *SubwayService) Close() {
	s.snapshots.Close()
}

// GetByID returns one record per feed stop ID. A full catalog ID is
// accepted too.
func (s *SubwayService) GetByID(ctx context.Context, ids []string) ([]StationArrivals, error) {
	snap := s.stations.Snapshot()

	resolved := make([]models.Station, len(ids))
	for i, id := range ids {
		st, ok := snap.ByFeedID(id)
		if !ok {
			st, ok = snap.Get(id)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStation, id)
		}
		resolved[i] = st
	}

	fs, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]StationArrivals, len(ids))
	for i, id := range ids {
		feedIDs := []string{id}
		if id == resolved[i].ID {
			feedIDs = location.FeedIDs(id)
		}
		records[i] = s.record(id, resolved[i], feedIDs, fs)
	}
	return records, nil
}

// GetByPoint returns records for the limit stations closest to a point
func (s *SubwayService) GetByPoint(ctx context.Context, lat, lng float64, limit int) ([]StationArrivals, error) {
	closest := s.stations.Snapshot().Closest(lat, lng, limit)

	fs, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]StationArrivals, 0, len(closest))
	for _, c := range closest {
		rec := s.record(c.ID, c.Station, location.FeedIDs(c.ID), fs)
		rec.DistanceMiles = location.Haversine(lat, lng, c.Location.Lat, c.Location.Lon, location.Miles)
		records = append(records, rec)
	}
	return records, nil
}

// GetByRoute returns records for every station the route serves
func (s *SubwayService) GetByRoute(ctx context.Context, route string) ([]StationArrivals, error) {
	served := s.stations.Snapshot().ServedBy(route)
	if len(served) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoute, route)
	}

	fs, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]StationArrivals, 0, len(served))
	for _, st := range served {
		records = append(records, s.record(st.ID, st, location.FeedIDs(st.ID), fs))
	}
	return records, nil
}

// GetRoutes returns the sorted routes seen in the feed and the catalog.
// When the feed is down only catalog routes are returned.
func (s *SubwayService) GetRoutes(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	for _, r := range s.stations.Snapshot().Routes() {
		seen[r] = true
	}

	fs, err := s.snapshot(ctx)
	if err != nil {
		slog.Warn("listing routes without live feed", "error", err)
	} else {
		for _, arrivals := range fs.arrivals {
			for _, a := range arrivals {
				seen[a.Route] = true
			}
		}
	}

	routes := make([]string, 0, len(seen))
	for r := range seen {
		if r != "" {
			routes = append(routes, r)
		}
	}
	sort.Strings(routes)
	return routes, nil
}

// LastUpdate returns when the feeds were last fetched successfully
func (s *SubwayService) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

func (s *SubwayService) record(id string, st models.Station, feedIDs []string, fs feedSnapshot) StationArrivals {
	rec := StationArrivals{
		ID:         id,
		StationID:  st.ID,
		Name:       st.Name,
		Location:   [2]float64{st.Location.Lat, st.Location.Lon},
		Northbound: []Arrival{},
		Southbound: []Arrival{},
		LastUpdate: fs.fetchedAt,
	}

	routes := make(map[string]bool)
	for _, fid := range feedIDs {
		for _, a := range fs.arrivals[fid] {
			routes[a.Route] = true
			switch a.Direction {
			case "northbound":
				rec.Northbound = append(rec.Northbound, a)
			case "southbound":
				rec.Southbound = append(rec.Southbound, a)
			}
		}
	}

	rec.Routes = make([]string, 0, len(routes))
	for r := range routes {
		rec.Routes = append(rec.Routes, r)
	}
	sort.Strings(rec.Routes)

	rec.Northbound = s.trim(rec.Northbound)
	rec.Southbound = s.trim(rec.Southbound)
	return rec
}

func (s *SubwayService) trim(arrivals []Arrival) []Arrival {
	sortArrivals(arrivals)
	if s.maxTrains > 0 && len(arrivals) > s.maxTrains {
		arrivals = arrivals[:s.maxTrains]
	}
	return arrivals
}

// snapshot serves the cached feeds. Concurrent misses share one fetch, and
// after a total outage callers get ErrFeedUnavailable until the backoff
// passes.
func (s *SubwayService) snapshot(ctx context.Context) (feedSnapshot, error) {
	if fs, ok := s.snapshots.Get(snapshotKey); ok {
		return fs, nil
	}
	if s.backingOff() {
		return feedSnapshot{}, ErrFeedUnavailable
	}

	v, err, _ := s.inflight.Do(snapshotKey, func() (any, error) {
		return s.snapshots.GetOrLoad(snapshotKey, func() (feedSnapshot, error) {
			fs, err := s.fetchAll(ctx)
			s.mu.Lock()
			if err != nil {
				s.failedAt = s.now()
			} else {
				s.failedAt = time.Time{}
			}
			s.mu.Unlock()
			return fs, err
		})
	})
	if err != nil {
		return feedSnapshot{}, err
	}
	return v.(feedSnapshot), nil
}

func (s *SubwayService) backingOff() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backoff > 0 && !s.failedAt.IsZero() && s.now().Before(s.failedAt.Add(s.backoff))
}

func (s *SubwayService) fetchAll(ctx context.Context) (feedSnapshot, error) {
	names := make([]string, 0, len(s.feeds))
	for name := range s.feeds {
		names = append(names, name)
	}
	sort.Strings(names)

	fs := feedSnapshot{arrivals: make(map[string][]Arrival)}
	fetched := 0
	for _, name := range names {
		feed, err := s.fetchFeed(ctx, name)
		if err != nil {
			// Skip failed feeds, try others
			slog.Warn("subway feed fetch failed", "feed", name, "error", err)
			continue
		}
		fetched++
		for _, a := range s.parseArrivals(feed) {
			parent := parentStopID(a.StopID)
			fs.arrivals[parent] = append(fs.arrivals[parent], a)
		}
	}
	if fetched == 0 && len(names) > 0 {
		return feedSnapshot{}, ErrFeedUnavailable
	}

	fs.fetchedAt = s.now()
	s.mu.Lock()
	s.lastUpdate = fs.fetchedAt
	s.mu.Unlock()
	return fs, nil
}

func (s *SubwayService) fetchFeed(ctx context.Context, feedName string) (*gtfs.FeedMessage, error) {
	url, ok := s.feeds[feedName]
	if !ok {
		return nil, fmt.Errorf("unknown feed: %s", feedName)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("x-api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("parsing protobuf: %w", err)
	}
	return feed, nil
}

func (s *SubwayService) parseArrivals(feed *gtfs.FeedMessage) []Arrival {
	var arrivals []Arrival
	now := s.now()
	horizon := now.Add(time.Duration(s.maxMinutes) * time.Minute)

	for _, entity := range feed.GetEntity() {
		tripUpdate := entity.GetTripUpdate()
		if tripUpdate == nil {
			continue
		}

		routeID := tripUpdate.GetTrip().GetRouteId()

		for _, stopTimeUpdate := range tripUpdate.GetStopTimeUpdate() {
			stopID := stopTimeUpdate.GetStopId()

			arrivalTime := stopTimeUpdate.GetArrival().GetTime()
			if arrivalTime == 0 {
				arrivalTime = stopTimeUpdate.GetDeparture().GetTime()
			}
			if arrivalTime == 0 {
				continue
			}

			arrTime := time.Unix(arrivalTime, 0)
			if arrTime.Before(now) {
				continue // Skip past arrivals
			}
			if s.maxMinutes > 0 && arrTime.After(horizon) {
				continue
			}

			arrivals = append(arrivals, Arrival{
				Route:       routeID,
				StopID:      stopID,
				Direction:   direction(stopID),
				ArrivalTime: arrTime,
				MinutesAway: int(arrTime.Sub(now).Minutes()),
			})
		}
	}

	return arrivals
}

// MTA stop IDs: base = parent, N = northbound, S = southbound
func direction(stopID string) string {
	switch {
	case strings.HasSuffix(stopID, "N"):
		return "northbound"
	case strings.HasSuffix(stopID, "S"):
		return "southbound"
	}
	return "unknown"
}

func parentStopID(stopID string) string {
	if direction(stopID) != "unknown" {
		return stopID[:len(stopID)-1]
	}
	return stopID
}

func sortArrivals(arrivals []Arrival) {
	sort.SliceStable(arrivals, func(i, j int) bool {
		return arrivals[i].ArrivalTime.Before(arrivals[j].ArrivalTime)
	})
}
