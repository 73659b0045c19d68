package transit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/randytsao24/routeplanner/internal/location"
	"github.com/randytsao24/routeplanner/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

var testNow = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

type stopTime struct {
	stop    string
	minutes int
}

func trip(id, route string, stops ...stopTime) *gtfs.FeedEntity {
	var updates []*gtfs.TripUpdate_StopTimeUpdate
	for _, s := range stops {
		updates = append(updates, &gtfs.TripUpdate_StopTimeUpdate{
			StopId: proto.String(s.stop),
			Arrival: &gtfs.TripUpdate_StopTimeEvent{
				Time: proto.Int64(testNow.Add(time.Duration(s.minutes) * time.Minute).Unix()),
			},
		})
	}
	return &gtfs.FeedEntity{
		Id: proto.String(id),
		TripUpdate: &gtfs.TripUpdate{
			Trip:           &gtfs.TripDescriptor{RouteId: proto.String(route)},
			StopTimeUpdate: updates,
		},
	}
}

func feedServer(t *testing.T, hits *atomic.Int32, entities ...*gtfs.FeedEntity) *httptest.Server {
	t.Helper()
	body, err := proto.Marshal(&gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(uint64(testNow.Unix())),
		},
		Entity: entities,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if r.Header.Get("x-api-key") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testCatalog() *location.Catalog {
	c := location.NewCatalog()
	c.Replace([]models.Station{
		{ID: "A41,R29", Name: "Jay St-MetroTech", Location: models.Coordinate{Lat: 40.692338, Lon: -73.987342}, Routes: []string{"A", "R"}},
		{ID: "R28", Name: "Court St", Location: models.Coordinate{Lat: 40.6941, Lon: -73.991777}, Routes: []string{"R"}},
		{ID: "A02", Name: "Inwood-207 St", Location: models.Coordinate{Lat: 40.868072, Lon: -73.919899}, Routes: []string{"A"}},
	})
	return c
}

func newService(t *testing.T, feeds map[string]string) *SubwayService {
	t.Helper()
	s := NewSubwayService(testCatalog(), time.Second, time.Minute,
		WithFeeds(feeds),
		WithAPIKey("secret"),
		WithClock(func() time.Time { return testNow }),
	)
	t.Cleanup(s.Close)
	return s
}

func defaultEntities() []*gtfs.FeedEntity {
	return []*gtfs.FeedEntity{
		trip("t1", "A", stopTime{"A41N", 4}, stopTime{"A40N", 6}),
		trip("t2", "A", stopTime{"A41S", 2}),
		trip("t3", "R", stopTime{"R29N", 1}, stopTime{"R28N", 3}),
		trip("t4", "F", stopTime{"A41N", 45}),  // beyond the horizon
		trip("t5", "C", stopTime{"A41S", -5}), // already departed
	}
}

func TestGetByIDMergesFeedsAndDirections(t *testing.T) {
	srv := feedServer(t, nil, defaultEntities()...)
	s := newService(t, map[string]string{"ace": srv.URL})

	records, err := s.GetByID(context.Background(), []string{"A41", "R29"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	jay := records[0]
	assert.Equal(t, "A41", jay.ID)
	assert.Equal(t, "A41,R29", jay.StationID)
	assert.Equal(t, "Jay St-MetroTech", jay.Name)
	assert.Equal(t, []string{"A"}, jay.Routes)
	require.Len(t, jay.Northbound, 1)
	require.Len(t, jay.Southbound, 1)
	assert.Equal(t, 4, jay.Northbound[0].MinutesAway)
	assert.Equal(t, testNow, jay.LastUpdate)

	assert.Equal(t, []string{"R"}, records[1].Routes)
	assert.Equal(t, testNow, s.LastUpdate())
}

func TestGetByIDAcceptsCompositeStationID(t *testing.T) {
	srv := feedServer(t, nil, defaultEntities()...)
	s := newService(t, map[string]string{"ace": srv.URL})

	records, err := s.GetByID(context.Background(), []string{"A41,R29"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"A", "R"}, records[0].Routes)
	require.Len(t, records[0].Northbound, 2)
	assert.Equal(t, "R", records[0].Northbound[0].Route, "sorted by arrival time")
}

func TestGetByIDUnknownStation(t *testing.T) {
	srv := feedServer(t, nil, defaultEntities()...)
	s := newService(t, map[string]string{"ace": srv.URL})

	_, err := s.GetByID(context.Background(), []string{"A41", "XYZ"})
	assert.True(t, errors.Is(err, ErrUnknownStation))
}

func TestFeedSnapshotIsCached(t *testing.T) {
	var hits atomic.Int32
	srv := feedServer(t, &hits, defaultEntities()...)
	s := newService(t, map[string]string{"ace": srv.URL})

	for i := 0; i < 3; i++ {
		_, err := s.GetByID(context.Background(), []string{"R28"})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestFailedFeedsAreSkipped(t *testing.T) {
	good := feedServer(t, nil, defaultEntities()...)
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	s := newService(t, map[string]string{"ace": good.URL, "bdfm": bad.URL})
	records, err := s.GetByID(context.Background(), []string{"R28"})
	require.NoError(t, err)
	assert.Equal(t, []string{"R"}, records[0].Routes)
}

func TestAllFeedsDown(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	s := newService(t, map[string]string{"ace": bad.URL})
	_, err := s.GetByID(context.Background(), []string{"R28"})
	assert.True(t, errors.Is(err, ErrFeedUnavailable))
	assert.True(t, s.LastUpdate().IsZero())
}

func TestGetByPoint(t *testing.T) {
	srv := feedServer(t, nil, defaultEntities()...)
	s := newService(t, map[string]string{"ace": srv.URL})

	records, err := s.GetByPoint(context.Background(), 40.6941, -73.9917, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "R28", records[0].ID)
	assert.Equal(t, "A41,R29", records[1].ID)
	assert.Less(t, records[0].DistanceMiles, records[1].DistanceMiles)
}

func TestGetByRoute(t *testing.T) {
	srv := feedServer(t, nil, defaultEntities()...)
	s := newService(t, map[string]string{"ace": srv.URL})

	records, err := s.GetByRoute(context.Background(), "R")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Jay St-MetroTech", records[0].Name)
	assert.Equal(t, "Court St", records[1].Name)

	_, err = s.GetByRoute(context.Background(), "Q")
	assert.True(t, errors.Is(err, ErrUnknownRoute))
}

func TestGetRoutes(t *testing.T) {
	srv := feedServer(t, nil, defaultEntities()...)
	s := newService(t, map[string]string{"ace": srv.URL})

	routes, err := s.GetRoutes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "R"}, routes)
}

func TestGetRoutesFallsBackToCatalog(t *testing.T) {
	s := newService(t, map[string]string{"ace": "http://127.0.0.1:1"})

	routes, err := s.GetRoutes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "R"}, routes)
}

func TestMaxTrainsLimit(t *testing.T) {
	srv := feedServer(t, nil,
		trip("t1", "A", stopTime{"A02S", 1}),
		trip("t2", "A", stopTime{"A02S", 2}),
		trip("t3", "A", stopTime{"A02S", 3}),
	)
	s := NewSubwayService(testCatalog(), time.Second, time.Minute,
		WithFeeds(map[string]string{"ace": srv.URL}),
		WithAPIKey("secret"),
		WithClock(func() time.Time { return testNow }),
		WithLimits(2, 30),
	)
	defer s.Close()

	records, err := s.GetByID(context.Background(), []string{"A02"})
	require.NoError(t, err)
	assert.Len(t, records[0].Southbound, 2)
	assert.Empty(t, records[0].Northbound)
}

func TestParentStopID(t *testing.T) {
	assert.Equal(t, "127", parentStopID("127N"))
	assert.Equal(t, "127", parentStopID("127S"))
	assert.Equal(t, "127", parentStopID("127"))
	assert.Equal(t, "unknown", direction("127"))
}

func TestOutageIsNotRefetchedDuringBackoff(t *testing.T) {
	var hits atomic.Int32
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	now := testNow
	s := NewSubwayService(testCatalog(), time.Second, time.Minute,
		WithFeeds(map[string]string{"ace": down.URL, "nqrw": down.URL}),
		WithClock(func() time.Time { return now }),
		WithFailureBackoff(10*time.Second),
	)
	defer s.Close()

	// One lookup per station, as a refresh cycle does
	for _, id := range []string{"A41,R29", "R28", "A02"} {
		_, err := s.GetByID(context.Background(), []string{id})
		assert.ErrorIs(t, err, ErrFeedUnavailable)
	}
	assert.Equal(t, int32(2), hits.Load(), "each feed fetched once")

	now = now.Add(11 * time.Second)
	_, err := s.GetByID(context.Background(), []string{"R28"})
	assert.ErrorIs(t, err, ErrFeedUnavailable)
	assert.Equal(t, int32(4), hits.Load(), "retried after the backoff")
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	body, err := proto.Marshal(&gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")},
		Entity: defaultEntities(),
	})
	require.NoError(t, err)

	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Write(body)
	}))
	defer srv.Close()

	s := newService(t, map[string]string{"ace": srv.URL})

	const callers = 5
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, err := s.GetByID(context.Background(), []string{"R28"})
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)

	for i := 0; i < callers; i++ {
		assert.NoError(t, <-errs)
	}
	assert.Equal(t, int32(1), hits.Load())
}
