package location

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/randytsao24/routeplanner/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `{
  "A41,R29": {"name": "Jay St-MetroTech", "location": [40.692338, -73.987342], "routes": ["A", "C", "F", "R"]},
  "A40":     {"name": "High St", "location": [40.699337, -73.990531], "route": ["A", "C"]},
  "R28":     {"name": "Court St", "location": [40.6941, -73.991777]},
  "101":     {"name": "Van Cortlandt Park-242 St", "location": [40.889248, -73.898583], "routes": ["1"]}
}`

func TestReadStationsKeepsFileOrder(t *testing.T) {
	stations, err := ReadStations(strings.NewReader(sampleCatalog))
	require.NoError(t, err)
	require.Len(t, stations, 4)

	ids := make([]string, len(stations))
	for i, s := range stations {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"A41,R29", "A40", "R28", "101"}, ids)

	assert.Equal(t, "Jay St-MetroTech", stations[0].Name)
	assert.Equal(t, models.Coordinate{Lat: 40.692338, Lon: -73.987342}, stations[0].Location)
	assert.Equal(t, []string{"A", "C"}, stations[1].Routes, "legacy route field")
	assert.Empty(t, stations[2].Routes)
}

func TestReadStationsRejectsBadDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"array", `[1, 2]`},
		{"short location", `{"1": {"name": "x", "location": [1]}}`},
		{"bad json", `{"1": {"name": }`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadStations(strings.NewReader(tc.doc))
			assert.Error(t, err)
		})
	}
}

func TestWriteStationsWritesBothRouteFields(t *testing.T) {
	stations, err := ReadStations(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteStations(&buf, stations))
	assert.Contains(t, buf.String(), `"A40":{"name":"High St","location":[40.699337,-73.990531],"routes":["A","C"],"route":["A","C"]}`)

	again, err := ReadStations(&buf)
	require.NoError(t, err)
	assert.Equal(t, stations[0], again[0])
	assert.Equal(t, stations[3].ID, again[3].ID)
}

func TestFeedIDs(t *testing.T) {
	assert.Equal(t, []string{"A41", "R29"}, FeedIDs("A41,R29"))
	assert.Equal(t, []string{"101"}, FeedIDs("101"))
	assert.Equal(t, []string{"A", "B"}, FeedIDs(" A, ,B"))
}

func TestSnapshotLookups(t *testing.T) {
	stations, err := ReadStations(strings.NewReader(sampleCatalog))
	require.NoError(t, err)
	snap := NewSnapshot(stations)

	st, ok := snap.ByFeedID("R29")
	require.True(t, ok)
	assert.Equal(t, "A41,R29", st.ID)

	_, ok = snap.ByFeedID("A41,R29")
	assert.False(t, ok)

	st, ok = snap.Get("A41,R29")
	require.True(t, ok)
	assert.Equal(t, "Jay St-MetroTech", st.Name)

	st, ok = snap.FindByName("Court St")
	require.True(t, ok)
	assert.Equal(t, "R28", st.ID)

	_, ok = snap.FindByName("Nowhere")
	assert.False(t, ok)

	assert.Equal(t, []string{"1", "A", "C", "F", "R"}, snap.Routes())
	assert.Equal(t, []string{"Court St", "High St", "Jay St-MetroTech", "Van Cortlandt Park-242 St"}, snap.Names())
	assert.Len(t, snap.ServedBy("A"), 2)
}

func TestSnapshotDuplicateNameResolvesToFirst(t *testing.T) {
	snap := NewSnapshot([]models.Station{
		{ID: "1", Name: "Canal St"},
		{ID: "2", Name: "Canal St"},
	})
	st, ok := snap.FindByName("Canal St")
	require.True(t, ok)
	assert.Equal(t, "1", st.ID)
	assert.Equal(t, []string{"Canal St"}, snap.Names())
}

func TestNearest(t *testing.T) {
	// 0.018 degrees of latitude is about 2 km, 0.045 about 5 km
	far := models.Station{ID: "B", Name: "Five", Location: models.Coordinate{Lat: 0.045, Lon: 0}}
	near := models.Station{ID: "A", Name: "Two", Location: models.Coordinate{Lat: 0.018, Lon: 0}}

	snap := NewSnapshot([]models.Station{far, near})
	got, ok := snap.Nearest(0, 0)
	require.True(t, ok)
	assert.Equal(t, "A", got.ID)
	assert.InDelta(t, 2.0, got.DistanceKm, 0.01)
}

func TestNearestFirstWinsTies(t *testing.T) {
	snap := NewSnapshot([]models.Station{
		{ID: "north", Location: models.Coordinate{Lat: 1, Lon: 0}},
		{ID: "south", Location: models.Coordinate{Lat: -1, Lon: 0}},
	})
	got, ok := snap.Nearest(0, 0)
	require.True(t, ok)
	assert.Equal(t, "north", got.ID)
}

func TestNearestEmptyCatalog(t *testing.T) {
	_, ok := NewSnapshot(nil).Nearest(40.7, -73.9)
	assert.False(t, ok)
}

func TestNearestFarOutsideNetwork(t *testing.T) {
	stations, err := ReadStations(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	// Los Angeles still gets an answer
	got, ok := NewSnapshot(stations).Nearest(34.0522, -118.2437)
	require.True(t, ok)
	assert.Greater(t, got.DistanceKm, 3000.0)
}

func TestClosest(t *testing.T) {
	snap := NewSnapshot([]models.Station{
		{ID: "c", Location: models.Coordinate{Lat: 3, Lon: 0}},
		{ID: "a", Location: models.Coordinate{Lat: 1, Lon: 0}},
		{ID: "b", Location: models.Coordinate{Lat: 2, Lon: 0}},
	})

	got := snap.Closest(0, 0, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	assert.Len(t, snap.Closest(0, 0, 0), 3)
}

func TestCatalogReplaceKeepsOldSnapshots(t *testing.T) {
	c := NewCatalog()
	assert.Equal(t, 0, c.Count())

	first := c.Replace([]models.Station{{ID: "1", Name: "One"}})
	second := c.Replace([]models.Station{{ID: "1", Name: "One"}, {ID: "2", Name: "Two"}})

	assert.Greater(t, second.Version(), first.Version())
	assert.Equal(t, 1, first.Len(), "old snapshot is unchanged")
	assert.Equal(t, 2, c.Count())
	assert.Same(t, second, c.Snapshot())
}

func TestCatalogStationsReturnsCopy(t *testing.T) {
	c := NewCatalog()
	c.Replace([]models.Station{{ID: "1", Name: "One"}})

	stations := c.Snapshot().Stations()
	stations[0].Name = "changed"

	st, _ := c.Snapshot().Get("1")
	assert.Equal(t, "One", st.Name)
}

func TestCatalogConcurrentReadsAndReplace(t *testing.T) {
	c := NewCatalog()
	c.Replace([]models.Station{{ID: "1", Name: "One", Location: models.Coordinate{Lat: 1}}})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			snap := c.Snapshot()
			_, ok := snap.Nearest(0, 0)
			assert.True(t, ok)
		}()
		go func() {
			defer wg.Done()
			c.Replace([]models.Station{{ID: "1", Name: "One", Location: models.Coordinate{Lat: 1}}})
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(9), c.Snapshot().Version())
}

func TestCatalogLoadAndSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stations.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o644))

	c := NewCatalog()
	assert.False(t, c.IsLoaded())
	require.NoError(t, c.Load(path))
	assert.True(t, c.IsLoaded())
	assert.Equal(t, 4, c.Count())

	stations := c.Snapshot().Stations()
	stations[2].Routes = []string{"R", "W"}
	c.Replace(stations)

	out := filepath.Join(dir, "out.json")
	require.NoError(t, c.Save(out))

	reloaded := NewCatalog()
	require.NoError(t, reloaded.Load(out))
	st, ok := reloaded.Snapshot().Get("R28")
	require.True(t, ok)
	assert.Equal(t, []string{"R", "W"}, st.Routes)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temp file must not be left behind")
}

func TestCatalogLoadMissingFile(t *testing.T) {
	err := NewCatalog().Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
