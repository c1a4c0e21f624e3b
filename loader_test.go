package findbus_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/findbus"
	"tidbyt.dev/findbus/parse"
	"tidbyt.dev/findbus/storage"
)

var jsonDatasets = map[string]string{
	"bus_stops.json": `[
  {"stop_id": "A", "stop_name": "Alpha", "stop_lat": "1.0", "stop_lon": "2.0"},
  {"stop_id": "B", "stop_name": "Bravo", "stop_lat": 1.1, "stop_lon": 2.1},
  {"stop_id": "C", "stop_name": "Charlie", "stop_lat": 1.2, "stop_lon": 2.2}
]`,
	"bus_routes.json": `[{"route_id": "r1", "route_short_name": "1", "route_long_name": "One"}]`,
	"bus_trips.json":  `[{"route_id": "r1", "service_id": "wk", "trip_id": "t1", "trip_headsign": "Charlie"}]`,
	"bus_stop_times.json": `[
  {"trip_id": "t1", "arrival_time": "08:00:00", "departure_time": "08:00:00", "stop_id": "A", "stop_sequence": "1"},
  {"trip_id": "t1", "arrival_time": "08:10:00", "departure_time": "08:10:00", "stop_id": "B", "stop_sequence": "2"},
  {"trip_id": "t1", "arrival_time": "08:25:00", "departure_time": "08:25:00", "stop_id": "C", "stop_sequence": "3"}
]`,
}

func writeDatasets(t *testing.T, files map[string]string) string {
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

type recordingMetrics struct {
	mutex    sync.Mutex
	loads    int
	loadErrs int
	searches int
	started  int
	finished int
	stopped  int
}

func (m *recordingMetrics) LoadObserve(d time.Duration, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.loads++
	if err != nil {
		m.loadErrs++
	}
}

func (m *recordingMetrics) SearchObserve(d time.Duration, matches int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.searches++
}

func (m *recordingMetrics) SessionStarted() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.started++
}

func (m *recordingMetrics) SessionFinished() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.finished++
}

func (m *recordingMetrics) SessionStopped() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.stopped++
}

func (m *recordingMetrics) Sessions() (started, finished, stopped int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.started, m.finished, m.stopped
}

func (m *recordingMetrics) TickObserve(d time.Duration) {}

func TestLoadDirectoryJSON(t *testing.T) {
	dir := writeDatasets(t, jsonDatasets)

	metrics := &recordingMetrics{}
	loader := findbus.NewLoader()
	loader.Metrics = metrics

	index, err := loader.Load(context.Background(), findbus.DirSources(dir))
	require.NoError(t, err)
	assert.Equal(t, findbus.Counts{Stops: 3, Routes: 1, Trips: 1, StopTimes: 3}, index.Counts())
	assert.Equal(t, 1, metrics.loads)
	assert.Equal(t, 0, metrics.loadErrs)

	engine := findbus.NewTripSearchEngine(index)
	engine.Metrics = metrics
	matches, err := engine.Search(findbus.Query{SourceStopID: "A", DestStopID: "C"})
	require.NoError(t, err)
	require.Equal(t, 1, len(matches))
	assert.Equal(t, "t1", matches[0].TripID)
	assert.Equal(t, 1, metrics.searches)
}

func TestLoadDirectoryCSV(t *testing.T) {
	dir := writeDatasets(t, map[string]string{
		"stops.txt":      "stop_id,stop_name,stop_lat,stop_lon\nA,Alpha,1,2\nB,Bravo,1,2",
		"routes.txt":     "route_id,route_short_name\nr,R",
		"trips.txt":      "trip_id,route_id,service_id\nt,r,x",
		"stop_times.txt": "trip_id,stop_id,stop_sequence,arrival_time,departure_time\nt,A,1,10:00:00,10:00:00\nt,B,2,10:05:00,10:05:00",
	})

	src := findbus.DirSources(dir)
	assert.Equal(t, filepath.Join(dir, "stops.txt"), src.Stops)

	index, err := findbus.NewLoader().Load(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, findbus.Counts{Stops: 2, Routes: 1, Trips: 1, StopTimes: 2}, index.Counts())
}

func TestLoadOverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, ok := jsonDatasets[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, content)
	}))
	defer server.Close()

	src := findbus.Sources{
		Stops:     server.URL + "/bus_stops.json",
		Routes:    server.URL + "/bus_routes.json",
		Trips:     server.URL + "/bus_trips.json",
		StopTimes: server.URL + "/bus_stop_times.json",
	}

	index, err := findbus.NewLoader().Load(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 3, index.Counts().Stops)

	src.Trips = server.URL + "/nope.json"
	_, err = findbus.NewLoader().Load(context.Background(), src)
	require.Error(t, err)

	var loadErr *findbus.LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, findbus.MissingDataset, loadErr.Kind)
	assert.Equal(t, parse.DatasetTrips, loadErr.Dataset)
}

func TestLoadMissingDataset(t *testing.T) {
	files := map[string]string{}
	for k, v := range jsonDatasets {
		files[k] = v
	}
	delete(files, "bus_routes.json")
	dir := writeDatasets(t, files)

	metrics := &recordingMetrics{}
	loader := findbus.NewLoader()
	loader.Metrics = metrics

	index, err := loader.Load(context.Background(), findbus.DirSources(dir))
	assert.Nil(t, index)
	assert.ErrorIs(t, err, findbus.ErrMissingDataset)
	assert.False(t, errors.Is(err, findbus.ErrParse))

	var loadErr *findbus.LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, parse.DatasetRoutes, loadErr.Dataset)
	assert.Equal(t, 1, metrics.loadErrs)

	// Empty locations count as missing too.
	_, err = findbus.NewLoader().Load(context.Background(), findbus.Sources{})
	assert.ErrorIs(t, err, findbus.ErrMissingDataset)
}

func TestLoadParseError(t *testing.T) {
	files := map[string]string{}
	for k, v := range jsonDatasets {
		files[k] = v
	}
	files["bus_stop_times.json"] = `[{"trip_id": "t1",`
	dir := writeDatasets(t, files)

	index, err := findbus.NewLoader().Load(context.Background(), findbus.DirSources(dir))
	assert.Nil(t, index)
	assert.ErrorIs(t, err, findbus.ErrParse)

	var loadErr *findbus.LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, findbus.ParseError, loadErr.Kind)
	assert.Equal(t, parse.DatasetStopTimes, loadErr.Dataset)
	assert.Contains(t, loadErr.Error(), "parse error stop_times")
}

func TestLoadCancelled(t *testing.T) {
	dir := writeDatasets(t, jsonDatasets)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := findbus.NewLoader().Load(ctx, findbus.DirSources(dir))
	assert.ErrorIs(t, err, findbus.ErrMissingDataset)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImportThenLoadFromStorage(t *testing.T) {
	dir := writeDatasets(t, jsonDatasets)

	s, err := storage.NewSQLiteStorage(storage.SQLiteConfig{OnDisk: true, Directory: t.TempDir()})
	require.NoError(t, err)

	loader := findbus.NewLoader()
	loader.Storage = s
	loader.Feed = "city"
	require.NoError(t, loader.Import(context.Background(), findbus.DirSources(dir)))

	reader, err := s.GetReader("city")
	require.NoError(t, err)

	index, err := loader.LoadFromStorage(reader)
	require.NoError(t, err)
	assert.Equal(t, findbus.Counts{Stops: 3, Routes: 1, Trips: 1, StopTimes: 3}, index.Counts())

	session, err := findbus.NewSession(index, "t1", noon)
	require.NoError(t, err)
	assert.Equal(t, "Alpha", session.Points[0].StopName)
}

func TestFailedImportKeepsPreviousFeed(t *testing.T) {
	dbDir := t.TempDir()
	s, err := storage.NewSQLiteStorage(storage.SQLiteConfig{OnDisk: true, Directory: dbDir})
	require.NoError(t, err)

	loader := findbus.NewLoader()
	loader.Storage = s
	loader.Feed = "city"
	require.NoError(t, loader.Import(context.Background(), findbus.DirSources(writeDatasets(t, jsonDatasets))))

	broken := map[string]string{}
	for k, v := range jsonDatasets {
		broken[k] = v
	}
	broken["bus_stop_times.json"] = `[{"trip_id": "t1", "stop_id": "A", "stop_sequence": 1},`
	err = loader.Import(context.Background(), findbus.DirSources(writeDatasets(t, broken)))
	assert.ErrorIs(t, err, findbus.ErrParse)

	// Both the same storage and a fresh one on the same directory
	// still serve the first import.
	reopened, err := storage.NewSQLiteStorage(storage.SQLiteConfig{OnDisk: true, Directory: dbDir})
	require.NoError(t, err)

	for _, st := range []storage.Storage{s, reopened} {
		reader, err := st.GetReader("city")
		require.NoError(t, err)

		index, err := loader.LoadFromStorage(reader)
		require.NoError(t, err)
		assert.Equal(t, findbus.Counts{Stops: 3, Routes: 1, Trips: 1, StopTimes: 3}, index.Counts())
	}
}

func TestLoadRejectsNonArrayJSON(t *testing.T) {
	files := map[string]string{}
	for k, v := range jsonDatasets {
		files[k] = v
	}
	files["bus_stops.json"] = `{"stops": [{"stop_id": "A"}]}`
	dir := writeDatasets(t, files)

	index, err := findbus.NewLoader().Load(context.Background(), findbus.DirSources(dir))
	assert.Nil(t, index)
	assert.ErrorIs(t, err, findbus.ErrParse)

	var loadErr *findbus.LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, parse.DatasetStops, loadErr.Dataset)
}
