package parse

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/findbus/model"
	"tidbyt.dev/findbus/storage"
)

func lines(l ...string) []byte {
	return []byte(strings.Join(l, "\n"))
}

// A small feed given as GTFS CSV.
func fixtureCSV() Datasets {
	return Datasets{
		Stops: lines(
			"stop_id,stop_name,stop_lat,stop_lon",
			"s1,First,12,34",
			"s2,Second,12.5,34.5",
		),
		Routes: lines(
			"route_id,route_short_name,route_long_name",
			"r,R,Route R",
		),
		Trips: lines(
			"route_id,service_id,trip_id,trip_headsign",
			"r,weekday,t,Downtown",
		),
		StopTimes: lines(
			"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
			"t,12:10:00,12:10:30,s2,2",
			"t,12:00:00,12:00:00,s1,1",
		),
	}
}

// The same feed as JSON, the way the bus_*.json files look.
func fixtureJSON() Datasets {
	return Datasets{
		Stops: []byte(`[
  {"stop_id": "s1", "stop_name": "First", "stop_lat": "12", "stop_lon": 34},
  {"stop_id": "s2", "stop_name": "Second", "stop_lat": 12.5, "stop_lon": "34.5"}
]`),
		Routes: []byte(`[{"route_id": "r", "route_short_name": "R", "route_long_name": "Route R"}]`),
		Trips:  []byte(`[{"route_id": "r", "service_id": "weekday", "trip_id": "t", "trip_headsign": "Downtown"}]`),
		StopTimes: []byte(`[
  {"trip_id": "t", "arrival_time": "12:10:00", "departure_time": "12:10:30", "stop_id": "s2", "stop_sequence": 2},
  {"trip_id": "t", "arrival_time": "12:00:00", "departure_time": "12:00:00", "stop_id": "s1", "stop_sequence": "1"}
]`),
	}
}

func parseIntoMemory(t *testing.T, data Datasets) storage.FeedReader {
	s := storage.NewMemoryStorage()
	writer, err := s.GetWriter("test")
	require.NoError(t, err)

	require.NoError(t, ParseStatic(writer, data))

	reader, err := s.GetReader("test")
	require.NoError(t, err)
	return reader
}

func TestParseValidFeed(t *testing.T) {
	for _, tc := range []struct {
		name string
		data Datasets
	}{
		{"csv", fixtureCSV()},
		{"json", fixtureJSON()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			reader := parseIntoMemory(t, tc.data)

			stops, err := reader.Stops()
			require.NoError(t, err)
			assert.Equal(t, []model.Stop{
				{ID: "s1", Name: "First", Lat: 12, Lon: 34},
				{ID: "s2", Name: "Second", Lat: 12.5, Lon: 34.5},
			}, stops)

			routes, err := reader.Routes()
			require.NoError(t, err)
			assert.Equal(t, []model.Route{{ID: "r", ShortName: "R", LongName: "Route R"}}, routes)

			trips, err := reader.Trips()
			require.NoError(t, err)
			assert.Equal(t, []model.Trip{{ID: "t", RouteID: "r", ServiceID: "weekday", Headsign: "Downtown"}}, trips)

			stopTimes, err := reader.StopTimes()
			require.NoError(t, err)
			assert.Equal(t, []model.StopTime{
				{TripID: "t", StopID: "s2", StopSequence: 2, Arrival: 43800, Departure: 43830},
				{TripID: "t", StopID: "s1", StopSequence: 1, Arrival: 43200, Departure: 43200},
			}, stopTimes)
		})
	}
}

func TestParseWithBOM(t *testing.T) {
	data := fixtureCSV()
	data.Stops = append([]byte("\xef\xbb\xbf"), data.Stops...)
	data.Routes = append([]byte("\xef\xbb\xbf"), fixtureJSON().Routes...)

	reader := parseIntoMemory(t, data)

	stops, err := reader.Stops()
	require.NoError(t, err)
	require.Equal(t, 2, len(stops))
	assert.Equal(t, "s1", stops[0].ID)

	routes, err := reader.Routes()
	require.NoError(t, err)
	assert.Equal(t, []model.Route{{ID: "r", ShortName: "R", LongName: "Route R"}}, routes)
}

func TestParseBrokenDataset(t *testing.T) {
	for _, tc := range []struct {
		name    string
		mutate  func(d *Datasets)
		dataset string
	}{
		{"stops", func(d *Datasets) { d.Stops = []byte(`[{"stop_id": `) }, DatasetStops},
		{"routes", func(d *Datasets) { d.Routes = []byte(`[1, 2`) }, DatasetRoutes},
		{"trips", func(d *Datasets) { d.Trips = []byte(`[{"trip_id": "t"`) }, DatasetTrips},
		{"stop_times", func(d *Datasets) { d.StopTimes = []byte(`["x"]`) }, DatasetStopTimes},
		{"stops json object", func(d *Datasets) { d.Stops = []byte(`{"stops": [{"stop_id": "A"}]}`) }, DatasetStops},
		{"routes html page", func(d *Datasets) { d.Routes = []byte("<html>\n<body>Not here</body>\n</html>") }, DatasetRoutes},
		{"trips csv without trip_id", func(d *Datasets) { d.Trips = []byte("route_id,service_id\nr1,wk") }, DatasetTrips},
	} {
		t.Run(tc.name, func(t *testing.T) {
			data := fixtureJSON()
			tc.mutate(&data)

			s := storage.NewMemoryStorage()
			writer, err := s.GetWriter("test")
			require.NoError(t, err)

			err = ParseStatic(writer, data)
			require.Error(t, err)

			var dsErr *DatasetError
			require.True(t, errors.As(err, &dsErr))
			assert.Equal(t, tc.dataset, dsErr.Dataset)

			// Nothing from the failed parse is visible.
			_, err = s.GetReader("test")
			assert.Error(t, err)
		})
	}
}

func TestParseEmptyDatasets(t *testing.T) {
	reader := parseIntoMemory(t, Datasets{
		Stops:     nil,
		Routes:    []byte("[]"),
		Trips:     []byte(""),
		StopTimes: []byte("  \n"),
	})

	stops, err := reader.Stops()
	require.NoError(t, err)
	assert.Equal(t, 0, len(stops))

	stopTimes, err := reader.StopTimes()
	require.NoError(t, err)
	assert.Equal(t, 0, len(stopTimes))
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, DetectFormat([]byte(`[]`)))
	assert.Equal(t, FormatJSON, DetectFormat([]byte("\n  [{\"a\": 1}]")))
	assert.Equal(t, FormatJSON, DetectFormat([]byte("\xef\xbb\xbf[]")))
	assert.Equal(t, FormatCSV, DetectFormat([]byte("stop_id,stop_name")))
	assert.Equal(t, FormatCSV, DetectFormat([]byte("")))
}
