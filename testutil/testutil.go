package testutil

// Helpers for building feeds in tests.

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"tidbyt.dev/findbus"
	"tidbyt.dev/findbus/parse"
	"tidbyt.dev/findbus/storage"
)

// Builds Datasets from CSV lines. Missing datasets get a bare header.
func BuildDatasets(files map[string][]string) parse.Datasets {
	get := func(name string, header string) []byte {
		lines, ok := files[name]
		if !ok {
			lines = []string{header}
		}
		return []byte(strings.Join(lines, "\n"))
	}

	return parse.Datasets{
		Stops:     get("stops.txt", "stop_id,stop_name,stop_lat,stop_lon"),
		Routes:    get("routes.txt", "route_id,route_short_name,route_long_name"),
		Trips:     get("trips.txt", "trip_id,route_id,service_id"),
		StopTimes: get("stop_times.txt", "trip_id,stop_id,stop_sequence,arrival_time,departure_time"),
	}
}

// Parses datasets into a fresh memory storage and returns a reader
// for the feed.
func LoadFeed(t testing.TB, data parse.Datasets) storage.FeedReader {
	s := storage.NewMemoryStorage()

	writer, err := s.GetWriter("test")
	require.NoError(t, err)
	require.NoError(t, parse.ParseStatic(writer, data))

	reader, err := s.GetReader("test")
	require.NoError(t, err)

	return reader
}

// BuildIndex indexes a feed given as CSV lines per file name, e.g.
// "stops.txt".
func BuildIndex(t testing.TB, files map[string][]string) *findbus.TransitIndex {
	index, err := findbus.BuildIndex(LoadFeed(t, BuildDatasets(files)))
	require.NoError(t, err)
	return index
}
