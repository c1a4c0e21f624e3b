package findbus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"tidbyt.dev/findbus/downloader"
	"tidbyt.dev/findbus/parse"
	"tidbyt.dev/findbus/storage"
)

const (
	DefaultFeed         = "default"
	DefaultFetchTimeout = 60 * time.Second
	DefaultFetchMaxSize = 800 << 20 // 800 MB
)

// Locations of the four datasets. Each is an http(s) URL, a file://
// URL or a path.
type Sources struct {
	Stops     string
	Routes    string
	Trips     string
	StopTimes string
}

// DirSources locates datasets in a directory. The bus_*.json files
// are preferred, with GTFS *.txt files as fallback.
func DirSources(dir string) Sources {
	pick := func(jsonName, txtName string) string {
		p := filepath.Join(dir, jsonName)
		if _, err := os.Stat(p); err == nil {
			return p
		}
		return filepath.Join(dir, txtName)
	}

	return Sources{
		Stops:     pick("bus_stops.json", "stops.txt"),
		Routes:    pick("bus_routes.json", "routes.txt"),
		Trips:     pick("bus_trips.json", "trips.txt"),
		StopTimes: pick("bus_stop_times.json", "stop_times.txt"),
	}
}

// Loader fetches datasets, stores them and builds TransitIndexes.
type Loader struct {
	Downloader downloader.Downloader
	Storage    storage.Storage
	Feed       string
	Headers    map[string]string
	Timeout    time.Duration
	MaxSize    int
	CacheTTL   time.Duration
	Metrics    Metrics
}

// NewLoader creates a Loader keeping feeds in memory.
func NewLoader() *Loader {
	return &Loader{
		Downloader: downloader.NewRouter(""),
		Storage:    storage.NewMemoryStorage(),
		Feed:       DefaultFeed,
		Timeout:    DefaultFetchTimeout,
		MaxSize:    DefaultFetchMaxSize,
	}
}

// Load fetches, parses and indexes the four datasets.
//
// This is all or nothing: if any dataset can't be fetched or parsed,
// a *LoadError is returned and no index is built.
func (l *Loader) Load(ctx context.Context, src Sources) (*TransitIndex, error) {
	start := time.Now()

	index, err := l.load(ctx, src)
	if l.Metrics != nil {
		l.Metrics.LoadObserve(time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}

	counts := index.Counts()
	log.Info().
		Int("stops", counts.Stops).
		Int("routes", counts.Routes).
		Int("trips", counts.Trips).
		Int("stop_times", counts.StopTimes).
		Dur("took", time.Since(start)).
		Msg("Loaded datasets")

	return index, nil
}

func (l *Loader) load(ctx context.Context, src Sources) (*TransitIndex, error) {
	err := l.Import(ctx, src)
	if err != nil {
		return nil, err
	}

	reader, err := l.Storage.GetReader(l.Feed)
	if err != nil {
		return nil, fmt.Errorf("getting feed reader: %w", err)
	}

	return l.LoadFromStorage(reader)
}

// Import fetches and parses the datasets into the Loader's storage,
// replacing whatever the feed held before.
func (l *Loader) Import(ctx context.Context, src Sources) error {
	data, err := l.Fetch(ctx, src)
	if err != nil {
		return err
	}

	writer, err := l.Storage.GetWriter(l.Feed)
	if err != nil {
		return fmt.Errorf("getting feed writer: %w", err)
	}

	err = parse.ParseStatic(writer, data)
	if err != nil {
		var dsErr *parse.DatasetError
		if errors.As(err, &dsErr) {
			return &LoadError{Kind: ParseError, Dataset: dsErr.Dataset, Err: dsErr.Err}
		}
		return fmt.Errorf("parsing datasets: %w", err)
	}

	return nil
}

// LoadFromStorage indexes a previously imported feed.
func (l *Loader) LoadFromStorage(reader storage.FeedReader) (*TransitIndex, error) {
	index, err := BuildIndex(reader)
	if err != nil {
		return nil, fmt.Errorf("building index: %w", err)
	}
	return index, nil
}

// Fetch retrieves all four datasets concurrently. The first failure
// cancels the remaining fetches and is returned as a *LoadError.
func (l *Loader) Fetch(ctx context.Context, src Sources) (parse.Datasets, error) {
	data := parse.Datasets{}

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()

	for _, ds := range []struct {
		name     string
		location string
		dst      *[]byte
	}{
		{parse.DatasetStops, src.Stops, &data.Stops},
		{parse.DatasetRoutes, src.Routes, &data.Routes},
		{parse.DatasetTrips, src.Trips, &data.Trips},
		{parse.DatasetStopTimes, src.StopTimes, &data.StopTimes},
	} {
		ds := ds
		p.Go(func(ctx context.Context) error {
			buf, err := l.fetch(ctx, ds.location)
			if err != nil {
				return &LoadError{Kind: MissingDataset, Dataset: ds.name, Err: err}
			}
			*ds.dst = buf
			log.Debug().
				Str("dataset", ds.name).
				Str("location", ds.location).
				Int("bytes", len(buf)).
				Str("format", parse.DetectFormat(buf).String()).
				Msg("Fetched dataset")
			return nil
		})
	}

	err := p.Wait()
	if err != nil {
		return parse.Datasets{}, err
	}

	return data, nil
}

func (l *Loader) fetch(ctx context.Context, location string) ([]byte, error) {
	if location == "" {
		return nil, fmt.Errorf("no location given")
	}

	buf, err := l.Downloader.Get(ctx, location, l.Headers, downloader.GetOptions{
		Timeout:  l.Timeout,
		MaxSize:  l.MaxSize,
		Cache:    l.CacheTTL > 0,
		CacheTTL: l.CacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", location, err)
	}

	return buf, nil
}
