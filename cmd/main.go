package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"tidbyt.dev/findbus"
	"tidbyt.dev/findbus/config"
	"tidbyt.dev/findbus/downloader"
	"tidbyt.dev/findbus/metrics"
	"tidbyt.dev/findbus/storage"
)

var rootCmd = &cobra.Command{
	Use:               "findbus",
	Short:             "Transit trip finder",
	Long:              "Finds trips between stops and replays them on a simulated clock",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	stopsURL     string
	routesURL    string
	tripsURL     string
	stopTimesURL string
	dataDir      string
	dbDriver     string
	dbDSN        string
	feedName     string
	headers      []string

	cfg       *config.Config
	collector *metrics.Collector
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&stopsURL, "stops", "", "", "Stops dataset (URL or path)")
	rootCmd.PersistentFlags().StringVarP(&routesURL, "routes", "", "", "Routes dataset (URL or path)")
	rootCmd.PersistentFlags().StringVarP(&tripsURL, "trips", "", "", "Trips dataset (URL or path)")
	rootCmd.PersistentFlags().StringVarP(&stopTimesURL, "stop-times", "", "", "Stop times dataset (URL or path)")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "dir", "", "", "Directory holding bus_*.json or GTFS *.txt datasets")
	rootCmd.PersistentFlags().StringVarP(&dbDriver, "db", "", "", "Storage backend: memory, sqlite or postgres")
	rootCmd.PersistentFlags().StringVarP(&dbDSN, "dsn", "", "", "SQLite directory or Postgres connection string")
	rootCmd.PersistentFlags().StringVarP(&feedName, "feed", "", "", "Read a previously imported feed from storage")
	rootCmd.PersistentFlags().StringSliceVarP(
		&headers,
		"header",
		"",
		[]string{},
		"HTTP header sent when fetching datasets",
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func setupLogging() {
	if os.Getenv("FINDBUS_LOG_FORMAT") != "JSON" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	if os.Getenv("FINDBUS_DEBUG") == "YES" {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}
}

// Loads config, with command line flags taking precedence.
func setup(cmd *cobra.Command, args []string) error {
	setupLogging()

	var err error
	cfg, err = config.Load()
	if err != nil {
		return err
	}

	override := func(dst *string, flag string, value string) {
		if cmd.Flags().Changed(flag) {
			*dst = value
		}
	}
	override(&cfg.Stops, "stops", stopsURL)
	override(&cfg.Routes, "routes", routesURL)
	override(&cfg.Trips, "trips", tripsURL)
	override(&cfg.StopTimes, "stop-times", stopTimesURL)
	override(&cfg.Dir, "dir", dataDir)
	override(&cfg.DBDriver, "db", strings.ToLower(dbDriver))
	override(&cfg.DBDSN, "dsn", dbDSN)
	override(&cfg.Feed, "feed", feedName)

	if err := cfg.Validate(); err != nil {
		return err
	}

	collector = metrics.NewCollector(cfg.SpeedMultiplier, cfg.TickInterval)
	if cfg.MetricsAddr != "" {
		collector.Serve(cfg.MetricsAddr)
	}

	return nil
}

func parseHeaders(headers []string) (map[string]string, error) {
	parsed := map[string]string{}
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("'%s' is not on form <key>:<value>", header)
		}
		parsed[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return parsed, nil
}

// Dataset locations from config. Explicit locations override those
// found in the data directory.
func sources() findbus.Sources {
	src := findbus.DirSources(cfg.Dir)
	if cfg.Stops != "" {
		src.Stops = cfg.Stops
	}
	if cfg.Routes != "" {
		src.Routes = cfg.Routes
	}
	if cfg.Trips != "" {
		src.Trips = cfg.Trips
	}
	if cfg.StopTimes != "" {
		src.StopTimes = cfg.StopTimes
	}
	return src
}

func buildStorage() (storage.Storage, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		dir := cfg.DBDSN
		if dir == "" {
			dir = "."
		}
		return storage.NewSQLiteStorage(storage.SQLiteConfig{OnDisk: true, Directory: dir})
	case config.DriverPostgres:
		return storage.NewPSQLStorage(cfg.DBDSN, false)
	}
	return storage.NewMemoryStorage(), nil
}

func newLoader() (*findbus.Loader, error) {
	s, err := buildStorage()
	if err != nil {
		return nil, fmt.Errorf("creating storage: %w", err)
	}

	h, err := parseHeaders(headers)
	if err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	loader := findbus.NewLoader()
	loader.Downloader = downloader.NewRouter(cfg.Dir)
	loader.Storage = s
	loader.Feed = cfg.Feed
	loader.Headers = h
	loader.Timeout = cfg.FetchTimeout
	loader.MaxSize = cfg.FetchMaxSize
	loader.CacheTTL = cfg.CacheTTL
	loader.Metrics = collector

	return loader, nil
}

// Builds the index, either from an imported feed (when --feed is
// given with a persistent backend) or by loading the datasets.
func loadIndex(ctx context.Context, cmd *cobra.Command) (*findbus.TransitIndex, error) {
	loader, err := newLoader()
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("feed") && cfg.DBDriver != config.DriverMemory {
		reader, err := loader.Storage.GetReader(cfg.Feed)
		if err != nil {
			return nil, fmt.Errorf("reading feed %s (import it first): %w", cfg.Feed, err)
		}
		return loader.LoadFromStorage(reader)
	}

	return loader.Load(ctx, sources())
}

func newEngine(index *findbus.TransitIndex) *findbus.TripSearchEngine {
	engine := findbus.NewTripSearchEngine(index)
	engine.Metrics = collector
	return engine
}
