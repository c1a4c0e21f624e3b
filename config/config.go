package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	// Directory holding bus_*.json or GTFS *.txt datasets.
	Dir string

	// Explicit dataset locations, overriding Dir.
	Stops     string
	Routes    string
	Trips     string
	StopTimes string

	DBDriver string `validate:"oneof=memory sqlite postgres"`
	// SQLite directory, or Postgres connection string.
	DBDSN string `validate:"required_if=DBDriver postgres"`
	Feed  string `validate:"required"`

	TickInterval    time.Duration `validate:"gt=0"`
	SpeedMultiplier float64       `validate:"gt=0"`

	FetchTimeout time.Duration `validate:"gt=0"`
	FetchMaxSize int           `validate:"gte=0"`
	CacheTTL     time.Duration `validate:"gte=0"`

	// Empty disables publishing.
	NATSURL         string `validate:"omitempty,url"`
	LogNATSSubjects bool

	// Empty disables the metrics server, e.g. ":9102".
	MetricsAddr string
}

// Load reads configuration from FINDBUS_* environment variables,
// after loading .env files (by default ./.env) into the environment.
// Missing .env files are ignored.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	cfg := &Config{
		Dir:       getenvDefault("FINDBUS_DIR", "."),
		Stops:     os.Getenv("FINDBUS_STOPS"),
		Routes:    os.Getenv("FINDBUS_ROUTES"),
		Trips:     os.Getenv("FINDBUS_TRIPS"),
		StopTimes: os.Getenv("FINDBUS_STOP_TIMES"),

		DBDriver: strings.ToLower(getenvDefault("FINDBUS_DB_DRIVER", DriverMemory)),
		DBDSN:    os.Getenv("FINDBUS_DB_DSN"),
		Feed:     getenvDefault("FINDBUS_FEED", "default"),

		NATSURL:         os.Getenv("FINDBUS_NATS_URL"),
		LogNATSSubjects: parseBool(os.Getenv("FINDBUS_LOG_NATS_SUBJECTS")),
		MetricsAddr:     os.Getenv("FINDBUS_METRICS_ADDR"),
	}

	var err error

	cfg.TickInterval, err = durationEnv("FINDBUS_TICK_INTERVAL", 700*time.Millisecond)
	if err != nil {
		return nil, err
	}

	cfg.FetchTimeout, err = durationEnv("FINDBUS_FETCH_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}

	cfg.CacheTTL, err = durationEnv("FINDBUS_CACHE_TTL", 0)
	if err != nil {
		return nil, err
	}

	cfg.SpeedMultiplier = 8
	if v := os.Getenv("FINDBUS_SPEED_MULTIPLIER"); v != "" {
		cfg.SpeedMultiplier, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid FINDBUS_SPEED_MULTIPLIER: %q", v)
		}
	}

	cfg.FetchMaxSize = 800 << 20
	if v := os.Getenv("FINDBUS_FETCH_MAX_SIZE"); v != "" {
		cfg.FetchMaxSize, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid FINDBUS_FETCH_MAX_SIZE: %q", v)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field constraints. Call again after overriding
// values, e.g. from command line flags.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Durations are Go duration strings ("700ms", "1m"), or a bare number
// of milliseconds.
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
