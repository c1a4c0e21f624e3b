package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"tidbyt.dev/findbus/model"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

// SQLite backed Storage. Each feed lives in its own database, which
// is a file in Directory when OnDisk is set and in memory otherwise.
type SQLiteStorage struct {
	SQLiteConfig

	mutex sync.Mutex
	feeds map[string]*sql.DB
}

type SQLiteFeedWriter struct {
	storage *SQLiteStorage
	feed    string
	tmpPath string

	db                  *sql.DB
	stopTimeInsertQuery *sql.Stmt
	stopTimeInsertTx    *sql.Tx
	tripInsertQuery     *sql.Stmt
	tripInsertTx        *sql.Tx
}

type SQLiteFeedReader struct {
	db *sql.DB
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	onDisk := false
	directory := ""
	if len(cfg) > 0 {
		onDisk = cfg[0].OnDisk
		directory = cfg[0].Directory
	}

	if onDisk {
		if err := os.MkdirAll(directory, 0755); err != nil {
			return nil, fmt.Errorf("creating directory: %w", err)
		}
	}

	return &SQLiteStorage{
		SQLiteConfig: SQLiteConfig{
			OnDisk:    onDisk,
			Directory: directory,
		},
		feeds: map[string]*sql.DB{},
	}, nil
}

func (s *SQLiteStorage) feedPath(feed string) string {
	return filepath.Join(s.Directory, feed+".db")
}

func (s *SQLiteStorage) GetReader(feed string) (FeedReader, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	db, found := s.feeds[feed]
	if found {
		return &SQLiteFeedReader{db: db}, nil
	}
	if !s.OnDisk {
		return nil, fmt.Errorf("feed %s does not exist", feed)
	}

	sourceName := s.feedPath(feed)
	if _, err := os.Stat(sourceName); os.IsNotExist(err) {
		return nil, fmt.Errorf("feed %s does not exist at %s", feed, sourceName)
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s.feeds[feed] = db

	return &SQLiteFeedReader{db: db}, nil
}

func (s *SQLiteStorage) GetWriter(feed string) (FeedWriter, error) {
	// Records go to a fresh database, which replaces the feed's
	// current one on Close. On disk, that's a temporary file renamed
	// into place.
	sourceName := ":memory:"
	tmpPath := ""
	if s.OnDisk {
		tmpPath = s.feedPath(feed) + ".tmp"
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing stale database: %w", err)
		}
		sourceName = tmpPath
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// An in-memory database only lives as long as its connection.
	db.SetMaxOpenConns(1)

	for _, table := range []struct {
		name  string
		query string
	}{
		{"stops", `
CREATE TABLE stops (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    lat REAL NOT NULL,
    lon REAL NOT NULL
);`},
		{"routes", `
CREATE TABLE routes (
    id TEXT PRIMARY KEY,
    short_name TEXT NOT NULL,
    long_name TEXT NOT NULL
);`},
		{"trips", `
CREATE TABLE trips (
    id TEXT PRIMARY KEY,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    headsign TEXT NOT NULL
);
CREATE INDEX trips_route_id ON trips (route_id);
`},
		{"stop_times", `
CREATE TABLE stop_times (
    trip_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL,
    arrival_time INTEGER NOT NULL,
    departure_time INTEGER NOT NULL
);
CREATE INDEX stop_times_trip_id ON stop_times (trip_id);
CREATE INDEX stop_times_stop_id ON stop_times (stop_id);
`},
	} {
		_, err = db.Exec(table.query)
		if err != nil {
			db.Close()
			if tmpPath != "" {
				os.Remove(tmpPath)
			}
			return nil, fmt.Errorf("creating %s table: %w", table.name, err)
		}
	}

	return &SQLiteFeedWriter{
		storage: s,
		feed:    feed,
		tmpPath: tmpPath,
		db:      db,
	}, nil
}

func (f *SQLiteFeedWriter) WriteStop(stop model.Stop) error {
	_, err := f.db.Exec(`
INSERT INTO stops (id, name, lat, lon)
VALUES (?, ?, ?, ?)`,
		stop.ID,
		stop.Name,
		stop.Lat,
		stop.Lon,
	)
	if err != nil {
		return fmt.Errorf("inserting stop: %w", err)
	}
	return nil
}

func (f *SQLiteFeedWriter) WriteRoute(route model.Route) error {
	_, err := f.db.Exec(`
INSERT INTO routes (id, short_name, long_name)
VALUES (?, ?, ?)`,
		route.ID,
		route.ShortName,
		route.LongName,
	)
	if err != nil {
		return fmt.Errorf("inserting route: %w", err)
	}
	return nil
}

func (f *SQLiteFeedWriter) BeginTrips() error {
	var err error
	f.tripInsertTx, err = f.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning trip insert transaction: %w", err)
	}

	f.tripInsertQuery, err = f.tripInsertTx.Prepare(`
INSERT INTO trips (id, route_id, service_id, headsign)
VALUES (?, ?, ?, ?)`)
	if err != nil {
		f.tripInsertTx.Rollback()
		f.tripInsertTx = nil
		return fmt.Errorf("preparing trip insert: %w", err)
	}

	return nil
}

func (f *SQLiteFeedWriter) WriteTrip(trip model.Trip) error {
	if f.tripInsertQuery == nil {
		return fmt.Errorf("writing trip outside BeginTrips/EndTrips")
	}

	_, err := f.tripInsertQuery.Exec(
		trip.ID,
		trip.RouteID,
		trip.ServiceID,
		trip.Headsign,
	)
	if err != nil {
		f.tripInsertQuery.Close()
		f.tripInsertTx.Rollback()
		f.tripInsertTx = nil
		f.tripInsertQuery = nil
		return fmt.Errorf("inserting trip: %w", err)
	}
	return nil
}

func (f *SQLiteFeedWriter) EndTrips() error {
	if f.tripInsertTx == nil {
		return fmt.Errorf("no trip transaction in progress")
	}

	f.tripInsertQuery.Close()
	err := f.tripInsertTx.Commit()
	if err != nil {
		return fmt.Errorf("committing trip insert transaction: %w", err)
	}
	f.tripInsertTx = nil
	f.tripInsertQuery = nil

	return nil
}

func (f *SQLiteFeedWriter) BeginStopTimes() error {
	// transaction with prepared statement.
	var err error
	f.stopTimeInsertTx, err = f.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning stop_time insert transaction: %w", err)
	}

	f.stopTimeInsertQuery, err = f.stopTimeInsertTx.Prepare(`
INSERT INTO stop_times (trip_id, stop_id, stop_sequence, arrival_time, departure_time)
VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		f.stopTimeInsertTx.Rollback()
		f.stopTimeInsertTx = nil
		return fmt.Errorf("preparing stop_time insert: %w", err)
	}

	return nil
}

func (f *SQLiteFeedWriter) WriteStopTime(stopTime model.StopTime) error {
	if f.stopTimeInsertQuery == nil {
		return fmt.Errorf("writing stop_time outside BeginStopTimes/EndStopTimes")
	}

	_, err := f.stopTimeInsertQuery.Exec(
		stopTime.TripID,
		stopTime.StopID,
		stopTime.StopSequence,
		stopTime.Arrival,
		stopTime.Departure,
	)
	if err != nil {
		f.stopTimeInsertQuery.Close()
		f.stopTimeInsertTx.Rollback()
		f.stopTimeInsertTx = nil
		f.stopTimeInsertQuery = nil
		return fmt.Errorf("inserting stop_time: %w", err)
	}

	return nil
}

func (f *SQLiteFeedWriter) EndStopTimes() error {
	if f.stopTimeInsertTx == nil {
		return fmt.Errorf("no stop_time transaction in progress")
	}

	// commit transaction and clean up
	f.stopTimeInsertQuery.Close()
	err := f.stopTimeInsertTx.Commit()
	if err != nil {
		return fmt.Errorf("committing stop_time insert transaction: %w", err)
	}
	f.stopTimeInsertTx = nil
	f.stopTimeInsertQuery = nil

	return nil
}

func (f *SQLiteFeedWriter) Close() error {
	if f.db == nil {
		return fmt.Errorf("writer already closed")
	}
	if f.tripInsertTx != nil || f.stopTimeInsertTx != nil {
		f.Abort()
		return fmt.Errorf("closing with a transaction in progress")
	}

	f.storage.mutex.Lock()
	defer f.storage.mutex.Unlock()

	if old, found := f.storage.feeds[f.feed]; found {
		old.Close()
		delete(f.storage.feeds, f.feed)
	}

	if f.tmpPath == "" {
		f.storage.feeds[f.feed] = f.db
		f.db = nil
		return nil
	}

	err := f.db.Close()
	f.db = nil
	if err != nil {
		os.Remove(f.tmpPath)
		return fmt.Errorf("closing database: %w", err)
	}

	err = os.Rename(f.tmpPath, f.storage.feedPath(f.feed))
	if err != nil {
		os.Remove(f.tmpPath)
		return fmt.Errorf("replacing database: %w", err)
	}

	return nil
}

// Abort rolls back any open transaction and drops the new database,
// leaving the feed as it was.
func (f *SQLiteFeedWriter) Abort() error {
	if f.db == nil {
		return nil
	}

	if f.tripInsertTx != nil {
		f.tripInsertQuery.Close()
		f.tripInsertTx.Rollback()
		f.tripInsertTx = nil
		f.tripInsertQuery = nil
	}
	if f.stopTimeInsertTx != nil {
		f.stopTimeInsertQuery.Close()
		f.stopTimeInsertTx.Rollback()
		f.stopTimeInsertTx = nil
		f.stopTimeInsertQuery = nil
	}

	err := f.db.Close()
	f.db = nil
	if f.tmpPath != "" {
		os.Remove(f.tmpPath)
	}
	if err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

func (f *SQLiteFeedReader) Stops() ([]model.Stop, error) {
	rows, err := f.db.Query(`
SELECT id, name, lat, lon
FROM stops
ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying stops: %w", err)
	}
	defer rows.Close()

	stops := []model.Stop{}
	for rows.Next() {
		s := model.Stop{}
		err := rows.Scan(&s.ID, &s.Name, &s.Lat, &s.Lon)
		if err != nil {
			return nil, fmt.Errorf("scanning stop: %w", err)
		}
		stops = append(stops, s)
	}

	return stops, rows.Err()
}

func (f *SQLiteFeedReader) Routes() ([]model.Route, error) {
	rows, err := f.db.Query(`
SELECT id, short_name, long_name
FROM routes
ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying routes: %w", err)
	}
	defer rows.Close()

	routes := []model.Route{}
	for rows.Next() {
		r := model.Route{}
		err := rows.Scan(&r.ID, &r.ShortName, &r.LongName)
		if err != nil {
			return nil, fmt.Errorf("scanning route: %w", err)
		}
		routes = append(routes, r)
	}

	return routes, rows.Err()
}

func (f *SQLiteFeedReader) Trips() ([]model.Trip, error) {
	rows, err := f.db.Query(`
SELECT id, route_id, service_id, headsign
FROM trips
ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying trips: %w", err)
	}
	defer rows.Close()

	trips := []model.Trip{}
	for rows.Next() {
		t := model.Trip{}
		err := rows.Scan(&t.ID, &t.RouteID, &t.ServiceID, &t.Headsign)
		if err != nil {
			return nil, fmt.Errorf("scanning trip: %w", err)
		}
		trips = append(trips, t)
	}

	return trips, rows.Err()
}

func (f *SQLiteFeedReader) StopTimes() ([]model.StopTime, error) {
	rows, err := f.db.Query(`
SELECT trip_id, stop_id, stop_sequence, arrival_time, departure_time
FROM stop_times
ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying stop times: %w", err)
	}
	defer rows.Close()

	stopTimes := []model.StopTime{}
	for rows.Next() {
		st := model.StopTime{}
		err := rows.Scan(
			&st.TripID,
			&st.StopID,
			&st.StopSequence,
			&st.Arrival,
			&st.Departure,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning stop time: %w", err)
		}
		stopTimes = append(stopTimes, st)
	}

	return stopTimes, rows.Err()
}
