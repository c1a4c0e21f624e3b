package storage

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"tidbyt.dev/findbus/model"
)

const (
	PSQLTripBatchSize     = 10000
	PSQLStopTimeBatchSize = 5000
)

// Postgres backed Storage. All feeds share the same tables, keyed by
// feed name. Rows carry a per-feed sequence number so that readers can
// return them in write order.
type PSQLStorage struct {
	db *sql.DB
}

type PSQLFeedWriter struct {
	id          string
	db          *sql.DB
	tx          *sql.Tx
	seq         int64
	tripBuf     []model.Trip
	stopTimeBuf []model.StopTime
}

type PSQLFeedReader struct {
	id string
	db *sql.DB
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, the database will be cleared on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if clearDB {
		_, err = db.Exec(`
DROP TABLE IF EXISTS stops;
DROP TABLE IF EXISTS routes;
DROP TABLE IF EXISTS trips;
DROP TABLE IF EXISTS stop_times;
`)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("clearing db: %w", err)
		}
	}

	for _, table := range []struct {
		name  string
		query string
	}{
		{"stops", `
CREATE TABLE IF NOT EXISTS stops (
    feed TEXT NOT NULL,
    seq BIGINT NOT NULL,
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL,
    PRIMARY KEY(feed, id)
);`},
		{"routes", `
CREATE TABLE IF NOT EXISTS routes (
    feed TEXT NOT NULL,
    seq BIGINT NOT NULL,
    id TEXT NOT NULL,
    short_name TEXT NOT NULL,
    long_name TEXT NOT NULL,
    PRIMARY KEY(feed, id)
);`},
		{"trips", `
CREATE TABLE IF NOT EXISTS trips (
    feed TEXT NOT NULL,
    seq BIGINT NOT NULL,
    id TEXT NOT NULL,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    headsign TEXT NOT NULL,
    PRIMARY KEY(feed, id)
);
CREATE INDEX IF NOT EXISTS trips_route_id ON trips (feed, route_id);
`},
		{"stop_times", `
CREATE TABLE IF NOT EXISTS stop_times (
    feed TEXT NOT NULL,
    seq BIGINT NOT NULL,
    trip_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL,
    arrival_time INTEGER NOT NULL,
    departure_time INTEGER NOT NULL,
    PRIMARY KEY(feed, seq)
);
CREATE INDEX IF NOT EXISTS stop_times_trip_id ON stop_times (feed, trip_id);
`},
	} {
		_, err := db.Exec(table.query)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating %s table: %w", table.name, err)
		}
	}

	return &PSQLStorage{db: db}, nil
}

func (s *PSQLStorage) Close() error {
	return s.db.Close()
}

func (s *PSQLStorage) GetReader(feed string) (FeedReader, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM stops WHERE feed = $1`, feed).Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("checking feed: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("feed %s does not exist", feed)
	}

	return &PSQLFeedReader{
		id: feed,
		db: s.db,
	}, nil
}

func (s *PSQLStorage) GetWriter(feed string) (FeedWriter, error) {
	// The whole feed is replaced in a single transaction, committed
	// on Close.
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}

	for _, name := range []string{"stops", "routes", "trips", "stop_times"} {
		_, err := tx.Exec(`DELETE FROM `+name+` WHERE feed = $1`, feed)
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("deleting %s records: %w", name, err)
		}
	}

	return &PSQLFeedWriter{
		id: feed,
		db: s.db,
		tx: tx,
	}, nil
}

func (w *PSQLFeedWriter) nextSeq() int64 {
	w.seq++
	return w.seq
}

func (w *PSQLFeedWriter) WriteStop(stop model.Stop) error {
	_, err := w.tx.Exec(`
INSERT INTO stops (feed, seq, id, name, lat, lon)
VALUES ($1, $2, $3, $4, $5, $6)`,
		w.id,
		w.nextSeq(),
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

func (w *PSQLFeedWriter) WriteRoute(route model.Route) error {
	_, err := w.tx.Exec(`
INSERT INTO routes (feed, seq, id, short_name, long_name)
VALUES ($1, $2, $3, $4, $5)`,
		w.id,
		w.nextSeq(),
		route.ID,
		route.ShortName,
		route.LongName,
	)
	if err != nil {
		return fmt.Errorf("inserting route: %w", err)
	}
	return nil
}

func (w *PSQLFeedWriter) BeginTrips() error {
	return nil
}

func (w *PSQLFeedWriter) WriteTrip(trip model.Trip) error {
	w.tripBuf = append(w.tripBuf, trip)

	if len(w.tripBuf) >= PSQLTripBatchSize {
		err := w.flushTrips()
		if err != nil {
			return fmt.Errorf("flushing trips: %w", err)
		}
	}

	return nil
}

func (w *PSQLFeedWriter) EndTrips() error {
	if len(w.tripBuf) > 0 {
		err := w.flushTrips()
		if err != nil {
			return fmt.Errorf("flushing trips: %w", err)
		}
	}
	return nil
}

func (w *PSQLFeedWriter) flushTrips() error {
	stmt, err := w.tx.Prepare(pq.CopyIn(
		"trips", "feed", "seq", "id", "route_id", "service_id", "headsign",
	))
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, trip := range w.tripBuf {
		_, err = stmt.Exec(
			w.id, w.nextSeq(), trip.ID, trip.RouteID, trip.ServiceID, trip.Headsign,
		)
		if err != nil {
			return fmt.Errorf("COPY trip: %w", err)
		}
	}

	_, err = stmt.Exec()
	if err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}

	w.tripBuf = nil

	return nil
}

func (w *PSQLFeedWriter) BeginStopTimes() error {
	return nil
}

func (w *PSQLFeedWriter) WriteStopTime(stopTime model.StopTime) error {
	w.stopTimeBuf = append(w.stopTimeBuf, stopTime)

	if len(w.stopTimeBuf) >= PSQLStopTimeBatchSize {
		err := w.flushStopTimes()
		if err != nil {
			return fmt.Errorf("flushing stop_times: %w", err)
		}
	}

	return nil
}

func (w *PSQLFeedWriter) EndStopTimes() error {
	if len(w.stopTimeBuf) > 0 {
		err := w.flushStopTimes()
		if err != nil {
			return fmt.Errorf("flushing stop_times: %w", err)
		}
	}
	return nil
}

func (w *PSQLFeedWriter) flushStopTimes() error {
	stmt, err := w.tx.Prepare(pq.CopyIn(
		"stop_times", "feed", "seq", "trip_id", "stop_id", "stop_sequence", "arrival_time", "departure_time",
	))
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, stopTime := range w.stopTimeBuf {
		_, err = stmt.Exec(
			w.id,
			w.nextSeq(),
			stopTime.TripID,
			stopTime.StopID,
			stopTime.StopSequence,
			stopTime.Arrival,
			stopTime.Departure,
		)
		if err != nil {
			return fmt.Errorf("COPY stop_time: %w", err)
		}
	}

	_, err = stmt.Exec()
	if err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}

	w.stopTimeBuf = nil

	return nil
}

func (w *PSQLFeedWriter) Close() error {
	if w.tx == nil {
		return fmt.Errorf("writer already closed")
	}

	err := w.tx.Commit()
	w.tx = nil
	if err != nil {
		return fmt.Errorf("committing feed: %w", err)
	}

	_, err = w.db.Exec(`ANALYZE`)
	if err != nil {
		return fmt.Errorf("analyzing: %w", err)
	}
	return nil
}

func (w *PSQLFeedWriter) Abort() error {
	if w.tx == nil {
		return nil
	}

	err := w.tx.Rollback()
	w.tx = nil
	w.tripBuf = nil
	w.stopTimeBuf = nil
	if err != nil {
		return fmt.Errorf("rolling back feed: %w", err)
	}
	return nil
}

func (r *PSQLFeedReader) Stops() ([]model.Stop, error) {
	rows, err := r.db.Query(`
SELECT id, name, lat, lon
FROM stops
WHERE feed = $1
ORDER BY seq`, r.id)
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

func (r *PSQLFeedReader) Routes() ([]model.Route, error) {
	rows, err := r.db.Query(`
SELECT id, short_name, long_name
FROM routes
WHERE feed = $1
ORDER BY seq`, r.id)
	if err != nil {
		return nil, fmt.Errorf("querying routes: %w", err)
	}
	defer rows.Close()

	routes := []model.Route{}
	for rows.Next() {
		route := model.Route{}
		err := rows.Scan(&route.ID, &route.ShortName, &route.LongName)
		if err != nil {
			return nil, fmt.Errorf("scanning route: %w", err)
		}
		routes = append(routes, route)
	}

	return routes, rows.Err()
}

func (r *PSQLFeedReader) Trips() ([]model.Trip, error) {
	rows, err := r.db.Query(`
SELECT id, route_id, service_id, headsign
FROM trips
WHERE feed = $1
ORDER BY seq`, r.id)
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

func (r *PSQLFeedReader) StopTimes() ([]model.StopTime, error) {
	rows, err := r.db.Query(`
SELECT trip_id, stop_id, stop_sequence, arrival_time, departure_time
FROM stop_times
WHERE feed = $1
ORDER BY seq`, r.id)
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
