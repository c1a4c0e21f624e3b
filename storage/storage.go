package storage

import (
	"tidbyt.dev/findbus/model"
)

// Storage holds any number of parsed feeds, each identified by a
// caller chosen name.
type Storage interface {
	// Gets a reader for the named feed.
	GetReader(feed string) (FeedReader, error)

	// Gets a writer for the named feed. Existing records for the
	// feed are replaced when the writer is closed, and kept if it
	// is aborted.
	GetWriter(feed string) (FeedWriter, error)
}

// Writes records for a single feed.
//
// As stop_times tends to be very large, BeginStopTimes() and
// EndStopTimes() are called before and after all calls to
// WriteStopTime(), allowing transactions/batching/whathaveyou. Same
// goes for trips.
//
// Nothing written is visible to readers until Close(). Abort()
// discards everything written, and may be called at any point,
// including between Begin and End.
type FeedWriter interface {
	WriteStop(stop model.Stop) error
	WriteRoute(route model.Route) error
	BeginTrips() error
	WriteTrip(trip model.Trip) error
	EndTrips() error
	BeginStopTimes() error
	WriteStopTime(stopTime model.StopTime) error
	EndStopTimes() error
	Close() error
	Abort() error
}

// Reads back records of a single feed.
//
// All methods return records in the order they were written. Callers
// rely on this, e.g. when resolving a stop name to the first matching
// stop.
type FeedReader interface {
	Stops() ([]model.Stop, error)
	Routes() ([]model.Route, error)
	Trips() ([]model.Trip, error)
	StopTimes() ([]model.StopTime, error)
}
