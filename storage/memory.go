package storage

import (
	"fmt"
	"sync"

	"tidbyt.dev/findbus/model"
)

// In memory implementation of Storage below

type MemoryStorage struct {
	mutex sync.Mutex
	Feeds map[string]*MemoryStorageFeed
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Feeds: map[string]*MemoryStorageFeed{},
	}
}

func (s *MemoryStorage) GetReader(feed string) (FeedReader, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	f, ok := s.Feeds[feed]
	if !ok {
		return nil, fmt.Errorf("feed %s does not exist", feed)
	}
	return f, nil
}

func (s *MemoryStorage) GetWriter(feed string) (FeedWriter, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return &MemoryFeedWriter{
		storage: s,
		name:    feed,
		feed:    &MemoryStorageFeed{},
	}, nil
}

// Collects records for a feed, which is swapped in on Close.
type MemoryFeedWriter struct {
	storage *MemoryStorage
	name    string
	feed    *MemoryStorageFeed
}

type MemoryStorageFeed struct {
	stops     []model.Stop
	routes    []model.Route
	trips     []model.Trip
	stopTimes []model.StopTime
}

func (w *MemoryFeedWriter) WriteStop(stop model.Stop) error {
	w.feed.stops = append(w.feed.stops, stop)
	return nil
}

func (w *MemoryFeedWriter) WriteRoute(route model.Route) error {
	w.feed.routes = append(w.feed.routes, route)
	return nil
}

func (w *MemoryFeedWriter) BeginTrips() error {
	return nil
}

func (w *MemoryFeedWriter) WriteTrip(trip model.Trip) error {
	w.feed.trips = append(w.feed.trips, trip)
	return nil
}

func (w *MemoryFeedWriter) EndTrips() error {
	return nil
}

func (w *MemoryFeedWriter) BeginStopTimes() error {
	return nil
}

func (w *MemoryFeedWriter) WriteStopTime(stopTime model.StopTime) error {
	w.feed.stopTimes = append(w.feed.stopTimes, stopTime)
	return nil
}

func (w *MemoryFeedWriter) EndStopTimes() error {
	return nil
}

func (w *MemoryFeedWriter) Close() error {
	if w.feed == nil {
		return fmt.Errorf("writer already closed")
	}

	w.storage.mutex.Lock()
	defer w.storage.mutex.Unlock()

	w.storage.Feeds[w.name] = w.feed
	w.feed = nil
	return nil
}

func (w *MemoryFeedWriter) Abort() error {
	w.feed = nil
	return nil
}

func (f *MemoryStorageFeed) Stops() ([]model.Stop, error) {
	return append([]model.Stop{}, f.stops...), nil
}

func (f *MemoryStorageFeed) Routes() ([]model.Route, error) {
	return append([]model.Route{}, f.routes...), nil
}

func (f *MemoryStorageFeed) Trips() ([]model.Trip, error) {
	return append([]model.Trip{}, f.trips...), nil
}

func (f *MemoryStorageFeed) StopTimes() ([]model.StopTime, error) {
	return append([]model.StopTime{}, f.stopTimes...), nil
}
