package findbus

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"tidbyt.dev/findbus/model"
	"tidbyt.dev/findbus/storage"
)

// Routes and trips visiting a stop, in the order they were first
// seen among the stop times.
type Coverage struct {
	RouteIDs []string
	TripIDs  []string

	routeSeen map[string]bool
	tripSeen  map[string]bool
}

func newCoverage() *Coverage {
	return &Coverage{
		routeSeen: map[string]bool{},
		tripSeen:  map[string]bool{},
	}
}

func (c *Coverage) add(routeID string, tripID string) {
	if !c.routeSeen[routeID] {
		c.routeSeen[routeID] = true
		c.RouteIDs = append(c.RouteIDs, routeID)
	}
	if !c.tripSeen[tripID] {
		c.tripSeen[tripID] = true
		c.TripIDs = append(c.TripIDs, tripID)
	}
}

// HasRoute reports whether any trip of the route visits the stop.
func (c *Coverage) HasRoute(routeID string) bool {
	return c.routeSeen[routeID]
}

// HasTrip reports whether the trip visits the stop.
func (c *Coverage) HasTrip(tripID string) bool {
	return c.tripSeen[tripID]
}

type Counts struct {
	Stops     int
	Routes    int
	Trips     int
	StopTimes int
}

// TransitIndex holds everything searches and simulations need. It
// is never modified after BuildIndex returns, and can be shared
// freely between goroutines.
type TransitIndex struct {
	stops       map[string]model.Stop
	stopOrder   []string
	stopsByName []model.Stop

	routes       map[string]model.Route
	routeOrder   []string
	tripsByRoute map[string][]string

	trips     map[string]model.Trip
	stopTimes map[string][]model.StopTime

	coverage map[string]*Coverage

	counts Counts
}

// BuildIndex reads a feed and indexes it.
//
// Stop times referring to unknown trips are kept (so the trip's
// sequence exists) but don't contribute to coverage. Neither do stop
// times referring to unknown stops.
func BuildIndex(reader storage.FeedReader) (*TransitIndex, error) {
	idx := &TransitIndex{
		stops:        map[string]model.Stop{},
		routes:       map[string]model.Route{},
		tripsByRoute: map[string][]string{},
		trips:        map[string]model.Trip{},
		stopTimes:    map[string][]model.StopTime{},
		coverage:     map[string]*Coverage{},
	}

	stops, err := reader.Stops()
	if err != nil {
		return nil, fmt.Errorf("reading stops: %w", err)
	}
	for _, stop := range stops {
		if _, found := idx.stops[stop.ID]; found {
			continue
		}
		idx.stops[stop.ID] = stop
		idx.stopOrder = append(idx.stopOrder, stop.ID)
		idx.coverage[stop.ID] = newCoverage()
	}

	routes, err := reader.Routes()
	if err != nil {
		return nil, fmt.Errorf("reading routes: %w", err)
	}
	for _, route := range routes {
		if _, found := idx.routes[route.ID]; found {
			continue
		}
		idx.routes[route.ID] = route
		idx.routeOrder = append(idx.routeOrder, route.ID)
		idx.tripsByRoute[route.ID] = []string{}
	}

	trips, err := reader.Trips()
	if err != nil {
		return nil, fmt.Errorf("reading trips: %w", err)
	}
	for _, trip := range trips {
		if _, found := idx.trips[trip.ID]; found {
			continue
		}
		idx.trips[trip.ID] = trip
		idx.tripsByRoute[trip.RouteID] = append(idx.tripsByRoute[trip.RouteID], trip.ID)
	}

	stopTimes, err := reader.StopTimes()
	if err != nil {
		return nil, fmt.Errorf("reading stop times: %w", err)
	}
	for _, st := range stopTimes {
		idx.stopTimes[st.TripID] = append(idx.stopTimes[st.TripID], st)

		trip, found := idx.trips[st.TripID]
		if !found {
			continue
		}
		if cov, found := idx.coverage[st.StopID]; found {
			cov.add(trip.RouteID, trip.ID)
		}
	}

	for tripID, sts := range idx.stopTimes {
		sort.SliceStable(sts, func(i, j int) bool {
			return sts[i].StopSequence < sts[j].StopSequence
		})
		checkSequence(tripID, sts)
	}

	idx.stopsByName = make([]model.Stop, 0, len(idx.stopOrder))
	for _, id := range idx.stopOrder {
		idx.stopsByName = append(idx.stopsByName, idx.stops[id])
	}
	col := collate.New(language.Und)
	sort.SliceStable(idx.stopsByName, func(i, j int) bool {
		return col.CompareString(idx.stopsByName[i].Name, idx.stopsByName[j].Name) < 0
	})

	idx.counts = Counts{
		Stops:     len(idx.stops),
		Routes:    len(idx.routes),
		Trips:     len(idx.trips),
		StopTimes: len(stopTimes),
	}

	log.Debug().
		Int("stops", idx.counts.Stops).
		Int("routes", idx.counts.Routes).
		Int("trips", idx.counts.Trips).
		Int("stop_times", idx.counts.StopTimes).
		Msg("Built transit index")

	return idx, nil
}

// Duplicate stop_sequence values and times running backwards are
// tolerated, but worth knowing about.
func checkSequence(tripID string, sts []model.StopTime) {
	for i := 1; i < len(sts); i++ {
		if sts[i].StopSequence == sts[i-1].StopSequence {
			log.Warn().
				Str("trip_id", tripID).
				Int("stop_sequence", sts[i].StopSequence).
				Msg("Duplicate stop_sequence")
			return
		}
		if sts[i].ArrivalOrDeparture() < sts[i-1].DepartureOrArrival() {
			log.Warn().
				Str("trip_id", tripID).
				Int("stop_sequence", sts[i].StopSequence).
				Msg("Stop times not monotonic")
			return
		}
	}
}

func (idx *TransitIndex) Stop(id string) (model.Stop, bool) {
	s, ok := idx.stops[id]
	return s, ok
}

func (idx *TransitIndex) Route(id string) (model.Route, bool) {
	r, ok := idx.routes[id]
	return r, ok
}

func (idx *TransitIndex) Trip(id string) (model.Trip, bool) {
	t, ok := idx.trips[id]
	return t, ok
}

// StopTimes returns the trip's stop times, ordered by stop_sequence.
// The slice is shared and must not be modified.
func (idx *TransitIndex) StopTimes(tripID string) []model.StopTime {
	return idx.stopTimes[tripID]
}

// TripsForRoute returns trip IDs of the route in load order.
func (idx *TransitIndex) TripsForRoute(routeID string) []string {
	return idx.tripsByRoute[routeID]
}

// Coverage returns the routes and trips visiting a stop, or nil for
// unknown stops.
func (idx *TransitIndex) Coverage(stopID string) *Coverage {
	return idx.coverage[stopID]
}

// Stops returns all stops sorted by name.
func (idx *TransitIndex) Stops() []model.Stop {
	return idx.stopsByName
}

// Routes returns all declared routes in load order.
func (idx *TransitIndex) Routes() []model.Route {
	routes := make([]model.Route, 0, len(idx.routeOrder))
	for _, id := range idx.routeOrder {
		routes = append(routes, idx.routes[id])
	}
	return routes
}

func (idx *TransitIndex) Counts() Counts {
	return idx.counts
}

// StopName resolves a stop ID to its name, falling back to the ID
// for stops not in the feed.
func (idx *TransitIndex) StopName(stopID string) string {
	if s, ok := idx.stops[stopID]; ok && s.Name != "" {
		return s.Name
	}
	return stopID
}
