package findbus

import (
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tidbyt.dev/findbus/model"
)

const (
	MaxSuggestedStops      = 60
	MaxSuggestedStopRoutes = 8
	MaxSuggestedNameRoutes = 6
)

// Query for trips. At least one of SourceStopID and SourceRouteID
// must be set.
type Query struct {
	SourceStopID  string
	SourceRouteID string
	DestStopID    string
	DestRouteID   string
}

type TripSearchEngine struct {
	Index   *TransitIndex
	Metrics Metrics
}

func NewTripSearchEngine(index *TransitIndex) *TripSearchEngine {
	return &TripSearchEngine{Index: index}
}

// Search finds trips going from the query's source to its
// destination, ordered by departure from the boarding stop.
//
// When both a source and a destination stop are given, only trips
// visiting the destination after the source are returned. If a stop
// occurs more than once on a trip, its last occurrence is the one
// considered. Trips with equal departure keep the order in which
// they were found. No matches is not an error.
func (e *TripSearchEngine) Search(q Query) ([]model.Match, error) {
	start := time.Now()

	if q.SourceStopID == "" && q.SourceRouteID == "" {
		return nil, ErrNoSource
	}

	candidates := e.candidates(q)

	matches := []model.Match{}
	for _, tripID := range candidates {
		trip, found := e.Index.Trip(tripID)
		if !found {
			continue
		}
		sts := e.Index.StopTimes(tripID)
		if len(sts) == 0 {
			continue
		}

		match, ok := matchTrip(q, sts)
		if !ok {
			continue
		}
		match.TripID = tripID
		match.RouteID = trip.RouteID

		board := match.BoardIndex
		if board < 0 {
			board = 0
		}
		match.Departure = sts[board].Departure

		matches = append(matches, match)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Departure < matches[j].Departure
	})

	log.Debug().
		Str("source_stop", q.SourceStopID).
		Str("source_route", q.SourceRouteID).
		Str("dest_stop", q.DestStopID).
		Str("dest_route", q.DestRouteID).
		Int("candidates", len(candidates)).
		Int("matches", len(matches)).
		Msg("Search")

	if e.Metrics != nil {
		e.Metrics.SearchObserve(time.Since(start), len(matches))
	}

	return matches, nil
}

// Trips worth checking against the query, narrowed by route.
func (e *TripSearchEngine) candidates(q Query) []string {
	var tripIDs []string
	if q.SourceStopID != "" {
		if cov := e.Index.Coverage(q.SourceStopID); cov != nil {
			tripIDs = cov.TripIDs
		}
	} else {
		tripIDs = e.Index.TripsForRoute(q.SourceRouteID)
	}

	routeID := q.SourceRouteID
	if routeID == "" {
		routeID = q.DestRouteID
	}
	if routeID == "" {
		return tripIDs
	}

	narrowed := []string{}
	for _, tripID := range tripIDs {
		if trip, found := e.Index.Trip(tripID); found && trip.RouteID == routeID {
			narrowed = append(narrowed, tripID)
		}
	}
	return narrowed
}

// Checks a single trip against the query's stop constraints.
func matchTrip(q Query, sts []model.StopTime) (model.Match, bool) {
	m := model.Match{BoardIndex: -1, AlightIndex: -1}

	if q.SourceStopID != "" {
		for i, st := range sts {
			if st.StopID == q.SourceStopID {
				m.BoardIndex = i
			}
			if q.DestStopID != "" && st.StopID == q.DestStopID {
				m.AlightIndex = i
			}
		}
		if m.BoardIndex < 0 {
			return m, false
		}
		if q.DestStopID != "" && m.AlightIndex <= m.BoardIndex {
			return m, false
		}
		return m, true
	}

	if q.DestStopID != "" {
		for i, st := range sts {
			if st.StopID == q.DestStopID {
				m.AlightIndex = i
			}
		}
		return m, m.AlightIndex >= 0
	}

	return m, true
}

// FindStopByName resolves free text to a stop ID. An exact
// case-insensitive name match wins; failing that, the first stop
// whose name contains the text. Stops are scanned in load order.
func (e *TripSearchEngine) FindStopByName(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", false
	}

	for _, id := range e.Index.stopOrder {
		if strings.ToLower(e.Index.stops[id].Name) == name {
			return id, true
		}
	}
	for _, id := range e.Index.stopOrder {
		if strings.Contains(strings.ToLower(e.Index.stops[id].Name), name) {
			return id, true
		}
	}

	return "", false
}

// ResolveStop accepts either a stop ID or something FindStopByName
// can resolve.
func (e *TripSearchEngine) ResolveStop(s string) (string, bool) {
	if _, found := e.Index.Stop(s); found {
		return s, true
	}
	return e.FindStopByName(s)
}

type RouteSuggestion struct {
	Route model.Route

	// A stop matching the query that the route passes. Empty when
	// the route was matched by name.
	ExampleStopID string
}

type Suggestions struct {
	Stops  []model.Stop
	Routes []RouteSuggestion
}

// Suggest offers stops and routes for partially typed text.
//
// Stops are those whose name contains the text, in name order. Routes
// are the first few passing any of those stops; if there are none,
// routes whose short or long name contains the text.
func (e *TripSearchEngine) Suggest(text string) Suggestions {
	s := Suggestions{Stops: []model.Stop{}, Routes: []RouteSuggestion{}}

	q := strings.ToLower(strings.TrimSpace(text))
	if q == "" {
		return s
	}

	for _, stop := range e.Index.Stops() {
		if strings.Contains(strings.ToLower(stop.Name), q) {
			s.Stops = append(s.Stops, stop)
			if len(s.Stops) >= MaxSuggestedStops {
				break
			}
		}
	}

	seen := map[string]bool{}
	for _, stop := range s.Stops {
		cov := e.Index.Coverage(stop.ID)
		if cov == nil {
			continue
		}
		for _, routeID := range cov.RouteIDs {
			if seen[routeID] {
				continue
			}
			seen[routeID] = true
			route, found := e.Index.Route(routeID)
			if !found {
				route = model.Route{ID: routeID}
			}
			s.Routes = append(s.Routes, RouteSuggestion{Route: route, ExampleStopID: stop.ID})
			if len(s.Routes) >= MaxSuggestedStopRoutes {
				return s
			}
		}
	}

	if len(s.Routes) > 0 {
		return s
	}

	for _, route := range e.Index.Routes() {
		if strings.Contains(strings.ToLower(route.ShortName), q) ||
			strings.Contains(strings.ToLower(route.LongName), q) {
			s.Routes = append(s.Routes, RouteSuggestion{Route: route})
			if len(s.Routes) >= MaxSuggestedNameRoutes {
				break
			}
		}
	}

	return s
}
