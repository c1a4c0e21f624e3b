package model

import (
	"time"
)

// Holds all external facing types and constants.

type Stop struct {
	ID   string
	Name string
	Lat  float64
	Lon  float64
}

type Route struct {
	ID        string
	ShortName string
	LongName  string
}

// Label is the name a rider would recognize the route by: short name,
// long name, or as a last resort the route_id.
func (r Route) Label() string {
	if r.ShortName != "" {
		return r.ShortName
	}
	if r.LongName != "" {
		return r.LongName
	}
	return r.ID
}

type Trip struct {
	ID        string
	RouteID   string
	ServiceID string
	Headsign  string
}

// StopTime holds arrival and departure as seconds since midnight of
// the service day. Values may exceed 24h for post-midnight service.
type StopTime struct {
	TripID       string
	StopID       string
	StopSequence int
	Arrival      int
	Departure    int
}

func (st StopTime) ArrivalTime() time.Duration {
	return time.Duration(st.Arrival) * time.Second
}

func (st StopTime) DepartureTime() time.Duration {
	return time.Duration(st.Departure) * time.Second
}

// ArrivalOrDeparture returns arrival, or departure when arrival is
// unset (zero).
func (st StopTime) ArrivalOrDeparture() int {
	if st.Arrival != 0 {
		return st.Arrival
	}
	return st.Departure
}

// DepartureOrArrival returns departure, or arrival when departure is
// unset (zero).
func (st StopTime) DepartureOrArrival() int {
	if st.Departure != 0 {
		return st.Departure
	}
	return st.Arrival
}

// A stop on a simulated trip, with the stop name resolved.
type Point struct {
	StopID    string
	StopName  string
	Arrival   int
	Departure int
}

func (p Point) ArrivalOrDeparture() int {
	if p.Arrival != 0 {
		return p.Arrival
	}
	return p.Departure
}

func (p Point) DepartureOrArrival() int {
	if p.Departure != 0 {
		return p.Departure
	}
	return p.Arrival
}

// A search hit: a trip on which the rider can board at BoardIndex and
// (if a destination was requested) alight at AlightIndex. Indices refer
// to positions in the trip's stop_times, and are -1 when not
// constrained by the query.
type Match struct {
	TripID      string
	RouteID     string
	BoardIndex  int
	AlightIndex int
	Departure   int
}

// Snapshot of a simulated trip at one instant.
type TickResult struct {
	TripID           string
	RouteID          string
	SimulatedSecs    float64
	SegmentIndex     int
	Fraction         float64
	ETASecondsToNext float64
	PreviousStopName string
	NextStopName     string
	Playing          bool

	// Set on the single tick at which the simulation ends.
	Finished bool
}
