package findbus_test

import (
	"testing"

	"tidbyt.dev/findbus"
	"tidbyt.dev/findbus/testutil"
)

// A small network:
//
//	route 1: t1 A 08:00 -> B 08:10 -> C 08:25
//	         t2 A 07:30 -> B 07:40 -> C 07:55
//	route 2: t3 C 08:05 -> B 08:15 -> A 08:30
//	         t4 D 09:00 -> B 09:10
//	route 3: t5 A 06:00 only
func fixtureFiles() map[string][]string {
	return map[string][]string{
		"stops.txt": {
			"stop_id,stop_name,stop_lat,stop_lon",
			"A,Alpha Square,40.0,-73.0",
			"B,Bravo Street,40.1,-73.0",
			"C,Charlie Park,40.2,-73.0",
			"D,Delta Depot,40.3,-73.0",
			"E,Echo Lane,40.4,-73.0",
		},
		"routes.txt": {
			"route_id,route_short_name,route_long_name",
			"r1,1,Crosstown",
			"r2,2,Riverside",
			"r3,,Shuttle",
		},
		"trips.txt": {
			"trip_id,route_id,service_id,trip_headsign",
			"t1,r1,wk,Charlie",
			"t2,r1,wk,Charlie",
			"t3,r2,wk,Alpha",
			"t4,r2,wk,Bravo",
			"t5,r3,wk,",
		},
		"stop_times.txt": {
			"trip_id,stop_id,stop_sequence,arrival_time,departure_time",
			"t1,A,1,08:00:00,08:00:00",
			"t1,B,2,08:10:00,08:10:00",
			"t1,C,3,08:25:00,08:25:00",
			"t2,C,3,07:55:00,07:55:00",
			"t2,B,2,07:40:00,07:40:00",
			"t2,A,1,07:30:00,07:30:00",
			"t3,C,1,08:05:00,08:05:00",
			"t3,B,2,08:15:00,08:15:00",
			"t3,A,3,08:30:00,08:30:00",
			"t4,D,1,09:00:00,09:00:00",
			"t4,B,2,09:10:00,09:10:00",
			"t5,A,1,06:00:00,06:00:00",
		},
	}
}

func fixtureIndex(t testing.TB) *findbus.TransitIndex {
	return testutil.BuildIndex(t, fixtureFiles())
}
