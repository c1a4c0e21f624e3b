package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/findbus/model"
	"tidbyt.dev/findbus/storage"
)

func TestParseStopTimes(t *testing.T) {
	for _, tc := range []struct {
		name      string
		content   string
		stopTimes []model.StopTime
	}{
		{
			"minimal",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t,10:00:00,10:00:01,s,1`,
			[]model.StopTime{
				{TripID: "t", StopID: "s", StopSequence: 1, Arrival: 36000, Departure: 36001},
			},
		},
		{
			"times above 24h",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t,25:00:00,25:00:01,s,1`,
			[]model.StopTime{
				{TripID: "t", StopID: "s", StopSequence: 1, Arrival: 90000, Departure: 90001},
			},
		},
		{
			"single digit hour",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t,8:05:00,8:06:00,s,1`,
			[]model.StopTime{
				{TripID: "t", StopID: "s", StopSequence: 1, Arrival: 29100, Departure: 29160},
			},
		},
		{
			"arrival falls back to departure",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t,,10:00:00,s,1`,
			[]model.StopTime{
				{TripID: "t", StopID: "s", StopSequence: 1, Arrival: 36000, Departure: 36000},
			},
		},
		{
			"departure falls back to arrival",
			`
trip_id,arrival_time,stop_id,stop_sequence
t,10:00:00,s,1`,
			[]model.StopTime{
				{TripID: "t", StopID: "s", StopSequence: 1, Arrival: 36000, Departure: 36000},
			},
		},
		{
			"no times at all",
			`
trip_id,stop_id,stop_sequence
t,s,1`,
			[]model.StopTime{
				{TripID: "t", StopID: "s", StopSequence: 1},
			},
		},
		{
			"malformed time degrades to zero",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t,soon,10:00,s,1
t,10:00:00,10:00:00,s2,2`,
			[]model.StopTime{
				{TripID: "t", StopID: "s", StopSequence: 1, Arrival: 0, Departure: 0},
				{TripID: "t", StopID: "s2", StopSequence: 2, Arrival: 36000, Departure: 36000},
			},
		},
		{
			"missing stop_sequence is zero",
			`
trip_id,arrival_time,departure_time,stop_id
t,10:00:00,10:00:01,s`,
			[]model.StopTime{
				{TripID: "t", StopID: "s", StopSequence: 0, Arrival: 36000, Departure: 36001},
			},
		},
		{
			"rows without trip_id or stop_id dropped",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
,10:00:00,10:00:00,s,1
t,10:00:00,10:00:00,,2
t,10:00:00,10:00:00,s,3`,
			[]model.StopTime{
				{TripID: "t", StopID: "s", StopSequence: 3, Arrival: 36000, Departure: 36000},
			},
		},
		{
			"json with numeric sequence",
			`[{"trip_id": "t", "stop_id": 12, "stop_sequence": 4, "arrival_time": "07:00:00"}]`,
			[]model.StopTime{
				{TripID: "t", StopID: "12", StopSequence: 4, Arrival: 25200, Departure: 25200},
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := storage.NewMemoryStorage()
			writer, err := s.GetWriter("test")
			require.NoError(t, err)

			require.NoError(t, writer.BeginStopTimes())
			n, err := ParseStopTimes(writer, []byte(tc.content))
			require.NoError(t, err)
			require.NoError(t, writer.EndStopTimes())
			assert.Equal(t, len(tc.stopTimes), n)

			require.NoError(t, writer.Close())

			reader, err := s.GetReader("test")
			require.NoError(t, err)
			stopTimes, err := reader.StopTimes()
			require.NoError(t, err)
			assert.Equal(t, tc.stopTimes, stopTimes)
		})
	}
}
