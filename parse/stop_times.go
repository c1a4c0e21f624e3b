package parse

import (
	"strconv"

	"github.com/pkg/errors"

	"tidbyt.dev/findbus/model"
	"tidbyt.dev/findbus/storage"
)

type StopTimeRecord struct {
	TripID        Field `csv:"trip_id" json:"trip_id"`
	StopID        Field `csv:"stop_id" json:"stop_id"`
	StopSequence  Field `csv:"stop_sequence" json:"stop_sequence"`
	ArrivalTime   Field `csv:"arrival_time" json:"arrival_time"`
	DepartureTime Field `csv:"departure_time" json:"departure_time"`
}

// A missing or malformed stop_sequence counts as 0.
func parseStopSequence(f Field) int {
	seq, err := strconv.Atoi(f.String())
	if err != nil {
		fl, ferr := strconv.ParseFloat(f.String(), 64)
		if ferr != nil {
			return 0
		}
		return int(fl)
	}
	return seq
}

// ParseStopTimes writes every stop_time that names a trip and a stop.
//
// Times are parsed leniently: a missing arrival_time falls back to
// departure_time and vice versa, and anything unparseable becomes 0
// rather than failing the whole dataset. Trips and stops are not
// required to exist. Returns the number of stop_times written.
func ParseStopTimes(writer storage.FeedWriter, data []byte) (int, error) {
	n := 0
	skip := &skipped{dataset: DatasetStopTimes}

	err := decode(data, "trip_id", func(row int, st *StopTimeRecord) error {
		if st.TripID.String() == "" {
			skip.add("missing trip_id (row %d)", row)
			return nil
		}
		if st.StopID.String() == "" {
			skip.add("missing stop_id (row %d)", row)
			return nil
		}

		arrival, departure := model.ParseTimePair(
			st.ArrivalTime.String(),
			st.DepartureTime.String(),
		)

		err := writer.WriteStopTime(model.StopTime{
			TripID:       st.TripID.String(),
			StopID:       st.StopID.String(),
			StopSequence: parseStopSequence(st.StopSequence),
			Arrival:      arrival,
			Departure:    departure,
		})
		if err != nil {
			return errors.Wrapf(err, "writing stop_time (row %d)", row)
		}
		n++

		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "parsing stop_times")
	}

	skip.log()

	return n, nil
}
