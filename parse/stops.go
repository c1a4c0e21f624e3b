package parse

import (
	"fmt"
	"strconv"

	"tidbyt.dev/findbus/model"
	"tidbyt.dev/findbus/storage"
)

type StopRecord struct {
	ID   Field `csv:"stop_id" json:"stop_id"`
	Name Field `csv:"stop_name" json:"stop_name"`
	Lat  Field `csv:"stop_lat" json:"stop_lat"`
	Lon  Field `csv:"stop_lon" json:"stop_lon"`
}

// Coordinates that fail to parse are treated as 0.
func parseCoordinate(f Field) float64 {
	v, err := strconv.ParseFloat(f.String(), 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseStops writes all stops with a stop_id. Rows without one, and
// repeats of an already seen stop_id, are dropped. Returns the set of
// stop IDs written.
func ParseStops(writer storage.FeedWriter, data []byte) (map[string]bool, error) {
	stopIDs := map[string]bool{}
	skip := &skipped{dataset: DatasetStops}

	err := decode(data, "stop_id", func(row int, st *StopRecord) error {
		id := st.ID.String()
		if id == "" {
			skip.add("empty stop_id (row %d)", row)
			return nil
		}
		if stopIDs[id] {
			skip.add("repeated stop_id '%s' (row %d)", id, row)
			return nil
		}
		stopIDs[id] = true

		err := writer.WriteStop(model.Stop{
			ID:   id,
			Name: st.Name.String(),
			Lat:  parseCoordinate(st.Lat),
			Lon:  parseCoordinate(st.Lon),
		})
		if err != nil {
			return fmt.Errorf("writing stop '%s': %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	skip.log()

	return stopIDs, nil
}
