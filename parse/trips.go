package parse

import (
	"fmt"

	"tidbyt.dev/findbus/model"
	"tidbyt.dev/findbus/storage"
)

type TripRecord struct {
	ID        Field `csv:"trip_id" json:"trip_id"`
	RouteID   Field `csv:"route_id" json:"route_id"`
	ServiceID Field `csv:"service_id" json:"service_id"`
	Headsign  Field `csv:"trip_headsign" json:"trip_headsign"`
}

// ParseTrips writes all trips with a trip_id and route_id. The route
// need not be declared in the routes dataset. Returns the set of trip
// IDs written.
func ParseTrips(writer storage.FeedWriter, data []byte) (map[string]bool, error) {
	trips := map[string]bool{}
	skip := &skipped{dataset: DatasetTrips}

	err := decode(data, "trip_id", func(row int, t *TripRecord) error {
		id := t.ID.String()
		if id == "" {
			skip.add("empty trip_id (row %d)", row)
			return nil
		}
		if t.RouteID.String() == "" {
			skip.add("empty route_id for trip '%s' (row %d)", id, row)
			return nil
		}
		if trips[id] {
			skip.add("repeated trip_id '%s' (row %d)", id, row)
			return nil
		}
		trips[id] = true

		err := writer.WriteTrip(model.Trip{
			ID:        id,
			RouteID:   t.RouteID.String(),
			ServiceID: t.ServiceID.String(),
			Headsign:  t.Headsign.String(),
		})
		if err != nil {
			return fmt.Errorf("writing trip: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	skip.log()

	return trips, nil
}
