package parse

import (
	"fmt"

	"tidbyt.dev/findbus/model"
	"tidbyt.dev/findbus/storage"
)

type RouteRecord struct {
	ID        Field `csv:"route_id" json:"route_id"`
	ShortName Field `csv:"route_short_name" json:"route_short_name"`
	LongName  Field `csv:"route_long_name" json:"route_long_name"`
}

// ParseRoutes writes all routes with a route_id. Both names are
// optional. Returns the set of route IDs written.
func ParseRoutes(writer storage.FeedWriter, data []byte) (map[string]bool, error) {
	routes := map[string]bool{}
	skip := &skipped{dataset: DatasetRoutes}

	err := decode(data, "route_id", func(row int, r *RouteRecord) error {
		id := r.ID.String()
		if id == "" {
			skip.add("empty route_id (row %d)", row)
			return nil
		}
		if routes[id] {
			skip.add("repeated route_id '%s' (row %d)", id, row)
			return nil
		}
		routes[id] = true

		err := writer.WriteRoute(model.Route{
			ID:        id,
			ShortName: r.ShortName.String(),
			LongName:  r.LongName.String(),
		})
		if err != nil {
			return fmt.Errorf("writing route: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	skip.log()

	return routes, nil
}
