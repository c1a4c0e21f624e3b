package findbus

import (
	"math"
	"sort"

	"tidbyt.dev/findbus/model"
)

func HaversineDistance(aLat, aLon, bLat, bLon float64) float64 {
	const earthRadiusKm = 6371

	aLatRad := aLat * math.Pi / 180
	bLatRad := bLat * math.Pi / 180
	deltaLat := aLatRad - bLatRad
	deltaLon := (aLon - bLon) * math.Pi / 180

	a := math.Cos(aLatRad)*math.Cos(bLatRad)*math.Pow(math.Sin(deltaLon/2), 2) + math.Pow(math.Sin(deltaLat/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return c * earthRadiusKm
}

// NearbyStops returns stops ordered by distance from lat,lon.
//
// If limit is >0, at most limit stops are returned.
func (idx *TransitIndex) NearbyStops(lat float64, lon float64, limit int) []model.Stop {
	stops := make([]model.Stop, 0, len(idx.stopOrder))
	dist := make(map[string]float64, len(idx.stopOrder))
	for _, id := range idx.stopOrder {
		s := idx.stops[id]
		stops = append(stops, s)
		dist[id] = HaversineDistance(lat, lon, s.Lat, s.Lon)
	}

	sort.SliceStable(stops, func(i, j int) bool {
		return dist[stops[i].ID] < dist[stops[j].ID]
	})

	if limit > 0 && len(stops) > limit {
		stops = stops[:limit]
	}

	return stops
}
