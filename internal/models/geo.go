package models

import (
	"math"
	"sort"
)

const earthRadiusMeters = 6371000

// DistanceMeters is the haversine distance between two points.
func DistanceMeters(a, b GeoPoint) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// NearbyStation is a station with its distance from a query point.
type NearbyStation struct {
	Station
	DistanceMeters float64 `json:"distance_meters"`
}

// Nearby keeps the stations within maxMeters of origin, closest first.
func Nearby(stations []Station, origin GeoPoint, maxMeters float64) []NearbyStation {
	out := make([]NearbyStation, 0)
	for _, s := range stations {
		d := DistanceMeters(origin, s.Location)
		if d <= maxMeters {
			out = append(out, NearbyStation{Station: s, DistanceMeters: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	return out
}
