// README: Pure geographic computation helpers shared by all modules.
package geo

import (
	"math"

	"haven/internal/types"
)

const earthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle distance in meters between
// two positions specified in decimal degrees (haversine).
func DistanceMeters(a, b types.Position) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
