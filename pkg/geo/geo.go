package geo

import (
	"math"
	"time"
)

const earthRadiusMeters = 6371000.0

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceMeters returns the great-circle distance between two points.
func DistanceMeters(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// TransitTime estimates door-to-door time at a constant speed.
func TransitTime(a, b Point, speedKmh float64) time.Duration {
	if speedKmh <= 0 {
		return time.Duration(math.MaxInt64)
	}
	hours := DistanceMeters(a, b) / 1000 / speedKmh
	return time.Duration(hours * float64(time.Hour))
}
