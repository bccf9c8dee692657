package geo

import (
	"fmt"
	"math"

	"github.com/tidwall/geodesic"
)

const earthRadiusKm = 6371.0

// Coordinate is a WGS-84 position in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinate lies inside [-90,90]x[-180,180].
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Latitude, c.Longitude)
}

// DistanceKm returns the geodesic distance in kilometres between a and b on
// the WGS-84 ellipsoid. The result is symmetric and zero for identical points.
func DistanceKm(a, b Coordinate) float64 {
	if a == b {
		return 0
	}

	var meters float64
	geodesic.WGS84.Inverse(a.Latitude, a.Longitude, b.Latitude, b.Longitude, &meters, nil, nil)
	if math.IsNaN(meters) || math.IsInf(meters, 0) || meters < 0 {
		return Haversine(a, b)
	}
	return meters / 1000
}

// Haversine calculates the great-circle distance in kilometres on a sphere
// of mean Earth radius. Used when the ellipsoidal solution is unavailable.
func Haversine(a, b Coordinate) float64 {
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180.0
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180.0

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Latitude*math.Pi/180.0)*math.Cos(b.Latitude*math.Pi/180.0)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}
