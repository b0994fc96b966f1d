package geo

import (
	"errors"
	"fmt"
	"math"
)

// Coordinate is a latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
)

// Validate checks the coordinate is on the globe. The simulator itself never
// calls this; it is for input arriving over HTTP.
func (coordinate Coordinate) Validate() error {
	if math.IsNaN(coordinate.Lat) || coordinate.Lat < -90 || coordinate.Lat > 90 {
		return ErrInvalidLatitude
	}
	if math.IsNaN(coordinate.Lng) || coordinate.Lng < -180 || coordinate.Lng > 180 {
		return ErrInvalidLongitude
	}
	return nil
}

// String renders the coordinate as "lat,lng".
func (coordinate Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", coordinate.Lat, coordinate.Lng)
}

// HaversineKM returns the great-circle distance between a and b in kilometers.
func HaversineKM(a, b Coordinate) float64 {
	const R = 6371.0 // Earth radius in km
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return R * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// BearingDegrees returns the initial bearing from a to b, normalized to [0, 360).
func BearingDegrees(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}
