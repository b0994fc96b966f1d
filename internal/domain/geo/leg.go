package geo

// Leg is an ordered sequence of coordinates covering one travel phase.
// Legs are owned by the caller and treated as read-only once handed over.
type Leg []Coordinate

// Active reports whether the leg can be stepped through. A leg needs at
// least two points to have anywhere to go.
func (leg Leg) Active() bool {
	return len(leg) > 1
}

// LengthKM sums the haversine distance between consecutive points.
func (leg Leg) LengthKM() float64 {
	total := 0.0
	for i := 1; i < len(leg); i++ {
		total += HaversineKM(leg[i-1], leg[i])
	}
	return total
}

// Validate checks every point of the leg.
func (leg Leg) Validate() error {
	for _, c := range leg {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}
