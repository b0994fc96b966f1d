package contracts

import "time"

// LocationUpdateMessage is broadcast for every simulated position.
// Exchange: ExchangeLocationFanout (fanout, no routing key).
type LocationUpdateMessage struct {
	SimulationID   string    `json:"simulation_id"`
	DriverID       string    `json:"driver_id"`
	RideID         string    `json:"ride_id,omitempty"`
	RiderID        string    `json:"rider_id,omitempty"`
	Phase          string    `json:"phase"` // toUser|toDestination
	Location       GeoPoint  `json:"location"`
	SpeedKMH       float64   `json:"speed_kmh,omitempty"`
	HeadingDegrees float64   `json:"heading_degrees,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Envelope
}
