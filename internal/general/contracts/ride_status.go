package contracts

import "time"

// RideStatusMessage is published when a simulated driver enters a new phase.
// Routing key: "ride.status.{status}" on ExchangeRideTopic.
type RideStatusMessage struct {
	RideID    string    `json:"ride_id"`
	Status    string    `json:"status"` // EN_ROUTE|ARRIVED|IN_PROGRESS|COMPLETED
	Phase     string    `json:"phase,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	DriverID  string    `json:"driver_id,omitempty"`
	Envelope
}
