package ports

import (
	"context"
	"time"

	"ride-hail-sim/internal/domain/geo"
	"ride-hail-sim/internal/general/contracts"
)

// ----- DTOs for Simulation Service -----

// StartSimulationInput describes a run. Either the explicit legs or the
// three endpoints (driver start, pickup, destination) must be provided.
type StartSimulationInput struct {
	RideID   string
	DriverID string
	RiderID  string

	ToPickup      geo.Leg
	ToDestination geo.Leg

	DriverStart *geo.Coordinate
	Pickup      *geo.Coordinate
	Destination *geo.Coordinate

	// Interval overrides the configured tick cadence when positive.
	Interval time.Duration
}

// UpdateSimulationInput changes a live run in place. Zero fields keep
// their current value.
type UpdateSimulationInput struct {
	Interval      time.Duration
	ToPickup      geo.Leg
	ToDestination geo.Leg
}

// SimulationView is the read model returned by the service.
type SimulationView struct {
	SimulationID  string              `json:"simulation_id"`
	RideID        string              `json:"ride_id"`
	DriverID      string              `json:"driver_id"`
	RiderID       string              `json:"rider_id"`
	Status        string              `json:"status"`
	Active        bool                `json:"active"`
	Phase         string              `json:"phase"`
	Index         int                 `json:"index"`
	Ticks         int64               `json:"ticks"`
	IntervalMS    int64               `json:"interval_ms"`
	LastPosition  *contracts.GeoPoint `json:"last_position,omitempty"`
	PickupPoints  int                 `json:"pickup_points"`
	DestPoints    int                 `json:"destination_points"`
	CreatedAt     time.Time           `json:"created_at"`
	LastEmittedAt *time.Time          `json:"last_emitted_at,omitempty"`
}

// ----- Simulation Service Interface -----

type SimulationService interface {
	StartSimulation(ctx context.Context, in StartSimulationInput) (*SimulationView, error)
	SetActive(ctx context.Context, rideID string, active bool) (*SimulationView, error)
	UpdateSimulation(ctx context.Context, rideID string, in UpdateSimulationInput) (*SimulationView, error)
	StopSimulation(ctx context.Context, rideID string) error
	GetSimulation(ctx context.Context, rideID string) (*SimulationView, error)
	ListSimulations(ctx context.Context) []SimulationView
	RunBackgroundConsumers(ctx context.Context) error
	Shutdown(ctx context.Context)
}

// ----- Outbound adapters -----

// Publisher sends a JSON message to an exchange.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, msg any) error
}

// RouteProvider turns two endpoints into a drivable leg.
type RouteProvider interface {
	Route(ctx context.Context, from, to geo.Coordinate) (geo.Leg, error)
}

// RiderNotifier pushes realtime messages to a connected rider.
type RiderNotifier interface {
	NotifyRiderLocation(ctx context.Context, riderID string, msg contracts.WSRiderLocationUpdate) error
}
