package service

import (
	"context"
	"fmt"

	"ride-hail-sim/internal/ports"
	"ride-hail-sim/internal/simulator"
)

// UpdateSimulation changes the cadence or the legs of a live run. A new
// cadence keeps the current position; new legs restart the drive from the
// beginning of the pickup leg.
func (service *simulationService) UpdateSimulation(ctx context.Context, rideID string, in ports.UpdateSimulationInput) (*ports.SimulationView, error) {
	reroute := len(in.ToPickup) > 0 || len(in.ToDestination) > 0
	if in.Interval == 0 && !reroute {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if in.Interval != 0 && !simulator.IntervalInRange(in.Interval) {
		return nil, fmt.Errorf("%w: interval must be between %s and %s", ErrInvalidInput, simulator.MinInterval, simulator.MaxInterval)
	}

	h, err := service.lookup(rideID)
	if err != nil {
		return nil, err
	}
	ctx = service.logger.WithRideID(ctx, rideID)

	h.ctl.Lock()
	defer h.ctl.Unlock()

	h.mu.Lock()
	legs := h.legs
	h.mu.Unlock()

	if reroute {
		legs, err = rerouteLegs(legs, in)
		if err != nil {
			return nil, err
		}
		h.sim.SetLegs(legs)
		h.resetMotion()

		h.mu.Lock()
		h.legs = legs
		h.mu.Unlock()
	}
	if in.Interval != 0 {
		h.sim.SetInterval(in.Interval)
	}

	service.logger.Info(ctx, "simulation_updated", "Simulation updated", map[string]any{
		"simulation_id":      h.snapshot().ID,
		"rerouted":           reroute,
		"interval_ms":        h.sim.Interval().Milliseconds(),
		"pickup_points":      len(legs.ToPickup),
		"destination_points": len(legs.ToDestination),
	})

	v := h.view()
	return &v, nil
}

// rerouteLegs replaces the legs named in `in` and keeps the others.
func rerouteLegs(cur simulator.Legs, in ports.UpdateSimulationInput) (simulator.Legs, error) {
	next := cur
	if len(in.ToPickup) > 0 {
		if err := in.ToPickup.Validate(); err != nil {
			return cur, fmt.Errorf("%w: to_pickup: %w", ErrInvalidLeg, err)
		}
		next.ToPickup = in.ToPickup
	}
	if len(in.ToDestination) > 0 {
		if err := in.ToDestination.Validate(); err != nil {
			return cur, fmt.Errorf("%w: to_destination: %w", ErrInvalidLeg, err)
		}
		next.ToDestination = in.ToDestination
	}
	if !next.ToPickup.Active() && !next.ToDestination.Active() {
		return cur, fmt.Errorf("%w: both legs need at least two points", ErrInvalidLeg)
	}
	return next, nil
}
