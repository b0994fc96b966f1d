package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ride-hail-sim/internal/domain/geo"
	"ride-hail-sim/internal/domain/ride"
	"ride-hail-sim/internal/ports"
	"ride-hail-sim/internal/simulator"

	"github.com/google/uuid"
)

// StartSimulation persists a new run for a ride and starts driving it.
// Legs are taken as given, or routed through the RouteProvider when only
// the endpoints are supplied.
func (service *simulationService) StartSimulation(ctx context.Context, in ports.StartSimulationInput) (*ports.SimulationView, error) {
	if in.Interval != 0 && !simulator.IntervalInRange(in.Interval) {
		return nil, fmt.Errorf("%w: interval must be between %s and %s", ErrInvalidInput, simulator.MinInterval, simulator.MaxInterval)
	}

	runID := uuid.NewString()
	run, err := ride.NewRun(runID, in.RideID, in.DriverID, in.RiderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	ctx = service.logger.WithRideID(ctx, run.RideID)

	legs, err := service.resolveLegs(ctx, in)
	if err != nil {
		service.logger.Warn(ctx, "simulation_legs_rejected", "Failed to resolve route legs", map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}

	interval := service.cfg.Interval
	if in.Interval > 0 {
		interval = in.Interval
	}

	h := &runHandle{
		legs:          legs,
		run:           *run,
		correlationID: uuid.NewString(),
	}
	h.sim = simulator.New(legs, service.onStep(h),
		simulator.WithInterval(interval),
		simulator.WithTicker(service.newTicker),
	)

	// reserve the ride before any I/O so concurrent starts cannot both win
	if err := service.reserve(h); err != nil {
		h.sim.Close()
		return nil, err
	}

	err = service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		return service.runRepo.Create(txCtx, run)
	})
	if err != nil {
		service.release(h)
		h.sim.Close()
		if errors.Is(err, ride.ErrRunAlreadyLive) {
			return nil, fmt.Errorf("%w: %w", ErrSimulationExists, err)
		}
		service.logger.Error(ctx, "simulation_create_failed", "Failed to persist simulation run", err, map[string]any{
			"simulation_id": runID,
		})
		return nil, err
	}

	h.sim.SetActive(true)

	service.logger.Info(ctx, "simulation_started", fmt.Sprintf("Simulation %s started", runID), map[string]any{
		"simulation_id":      runID,
		"driver_id":          run.DriverID,
		"rider_id":           run.RiderID,
		"pickup_points":      len(legs.ToPickup),
		"destination_points": len(legs.ToDestination),
		"interval_ms":        interval.Milliseconds(),
		"correlation_id":     h.correlationID,
	})

	v := h.view()
	return &v, nil
}

func (service *simulationService) reserve(h *runHandle) error {
	service.mu.Lock()
	defer service.mu.Unlock()

	if _, ok := service.runs[h.run.RideID]; ok {
		return ErrSimulationExists
	}
	if service.cfg.MaxRuns > 0 && len(service.runs) >= service.cfg.MaxRuns {
		return ErrTooManyRuns
	}
	service.runs[h.run.RideID] = h
	return nil
}

// release drops h only if it is still the handle registered for its ride.
func (service *simulationService) release(h *runHandle) bool {
	service.mu.Lock()
	defer service.mu.Unlock()

	if cur, ok := service.runs[h.run.RideID]; ok && cur == h {
		delete(service.runs, h.run.RideID)
		return true
	}
	return false
}

func (service *simulationService) resolveLegs(ctx context.Context, in ports.StartSimulationInput) (simulator.Legs, error) {
	toPickup, err := service.resolveLeg(ctx, "to_pickup", in.ToPickup, in.DriverStart, in.Pickup)
	if err != nil {
		return simulator.Legs{}, err
	}
	toDestination, err := service.resolveLeg(ctx, "to_destination", in.ToDestination, in.Pickup, in.Destination)
	if err != nil {
		return simulator.Legs{}, err
	}

	if !toPickup.Active() && !toDestination.Active() {
		return simulator.Legs{}, fmt.Errorf("%w: both legs need at least two points", ErrInvalidLeg)
	}
	return simulator.Legs{ToPickup: toPickup, ToDestination: toDestination}, nil
}

func (service *simulationService) resolveLeg(ctx context.Context, name string, explicit geo.Leg, from, to *geo.Coordinate) (geo.Leg, error) {
	if len(explicit) > 0 {
		if err := explicit.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidLeg, name, err)
		}
		return explicit, nil
	}
	if from == nil || to == nil {
		return nil, nil
	}

	for _, c := range []*geo.Coordinate{from, to} {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidLeg, name, err)
		}
	}
	if service.routes == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoRouteProvider, name)
	}

	leg, err := service.routes.Route(ctx, *from, *to)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", strings.ReplaceAll(name, "_", " "), err)
	}
	service.logger.Debug(ctx, "route_resolved", "Resolved leg from route provider", map[string]any{
		"leg":    name,
		"points": len(leg),
		"km":     leg.LengthKM(),
	})
	return leg, nil
}
