package service

import (
	"context"
	"errors"
	"time"

	"ride-hail-sim/internal/domain/ride"
	"ride-hail-sim/internal/ports"
)

const shutdownWriteTimeout = 5 * time.Second

// SetActive pauses or resumes a run. Resuming restarts the drive from the
// beginning of the pickup leg. Setting the state a run is already in is a no-op.
func (service *simulationService) SetActive(ctx context.Context, rideID string, active bool) (*ports.SimulationView, error) {
	h, err := service.lookup(rideID)
	if err != nil {
		return nil, err
	}
	ctx = service.logger.WithRideID(ctx, rideID)

	h.ctl.Lock()
	defer h.ctl.Unlock()

	next := h.snapshot()
	if active {
		err = next.Resume()
	} else {
		err = next.Pause()
	}
	switch {
	case errors.Is(err, ride.ErrInvalidStatusTransition) && next.Status != ride.RunStopped:
		v := h.view()
		return &v, nil
	case err != nil:
		return nil, err
	}

	err = service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		return service.runRepo.UpdateStatus(txCtx, next.ID, next.Status, next.UpdatedAt)
	})
	if err != nil {
		service.logger.Error(ctx, "simulation_status_update_failed", "Failed to update simulation status", err, map[string]any{
			"simulation_id": next.ID,
			"status":        next.Status.String(),
		})
		return nil, err
	}

	if active {
		h.resetMotion()
	}
	h.sim.SetActive(active)

	h.mu.Lock()
	h.run.Status = next.Status
	h.run.UpdatedAt = next.UpdatedAt
	h.mu.Unlock()

	service.logger.Info(ctx, "simulation_status_changed", "Simulation "+next.Status.String(), map[string]any{
		"simulation_id": next.ID,
		"active":        active,
	})

	v := h.view()
	return &v, nil
}

// StopSimulation cancels the run's timer and marks it STOPPED. The run is
// forgotten even when the status write fails.
func (service *simulationService) StopSimulation(ctx context.Context, rideID string) error {
	h, err := service.lookup(rideID)
	if err != nil {
		return err
	}
	ctx = service.logger.WithRideID(ctx, rideID)

	if !service.release(h) {
		return ErrSimulationNotFound
	}
	service.stop(ctx, h)
	return nil
}

// Shutdown stops every live run.
func (service *simulationService) Shutdown(ctx context.Context) {
	service.mu.Lock()
	handles := make([]*runHandle, 0, len(service.runs))
	for rideID, h := range service.runs {
		handles = append(handles, h)
		delete(service.runs, rideID)
	}
	service.mu.Unlock()

	for _, h := range handles {
		service.stop(service.logger.WithRideID(ctx, h.run.RideID), h)
	}
	service.logger.Info(ctx, "simulations_shutdown", "All simulations stopped", map[string]any{
		"count": len(handles),
	})
}

func (service *simulationService) stop(ctx context.Context, h *runHandle) {
	h.ctl.Lock()
	defer h.ctl.Unlock()

	h.sim.Close()

	h.mu.Lock()
	_ = h.run.Stop()
	run := h.run
	h.mu.Unlock()

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownWriteTimeout)
	defer cancel()

	err := service.uow.WithinTx(wctx, func(txCtx context.Context) error {
		return service.runRepo.UpdateStatus(txCtx, run.ID, run.Status, run.UpdatedAt)
	})
	if err != nil {
		service.logger.Error(ctx, "simulation_status_update_failed", "Failed to mark simulation stopped", err, map[string]any{
			"simulation_id": run.ID,
		})
	}

	service.logger.Info(ctx, "simulation_stopped", "Simulation stopped", map[string]any{
		"simulation_id": run.ID,
		"ticks":         run.Ticks,
	})
}
