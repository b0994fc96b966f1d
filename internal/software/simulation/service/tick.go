package service

import (
	"context"
	"strings"
	"time"

	"ride-hail-sim/internal/domain/geo"
	"ride-hail-sim/internal/domain/ride"
	"ride-hail-sim/internal/general/contracts"
	"ride-hail-sim/internal/simulator"
)

const tickTimeout = 5 * time.Second

// onStep builds the simulator callback for h. Each emission announces a
// phase change if there is one, archives the position with the run's tick
// counter, then broadcasts the position.
func (service *simulationService) onStep(h *runHandle) simulator.Callback {
	return func(at geo.Coordinate, phase simulator.Phase) {
		now := time.Now().UTC()

		h.mu.Lock()
		prev, prevPhase := h.last, h.lastPhase
		h.last = &at
		h.lastAt = &now
		h.lastPhase = phase
		h.run.Ticks++
		run := h.run
		h.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
		defer cancel()
		ctx = service.logger.WithRideID(ctx, run.RideID)

		if phase != prevPhase {
			// a phase change breaks the line, so speed is not derived across it
			prev = nil
			service.announcePhase(ctx, h, run, phase, now)
		}
		speed, heading := motion(prev, at, h.sim.Interval())

		record, err := geo.NewLocationHistory(run.ID, run.DriverID, run.RideID, phase.String(), at, speed, heading, now)
		if err != nil {
			service.logger.Warn(ctx, "location_history_invalid", "Skipping archive of invalid position", map[string]any{
				"error": err.Error(),
				"lat":   at.Lat,
				"lng":   at.Lng,
			})
		} else {
			err = service.uow.WithinTx(ctx, func(txCtx context.Context) error {
				if err := service.history.Archive(txCtx, record); err != nil {
					return err
				}
				return service.runRepo.IncrementTicks(txCtx, run.ID, 1)
			})
			if err != nil {
				service.logger.Error(ctx, "location_archive_failed", "Failed to archive simulated position", err, map[string]any{
					"simulation_id": run.ID,
				})
			}
		}

		msg := contracts.LocationUpdateMessage{
			SimulationID: run.ID,
			DriverID:     run.DriverID,
			RideID:       run.RideID,
			RiderID:      run.RiderID,
			Phase:        phase.String(),
			Location:     contracts.GeoPoint{Lat: at.Lat, Lng: at.Lng},
			Timestamp:    now,
			Envelope:     service.envelope(h, now),
		}
		if speed != nil {
			msg.SpeedKMH = *speed
		}
		if heading != nil {
			msg.HeadingDegrees = *heading
		}
		if err := service.pub.Publish(ctx, contracts.ExchangeLocationFanout, "", msg); err != nil {
			service.logger.Error(ctx, "location_publish_failed", "Failed to publish location update to RabbitMQ", err, map[string]any{
				"simulation_id": run.ID,
			})
			return
		}
		service.logger.Debug(ctx, "location_published", "Published simulated position", map[string]any{
			"simulation_id": run.ID,
			"phase":         phase.String(),
			"lat":           at.Lat,
			"lng":           at.Lng,
		})
	}
}

// announcePhase publishes the ride status that corresponds to entering phase,
// with routing key ride.status.{status}, e.g. ride.status.en_route.
func (service *simulationService) announcePhase(ctx context.Context, h *runHandle, run ride.Run, phase simulator.Phase, now time.Time) {
	status, ok := ride.StatusForPhase(phase.String())
	if !ok {
		return
	}

	routingKey := contracts.RouteRideStatusPrefix + strings.ToLower(status.String())
	msg := contracts.RideStatusMessage{
		RideID:    run.RideID,
		Status:    status.String(),
		Phase:     phase.String(),
		Timestamp: now,
		DriverID:  run.DriverID,
		Envelope:  service.envelope(h, now),
	}
	if err := service.pub.Publish(ctx, contracts.ExchangeRideTopic, routingKey, msg); err != nil {
		service.logger.Error(ctx, "ride_status_publish_failed", "Failed to publish ride status to RabbitMQ", err, map[string]any{
			"routing_key": routingKey,
		})
		return
	}
	service.logger.Info(ctx, "ride_status_published", "Published ride status to RabbitMQ", map[string]any{
		"routing_key": routingKey,
	})
}

func (service *simulationService) envelope(h *runHandle, now time.Time) contracts.Envelope {
	return contracts.Envelope{
		CorrelationID: h.correlationID,
		Producer:      contracts.ProducerSimulator,
		SentAt:        now,
	}
}

// motion derives speed in km/h and heading in degrees from the previous
// emission, assuming one interval elapsed between the two.
func motion(prev *geo.Coordinate, at geo.Coordinate, interval time.Duration) (*float64, *float64) {
	if prev == nil || interval <= 0 {
		return nil, nil
	}
	km := geo.HaversineKM(*prev, at)
	speed := km / interval.Hours()
	if km == 0 {
		return &speed, nil
	}
	heading := geo.BearingDegrees(*prev, at)
	return &speed, &heading
}
