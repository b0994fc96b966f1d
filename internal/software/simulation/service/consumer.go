package service

import (
	"context"
	"encoding/json"
	"errors"

	"ride-hail-sim/internal/general/contracts"
	"ride-hail-sim/internal/general/websocket"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	riderPushConsumerTag = "simulator-service-rider-push"
	riderPushPrefetch    = 16
)

// RunBackgroundConsumers forwards location updates from the fanout to the
// rider of each ride over WebSocket. It blocks until ctx is done.
func (service *simulationService) RunBackgroundConsumers(ctx context.Context) error {
	if service.consumer == nil {
		service.logger.Warn(ctx, "rider_push_disabled", "No consumer configured; rider pushes disabled", nil)
		return nil
	}
	return service.consumer.ConsumeLoop(ctx, contracts.QueueLocationUpdatesRide, riderPushConsumerTag, riderPushPrefetch,
		service.handleLocationDelivery)
}

func (service *simulationService) handleLocationDelivery(ctx context.Context, d amqp.Delivery) error {
	var msg contracts.LocationUpdateMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		service.logger.Error(ctx, "mq_message_parse_failed", "Failed to parse location update", err, nil)
		return err
	}
	if msg.RiderID == "" {
		return nil
	}
	ctx = service.logger.WithRideID(ctx, msg.RideID)

	err := service.notifier.NotifyRiderLocation(ctx, msg.RiderID, contracts.WSRiderLocationUpdate{
		Type:           contracts.WSTypeDriverLocationUpdate,
		RideID:         msg.RideID,
		DriverID:       msg.DriverID,
		Phase:          msg.Phase,
		Location:       msg.Location,
		SpeedKMH:       msg.SpeedKMH,
		HeadingDegrees: msg.HeadingDegrees,
		Timestamp:      msg.Timestamp,
		Envelope:       msg.Envelope,
	})
	switch {
	case errors.Is(err, websocket.ErrRiderNotConnected):
		service.logger.Debug(ctx, "rider_not_connected", "Rider is not connected via WebSocket", map[string]any{
			"rider_id": msg.RiderID,
		})
	case err != nil:
		// a late realtime push is worthless, so the delivery is acked anyway
		service.logger.Warn(ctx, "rider_push_failed", "Failed to push location to rider", map[string]any{
			"rider_id": msg.RiderID,
			"error":    err.Error(),
		})
	}
	return nil
}
