package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ride-hail-sim/internal/domain/user"
	"ride-hail-sim/internal/general/contracts"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var ErrRiderNotConnected = errors.New("rider not connected")

// ConnectRider streams driver_location_update messages to an authenticated
// rider. Riders send nothing after auth except pings.
func (ws *WebSocket) ConnectRider(w http.ResponseWriter, r *http.Request) {
	conn, claims, ok := ws.authenticate(w, r, "rider_id", user.RoleRider, user.RoleAdmin)
	if !ok {
		return
	}
	defer ws.forget(conn)

	// authenticate already rejected a non-admin whose subject differs from the path
	riderID := chi.URLParam(r, "rider_id")
	if riderID == "" {
		riderID = claims.Subject
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// register before acknowledging so the client never misses a push
	ws.riders.Store(riderID, conn)
	defer ws.riders.CompareAndDelete(riderID, conn)

	if err := ws.sendAuthSuccess(conn, claims.Subject); err != nil {
		ws.logger.Error(ctx, "ws_auth_success_failed", "Failed to send auth success message", err, nil)
		return
	}
	ws.logger.Info(ctx, "ws_connected", "Rider WebSocket connected", map[string]any{"rider_id": riderID})

	go ws.keepAlive(ctx, conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			ws.closeWith(ctx, conn, err, map[string]any{"rider_id": riderID})
			return
		}
		// anything a rider sends is ignored; reading keeps the deadline moving
	}
}

// RiderConnected reports whether riderID has a live socket.
func (ws *WebSocket) RiderConnected(riderID string) bool {
	_, ok := ws.riders.Load(riderID)
	return ok
}

// NotifyRiderLocation pushes one location update to a connected rider.
func (ws *WebSocket) NotifyRiderLocation(ctx context.Context, riderID string, msg contracts.WSRiderLocationUpdate) error {
	v, ok := ws.riders.Load(riderID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrRiderNotConnected, riderID)
	}
	conn := v.(*websocket.Conn)

	if msg.Type == "" {
		msg.Type = contracts.WSTypeDriverLocationUpdate
	}
	if err := ws.writeJSON(conn, msg); err != nil {
		if errors.Is(err, errConnForgotten) {
			return fmt.Errorf("%w: %s", ErrRiderNotConnected, riderID)
		}
		ws.logger.Error(ctx, "ws_location_send_failed", "Failed to send location update to rider", err,
			map[string]any{"rider_id": riderID})
		return err
	}
	return nil
}
