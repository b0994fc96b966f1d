package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ride-hail-sim/internal/domain/geo"
	"ride-hail-sim/internal/domain/user"
	"ride-hail-sim/internal/general/jwt"
	"ride-hail-sim/internal/ports"
	"ride-hail-sim/internal/simulator"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

var intervalRangeMessage = fmt.Sprintf("interval_ms must be between %d and %d",
	simulator.MinInterval.Milliseconds(), simulator.MaxInterval.Milliseconds())

// --- Request DTOs (HTTP boundary) ---

type startSimulationRequest struct {
	RideID        string          `json:"ride_id"`
	DriverID      string          `json:"driver_id"`
	RiderID       string          `json:"rider_id"`
	ToPickup      geo.Leg         `json:"to_pickup"`
	ToDestination geo.Leg         `json:"to_destination"`
	DriverStart   *geo.Coordinate `json:"driver_start"`
	Pickup        *geo.Coordinate `json:"pickup"`
	Destination   *geo.Coordinate `json:"destination"`
	IntervalMS    int64           `json:"interval_ms"`
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

type updateSimulationRequest struct {
	IntervalMS    int64   `json:"interval_ms"`
	ToPickup      geo.Leg `json:"to_pickup"`
	ToDestination geo.Leg `json:"to_destination"`
}

// intervalFromMS range-checks ms before converting it. Zero means unset.
func intervalFromMS(ms int64) (time.Duration, bool) {
	if ms == 0 {
		return 0, true
	}
	if ms < simulator.MinInterval.Milliseconds() || ms > simulator.MaxInterval.Milliseconds() {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

// ----- Handler: POST /simulations -----

func (handler *SimulationHTTPHandler) handleStartSimulation(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r)

	var req startSimulationRequest
	if !handler.decode(ctx, w, r, &req) {
		return
	}

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}

	// drivers may only simulate themselves
	sub := strings.TrimSpace(claims.Subject)
	if claims.Role == user.RoleDriver {
		if strings.TrimSpace(req.DriverID) == "" {
			req.DriverID = sub
		} else if req.DriverID != sub {
			handler.httpError(ctx, w, http.StatusForbidden, "driver_id does not match token subject", errors.New("driver/token mismatch"))
			return
		}
	}
	interval, ok := intervalFromMS(req.IntervalMS)
	if !ok {
		handler.httpError(ctx, w, http.StatusBadRequest, intervalRangeMessage, nil)
		return
	}

	view, err := handler.svc.StartSimulation(ctx, ports.StartSimulationInput{
		RideID:        req.RideID,
		DriverID:      req.DriverID,
		RiderID:       req.RiderID,
		ToPickup:      req.ToPickup,
		ToDestination: req.ToDestination,
		DriverStart:   req.DriverStart,
		Pickup:        req.Pickup,
		Destination:   req.Destination,
		Interval:      interval,
	})
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusCreated, view)
}

// ----- Handler: GET /simulations -----

func (handler *SimulationHTTPHandler) handleListSimulations(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r)
	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{
		"simulations": handler.svc.ListSimulations(ctx),
	})
}

// ----- Handler: GET /simulations/{ride_id} -----

func (handler *SimulationHTTPHandler) handleGetSimulation(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r)

	view, ok := handler.ownedSimulation(ctx, w, r)
	if !ok {
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, view)
}

// ----- Handler: POST /simulations/{ride_id}/active -----

func (handler *SimulationHTTPHandler) handleSetActive(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r)

	var req setActiveRequest
	if !handler.decode(ctx, w, r, &req) {
		return
	}
	if req.Active == nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "active is required", nil)
		return
	}

	view, ok := handler.ownedSimulation(ctx, w, r)
	if !ok {
		return
	}

	view, err := handler.svc.SetActive(ctx, view.RideID, *req.Active)
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, view)
}

// ----- Handler: PATCH /simulations/{ride_id} -----

func (handler *SimulationHTTPHandler) handleUpdateSimulation(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r)

	var req updateSimulationRequest
	if !handler.decode(ctx, w, r, &req) {
		return
	}
	interval, ok := intervalFromMS(req.IntervalMS)
	if !ok {
		handler.httpError(ctx, w, http.StatusBadRequest, intervalRangeMessage, nil)
		return
	}
	if interval == 0 && len(req.ToPickup) == 0 && len(req.ToDestination) == 0 {
		handler.httpError(ctx, w, http.StatusBadRequest, "one of interval_ms, to_pickup or to_destination is required", nil)
		return
	}

	view, ok := handler.ownedSimulation(ctx, w, r)
	if !ok {
		return
	}

	view, err := handler.svc.UpdateSimulation(ctx, view.RideID, ports.UpdateSimulationInput{
		Interval:      interval,
		ToPickup:      req.ToPickup,
		ToDestination: req.ToDestination,
	})
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, view)
}

// ----- Handler: DELETE /simulations/{ride_id} -----

func (handler *SimulationHTTPHandler) handleStopSimulation(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r)

	view, ok := handler.ownedSimulation(ctx, w, r)
	if !ok {
		return
	}
	if err := handler.svc.StopSimulation(ctx, view.RideID); err != nil {
		handler.serviceError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{
		"ride_id":       view.RideID,
		"simulation_id": view.SimulationID,
		"status":        "STOPPED",
	})
}

// ownedSimulation loads the simulation named in the path and checks that the
// caller is its driver, its rider or an admin.
func (handler *SimulationHTTPHandler) ownedSimulation(ctx context.Context, w http.ResponseWriter, r *http.Request) (*ports.SimulationView, bool) {
	rideID := strings.TrimSpace(chi.URLParam(r, "ride_id"))
	if rideID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "ride_id is required", nil)
		return nil, false
	}

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return nil, false
	}

	view, err := handler.svc.GetSimulation(ctx, rideID)
	if err != nil {
		handler.serviceError(ctx, w, err)
		return nil, false
	}

	switch claims.Role {
	case user.RoleAdmin:
	case user.RoleDriver:
		if view.DriverID != claims.Subject {
			handler.httpError(ctx, w, http.StatusForbidden, "simulation belongs to another driver", nil)
			return nil, false
		}
	case user.RoleRider:
		if view.RiderID != claims.Subject {
			handler.httpError(ctx, w, http.StatusForbidden, "simulation belongs to another rider", nil)
			return nil, false
		}
	default:
		handler.httpError(ctx, w, http.StatusForbidden, "role not allowed", nil)
		return nil, false
	}
	return view, true
}

// decode reads a strict JSON body; on failure the response is already written.
func (handler *SimulationHTTPHandler) decode(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			handler.httpError(ctx, w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return false
		}
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return false
	}
	return true
}
