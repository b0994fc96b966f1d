package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"ride-hail-sim/internal/domain/geo"
	"ride-hail-sim/internal/domain/ride"
	"ride-hail-sim/internal/general/contracts"
	"ride-hail-sim/internal/ports"
	"ride-hail-sim/internal/simulator"
)

// runHandle ties one persisted run to its live simulator.
type runHandle struct {
	// ctl serializes SetActive, UpdateSimulation and Stop on this run.
	ctl           sync.Mutex
	sim           *simulator.Simulator
	legs          simulator.Legs
	correlationID string

	mu        sync.Mutex
	run       ride.Run
	last      *geo.Coordinate
	lastAt    *time.Time
	lastPhase simulator.Phase
}

func (h *runHandle) snapshot() ride.Run {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.run
}

// resetMotion forgets the previous emission so the next one starts a new
// phase announcement and carries no derived speed.
func (h *runHandle) resetMotion() {
	h.mu.Lock()
	h.last = nil
	h.lastPhase = ""
	h.mu.Unlock()
}

func (h *runHandle) view() ports.SimulationView {
	state := h.sim.State()
	active := h.sim.Active()
	interval := h.sim.Interval()

	h.mu.Lock()
	defer h.mu.Unlock()

	v := ports.SimulationView{
		SimulationID: h.run.ID,
		RideID:       h.run.RideID,
		DriverID:     h.run.DriverID,
		RiderID:      h.run.RiderID,
		Status:       h.run.Status.String(),
		Active:       active,
		Phase:        state.Phase.String(),
		Index:        state.Index,
		Ticks:        h.run.Ticks,
		IntervalMS:   interval.Milliseconds(),
		PickupPoints: len(h.legs.ToPickup),
		DestPoints:   len(h.legs.ToDestination),
		CreatedAt:    h.run.CreatedAt,
	}
	if h.last != nil {
		v.LastPosition = &contracts.GeoPoint{Lat: h.last.Lat, Lng: h.last.Lng}
	}
	if h.lastAt != nil {
		at := *h.lastAt
		v.LastEmittedAt = &at
	}
	return v
}

// GetSimulation returns the current view of the run bound to rideID.
func (service *simulationService) GetSimulation(_ context.Context, rideID string) (*ports.SimulationView, error) {
	h, err := service.lookup(rideID)
	if err != nil {
		return nil, err
	}
	v := h.view()
	return &v, nil
}

// ListSimulations returns every live run, oldest first.
func (service *simulationService) ListSimulations(_ context.Context) []ports.SimulationView {
	service.mu.Lock()
	handles := make([]*runHandle, 0, len(service.runs))
	for _, h := range service.runs {
		handles = append(handles, h)
	}
	service.mu.Unlock()

	out := make([]ports.SimulationView, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.view())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RideID < out[j].RideID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
