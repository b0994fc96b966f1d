package ride

import (
	"errors"
	"strings"
	"time"
)

// RunStatus is the lifecycle of a simulation run as stored in `simulation_runs`.
type RunStatus string

const (
	RunActive  RunStatus = "ACTIVE"
	RunPaused  RunStatus = "PAUSED"
	RunStopped RunStatus = "STOPPED"
)

// Valid reports whether status is one of the allowed run statuses.
func (status RunStatus) Valid() bool {
	switch status {
	case RunActive, RunPaused, RunStopped:
		return true
	default:
		return false
	}
}

func (status RunStatus) String() string {
	return string(status)
}

// Run is one simulated drive of a driver through a ride: first to the rider,
// then to the destination, looping until stopped.
type Run struct {
	ID        string
	RideID    string
	DriverID  string
	RiderID   string
	Status    RunStatus
	Ticks     int64
	CreatedAt time.Time
	UpdatedAt time.Time
	StoppedAt *time.Time
}

var (
	ErrRideIDRequired          = errors.New("ride id is required")
	ErrDriverRequired          = errors.New("driver id is required")
	ErrRiderRequired           = errors.New("rider id is required")
	ErrInvalidStatusTransition = errors.New("invalid run status transition")
	ErrRunAlreadyLive          = errors.New("ride already has a live run")
)

// NewRun creates a run in ACTIVE state.
func NewRun(id, rideID, driverID, riderID string) (*Run, error) {
	if rideID = strings.TrimSpace(rideID); rideID == "" {
		return nil, ErrRideIDRequired
	}
	if driverID = strings.TrimSpace(driverID); driverID == "" {
		return nil, ErrDriverRequired
	}
	if riderID = strings.TrimSpace(riderID); riderID == "" {
		return nil, ErrRiderRequired
	}

	now := time.Now().UTC()
	return &Run{
		ID:        id,
		RideID:    rideID,
		DriverID:  driverID,
		RiderID:   riderID,
		Status:    RunActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Pause transitions ACTIVE -> PAUSED.
func (run *Run) Pause() error {
	if run.Status != RunActive {
		return ErrInvalidStatusTransition
	}
	run.setStatus(RunPaused)
	return nil
}

// Resume transitions PAUSED -> ACTIVE.
func (run *Run) Resume() error {
	if run.Status != RunPaused {
		return ErrInvalidStatusTransition
	}
	run.setStatus(RunActive)
	return nil
}

// Stop moves any non-terminal run to STOPPED.
func (run *Run) Stop() error {
	if run.Status == RunStopped {
		return ErrInvalidStatusTransition
	}
	now := time.Now().UTC()
	run.StoppedAt = &now
	run.setStatus(RunStopped)
	return nil
}

func (run *Run) setStatus(status RunStatus) {
	run.Status = status
	run.UpdatedAt = time.Now().UTC()
}
