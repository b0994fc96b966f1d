package ports

import (
	"context"
	"time"

	"ride-hail-sim/internal/domain/geo"
	"ride-hail-sim/internal/domain/ride"
)

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// LocationHistoryRepository archives simulated positions.
type LocationHistoryRepository interface {
	Archive(ctx context.Context, record *geo.LocationHistory) error
}

// SimulationRunRepository keeps the bookkeeping row of every simulation run.
type SimulationRunRepository interface {
	Create(ctx context.Context, run *ride.Run) error
	UpdateStatus(ctx context.Context, id string, status ride.RunStatus, at time.Time) error
	IncrementTicks(ctx context.Context, id string, by int64) error
}
