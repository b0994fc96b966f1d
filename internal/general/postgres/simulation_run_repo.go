package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ride-hail-sim/internal/domain/ride"
	"ride-hail-sim/internal/ports"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

var ErrRunNotFound = errors.New("simulation run not found")

// SimulationRunRepo stores one row per simulation run.
type SimulationRunRepo struct{}

func NewSimulationRunRepo() ports.SimulationRunRepository {
	return &SimulationRunRepo{}
}

// Create inserts run; ids come from the service. A second live run for the
// same ride, possibly from another instance, yields ride.ErrRunAlreadyLive.
func (repo *SimulationRunRepo) Create(ctx context.Context, run *ride.Run) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO simulation_runs (id, ride_id, driver_id, rider_id, status, ticks, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, run.ID, run.RideID, run.DriverID, run.RiderID, run.Status.String(), run.Ticks, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("insert simulation_run: %w", ride.ErrRunAlreadyLive)
		}
		return fmt.Errorf("insert simulation_run: %w", err)
	}
	return nil
}

// UpdateStatus changes the status; STOPPED also stamps stopped_at.
func (repo *SimulationRunRepo) UpdateStatus(ctx context.Context, id string, status ride.RunStatus, at time.Time) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("update simulation_run: invalid status %q", status)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE simulation_runs
		SET status = $2,
		    updated_at = $3,
		    stopped_at = CASE WHEN $2 = 'STOPPED' THEN $3 ELSE stopped_at END
		WHERE id = $1
	`, id, status.String(), at)
	if err != nil {
		return fmt.Errorf("update simulation_run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// IncrementTicks adds by to the run's tick counter.
func (repo *SimulationRunRepo) IncrementTicks(ctx context.Context, id string, by int64) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE simulation_runs
		SET ticks = ticks + $2, updated_at = now()
		WHERE id = $1
	`, id, by)
	if err != nil {
		return fmt.Errorf("increment simulation_run ticks: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}
