package postgres

import (
	"context"
	"fmt"

	"ride-hail-sim/internal/domain/geo"
	"ride-hail-sim/internal/ports"
)

// LocationHistoryRepo persists simulated positions using pgx and plain SQL.
type LocationHistoryRepo struct{}

func NewLocationHistoryRepo() ports.LocationHistoryRepository {
	return &LocationHistoryRepo{}
}

// Archive inserts a single location_history row; must run inside WithinTx.
func (repo *LocationHistoryRepo) Archive(ctx context.Context, record *geo.LocationHistory) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if err := record.Validate(); err != nil {
		return err
	}

	var insertedID string
	err = tx.QueryRow(ctx, `
		INSERT INTO location_history (
			run_id, driver_id, ride_id, phase,
			latitude, longitude, speed_kmh, heading_degrees,
			recorded_at
		)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)
		RETURNING id
	`,
		record.RunID,
		record.DriverID,
		record.RideID,
		record.Phase,
		record.Latitude,
		record.Longitude,
		record.SpeedKMH,
		record.HeadingDegrees,
		record.RecordedAt,
	).Scan(&insertedID)
	if err != nil {
		return fmt.Errorf("insert location_history: %w", err)
	}

	record.ID = geo.ID(insertedID)
	return nil
}
