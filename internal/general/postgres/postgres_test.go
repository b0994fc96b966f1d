package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-hail-sim/internal/domain/geo"
	"ride-hail-sim/internal/domain/ride"
	"ride-hail-sim/internal/general/config"
)

func TestDSN(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Host = "db"
	cfg.Database.Port = 5432
	cfg.Database.User = "sim"
	cfg.Database.Password = "s3cr:et"
	cfg.Database.Name = "ridehail"

	assert.Equal(t, "postgres://sim:s3cr%3Aet@db:5432/ridehail?sslmode=disable", DSN(cfg))
}

func TestReposRequireTransaction(t *testing.T) {
	ctx := context.Background()

	record, err := geo.NewLocationHistory("run-1", "driver-1", "ride-1", "toUser", geo.Coordinate{Lat: 1, Lng: 1}, nil, nil, time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, NewLocationHistoryRepo().Archive(ctx, record), ErrNoTx)

	runs := NewSimulationRunRepo()
	run, err := ride.NewRun("run-1", "ride-1", "driver-1", "rider-1")
	require.NoError(t, err)
	assert.ErrorIs(t, runs.Create(ctx, run), ErrNoTx)
	assert.ErrorIs(t, runs.UpdateStatus(ctx, "run-1", ride.RunPaused, time.Now()), ErrNoTx)
	assert.ErrorIs(t, runs.IncrementTicks(ctx, "run-1", 1), ErrNoTx)
}

func TestTxFromContextEmpty(t *testing.T) {
	_, ok := TxFromContext(context.Background())
	assert.False(t, ok)
}
