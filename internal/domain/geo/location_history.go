package geo

import (
	"errors"
	"math"
	"strings"
	"time"
)

// ID is a type alias for ID of location history (UUIDs in DB).
type ID string

// LocationHistory is the domain entity corresponding to the `location_history` table.
// Each simulated emission is archived as one row.
type LocationHistory struct {
	ID             ID
	RunID          string
	DriverID       string
	RideID         string
	Phase          string
	Latitude       float64
	Longitude      float64
	SpeedKMH       *float64
	HeadingDegrees *float64
	RecordedAt     time.Time
}

var (
	ErrMissingRunID       = errors.New("run ID is missing")
	ErrMissingDriverID    = errors.New("driver ID is missing")
	ErrMissingPhase       = errors.New("phase is missing")
	ErrNegativeSpeed      = errors.New("speed_kmh cannot be negative")
	ErrInvalidHeading     = errors.New("heading_degrees must be between 0 and 360")
	ErrRecordedAtZeroTime = errors.New("recorded_at must be a valid timestamp")
)

// NewLocationHistory builds a history row for one emitted position. Speed and
// heading are optional because the first emission of a run has no predecessor.
func NewLocationHistory(
	runID string,
	driverID string,
	rideID string,
	phase string,
	at Coordinate,
	speedKMH *float64,
	headingDegrees *float64,
	recordedAt time.Time,
) (*LocationHistory, error) {
	location := &LocationHistory{
		RunID:          strings.TrimSpace(runID),
		DriverID:       strings.TrimSpace(driverID),
		RideID:         strings.TrimSpace(rideID),
		Phase:          phase,
		Latitude:       at.Lat,
		Longitude:      at.Lng,
		SpeedKMH:       speedKMH,
		HeadingDegrees: headingDegrees,
		RecordedAt:     recordedAt,
	}

	if location.RecordedAt.IsZero() {
		location.RecordedAt = time.Now().UTC()
	}

	if err := location.Validate(); err != nil {
		return nil, err
	}
	return location, nil
}

// Validate checks invariants of the LocationHistory entity.
func (location LocationHistory) Validate() error {
	if location.RunID == "" {
		return ErrMissingRunID
	}
	if location.DriverID == "" {
		return ErrMissingDriverID
	}
	if location.Phase == "" {
		return ErrMissingPhase
	}

	if err := (Coordinate{Lat: location.Latitude, Lng: location.Longitude}).Validate(); err != nil {
		return err
	}

	if location.SpeedKMH != nil {
		if *location.SpeedKMH < 0 || math.IsNaN(*location.SpeedKMH) {
			return ErrNegativeSpeed
		}
	}
	if location.HeadingDegrees != nil {
		// allow exactly 0 and 360 (some SDKs report 360.0 instead of 0.0)
		if *location.HeadingDegrees < 0 || *location.HeadingDegrees > 360 || math.IsNaN(*location.HeadingDegrees) {
			return ErrInvalidHeading
		}
	}

	if location.RecordedAt.IsZero() {
		return ErrRecordedAtZeroTime
	}
	return nil
}
