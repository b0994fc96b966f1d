package contracts

import "time"

// WebSocket message types.
const (
	WSTypeAuth                 = "auth"
	WSTypeError                = "error"
	WSTypeDriverLocationUpdate = "driver_location_update"

	WSTypePanelDragStart   = "drag_start"
	WSTypePanelDragMove    = "drag_move"
	WSTypePanelDragRelease = "drag_release"
	WSTypePanelShow        = "show"
	WSTypePanelHide        = "hide"
	WSTypePanelExpand      = "expand"
	WSTypePanelShowExpand  = "show_expand"
	WSTypePanelOffset      = "panel_offset"
	WSTypePanelState       = "panel_state"
)

// WSRiderLocationUpdate is pushed to the rider of a simulated ride.
type WSRiderLocationUpdate struct {
	Type           string    `json:"type"` // "driver_location_update"
	RideID         string    `json:"ride_id"`
	DriverID       string    `json:"driver_id,omitempty"`
	Phase          string    `json:"phase"`
	Location       GeoPoint  `json:"location"`
	SpeedKMH       float64   `json:"speed_kmh,omitempty"`
	HeadingDegrees float64   `json:"heading_degrees,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Envelope
}

// WSPanelCommand is any inbound panel gesture or explicit call. DY is the
// vertical travel since drag_start, positive downward.
type WSPanelCommand struct {
	Type string  `json:"type"`
	DY   float64 `json:"dy,omitempty"`
}

// WSPanelOffset is sent on every animation frame and drag move.
type WSPanelOffset struct {
	Type   string  `json:"type"` // "panel_offset"
	Offset float64 `json:"offset"`
}

// WSPanelState is sent when a snap state is committed.
type WSPanelState struct {
	Type   string  `json:"type"` // "panel_state"
	State  string  `json:"state"`
	Offset float64 `json:"offset"`
}

type WSError struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}
