package ride

// Status is the ride status announced on the ride topic while a simulated
// driver moves through a ride.
type Status string

const (
	StatusEnRoute    Status = "EN_ROUTE"
	StatusInProgress Status = "IN_PROGRESS"
)

func (status Status) String() string {
	return string(status)
}

// StatusForPhase maps a simulator phase wire name to the ride status that
// is announced when the driver enters that phase.
func StatusForPhase(phase string) (Status, bool) {
	switch phase {
	case "toUser":
		return StatusEnRoute, true
	case "toDestination":
		return StatusInProgress, true
	default:
		return "", false
	}
}
