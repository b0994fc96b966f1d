package simulator

import "ride-hail-sim/internal/domain/geo"

// Phase names the leg the simulated driver is currently travelling.
type Phase string

const (
	PhaseToPickup      Phase = "toUser"
	PhaseToDestination Phase = "toDestination"
)

func (p Phase) String() string { return string(p) }

// Other returns the phase that follows p.
func (p Phase) Other() Phase {
	if p == PhaseToPickup {
		return PhaseToDestination
	}
	return PhaseToPickup
}

// Legs are the two coordinate sequences a run cycles through. They are
// read, never modified.
type Legs struct {
	ToPickup      geo.Leg
	ToDestination geo.Leg
}

// For returns the leg that phase p walks.
func (l Legs) For(p Phase) geo.Leg {
	if p == PhaseToDestination {
		return l.ToDestination
	}
	return l.ToPickup
}

// State is the position of the simulated driver within Legs.
type State struct {
	Phase   Phase
	Index   int
	Running bool
}

// Emission is the coordinate produced by one tick.
type Emission struct {
	Coordinate geo.Coordinate
	Phase      Phase
}

// Start is the state every activation begins from: the first coordinate of
// the pickup leg, which is treated as the driver's origin and not emitted.
func Start() State {
	return State{Phase: PhaseToPickup, Index: 0, Running: true}
}

// Step advances s by one tick. ok is false when nothing is emitted, which
// happens whenever the current leg has fewer than two coordinates.
//
// Walking off the end of the pickup leg moves to the first coordinate of
// the destination leg. Walking off the end of the destination leg restarts
// the cycle and steps once more into the pickup leg.
func Step(s State, legs Legs) (State, Emission, bool) {
	if !s.Running {
		return s, Emission{}, false
	}

	current := legs.For(s.Phase)
	if !current.Active() {
		return s, Emission{}, false
	}

	next := s.Index + 1
	if next < len(current) {
		s.Index = next
		return s, Emission{Coordinate: current[next], Phase: s.Phase}, true
	}

	if s.Phase == PhaseToDestination {
		return Step(Start(), legs)
	}

	s.Phase = PhaseToDestination
	s.Index = 0
	dest := legs.For(s.Phase)
	if !dest.Active() {
		return s, Emission{}, false
	}
	return s, Emission{Coordinate: dest[0], Phase: s.Phase}, true
}
