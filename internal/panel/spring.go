package panel

import (
	"math"
	"time"
)

const (
	DefaultTension  = 65
	DefaultFriction = 12

	restDisplacement = 0.001
	restSpeed        = 0.001
	substep          = time.Millisecond
)

// Spring is configured with origami tension and friction, the same knobs
// mobile animation libraries expose.
type Spring struct {
	Tension  float64
	Friction float64
}

// DefaultSpring is tension 65, friction 12.
func DefaultSpring() Spring {
	return Spring{Tension: DefaultTension, Friction: DefaultFriction}
}

// Stiffness converts tension to a spring constant.
func (s Spring) Stiffness() float64 {
	return (s.Tension-30)*3.62 + 194
}

// Damping converts friction to a damping coefficient.
func (s Spring) Damping() float64 {
	return (s.Friction-8)*3 + 25
}

// Motion is the animated value and where it is heading. Mass is 1.
type Motion struct {
	Position float64
	Velocity float64
	Target   float64
}

// AtRest reports whether m is close enough to its target to stop.
func (m Motion) AtRest() bool {
	return math.Abs(m.Velocity) < restSpeed && math.Abs(m.Position-m.Target) < restDisplacement
}

// Advance integrates m over dt in fixed substeps. Once at rest the position
// snaps onto the target and settled is true.
func (s Spring) Advance(m Motion, dt time.Duration) (Motion, bool) {
	k, c := s.Stiffness(), s.Damping()
	h := substep.Seconds()

	for elapsed := time.Duration(0); elapsed < dt; elapsed += substep {
		if m.AtRest() {
			break
		}
		accel := -k*(m.Position-m.Target) - c*m.Velocity
		m.Velocity += accel * h
		m.Position += m.Velocity * h
	}

	if m.AtRest() {
		m.Position = m.Target
		m.Velocity = 0
		return m, true
	}
	return m, false
}
