package panel

import "time"

// Listener is told about every committed snap state.
type Listener func(SnapState)

type Option func(*Controller)

// WithInitialState places the panel at rest in s instead of collapsed.
func WithInitialState(s SnapState) Option {
	return func(c *Controller) {
		c.state = s
		c.offset = c.layout.Rest(s)
	}
}

// Controller tracks the panel offset during drags and settles it into a
// SnapState. It is not safe for concurrent use: a single event loop owns it
// and drives animation frames through Advance.
type Controller struct {
	layout   Layout
	spring   Spring
	listener Listener

	offset float64
	state  SnapState

	dragging   bool
	dragOrigin float64

	anim *Motion
	// target is the state committed when anim settles.
	target SnapState
}

// New creates a controller resting in the collapsed state.
func New(layout Layout, spring Spring, listener Listener, opts ...Option) *Controller {
	c := &Controller{
		layout:   layout.Normalize(),
		spring:   spring,
		listener: listener,
		state:    StateCollapsed,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Offset is the current vertical offset.
func (c *Controller) Offset() float64 { return c.offset }

// State is the last committed snap state. It does not change while a drag
// or an animation is in progress.
func (c *Controller) State() SnapState { return c.state }

// Dragging reports whether a gesture is in progress.
func (c *Controller) Dragging() bool { return c.dragging }

// Animating reports whether a settle animation is in flight.
func (c *Controller) Animating() bool { return c.anim != nil }

// Target is where the in-flight animation is heading, or the committed
// state when idle.
func (c *Controller) Target() SnapState {
	if c.anim != nil {
		return c.target
	}
	return c.state
}

func (c *Controller) Layout() Layout { return c.layout }

// DragStart begins a gesture at the current offset. Any settle animation
// is abandoned where it stands.
func (c *Controller) DragStart() {
	c.anim = nil
	c.dragging = true
	c.dragOrigin = c.offset
}

// DragMove follows a gesture that has travelled dy units since it started,
// positive downward.
func (c *Controller) DragMove(dy float64) {
	if !c.dragging {
		c.DragStart()
	}
	c.offset = c.layout.Clamp(c.dragOrigin + dy)
}

// DragRelease ends the gesture and starts settling toward hidden or
// collapsed depending on how far the panel was pulled down.
func (c *Controller) DragRelease(dy float64) {
	if !c.dragging {
		c.DragStart()
	}
	c.offset = c.layout.Clamp(c.dragOrigin + dy)
	c.dragging = false
	c.animateTo(c.layout.ReleaseTarget(dy))
}

// Show settles the panel into the collapsed state. Explicit calls are
// ignored while a drag is in progress and report false.
func (c *Controller) Show() bool { return c.request(StateCollapsed) }

// Hide settles the panel out of view.
func (c *Controller) Hide() bool { return c.request(StateHidden) }

// Expand settles the panel into the expanded state.
func (c *Controller) Expand() bool { return c.request(StateExpanded) }

// ShowAndExpand brings the panel into view fully expanded, even from
// hidden.
func (c *Controller) ShowAndExpand() bool { return c.request(StateExpanded) }

func (c *Controller) request(s SnapState) bool {
	if c.dragging {
		return false
	}
	c.animateTo(s)
	return true
}

// animateTo supersedes any in-flight animation, keeping its velocity.
func (c *Controller) animateTo(s SnapState) {
	velocity := 0.0
	if c.anim != nil {
		velocity = c.anim.Velocity
	}
	c.target = s
	c.anim = &Motion{Position: c.offset, Velocity: velocity, Target: c.layout.Rest(s)}
}

// Advance moves the animation forward by dt and reports whether it is
// still running. On the frame it settles, the target state is committed
// and the listener is notified once.
func (c *Controller) Advance(dt time.Duration) bool {
	if c.anim == nil {
		return false
	}

	next, settled := c.spring.Advance(*c.anim, dt)
	c.offset = next.Position
	if !settled {
		c.anim = &next
		return true
	}

	c.anim = nil
	c.state = c.target
	if c.listener != nil {
		c.listener(c.state)
	}
	return false
}
