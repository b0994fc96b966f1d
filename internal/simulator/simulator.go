// Package simulator drives a simulated driver along a pickup leg and a
// destination leg on a fixed cadence, looping while active.
package simulator

import (
	"sync"
	"time"

	"ride-hail-sim/internal/domain/geo"
	"ride-hail-sim/internal/general/clock"
)

const (
	DefaultInterval = 2000 * time.Millisecond
	MinInterval     = 100 * time.Millisecond
	MaxInterval     = 10 * time.Minute
)

// IntervalInRange reports whether d is an accepted tick cadence.
func IntervalInRange(d time.Duration) bool {
	return d >= MinInterval && d <= MaxInterval
}

// Callback receives every emitted coordinate. Callbacks run one at a time
// on the simulator's own goroutine and must not call SetActive, SetInterval,
// SetLegs or Close synchronously.
type Callback func(at geo.Coordinate, phase Phase)

type Option func(*Simulator)

// WithInterval overrides the tick interval. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(s *Simulator) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithTicker replaces the ticker factory, mostly for tests.
func WithTicker(f clock.NewTicker) Option {
	return func(s *Simulator) {
		if f != nil {
			s.newTicker = f
		}
	}
}

// Simulator owns at most one ticker at a time. The ticker is acquired on
// activation and released synchronously on deactivation, re-arm and Close.
type Simulator struct {
	// ctl serializes SetActive, SetInterval, SetLegs and Close.
	ctl sync.Mutex

	mu        sync.Mutex
	legs      Legs
	state     State
	interval  time.Duration
	newTicker clock.NewTicker
	onStep    Callback
	run       *loop
	closed    bool
}

type loop struct {
	ticker clock.Ticker
	done   chan struct{}
	exited chan struct{}
}

// New creates an inactive simulator.
func New(legs Legs, onStep Callback, opts ...Option) *Simulator {
	s := &Simulator{
		legs:      legs,
		interval:  DefaultInterval,
		newTicker: clock.RealTicker,
		onStep:    onStep,
		state:     State{Phase: PhaseToPickup},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetActive starts or stops ticking. A false to true transition resets the
// state to the start of the pickup leg. Returning from SetActive(false)
// guarantees no further callbacks until the next activation.
func (s *Simulator) SetActive(active bool) {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.mu.Lock()
	running := s.run != nil
	closed := s.closed
	s.mu.Unlock()

	switch {
	case closed:
		return
	case active && !running:
		s.mu.Lock()
		s.state = Start()
		s.mu.Unlock()
		s.arm()
	case !active && running:
		s.disarm()
		s.mu.Lock()
		s.state.Running = false
		s.mu.Unlock()
	}
}

// SetInterval changes the cadence; an active simulator re-arms with a fresh
// ticker and keeps its position.
func (s *Simulator) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.mu.Lock()
	s.interval = d
	running := s.run != nil
	s.mu.Unlock()

	if running {
		s.disarm()
		s.arm()
	}
}

// SetLegs swaps the legs. An active simulator re-arms and restarts from
// the beginning of the new pickup leg.
func (s *Simulator) SetLegs(legs Legs) {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.mu.Lock()
	running := s.run != nil
	s.mu.Unlock()

	if running {
		s.disarm()
	}

	s.mu.Lock()
	s.legs = legs
	if running {
		s.state = Start()
	}
	s.mu.Unlock()

	if running {
		s.arm()
	}
}

// Active reports whether a ticker is currently armed.
func (s *Simulator) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil
}

// State returns a snapshot of the current position.
func (s *Simulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Interval returns the configured tick interval.
func (s *Simulator) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Close deactivates the simulator permanently.
func (s *Simulator) Close() {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.disarm()
	s.mu.Lock()
	s.closed = true
	s.state.Running = false
	s.mu.Unlock()
}

// arm must be called with ctl held and no loop running.
func (s *Simulator) arm() {
	s.mu.Lock()
	l := &loop{
		ticker: s.newTicker(s.interval),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	s.run = l
	s.mu.Unlock()

	go s.loop(l)
}

// disarm must be called with ctl held. It returns once the loop goroutine
// has exited, so no callback is in flight afterwards.
func (s *Simulator) disarm() {
	s.mu.Lock()
	l := s.run
	s.run = nil
	s.mu.Unlock()

	if l == nil {
		return
	}
	close(l.done)
	l.ticker.Stop()
	<-l.exited
}

func (s *Simulator) loop(l *loop) {
	defer close(l.exited)

	for {
		select {
		case <-l.done:
			return
		case <-l.ticker.C():
			select {
			case <-l.done:
				return
			default:
			}
			s.tick(l)
		}
	}
}

func (s *Simulator) tick(l *loop) {
	s.mu.Lock()
	if s.run != l {
		s.mu.Unlock()
		return
	}
	next, emission, ok := Step(s.state, s.legs)
	s.state = next
	onStep := s.onStep
	s.mu.Unlock()

	if ok && onStep != nil {
		onStep(emission.Coordinate, emission.Phase)
	}
}
