package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-hail-sim/internal/domain/geo"
	"ride-hail-sim/internal/general/clock"
)

func pt(v float64) geo.Coordinate { return geo.Coordinate{Lat: v, Lng: v} }

func scenarioLegs() Legs {
	return Legs{
		ToPickup:      geo.Leg{pt(0), pt(1), pt(2)},
		ToDestination: geo.Leg{pt(3), pt(4)},
	}
}

type recorder struct {
	ch chan Emission
}

func newRecorder() *recorder { return &recorder{ch: make(chan Emission, 64)} }

func (r *recorder) callback(at geo.Coordinate, phase Phase) {
	r.ch <- Emission{Coordinate: at, Phase: phase}
}

func (r *recorder) take(t *testing.T, n int) []Emission {
	t.Helper()
	out := make([]Emission, 0, n)
	for len(out) < n {
		select {
		case e := <-r.ch:
			out = append(out, e)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d emissions, want %d", len(out), n)
		}
	}
	return out
}

func (r *recorder) empty(t *testing.T) {
	t.Helper()
	select {
	case e := <-r.ch:
		t.Fatalf("unexpected emission %+v", e)
	default:
	}
}

func newTestSimulator(legs Legs) (*Simulator, *recorder, *clock.ManualFactory) {
	rec := newRecorder()
	factory := clock.NewManualFactory()
	return New(legs, rec.callback, WithTicker(factory.New)), rec, factory
}

func nextTicker(t *testing.T, f *clock.ManualFactory) *clock.Manual {
	t.Helper()
	select {
	case m := <-f.Created():
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no ticker armed")
		return nil
	}
}

func TestStepScenario(t *testing.T) {
	legs := scenarioLegs()
	s := Start()

	want := []Emission{
		{pt(1), PhaseToPickup},
		{pt(2), PhaseToPickup},
		{pt(3), PhaseToDestination},
		{pt(4), PhaseToDestination},
		{pt(1), PhaseToPickup},
	}
	for i, w := range want {
		var e Emission
		var ok bool
		s, e, ok = Step(s, legs)
		require.True(t, ok, "tick %d", i+1)
		assert.Equal(t, w, e, "tick %d", i+1)
	}
	assert.Equal(t, State{Phase: PhaseToPickup, Index: 1, Running: true}, s)
}

func TestStepCyclesThroughBothLegs(t *testing.T) {
	legs := Legs{
		ToPickup:      geo.Leg{pt(0), pt(1), pt(2), pt(3)},
		ToDestination: geo.Leg{pt(10), pt(11), pt(12)},
	}
	period := len(legs.ToPickup) - 1 + len(legs.ToDestination)

	var seq []Emission
	s := Start()
	for i := 0; i < period*3; i++ {
		var e Emission
		var ok bool
		s, e, ok = Step(s, legs)
		require.True(t, ok)
		seq = append(seq, e)
	}

	first := seq[:period]
	for i, c := range legs.ToPickup[1:] {
		assert.Equal(t, Emission{c, PhaseToPickup}, first[i])
	}
	for i, c := range legs.ToDestination {
		assert.Equal(t, Emission{c, PhaseToDestination}, first[len(legs.ToPickup)-1+i])
	}
	assert.Equal(t, first, seq[period:2*period])
	assert.Equal(t, first, seq[2*period:])
}

func TestStepInactiveLegs(t *testing.T) {
	cases := []struct {
		name string
		legs Legs
	}{
		{"both empty", Legs{}},
		{"single pickup point", Legs{ToPickup: geo.Leg{pt(1)}, ToDestination: geo.Leg{pt(2), pt(3)}}},
		{"empty pickup", Legs{ToDestination: geo.Leg{pt(2), pt(3)}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Start()
			for i := 0; i < 5; i++ {
				var ok bool
				s, _, ok = Step(s, tc.legs)
				assert.False(t, ok)
			}
			assert.Equal(t, Start(), s)
		})
	}
}

func TestStepInactiveDestinationStalls(t *testing.T) {
	legs := Legs{ToPickup: geo.Leg{pt(0), pt(1)}, ToDestination: geo.Leg{pt(9)}}
	s := Start()

	s, e, ok := Step(s, legs)
	require.True(t, ok)
	assert.Equal(t, Emission{pt(1), PhaseToPickup}, e)

	s, _, ok = Step(s, legs)
	assert.False(t, ok)
	assert.Equal(t, PhaseToDestination, s.Phase)

	for i := 0; i < 3; i++ {
		s, _, ok = Step(s, legs)
		assert.False(t, ok)
	}
	assert.Equal(t, State{Phase: PhaseToDestination, Index: 0, Running: true}, s)
}

func TestStepNotRunning(t *testing.T) {
	s := State{Phase: PhaseToPickup}
	next, _, ok := Step(s, scenarioLegs())
	assert.False(t, ok)
	assert.Equal(t, s, next)
}

func TestSimulatorScenario(t *testing.T) {
	sim, rec, factory := newTestSimulator(scenarioLegs())
	defer sim.Close()

	sim.SetActive(true)
	m := nextTicker(t, factory)
	assert.Equal(t, DefaultInterval, m.Interval())

	for i := 0; i < 5; i++ {
		require.True(t, m.Tick())
	}

	got := rec.take(t, 5)
	assert.Equal(t, []Emission{
		{pt(1), PhaseToPickup},
		{pt(2), PhaseToPickup},
		{pt(3), PhaseToDestination},
		{pt(4), PhaseToDestination},
		{pt(1), PhaseToPickup},
	}, got)
}

func TestSimulatorDeactivateStopsCallbacks(t *testing.T) {
	sim, rec, factory := newTestSimulator(scenarioLegs())
	defer sim.Close()

	sim.SetActive(true)
	m := nextTicker(t, factory)
	require.True(t, m.Tick())
	require.True(t, m.Tick())
	rec.take(t, 2)

	sim.SetActive(false)
	assert.False(t, sim.Active())
	assert.True(t, m.Stopped())
	assert.False(t, m.Tick())
	rec.empty(t)
	assert.False(t, sim.State().Running)
}

func TestSimulatorReactivationRestartsAtPickup(t *testing.T) {
	sim, rec, factory := newTestSimulator(scenarioLegs())
	defer sim.Close()

	sim.SetActive(true)
	m := nextTicker(t, factory)
	for i := 0; i < 3; i++ {
		require.True(t, m.Tick())
	}
	rec.take(t, 3)

	sim.SetActive(false)
	sim.SetActive(true)
	assert.Equal(t, Start(), sim.State())

	m2 := nextTicker(t, factory)
	require.True(t, m2.Tick())
	assert.Equal(t, []Emission{{pt(1), PhaseToPickup}}, rec.take(t, 1))
}

func TestSimulatorInactiveLegNeverEmits(t *testing.T) {
	sim, rec, factory := newTestSimulator(Legs{ToPickup: geo.Leg{pt(5)}, ToDestination: geo.Leg{pt(6), pt(7)}})
	defer sim.Close()

	sim.SetActive(true)
	m := nextTicker(t, factory)
	// the extra tick only returns once the previous one has been handled
	for i := 0; i < 4; i++ {
		require.True(t, m.Tick())
	}
	rec.empty(t)
	assert.Equal(t, Start(), sim.State())
}

func TestSimulatorSingleTimer(t *testing.T) {
	sim, rec, factory := newTestSimulator(scenarioLegs())
	defer sim.Close()

	sim.SetActive(true)
	sim.SetActive(true)
	assert.Len(t, factory.All(), 1)

	m := nextTicker(t, factory)
	require.True(t, m.Tick())
	rec.take(t, 1)

	sim.SetInterval(500 * time.Millisecond)
	assert.Len(t, factory.All(), 2)
	assert.Equal(t, 1, factory.Live())
	assert.True(t, m.Stopped())

	m2 := nextTicker(t, factory)
	assert.Equal(t, 500*time.Millisecond, m2.Interval())
	require.True(t, m2.Tick())
	assert.Equal(t, []Emission{{pt(2), PhaseToPickup}}, rec.take(t, 1))

	sim.SetLegs(Legs{ToPickup: geo.Leg{pt(7), pt(8)}, ToDestination: geo.Leg{pt(9), pt(10)}})
	assert.Equal(t, 1, factory.Live())
	m3 := nextTicker(t, factory)
	require.True(t, m3.Tick())
	assert.Equal(t, []Emission{{pt(8), PhaseToPickup}}, rec.take(t, 1))

	sim.Close()
	assert.Equal(t, 0, factory.Live())
	sim.SetActive(true)
	assert.False(t, sim.Active())
}

func TestSimulatorWithoutCallback(t *testing.T) {
	factory := clock.NewManualFactory()
	sim := New(scenarioLegs(), nil, WithTicker(factory.New), WithInterval(time.Second))
	defer sim.Close()

	sim.SetActive(true)
	m := nextTicker(t, factory)
	require.True(t, m.Tick())
	require.True(t, m.Tick())
	assert.Equal(t, time.Second, sim.Interval())
}

func TestIntervalInRange(t *testing.T) {
	assert.True(t, IntervalInRange(MinInterval))
	assert.True(t, IntervalInRange(MaxInterval))
	assert.True(t, IntervalInRange(DefaultInterval))
	assert.False(t, IntervalInRange(time.Millisecond))
	assert.False(t, IntervalInRange(MaxInterval+time.Millisecond))
	assert.False(t, IntervalInRange(0))
}
