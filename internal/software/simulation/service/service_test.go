package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-hail-sim/internal/domain/geo"
	"ride-hail-sim/internal/domain/ride"
	"ride-hail-sim/internal/general/clock"
	"ride-hail-sim/internal/general/contracts"
	"ride-hail-sim/internal/general/logger"
	"ride-hail-sim/internal/general/websocket"
	"ride-hail-sim/internal/ports"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ----- fakes -----

type fakeUoW struct{}

func (fakeUoW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type fakeRuns struct {
	mu        sync.Mutex
	created   []ride.Run
	statuses  []ride.RunStatus
	ticks     map[string]int64
	createErr error
}

func (f *fakeRuns) Create(_ context.Context, run *ride.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, *run)
	return nil
}

func (f *fakeRuns) UpdateStatus(_ context.Context, _ string, status ride.RunStatus, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeRuns) IncrementTicks(_ context.Context, id string, by int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ticks == nil {
		f.ticks = map[string]int64{}
	}
	f.ticks[id] += by
	return nil
}

func (f *fakeRuns) statusLog() []ride.RunStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ride.RunStatus(nil), f.statuses...)
}

func (f *fakeRuns) ticksOf(id string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticks[id]
}

type fakeHistory struct {
	mu      sync.Mutex
	records []geo.LocationHistory
}

func (f *fakeHistory) Archive(_ context.Context, record *geo.LocationHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, *record)
	return nil
}

func (f *fakeHistory) all() []geo.LocationHistory {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]geo.LocationHistory(nil), f.records...)
}

type published struct {
	exchange   string
	routingKey string
	msg        any
}

type fakePublisher struct {
	ch chan published
}

func (f *fakePublisher) Publish(_ context.Context, exchange, routingKey string, msg any) error {
	f.ch <- published{exchange: exchange, routingKey: routingKey, msg: msg}
	return nil
}

func (f *fakePublisher) next(t *testing.T) published {
	t.Helper()
	select {
	case p := <-f.ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("nothing published")
		return published{}
	}
}

func (f *fakePublisher) location(t *testing.T) contracts.LocationUpdateMessage {
	t.Helper()
	p := f.next(t)
	require.Equal(t, contracts.ExchangeLocationFanout, p.exchange)
	msg, ok := p.msg.(contracts.LocationUpdateMessage)
	require.True(t, ok, "got %T", p.msg)
	return msg
}

func (f *fakePublisher) status(t *testing.T) (string, contracts.RideStatusMessage) {
	t.Helper()
	p := f.next(t)
	require.Equal(t, contracts.ExchangeRideTopic, p.exchange)
	msg, ok := p.msg.(contracts.RideStatusMessage)
	require.True(t, ok, "got %T", p.msg)
	return p.routingKey, msg
}

type fakeRoutes struct {
	mu    sync.Mutex
	calls int
	leg   geo.Leg
}

func (f *fakeRoutes) Route(_ context.Context, from, to geo.Coordinate) (geo.Leg, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return append(geo.Leg{from}, append(f.leg, to)...), nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent map[string][]contracts.WSRiderLocationUpdate
	err  error
}

func (f *fakeNotifier) NotifyRiderLocation(_ context.Context, riderID string, msg contracts.WSRiderLocationUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.sent == nil {
		f.sent = map[string][]contracts.WSRiderLocationUpdate{}
	}
	f.sent[riderID] = append(f.sent[riderID], msg)
	return nil
}

// ----- fixture -----

type fixture struct {
	svc      *simulationService
	factory  *clock.ManualFactory
	runs     *fakeRuns
	history  *fakeHistory
	pub      *fakePublisher
	notifier *fakeNotifier
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		factory:  clock.NewManualFactory(),
		runs:     &fakeRuns{},
		history:  &fakeHistory{},
		pub:      &fakePublisher{ch: make(chan published, 64)},
		notifier: &fakeNotifier{},
	}
	opts = append([]Option{WithTicker(f.factory.New)}, opts...)
	svc := NewSimulationService(logger.Nop(), fakeUoW{}, f.runs, f.history, f.pub, f.notifier, cfg, opts...)
	f.svc = svc.(*simulationService)
	t.Cleanup(func() { f.svc.Shutdown(context.Background()) })
	return f
}

func (f *fixture) ticker(t *testing.T) *clock.Manual {
	t.Helper()
	select {
	case m := <-f.factory.Created():
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no ticker armed")
		return nil
	}
}

func east(lng float64) geo.Coordinate { return geo.Coordinate{Lat: 0, Lng: lng} }

func startInput(rideID string) ports.StartSimulationInput {
	return ports.StartSimulationInput{
		RideID:        rideID,
		DriverID:      "driver-1",
		RiderID:       "rider-1",
		ToPickup:      geo.Leg{east(0), east(0.01), east(0.02)},
		ToDestination: geo.Leg{east(0.02), east(0.03)},
	}
}

// ----- tests -----

func TestStartSimulationDrivesRun(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	view, err := f.svc.StartSimulation(ctx, startInput("ride-1"))
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", view.Status)
	assert.True(t, view.Active)
	assert.Equal(t, int64(2000), view.IntervalMS)
	assert.Equal(t, 3, view.PickupPoints)
	assert.Equal(t, 2, view.DestPoints)
	require.Len(t, f.runs.created, 1)
	assert.Equal(t, view.SimulationID, f.runs.created[0].ID)

	m := f.ticker(t)
	assert.Equal(t, 2*time.Second, m.Interval())

	require.True(t, m.Tick())
	key, status := f.pub.status(t)
	assert.Equal(t, "ride.status.en_route", key)
	assert.Equal(t, "EN_ROUTE", status.Status)
	assert.Equal(t, "toUser", status.Phase)
	assert.Equal(t, contracts.ProducerSimulator, status.Producer)

	first := f.pub.location(t)
	assert.Equal(t, contracts.GeoPoint{Lat: 0, Lng: 0.01}, first.Location)
	assert.Equal(t, "toUser", first.Phase)
	assert.Equal(t, "rider-1", first.RiderID)
	assert.Zero(t, first.SpeedKMH)
	assert.Equal(t, status.CorrelationID, first.CorrelationID)

	require.True(t, m.Tick())
	second := f.pub.location(t)
	assert.Equal(t, contracts.GeoPoint{Lat: 0, Lng: 0.02}, second.Location)
	assert.Greater(t, second.SpeedKMH, 0.0)
	assert.InDelta(t, 90, second.HeadingDegrees, 1e-6)

	require.True(t, m.Tick())
	key, status = f.pub.status(t)
	assert.Equal(t, "ride.status.in_progress", key)
	assert.Equal(t, "IN_PROGRESS", status.Status)
	third := f.pub.location(t)
	assert.Equal(t, "toDestination", third.Phase)
	assert.Equal(t, contracts.GeoPoint{Lat: 0, Lng: 0.02}, third.Location)

	records := f.history.all()
	require.Len(t, records, 3)
	assert.Nil(t, records[0].SpeedKMH)
	assert.NotNil(t, records[1].SpeedKMH)
	assert.Equal(t, "toDestination", records[2].Phase)
	assert.Equal(t, int64(3), f.runs.ticksOf(view.SimulationID))

	got, err := f.svc.GetSimulation(ctx, "ride-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Ticks)
	assert.Equal(t, "toDestination", got.Phase)
	assert.Equal(t, 0, got.Index)
	require.NotNil(t, got.LastPosition)
	assert.Equal(t, 0.02, got.LastPosition.Lng)
	assert.NotNil(t, got.LastEmittedAt)
}

func TestStartSimulationIntervalOverride(t *testing.T) {
	f := newFixture(t, Config{Interval: time.Second})

	in := startInput("ride-1")
	view, err := f.svc.StartSimulation(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), view.IntervalMS)

	in = startInput("ride-2")
	in.Interval = 250 * time.Millisecond
	view, err = f.svc.StartSimulation(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int64(250), view.IntervalMS)
}

func TestStartSimulationIntervalOutOfRange(t *testing.T) {
	f := newFixture(t, Config{})

	for _, d := range []time.Duration{time.Millisecond, -time.Second, 11 * time.Minute} {
		in := startInput("ride-1")
		in.Interval = d
		_, err := f.svc.StartSimulation(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidInput, "interval %s", d)
	}
	assert.Empty(t, f.runs.created)
	assert.Zero(t, f.factory.Live())
}

func TestStartSimulationRejects(t *testing.T) {
	f := newFixture(t, Config{MaxRuns: 1})
	ctx := context.Background()

	_, err := f.svc.StartSimulation(ctx, startInput("ride-1"))
	require.NoError(t, err)

	_, err = f.svc.StartSimulation(ctx, startInput("ride-1"))
	assert.ErrorIs(t, err, ErrSimulationExists)

	_, err = f.svc.StartSimulation(ctx, startInput("ride-2"))
	assert.ErrorIs(t, err, ErrTooManyRuns)

	in := startInput("ride-3")
	in.DriverID = " "
	_, err = f.svc.StartSimulation(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, ride.ErrDriverRequired)

	in = startInput("ride-3")
	in.ToPickup = geo.Leg{east(0)}
	in.ToDestination = nil
	_, err = f.svc.StartSimulation(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidLeg)

	in = startInput("ride-3")
	in.ToPickup = geo.Leg{east(0), {Lat: 95, Lng: 0}}
	_, err = f.svc.StartSimulation(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidLeg)
	assert.ErrorIs(t, err, geo.ErrInvalidLatitude)

	pickup, dest := east(1), east(2)
	in = ports.StartSimulationInput{RideID: "ride-3", DriverID: "d", RiderID: "r", Pickup: &pickup, Destination: &dest}
	_, err = f.svc.StartSimulation(ctx, in)
	assert.ErrorIs(t, err, ErrNoRouteProvider)

	assert.Len(t, f.runs.created, 1)
	assert.Equal(t, 1, f.factory.Live())
}

func TestStartSimulationCreateFailureReleasesRide(t *testing.T) {
	f := newFixture(t, Config{})
	f.runs.createErr = errors.New("db down")

	_, err := f.svc.StartSimulation(context.Background(), startInput("ride-1"))
	require.Error(t, err)

	_, err = f.svc.GetSimulation(context.Background(), "ride-1")
	assert.ErrorIs(t, err, ErrSimulationNotFound)
	assert.Zero(t, f.factory.Live())

	// another instance already drives this ride
	f.runs.createErr = ride.ErrRunAlreadyLive
	_, err = f.svc.StartSimulation(context.Background(), startInput("ride-1"))
	assert.ErrorIs(t, err, ErrSimulationExists)
}

func TestStartSimulationRoutesEndpoints(t *testing.T) {
	routes := &fakeRoutes{leg: geo.Leg{east(0.5)}}
	f := newFixture(t, Config{}, WithRouteProvider(routes))

	start, pickup, dest := east(0), east(1), east(2)
	view, err := f.svc.StartSimulation(context.Background(), ports.StartSimulationInput{
		RideID:      "ride-1",
		DriverID:    "driver-1",
		RiderID:     "rider-1",
		DriverStart: &start,
		Pickup:      &pickup,
		Destination: &dest,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, routes.calls)
	assert.Equal(t, 3, view.PickupPoints)
	assert.Equal(t, 3, view.DestPoints)
}

func TestSetActivePauseResume(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.svc.StartSimulation(ctx, startInput("ride-1"))
	require.NoError(t, err)
	m := f.ticker(t)
	require.True(t, m.Tick())
	f.pub.status(t)
	f.pub.location(t)

	view, err := f.svc.SetActive(ctx, "ride-1", false)
	require.NoError(t, err)
	assert.False(t, view.Active)
	assert.Equal(t, "PAUSED", view.Status)
	assert.True(t, m.Stopped())
	assert.Zero(t, f.factory.Live())

	_, err = f.svc.SetActive(ctx, "ride-1", false)
	require.NoError(t, err)
	assert.Equal(t, []ride.RunStatus{ride.RunPaused}, f.runs.statusLog())

	view, err = f.svc.SetActive(ctx, "ride-1", true)
	require.NoError(t, err)
	assert.True(t, view.Active)
	assert.Equal(t, "ACTIVE", view.Status)
	assert.Equal(t, "toUser", view.Phase)
	assert.Equal(t, 0, view.Index)

	resumed := f.ticker(t)
	require.True(t, resumed.Tick())
	key, _ := f.pub.status(t)
	assert.Equal(t, "ride.status.en_route", key)
	loc := f.pub.location(t)
	assert.Equal(t, contracts.GeoPoint{Lat: 0, Lng: 0.01}, loc.Location)
	assert.Zero(t, loc.SpeedKMH)

	_, err = f.svc.SetActive(ctx, "ghost", true)
	assert.ErrorIs(t, err, ErrSimulationNotFound)
}

func TestStopSimulation(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.svc.StartSimulation(ctx, startInput("ride-1"))
	require.NoError(t, err)
	m := f.ticker(t)

	require.NoError(t, f.svc.StopSimulation(ctx, "ride-1"))
	assert.True(t, m.Stopped())
	assert.False(t, m.Tick())
	assert.Equal(t, []ride.RunStatus{ride.RunStopped}, f.runs.statusLog())

	_, err = f.svc.GetSimulation(ctx, "ride-1")
	assert.ErrorIs(t, err, ErrSimulationNotFound)
	assert.ErrorIs(t, f.svc.StopSimulation(ctx, "ride-1"), ErrSimulationNotFound)

	// the ride is free again
	_, err = f.svc.StartSimulation(ctx, startInput("ride-1"))
	require.NoError(t, err)
}

func TestShutdownAndList(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	for _, id := range []string{"ride-1", "ride-2"} {
		_, err := f.svc.StartSimulation(ctx, startInput(id))
		require.NoError(t, err)
	}

	list := f.svc.ListSimulations(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, "ride-1", list[0].RideID)
	assert.Equal(t, "ride-2", list[1].RideID)
	assert.Equal(t, 2, f.factory.Live())

	f.svc.Shutdown(ctx)
	assert.Empty(t, f.svc.ListSimulations(ctx))
	assert.Zero(t, f.factory.Live())
	assert.Equal(t, []ride.RunStatus{ride.RunStopped, ride.RunStopped}, f.runs.statusLog())
}

func TestHandleLocationDelivery(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	body := []byte(`{"simulation_id":"sim-1","driver_id":"driver-1","ride_id":"ride-1","rider_id":"rider-1",` +
		`"phase":"toUser","location":{"lat":1,"lng":2},"speed_kmh":30,"timestamp":"2024-01-01T00:00:00Z"}`)
	require.NoError(t, f.svc.handleLocationDelivery(ctx, amqp.Delivery{Body: body}))

	sent := f.notifier.sent["rider-1"]
	require.Len(t, sent, 1)
	assert.Equal(t, contracts.WSTypeDriverLocationUpdate, sent[0].Type)
	assert.Equal(t, "ride-1", sent[0].RideID)
	assert.Equal(t, "toUser", sent[0].Phase)
	assert.Equal(t, contracts.GeoPoint{Lat: 1, Lng: 2}, sent[0].Location)
	assert.Equal(t, 30.0, sent[0].SpeedKMH)

	require.NoError(t, f.svc.handleLocationDelivery(ctx, amqp.Delivery{Body: []byte(`{"ride_id":"ride-1"}`)}))
	assert.Len(t, f.notifier.sent, 1)

	f.notifier.err = websocket.ErrRiderNotConnected
	assert.NoError(t, f.svc.handleLocationDelivery(ctx, amqp.Delivery{Body: body}))

	assert.Error(t, f.svc.handleLocationDelivery(ctx, amqp.Delivery{Body: []byte(`{`)}))
}

func TestRunBackgroundConsumersWithoutConsumer(t *testing.T) {
	f := newFixture(t, Config{})
	assert.NoError(t, f.svc.RunBackgroundConsumers(context.Background()))
}

func TestMotion(t *testing.T) {
	speed, heading := motion(nil, east(1), time.Second)
	assert.Nil(t, speed)
	assert.Nil(t, heading)

	prev := east(1)
	speed, heading = motion(&prev, east(1), time.Second)
	require.NotNil(t, speed)
	assert.Zero(t, *speed)
	assert.Nil(t, heading)

	// one degree of longitude at the equator in one hour
	speed, heading = motion(&prev, east(2), time.Hour)
	require.NotNil(t, speed)
	assert.InDelta(t, 111.19, *speed, 0.01)
	assert.InDelta(t, 90, *heading, 1e-6)
}

func TestUpdateSimulationInterval(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.svc.StartSimulation(ctx, startInput("ride-1"))
	require.NoError(t, err)
	first := f.ticker(t)
	require.True(t, first.Tick())
	f.pub.status(t)
	f.pub.location(t)

	view, err := f.svc.UpdateSimulation(ctx, "ride-1", ports.UpdateSimulationInput{Interval: 500 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, int64(500), view.IntervalMS)
	assert.Equal(t, "toUser", view.Phase)
	assert.Equal(t, 1, view.Index)

	assert.True(t, first.Stopped())
	rearmed := f.ticker(t)
	assert.Equal(t, 500*time.Millisecond, rearmed.Interval())
	assert.Equal(t, 1, f.factory.Live())

	// the position survives a cadence change
	require.True(t, rearmed.Tick())
	loc := f.pub.location(t)
	assert.Equal(t, contracts.GeoPoint{Lat: 0, Lng: 0.02}, loc.Location)
	assert.Greater(t, loc.SpeedKMH, 0.0)
}

func TestUpdateSimulationReroute(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.svc.StartSimulation(ctx, startInput("ride-1"))
	require.NoError(t, err)
	first := f.ticker(t)
	require.True(t, first.Tick())
	f.pub.status(t)
	f.pub.location(t)

	view, err := f.svc.UpdateSimulation(ctx, "ride-1", ports.UpdateSimulationInput{
		ToPickup: geo.Leg{east(1), east(1.01)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, view.PickupPoints)
	assert.Equal(t, 2, view.DestPoints)
	assert.Equal(t, 0, view.Index)

	rerouted := f.ticker(t)
	require.True(t, rerouted.Tick())
	key, _ := f.pub.status(t)
	assert.Equal(t, "ride.status.en_route", key)
	loc := f.pub.location(t)
	assert.Equal(t, contracts.GeoPoint{Lat: 0, Lng: 1.01}, loc.Location)
	assert.Zero(t, loc.SpeedKMH)
}

func TestUpdateSimulationRejects(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.svc.StartSimulation(ctx, startInput("ride-1"))
	require.NoError(t, err)
	f.ticker(t)

	_, err = f.svc.UpdateSimulation(ctx, "ride-1", ports.UpdateSimulationInput{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.UpdateSimulation(ctx, "ride-1", ports.UpdateSimulationInput{Interval: time.Millisecond})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.UpdateSimulation(ctx, "ride-1", ports.UpdateSimulationInput{
		ToDestination: geo.Leg{east(0), {Lat: 0, Lng: 200}},
	})
	assert.ErrorIs(t, err, ErrInvalidLeg)
	assert.ErrorIs(t, err, geo.ErrInvalidLongitude)

	_, err = f.svc.UpdateSimulation(ctx, "ghost", ports.UpdateSimulationInput{Interval: time.Second})
	assert.ErrorIs(t, err, ErrSimulationNotFound)

	view, err := f.svc.GetSimulation(ctx, "ride-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), view.IntervalMS)
	assert.Equal(t, 3, view.PickupPoints)
	assert.Equal(t, 1, f.factory.Live())
}
