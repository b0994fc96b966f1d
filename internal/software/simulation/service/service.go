package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"ride-hail-sim/internal/general/clock"
	"ride-hail-sim/internal/general/logger"
	"ride-hail-sim/internal/general/rabbitmq"
	"ride-hail-sim/internal/ports"
	"ride-hail-sim/internal/simulator"
)

var (
	ErrSimulationNotFound = errors.New("simulation not found")
	ErrSimulationExists   = errors.New("simulation already running for this ride")
	ErrInvalidLeg         = errors.New("invalid route leg")
	ErrInvalidInput       = errors.New("invalid simulation input")
	ErrTooManyRuns        = errors.New("too many concurrent simulations")
	ErrNoRouteProvider    = errors.New("no route provider configured")
)

// LocationConsumer is the subset of the RabbitMQ client the service reads from.
type LocationConsumer interface {
	ConsumeLoop(ctx context.Context, queue, consumerTag string, prefetch int, handler rabbitmq.Handler) error
}

// Config carries the tunables taken from the `simulator` config section.
type Config struct {
	Interval time.Duration
	MaxRuns  int
}

type Option func(*simulationService)

// WithTicker replaces the ticker factory handed to every simulator.
func WithTicker(f clock.NewTicker) Option {
	return func(service *simulationService) {
		if f != nil {
			service.newTicker = f
		}
	}
}

// WithRouteProvider enables building legs from endpoints.
func WithRouteProvider(routes ports.RouteProvider) Option {
	return func(service *simulationService) { service.routes = routes }
}

// WithConsumer attaches the queue the rider push consumer reads.
func WithConsumer(consumer LocationConsumer) Option {
	return func(service *simulationService) { service.consumer = consumer }
}

// simulationService owns every live simulator, keyed by ride ID.
type simulationService struct {
	logger    *logger.Logger
	uow       ports.UnitOfWork
	runRepo   ports.SimulationRunRepository
	history   ports.LocationHistoryRepository
	pub       ports.Publisher
	notifier  ports.RiderNotifier
	routes    ports.RouteProvider
	consumer  LocationConsumer
	cfg       Config
	newTicker clock.NewTicker

	mu   sync.Mutex
	runs map[string]*runHandle
}

// NewSimulationService creates a new instance of the SimulationService with the provided dependencies.
func NewSimulationService(
	logger *logger.Logger,
	uow ports.UnitOfWork,
	runRepo ports.SimulationRunRepository,
	history ports.LocationHistoryRepository,
	pub ports.Publisher,
	notifier ports.RiderNotifier,
	cfg Config,
	opts ...Option,
) ports.SimulationService {
	if cfg.Interval <= 0 {
		cfg.Interval = simulator.DefaultInterval
	}
	service := &simulationService{
		logger:    logger,
		uow:       uow,
		runRepo:   runRepo,
		history:   history,
		pub:       pub,
		notifier:  notifier,
		cfg:       cfg,
		newTicker: clock.RealTicker,
		runs:      make(map[string]*runHandle),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (service *simulationService) lookup(rideID string) (*runHandle, error) {
	service.mu.Lock()
	defer service.mu.Unlock()
	h, ok := service.runs[rideID]
	if !ok {
		return nil, ErrSimulationNotFound
	}
	return h, nil
}
