// Package simulatorservice runs the position simulator behind HTTP and
// WebSocket endpoints.
package simulatorservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"ride-hail-sim/internal/general/config"
	"ride-hail-sim/internal/general/jwt"
	"ride-hail-sim/internal/general/logger"
	"ride-hail-sim/internal/general/osrm"
	"ride-hail-sim/internal/general/postgres"
	"ride-hail-sim/internal/general/rabbitmq"
	"ride-hail-sim/internal/general/websocket"
	"ride-hail-sim/internal/panel"
	"ride-hail-sim/internal/software/simulation/handler"
	"ride-hail-sim/internal/software/simulation/service"

	"golang.org/x/sync/errgroup"
)

const serviceName = "simulator-service"

// Run wires the simulator service and blocks until ctx is cancelled.
func Run(ctx context.Context, configPath string, maxConcurrent int) error {
	// startup logs go out at info until the configured level is known
	log := logger.New(serviceName, "info")
	ctx = log.WithRequestID(ctx, "startup-001")

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		log.Error(ctx, "config_load_failed", "Failed to load configuration", err, map[string]any{"path": configPath})
		return err
	}
	log = logger.New(serviceName, cfg.Log.Level)
	defer log.Sync()

	pool, err := postgres.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()
	pub := rabbitmq.NewMQPublisher(rmq)

	jwtManager, err := jwt.NewManager(cfg.JWT.SecretKey, cfg.JWT.TTL)
	if err != nil {
		log.Error(ctx, "jwt_setup_failed", "Failed to set up JWT manager", err, nil)
		return err
	}

	uow := postgres.NewUnitOfWork(pool)
	runRepo := postgres.NewSimulationRunRepo()
	historyRepo := postgres.NewLocationHistoryRepo()

	ws := websocket.NewWebSocket(log, jwtManager, websocket.PanelConfig{
		Layout: cfg.PanelLayout(),
		Spring: panel.Spring{Tension: cfg.Panel.Tension, Friction: cfg.Panel.Friction},
		Frame:  cfg.PanelFrame(),
	})

	opts := []service.Option{service.WithConsumer(rmq)}
	if cfg.OSRM.BaseURL != "" {
		opts = append(opts, service.WithRouteProvider(osrm.New(cfg.OSRM.BaseURL)))
	}
	svc := service.NewSimulationService(log, uow, runRepo, historyRepo, pub, ws,
		service.Config{Interval: cfg.SimulatorInterval(), MaxRuns: cfg.Simulator.MaxRuns},
		opts...,
	)

	httpHandler := handler.NewSimulationHTTPHandler(svc, log, jwtManager, ws,
		handler.HealthCheck{Name: "postgres", Check: pool.Ping},
		handler.HealthCheck{Name: "rabbitmq", Check: func(context.Context) error {
			if !rmq.Healthy() {
				return rabbitmq.ErrNotConnected
			}
			return nil
		}},
	)

	port := cfg.Services.SimulatorServicePort
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           withConcurrencyLimit(maxConcurrent, httpHandler.Routes()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info(ctx, "service_started", fmt.Sprintf("Simulator Service started on port %d", port),
			map[string]any{"port": port, "max_concurrent": maxConcurrent})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": port})
			return err
		}
		return nil
	})

	g.Go(func() error {
		return svc.RunBackgroundConsumers(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info(ctx, "shutdown_started", "Starting graceful shutdown", nil)

		shCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		svc.Shutdown(shCtx)
		if err := srv.Shutdown(shCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
			return err
		}
		return nil
	})

	return g.Wait()
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// WebSocket upgrades are long-lived, so they bypass it.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
