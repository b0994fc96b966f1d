package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ride-hail-sim/internal/domain/user"
	"ride-hail-sim/internal/general/jwt"
	"ride-hail-sim/internal/general/logger"
	"ride-hail-sim/internal/general/osrm"
	"ride-hail-sim/internal/general/websocket"
	"ride-hail-sim/internal/ports"
	"ride-hail-sim/internal/software/simulation/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// HealthCheck is one dependency check reported by GET /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// SimulationHTTPHandler adapts HTTP requests to the SimulationService.
type SimulationHTTPHandler struct {
	svc       ports.SimulationService
	logger    *logger.Logger
	auth      *jwt.Manager
	websocket *websocket.WebSocket
	checks    []HealthCheck
}

// NewSimulationHTTPHandler wires an HTTP handler around the SimulationService.
func NewSimulationHTTPHandler(
	svc ports.SimulationService,
	logger *logger.Logger,
	auth *jwt.Manager,
	ws *websocket.WebSocket,
	checks ...HealthCheck,
) *SimulationHTTPHandler {
	return &SimulationHTTPHandler{svc: svc, logger: logger, auth: auth, websocket: ws, checks: checks}
}

// Routes builds the chi router with every simulation endpoint mounted.
func (handler *SimulationHTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", handler.handleHealth)

	r.Route("/simulations", func(r chi.Router) {
		r.With(jwt.AuthMiddleware(handler.auth, user.RoleDriver, user.RoleAdmin)).
			Post("/", handler.handleStartSimulation)
		r.With(jwt.AuthMiddleware(handler.auth, user.RoleAdmin)).
			Get("/", handler.handleListSimulations)

		r.Route("/{ride_id}", func(r chi.Router) {
			r.With(jwt.AuthMiddleware(handler.auth, user.RoleRider, user.RoleDriver, user.RoleAdmin)).
				Get("/", handler.handleGetSimulation)
			r.With(jwt.AuthMiddleware(handler.auth, user.RoleDriver, user.RoleAdmin)).
				Post("/active", handler.handleSetActive)
			r.With(jwt.AuthMiddleware(handler.auth, user.RoleDriver, user.RoleAdmin)).
				Patch("/", handler.handleUpdateSimulation)
			r.With(jwt.AuthMiddleware(handler.auth, user.RoleDriver, user.RoleAdmin)).
				Delete("/", handler.handleStopSimulation)
		})
	})

	// WebSockets authenticate with their first frame
	if handler.websocket != nil {
		r.Get("/ws/riders/{rider_id}", handler.websocket.ConnectRider)
		r.Get("/ws/panel", handler.websocket.ConnectPanel)
	}

	return r
}

func (handler *SimulationHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r)

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(handler.checks))
	for _, c := range handler.checks {
		if err := c.Check(checkCtx); err != nil {
			deps[c.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[c.Name] = "ok"
	}

	body := map[string]any{
		"status":       "ok",
		"service":      "simulator-service",
		"dependencies": deps,
		"simulations":  len(handler.svc.ListSimulations(ctx)),
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	handler.jsonResponse(ctx, w, status, body)
}

// ----- general helpers -----

func (handler *SimulationHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *SimulationHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	switch {
	case status >= 500:
		action = "http_internal_error"
	case status == http.StatusBadRequest:
		action = "validation_failed"
	case status == http.StatusUnsupportedMediaType:
		action = "unsupported_media_type"
	}
	if status >= 500 {
		handler.logger.Error(ctx, action, msg, err, nil)
	} else {
		handler.logger.Warn(ctx, action, msg, map[string]any{"status": status})
	}

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// serviceError maps service sentinels onto HTTP statuses.
func (handler *SimulationHTTPHandler) serviceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSimulationNotFound):
		handler.httpError(ctx, w, http.StatusNotFound, err.Error(), err)
	case errors.Is(err, service.ErrSimulationExists):
		handler.httpError(ctx, w, http.StatusConflict, err.Error(), err)
	case errors.Is(err, service.ErrTooManyRuns):
		handler.httpError(ctx, w, http.StatusTooManyRequests, err.Error(), err)
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidLeg):
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, service.ErrNoRouteProvider), errors.Is(err, osrm.ErrNoRoute):
		handler.httpError(ctx, w, http.StatusUnprocessableEntity, err.Error(), err)
	case errors.Is(err, osrm.ErrBadResponse):
		handler.httpError(ctx, w, http.StatusBadGateway, "route provider failed", err)
	default:
		handler.httpError(ctx, w, http.StatusInternalServerError, "internal error", err)
	}
}

// withReqID carries chi's request ID into the logger context.
func (handler *SimulationHTTPHandler) withReqID(r *http.Request) context.Context {
	ctx := r.Context()
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		return handler.logger.WithRequestID(ctx, reqID)
	}
	return ctx
}
