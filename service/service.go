// Package service exposes the mark registry over HTTP.
//
// Every registry operation maps to a JSON endpoint under /v1. The caller
// principal arrives in the X-Castmark-Principal header: authentication is
// external, the header carries an opaque already-authenticated identity.
// Registry error kinds map to HTTP status codes, and /v1/events offers a
// WebSocket tap over the NATS event subjects for live consumers.
package service

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	natspkg "github.com/nats-io/nats.go"

	"github.com/0xSardius/castmark/errors"
	"github.com/0xSardius/castmark/metric"
	"github.com/0xSardius/castmark/registry"
)

// PrincipalHeader carries the caller principal on every mutating request.
const PrincipalHeader = "X-Castmark-Principal"

// maxRequestSize bounds request bodies. The largest legitimate payload is a
// batch registration; identifiers, names and URLs are all small.
const maxRequestSize = 1 << 20

// Service is the HTTP surface over a mark registry
type Service struct {
	registry *registry.Registry
	metrics  *metric.MetricsRegistry
	logger   *slog.Logger

	// Event tap (optional)
	nc            *natspkg.Conn
	subjectPrefix string
	upgrader      websocket.Upgrader

	server *http.Server
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the service logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRegistry wires Prometheus metrics and the /metrics endpoint
func WithMetricsRegistry(mr *metric.MetricsRegistry) Option {
	return func(s *Service) {
		s.metrics = mr
	}
}

// WithEventTap enables the /v1/events WebSocket endpoint, bridging the NATS
// event subjects under prefix to connected clients.
func WithEventTap(nc *natspkg.Conn, prefix string) Option {
	return func(s *Service) {
		s.nc = nc
		s.subjectPrefix = prefix
	}
}

// New creates a service over the given registry
func New(reg *registry.Registry, opts ...Option) (*Service, error) {
	if reg == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "service", "New", "registry validation")
	}

	s := &Service{
		registry: reg,
		logger:   slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Routes builds the HTTP mux for the service
func (s *Service) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/marks", s.handleRegister)
	mux.HandleFunc("POST /v1/marks/batch", s.handleBatchRegister)
	mux.HandleFunc("GET /v1/marks/{identifier}", s.handleLookup)
	mux.HandleFunc("GET /v1/marks/{identifier}/registered", s.handleRegistered)
	mux.HandleFunc("PUT /v1/marks/{identifier}", s.handleUpdate)
	mux.HandleFunc("POST /v1/marks/{identifier}/transfer", s.handleTransfer)
	mux.HandleFunc("DELETE /v1/marks/{identifier}", s.handleRemove)

	mux.HandleFunc("POST /v1/admin/pause", s.handlePause)
	mux.HandleFunc("POST /v1/admin/unpause", s.handleUnpause)
	mux.HandleFunc("GET /v1/status", s.handleStatus)

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	if s.nc != nil {
		mux.HandleFunc("GET /v1/events", s.handleEvents)
	}

	return mux
}

// Start begins serving on the given address. Blocks until the listener fails
// or Shutdown is called.
func (s *Service) Start(listen string) error {
	s.server = &http.Server{
		Addr:              listen,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("http server starting", "listen", listen)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.WrapFatal(err, "service", "Start", "listen and serve")
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Service) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "service", "Shutdown", "server shutdown")
	}
	return nil
}

func (s *Service) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{
		"status": "ok",
		"paused": s.registry.Paused(),
	}
	if s.nc != nil && !s.nc.IsConnected() {
		status["status"] = "degraded"
		status["nats"] = "disconnected"
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Paused: s.registry.Paused()})
}
