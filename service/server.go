package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/handylife-debug/webwaka-main-sub008/composition"
	"github.com/handylife-debug/webwaka-main-sub008/dispatch"
	"github.com/handylife-debug/webwaka-main-sub008/errors"
	"github.com/handylife-debug/webwaka-main-sub008/health"
	"github.com/handylife-debug/webwaka-main-sub008/metric"
	"github.com/handylife-debug/webwaka-main-sub008/registry"
)

const apiPrefix = "/api/v1/"

// Server is the operator HTTP surface over a registry, a bus and an
// orchestrator.
type Server struct {
	registry *registry.Registry
	bus      *dispatch.Bus
	orch     *composition.Orchestrator

	metrics *metric.MetricsRegistry
	limiter *rate.Limiter
	checks  map[string]func() health.Status
	version string
	logger  *slog.Logger
	now     func() time.Time
	started time.Time

	handler http.Handler
}

// Option configures a Server.
type Option func(*Server) error

// WithMetricsRegistry exposes reg on /metrics and records health checks in
// its core metrics.
func WithMetricsRegistry(reg *metric.MetricsRegistry) Option {
	return func(s *Server) error {
		s.metrics = reg
		return nil
	}
}

// WithRateLimit admits rps requests per second with the given burst.
// Requests over the limit get 429.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) error {
		if rps <= 0 || burst < 1 {
			return fmt.Errorf("rate limit needs a positive rate and burst")
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		return nil
	}
}

// WithHealthCheck adds a named sub-status to /health.
func WithHealthCheck(name string, check func() health.Status) Option {
	return func(s *Server) error {
		if name == "" || check == nil {
			return fmt.Errorf("health check needs a name and a function")
		}
		s.checks[name] = check
		return nil
	}
}

// WithVersion sets the version reported by /health and the OpenAPI document.
func WithVersion(v string) Option {
	return func(s *Server) error {
		s.version = v
		return nil
	}
}

// WithLogger sets the logger. Nil keeps slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// New builds the server and its routes.
func New(reg *registry.Registry, bus *dispatch.Bus, orch *composition.Orchestrator, opts ...Option) (*Server, error) {
	if reg == nil || bus == nil || orch == nil {
		return nil, errors.WrapInvalid(nil, "Server", "New", "registry, bus and orchestrator are required")
	}
	s := &Server{
		registry: reg,
		bus:      bus,
		orch:     orch,
		checks:   make(map[string]func() health.Status),
		version:  "dev",
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, errors.WrapInvalid(err, "Server", "New", "apply option")
		}
	}
	s.logger = s.logger.With("component", "service")
	s.started = s.now()

	mux := http.NewServeMux()
	for _, rt := range s.routes() {
		mux.HandleFunc(rt.method+" "+rt.path, rt.handler)
	}
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET "+apiPrefix+"openapi.json", s.handleOpenAPI)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	s.handler = s.logRequests(s.rateLimit(mux))
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.WrapFatal(err, "Server", "ListenAndServe", "listen on "+addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("HTTP server shutting down", "timeout", shutdownTimeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.WrapTransient(err, "Server", "ListenAndServe", "shutdown")
	}
	return nil
}

func (s *Server) routes() []route {
	cell := apiPrefix + "cells/{sector}/{name}"
	return []route{
		{method: "POST", path: apiPrefix + "cells", summary: "Publish a cell version", tag: "Cells",
			codes: []int{http.StatusBadRequest, http.StatusServiceUnavailable}, handler: s.handlePublish},
		{method: "GET", path: apiPrefix + "cells", summary: "List cells", tag: "Cells", query: []string{"sector"},
			handler: s.handleListCells},
		{method: "GET", path: cell, summary: "Cell statistics", tag: "Cells",
			codes: []int{http.StatusNotFound}, handler: s.handleCellStats},
		{method: "GET", path: cell + "/resolve", summary: "Resolve a channel to a version", tag: "Cells",
			query: []string{"channel"}, codes: []int{http.StatusNotFound}, handler: s.handleResolve},
		{method: "PUT", path: cell + "/channels/{channel}", summary: "Point a channel at a version", tag: "Cells",
			codes: []int{http.StatusBadRequest, http.StatusNotFound}, handler: s.handleUpdateChannel},
		{method: "POST", path: cell + "/promote", summary: "Copy one channel's version to another", tag: "Cells",
			codes: []int{http.StatusBadRequest, http.StatusNotFound}, handler: s.handlePromote},
		{method: "GET", path: cell + "/health", summary: "Probe a cell and record the outcome", tag: "Cells",
			codes: []int{http.StatusNotFound}, handler: s.handleCellHealth},
		{method: "POST", path: cell + "/actions/{action}", summary: "Invoke an action", tag: "Dispatch",
			codes: []int{http.StatusBadRequest, http.StatusNotFound, http.StatusBadGateway,
				http.StatusServiceUnavailable, http.StatusGatewayTimeout}, handler: s.handleCall},
		{method: "POST", path: apiPrefix + "dispatch/batch", summary: "Invoke several actions concurrently", tag: "Dispatch",
			codes: []int{http.StatusBadRequest}, handler: s.handleBatch},
		{method: "GET", path: apiPrefix + "breakers", summary: "Circuit breaker states", tag: "Dispatch",
			handler: s.handleBreakers},
		{method: "POST", path: apiPrefix + "breakers/{sector}/{name}/reset", summary: "Close a circuit breaker", tag: "Dispatch",
			codes: []int{http.StatusNotFound}, handler: s.handleResetBreaker},
		{method: "POST", path: apiPrefix + "tissues", summary: "Register a tissue", tag: "Tissues",
			codes: []int{http.StatusBadRequest, http.StatusServiceUnavailable}, handler: s.handleRegisterTissue},
		{method: "GET", path: apiPrefix + "tissues", summary: "List tissues", tag: "Tissues", handler: s.handleListTissues},
		{method: "GET", path: apiPrefix + "tissues/{id}", summary: "Get a tissue", tag: "Tissues",
			codes: []int{http.StatusNotFound}, handler: s.handleGetTissue},
		{method: "POST", path: apiPrefix + "tissues/{id}/execute", summary: "Execute a tissue", tag: "Tissues",
			codes: []int{http.StatusBadRequest, http.StatusNotFound, http.StatusBadGateway}, handler: s.handleExecuteTissue},
		{method: "GET", path: apiPrefix + "tissues/{id}/health", summary: "Tissue health", tag: "Tissues",
			codes: []int{http.StatusNotFound}, handler: s.handleTissueHealth},
		{method: "GET", path: apiPrefix + "tissues/{id}/history", summary: "Recent executions", tag: "Tissues",
			codes: []int{http.StatusNotFound}, handler: s.handleTissueHistory},
		{method: "GET", path: apiPrefix + "tissues/{id}/dependencies", summary: "Derived step dependencies", tag: "Tissues",
			codes: []int{http.StatusNotFound}, handler: s.handleTissueDependencies},
		{method: "POST", path: apiPrefix + "organs", summary: "Create an organ", tag: "Organs",
			codes: []int{http.StatusBadRequest, http.StatusNotFound}, handler: s.handleCreateOrgan},
		{method: "GET", path: apiPrefix + "organs/{id}", summary: "Get an organ", tag: "Organs",
			codes: []int{http.StatusNotFound}, handler: s.handleGetOrgan},
		{method: "POST", path: apiPrefix + "organs/{id}/execute", summary: "Execute an organ", tag: "Organs",
			codes: []int{http.StatusBadRequest, http.StatusNotFound, http.StatusBadGateway}, handler: s.handleExecuteOrgan},
	}
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.openAPI())
}
