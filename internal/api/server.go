// Package api serves the operational HTTP surface: liveness and readiness
// probes, Prometheus metrics, and a snapshot of harvest runs. The harvest
// itself never goes through HTTP; this server exists for operators and the
// scheduler that invokes the binary.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/openbiblio/zotero-harvester/internal/harvest"
	"github.com/openbiblio/zotero-harvester/internal/metrics"
)

// Config controls the status server.
type Config struct {
	// Addr is the listen address, e.g. ":8080". Empty disables the server.
	Addr string
	// ReadTimeout and WriteTimeout bound each request.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ReadinessCheck reports whether a dependency is usable. The readiness probe
// fails while any check errors.
type ReadinessCheck func(ctx context.Context) error

// Server is the status HTTP server.
type Server struct {
	cfg      Config
	registry *harvest.Registry
	checks   []ReadinessCheck
	logger   *zap.Logger
	httpSrv  *http.Server
}

// New builds a Server. registry may be nil; the runs endpoint then serves an
// empty list.
func New(cfg Config, registry *harvest.Registry, logger *zap.Logger, checks ...ReadinessCheck) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	s := &Server{cfg: cfg, registry: registry, checks: checks, logger: logger}
	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Routes builds the router. Exposed for tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/runs", s.handleRuns)
	r.Handle("/metrics", metrics.Handler())
	return r
}

// Start listens in a background goroutine. A nil return from the goroutine's
// ListenAndServe is not reported; startup failures surface through the log.
func (s *Server) Start() {
	if s.cfg.Addr == "" {
		return
	}
	go func() {
		s.logger.Info("status server listening", zap.String("addr", s.cfg.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server failed", zap.Error(err))
		}
	}()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cfg.Addr == "" {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	for _, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleRuns(w http.ResponseWriter, _ *http.Request) {
	runs := []harvest.RunStatus{}
	if s.registry != nil {
		runs = s.registry.Snapshot()
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
