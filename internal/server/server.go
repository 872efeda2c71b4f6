// Package server implements the HTTP control surface for a kickrunner host.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	kickrunner "github.com/Swind/go-kick-runner"
	"github.com/Swind/go-kick-runner/core"
)

const defaultWaitTimeout = 5 * time.Second

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Workers  *kickrunner.Group
	Gatherer prometheus.Gatherer // nil = no /metrics route
	Logger   *zap.Logger         // nil = no request logging
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &server{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logging)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/ticks", s.handleTicks)

	r.Route("/workers", func(r chi.Router) {
		r.Get("/", s.handleListWorkers)
		r.Post("/{name}/kick", s.handleKick)
		r.Post("/{name}/wait", s.handleWait)
		r.Get("/{name}/runs", s.handleRuns)
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

type server struct {
	deps Deps
}

type kickResponse struct {
	Worker   string `json:"worker"`
	Accepted bool   `json:"accepted"`
}

type ticksResponse struct {
	Ticks uint64 `json:"ticks"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *server) handleTicks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ticksResponse{Ticks: core.GetTicks()})
}

func (s *server) handleListWorkers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Workers.Stats())
}

func (s *server) handleKick(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	accepted, err := s.deps.Workers.Signal(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, kickResponse{Worker: name, Accepted: accepted})
}

// handleWait blocks until the worker is idle, bounded by ?timeout_ms=.
func (s *server) handleWait(w http.ResponseWriter, r *http.Request) {
	worker, ok := s.deps.Workers.Get(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, kickrunner.ErrUnknownWorker)
		return
	}

	timeout := defaultWaitTimeout
	if raw := r.URL.Query().Get("timeout_ms"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "timeout_ms must be a positive integer"})
			return
		}
		timeout = time.Duration(ms) * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	if err := worker.WaitContext(ctx); err != nil {
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleRuns(w http.ResponseWriter, r *http.Request) {
	worker, ok := s.deps.Workers.Get(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, kickrunner.ErrUnknownWorker)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	runs := worker.RecentRuns(limit)
	if runs == nil {
		runs = []core.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, kickrunner.ErrUnknownWorker):
		status = http.StatusNotFound
	case errors.Is(err, kickrunner.ErrWorkerTerminated):
		status = http.StatusConflict
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
