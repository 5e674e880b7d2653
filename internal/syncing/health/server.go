package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/metalsync/internal/core/domain"
	"github.com/vietddude/metalsync/internal/syncing/orchestrator"
)

// Controller is the part of the sync engine driven over HTTP.
type Controller interface {
	Refresh(ctx context.Context) (domain.BatchResult, error)
	RecordInteraction()
}

// LifecycleSetter moves the host lifecycle phase.
type LifecycleSetter interface {
	Set(state domain.AppState)
}

// Server provides HTTP endpoints for health monitoring and engine control.
type Server struct {
	monitor    *Monitor
	controller Controller
	lifecycle  LifecycleSetter
	server     *http.Server
}

// NewServer creates a new health server. lifecycle may be nil, in which case
// the lifecycle endpoint is not registered.
func NewServer(monitor *Monitor, controller Controller, lifecycle LifecycleSetter, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		monitor:    monitor,
		controller: controller,
		lifecycle:  lifecycle,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /refresh", s.handleRefresh)
	mux.HandleFunc("POST /interaction", s.handleInteraction)
	if lifecycle != nil {
		mux.HandleFunc("POST /lifecycle/{state}", s.handleLifecycle)
	}

	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	code := http.StatusOK
	if report.SystemStatus == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	batch, err := s.controller.Refresh(r.Context())
	switch {
	case errors.Is(err, orchestrator.ErrRefreshInFlight):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		slog.Error("Manual refresh failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, batch)
	}
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	s.controller.RecordInteraction()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	state, ok := domain.ParseAppState(r.PathValue("state"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown lifecycle state"})
		return
	}
	s.lifecycle.Set(state)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
