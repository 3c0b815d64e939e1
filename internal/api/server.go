package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"chunkscribe/internal/deps"
	"chunkscribe/internal/logging"
	"chunkscribe/internal/services"
)

const defaultListLimit = 50

// DependencyFunc reports external binary availability for /health.
type DependencyFunc func(ctx context.Context) []deps.Status

// ServerConfig wires the HTTP server.
type ServerConfig struct {
	Bind         string
	Token        string
	Manager      *Manager
	Dependencies DependencyFunc
	Logger       *slog.Logger
	StartTime    time.Time
}

// Server hosts the HTTP API.
type Server struct {
	cfg      ServerConfig
	logger   *slog.Logger
	server   *http.Server
	listener net.Listener
}

// NewServer builds a Server around cfg. Call Start to begin listening.
func NewServer(cfg ServerConfig) *Server {
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}
	logger := logging.NewComponentLogger(cfg.Logger, "api")
	s := &Server{cfg: cfg, logger: logger}
	s.server = &http.Server{
		Handler:           NewRouter(cfg, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start listens on the configured bind address and serves until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Bind
	}
	return s.listener.Addr().String()
}

// Stop shuts the listener down and cancels runs started through the API.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	if s.cfg.Manager != nil {
		s.cfg.Manager.Close()
	}
}

// NewRouter returns the API routes.
func NewRouter(cfg ServerConfig, logger *slog.Logger) *chi.Mux {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(recoveryMiddleware(logger))
	r.Use(loggingMiddleware(logger))

	r.Get("/health", healthHandler(cfg))

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(cfg.Token))

		r.Post("/runs", createRunHandler(cfg.Manager))
		r.Get("/runs", listRunsHandler(cfg.Manager))
		r.Get("/runs/{id}", getRunHandler(cfg.Manager))
		r.Delete("/runs/{id}", cancelRunHandler(cfg.Manager))
		r.Get("/runs/{id}/transcript", transcriptHandler(cfg.Manager))
	})
	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "ok",
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		}
		if cfg.Manager != nil {
			resp.ActiveRuns = cfg.Manager.ActiveCount()
		}
		if cfg.Dependencies != nil {
			statuses := cfg.Dependencies(r.Context())
			resp.Dependencies = FromDependencyStatuses(statuses)
			if len(deps.MissingRequired(statuses)) > 0 {
				resp.Status = "degraded"
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createRunHandler(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRunRequest
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		run, err := m.Start(req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Location", "/api/runs/"+run.ID)
		writeJSON(w, http.StatusAccepted, RunResponse{Run: run})
	}
}

func listRunsHandler(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultListLimit
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = parsed
		}
		runs, err := m.List(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list runs", "INTERNAL_ERROR")
			return
		}
		writeJSON(w, http.StatusOK, RunListResponse{Runs: runs})
	}
}

func getRunHandler(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := m.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeLookupError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, RunResponse{Run: run})
	}
}

func cancelRunHandler(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := m.Cancel(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, ErrRunFinished) {
			writeError(w, http.StatusConflict, fmt.Sprintf("run already %s", run.State), "CONFLICT")
			return
		}
		if err != nil {
			writeLookupError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, RunResponse{Run: run})
	}
}

func transcriptHandler(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := m.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeLookupError(w, err)
			return
		}
		path := run.TranscriptPath
		contentType := "text/plain; charset=utf-8"
		if r.URL.Query().Get("format") == "srt" {
			path = run.SubtitlePath
			contentType = "application/x-subrip"
		}
		if run.Active || path == "" {
			writeError(w, http.StatusNotFound, "transcript not available", "NOT_FOUND")
			return
		}
		w.Header().Set("Content-Type", contentType)
		http.ServeFile(w, r, path)
	}
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found", "NOT_FOUND")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	case errors.Is(err, services.ErrCancelled):
		writeError(w, http.StatusServiceUnavailable, err.Error(), "UNAVAILABLE")
	default:
		writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
