package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/devrunner/internal/events"
	"github.com/mattjoyce/devrunner/internal/storage"
	"github.com/mattjoyce/devrunner/internal/supervisor"
)

// StatusSource provides the supervisor snapshot served by /status.
type StatusSource interface {
	Status() supervisor.Status
}

// BuildHistory serves /builds. Optional.
type BuildHistory interface {
	Recent(ctx context.Context, runner string, limit int) ([]storage.BuildRecord, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// Token is an optional bearer token required on /status and /events.
	Token string
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	status    StatusSource
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	history BuildHistory
	runner  string
}

// New creates a new API server instance
func New(config Config, status StatusSource, hub *events.Hub, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		status:    status,
		events:    hub,
		logger:    logger.With("component", "api"),
		startedAt: time.Now(),
	}
}

// SetHistory enables GET /builds for runner's records.
func (s *Server) SetHistory(h BuildHistory, runner string) {
	s.history = h
	s.runner = runner
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
		// No WriteTimeout: /events streams stay open until ctx ends.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/status", s.handleStatus)
		r.Get("/events", s.handleEvents)
		r.Get("/builds", s.handleBuilds)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
