package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drallgood/bookrequest/internal/api"
	"github.com/drallgood/bookrequest/internal/auth"
	"github.com/drallgood/bookrequest/internal/logger"
	"github.com/drallgood/bookrequest/internal/metrics"
)

// Options configure the HTTP server
type Options struct {
	Addr           string
	MetricsEnabled bool
	MetricsPath    string
	// Auth guards the /api routes; nil leaves them open
	Auth *auth.Middleware
	// HealthCheck, when set, is reported by /healthz
	HealthCheck func() error
}

// Server represents the HTTP server
type Server struct {
	server     *http.Server
	apiHandler *api.Handler
	health     func() error
	logger     *logger.Logger
}

// New creates the HTTP server with all routes
func New(opts Options, apiHandler *api.Handler, log *logger.Logger) *Server {
	s := &Server{
		server:     &http.Server{Addr: opts.Addr},
		apiHandler: apiHandler,
		health:     opts.HealthCheck,
		logger:     log,
	}

	handler := http.NewServeMux()
	handler.HandleFunc("/healthz", s.handleHealthCheck)
	protect := func(h http.HandlerFunc) http.Handler { return opts.Auth.RequireToken(h) }
	handler.Handle("/api/search", protect(s.apiHandler.Search))
	handler.Handle("/api/request", protect(s.apiHandler.Request))
	handler.Handle("/api/settings", protect(s.apiHandler.Settings))
	handler.Handle("/api/settings/test", protect(s.apiHandler.TestInstance))
	handler.Handle("/api/settings/defaults", protect(s.apiHandler.Defaults))
	if opts.MetricsEnabled {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		handler.Handle(path, promhttp.Handler())
	}

	// request id -> metrics -> logger -> cors
	var finalHandler http.Handler = handler
	finalHandler = opts.Auth.CORS(finalHandler)
	finalHandler = logger.HTTPMiddleware(finalHandler)
	finalHandler = metrics.Middleware(finalHandler)
	finalHandler = logger.RequestIDMiddleware(finalHandler)
	s.server.Handler = finalHandler

	// searches fan out to two backends with a 15s budget per call and may page
	s.server.ReadTimeout = 10 * time.Second
	s.server.WriteTimeout = 90 * time.Second
	s.server.IdleTimeout = 120 * time.Second

	return s
}

// Handler returns the root handler, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", map[string]interface{}{
		"addr": s.server.Addr,
	})

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealthCheck handles health check requests
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if s.health != nil {
		if err := s.health(); err != nil {
			s.logger.Warn("Health check failed", map[string]interface{}{"error": err.Error()})
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"status":"unavailable"}`)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}
