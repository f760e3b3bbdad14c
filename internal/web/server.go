package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/face-service/internal/config"
	"github.com/kozaktomas/face-service/internal/logging"
	"github.com/kozaktomas/face-service/internal/web/handlers"
	"github.com/kozaktomas/face-service/internal/web/middleware"
)

var log = logging.Component("web")

// Server represents the web server
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
	faces      *handlers.FaceHandler
	metrics    http.Handler
}

// NewServer creates a new web server. metricsHandler may be nil.
func NewServer(cfg *config.Config, svc handlers.FaceService, metricsHandler http.Handler) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:  cfg,
		router:  r,
		faces:   handlers.NewFaceHandler(svc),
		metrics: metricsHandler,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger())
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(2 * time.Minute))
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.SharedSecret(cfg.Server.Secret, cfg.Server.EnforceSecret))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2*time.Minute + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Infof("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
