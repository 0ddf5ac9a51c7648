// Package gateway provides the HTTP gateway server.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"convwin/internal/config"
	"convwin/internal/gateway/handlers"
	"convwin/internal/gateway/middleware"
	"convwin/internal/gateway/websocket"
	"convwin/internal/storage"
	"convwin/internal/window"
	"convwin/pkg/logger"
)

// Options carries the server dependencies.
type Options struct {
	// Manager is required.
	Manager *window.Manager
	// Hub enables the /ws event stream when set.
	Hub *websocket.Hub
	// DB enables the summary journal routes and the storage health check.
	DB *storage.DB
	// Checks are extra named health checks, e.g. summarizer backends.
	Checks  map[string]handlers.HealthCheck
	Version string
}

// Server represents the HTTP gateway server.
type Server struct {
	httpServer  *http.Server
	router      *mux.Router
	hub         *websocket.Hub
	config      *config.Config
	db          *storage.DB
	manager     *window.Manager
	rateLimiter *middleware.RateLimiter
	checks      map[string]handlers.HealthCheck
	version     string
}

// NewServer creates a new gateway server with all routes registered.
func NewServer(cfg *config.Config, opts Options) *Server {
	router := mux.NewRouter()

	rlConfig := middleware.RateLimiterConfig{
		RequestsPerMinute: cfg.Gateway.RateLimit.RequestsPerMinute,
		Burst:             cfg.Gateway.RateLimit.Burst,
		Enabled:           cfg.Gateway.RateLimit.Enabled,
		CleanupInterval:   cfg.Gateway.RateLimit.CleanupInterval,
	}
	rateLimiter := middleware.NewRateLimiter(rlConfig)

	// Recovery -> Logging -> RateLimit
	handler := middleware.Recovery(
		middleware.Logging(
			rateLimiter.RateLimit(router),
		),
	)

	s := &Server{
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			// Summarization may wait on a remote model for SummarizeTimeout.
			WriteTimeout: 0,
			IdleTimeout:  120 * time.Second,
		},
		router:      router,
		hub:         opts.Hub,
		config:      cfg,
		db:          opts.DB,
		manager:     opts.Manager,
		rateLimiter: rateLimiter,
		checks:      opts.Checks,
		version:     opts.Version,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures the server routes.
func (s *Server) setupRoutes() {
	checks := make(map[string]handlers.HealthCheck, len(s.checks)+1)
	for name, check := range s.checks {
		checks[name] = check
	}
	var store handlers.SummaryStore
	if s.db != nil {
		checks["storage"] = s.db.Check
		store = s.db
	}

	s.router.HandleFunc("/api/v1/health", handlers.HealthHandler(s.version, checks)).Methods(http.MethodGet)

	handlers.NewWindowHandler(s.manager, store).RegisterRoutes(s.router)

	if s.hub != nil {
		s.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWs(s.hub, w, r)
		})
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.SendError(w, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Gateway.Host, fmt.Sprint(s.config.Gateway.Port))
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Addr(), err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	handlers.InitStartTime()
	s.httpServer.Addr = ln.Addr().String()

	if s.hub != nil {
		go s.hub.Run()
	}

	logger.Info().
		Str("addr", s.httpServer.Addr).
		Int("max_window", s.manager.Config().MaxWindow).
		Msg("Starting gateway server")

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	event := logger.Info().Int("rate_limited_clients", s.rateLimiter.Clients())
	if s.hub != nil {
		event = event.Int("ws_clients", s.hub.ClientCount())
		s.hub.Stop()
	}
	event.Msg("Shutting down gateway server")
	s.rateLimiter.Stop()

	timeout := s.config.Gateway.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

// ApplyWindowConfig swaps the manager configuration and tells connected
// clients about it. Cycles already running keep their old snapshot.
func (s *Server) ApplyWindowConfig(cfg window.Config) {
	s.manager.SetConfig(cfg)
	applied := s.manager.Config()

	logger.Info().
		Int("max_window", applied.MaxWindow).
		Int("minimum_batch", applied.MinimumBatch).
		Dur("summarize_timeout", applied.SummarizeTimeout).
		Msg("Window config applied")

	if s.hub != nil {
		s.hub.Publish(websocket.TypeConfigReloaded, "", applied)
	}
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Router returns the underlying router for testing.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Hub returns the WebSocket hub, nil when the event stream is disabled.
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}

// Manager returns the window manager.
func (s *Server) Manager() *window.Manager {
	return s.manager
}
