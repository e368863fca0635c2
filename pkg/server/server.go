package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/pagekeeper/pkg/middleware"
	"github.com/vango-dev/pagekeeper/pkg/session"
)

// Server is the HTTP/WebSocket API in front of a session manager.
type Server struct {
	// Session management
	sessions *session.Manager

	// Configuration
	config *ServerConfig

	// Metrics; nil when disabled
	metrics  *middleware.Metrics
	gatherer prometheus.Gatherer

	// Middleware applied to every route
	middleware []func(http.Handler) http.Handler

	// WebSocket upgrader
	upgrader websocket.Upgrader

	// Lazily built router
	handler     http.Handler
	handlerOnce sync.Once

	// HTTP server, set by Serve
	mu         sync.Mutex
	httpServer *http.Server

	// Closed on shutdown to end event streams
	done     chan struct{}
	doneOnce sync.Once

	// Logger
	logger *slog.Logger
}

// New creates a new Server serving the sessions in manager.
func New(config *ServerConfig, manager *session.Manager) *Server {
	config = config.withDefaults()

	return &Server{
		sessions: manager,
		config:   config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "server"),
	}
}

// SetMetrics enables request metrics and the metrics endpoint. Must be
// called before the handler is first used.
func (s *Server) SetMetrics(m *middleware.Metrics, g prometheus.Gatherer) {
	s.metrics = m
	s.gatherer = g
}

// Use adds middleware to every route. Must be called before the handler is
// first used.
func (s *Server) Use(mw func(http.Handler) http.Handler) {
	s.middleware = append(s.middleware, mw)
}

// Handler returns the API router.
//
// Routes:
//
//	POST   /api/sessions
//	DELETE /api/sessions/{id}
//	POST   /api/sessions/{id}/navigate
//	DELETE /api/sessions/{id}/pages?fullPath=...
//	POST   /api/sessions/{id}/pages/refresh?fullPath=...
//	POST   /api/sessions/{id}/close-current
//	POST   /api/sessions/{id}/close-others
//	POST   /api/sessions/{id}/close-all
//	POST   /api/sessions/{id}/refresh
//	GET    /api/sessions/{id}/state
//	GET    /api/sessions/{id}/events   (websocket)
//	GET    /healthz
//	GET    /metrics
func (s *Server) Handler() http.Handler {
	s.handlerOnce.Do(func() {
		s.handler = s.routes()
	})
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	if s.metrics != nil {
		r.Use(s.metrics.Handler)
	}
	for _, mw := range s.middleware {
		r.Use(mw)
	}

	r.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		r.Handle(s.config.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{"+middleware.SessionParam+"}", func(r chi.Router) {
			r.Delete("/", s.handleDeleteSession)
			r.Post("/navigate", s.handleNavigate)
			r.Delete("/pages", s.handleClosePage)
			r.Post("/pages/refresh", s.handleRefreshPage)
			r.Post("/close-current", s.handleCloseCurrent)
			r.Post("/close-others", s.handleCloseOthers)
			r.Post("/close-all", s.handleCloseAll)
			r.Post("/refresh", s.handleRefreshActive)
			r.Get("/state", s.handleState)
			r.Get("/events", s.handleEvents)
		})
	})

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln and blocks until an interrupt or
// SIGTERM, then shuts down gracefully.
func (s *Server) Serve(ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}
	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	// Set up graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	// Error channel for Serve
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server starting", "address", ln.Addr().String())
		errCh <- httpServer.Serve(ln)
	}()

	// Wait for shutdown signal or error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil

	case <-shutdown:
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server. Event streams end first, then
// the listener stops and in-flight requests drain, then every session is
// dropped.
func (s *Server) Shutdown(ctx context.Context) error {
	// Create timeout context
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.doneOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()

	var err error
	if httpServer != nil {
		if err = httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
		}
	}

	if serr := s.sessions.Shutdown(ctx); serr != nil {
		s.logger.Error("session shutdown error", "error", serr)
	}

	if err != nil {
		return err
	}
	s.logger.Info("server shutdown complete")
	return nil
}

// Sessions returns the session manager.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// Config returns the server configuration.
func (s *Server) Config() *ServerConfig {
	return s.config
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// SetLogger sets the server logger.
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger.With("component", "server")
}
