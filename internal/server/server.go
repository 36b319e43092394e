package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/namelens/chatgate/internal/errors"
	"github.com/namelens/chatgate/internal/server/handlers"
	servermw "github.com/namelens/chatgate/internal/server/middleware"
)

// Options configures the HTTP server.
type Options struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Service backs /v1/chat and /v1/budget. The routes are not mounted when
	// it is nil.
	Service      handlers.ChatService
	MaxBodyBytes int64

	// JWTSecret, when set, requires a bearer token on every /v1 route.
	JWTSecret string
	Issuer    string

	// AdminToken enables POST /admin/signal.
	AdminToken string

	Version  string
	Checkers map[string]handlers.HealthChecker

	// DisableHealth leaves the /health routes unmounted.
	DisableHealth bool

	Logger *zap.Logger
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	health *handlers.HealthManager
	opts   Options
	logger *zap.Logger
}

// New creates a new HTTP server instance
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Version == "" {
		opts.Version = handlers.AppVersion
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)

	// RequestID → Metrics → Recovery
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewNotFoundError("no route for "+req.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewMethodNotAllowedError(req.Method+" is not supported on "+req.URL.Path))
	})

	health := handlers.NewHealthManager(opts.Version)
	for name, checker := range opts.Checkers {
		if checker != nil {
			health.RegisterChecker(name, checker)
		}
	}

	s := &Server{
		router: r,
		health: health,
		opts:   opts,
		logger: logger,
	}

	s.registerRoutes()
	return s
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on listener. http.ErrServerClosed is reported as
// a clean stop.
func (s *Server) Serve(listener net.Listener) error {
	s.server = &http.Server{
		Handler:           s.router,
		ReadTimeout:       orDefault(s.opts.ReadTimeout, 30*time.Second),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      orDefault(s.opts.WriteTimeout, 2*time.Minute),
		IdleTimeout:       orDefault(s.opts.IdleTimeout, 120*time.Second),
	}

	s.logger.Info("Starting HTTP server",
		zap.String("addr", listener.Addr().String()),
		zap.Bool("auth", s.opts.JWTSecret != ""))

	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.opts.Host, fmt.Sprint(s.opts.Port))
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
