package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/teemow/calcompanion/internal/identity"
	"github.com/teemow/calcompanion/internal/logging"
)

const (
	// DefaultAddr is the default chat API address.
	DefaultAddr = ":8080"

	defaultReadHeaderTimeout = 10 * time.Second
	defaultIdleTimeout       = 120 * time.Second

	// Model and calendar calls run inside a request.
	defaultWriteTimeout = 3 * time.Minute
)

// Config configures the chat API server.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Server is the chat API: session management, message submission and
// health probes over HTTP.
type Server struct {
	echo            *echo.Echo
	httpServer      *http.Server
	health          *HealthChecker
	sc              *ServerContext
	addr            string
	shutdownTimeout time.Duration
	listener        net.Listener
	logger          *slog.Logger
}

// New builds the API server around sc.
func New(sc *ServerContext, config Config) *Server {
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}
	logger := logging.WithComponent(sc.Logger(), "api")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = jsonErrorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))
	e.Use(httpMetrics(sc.Metrics()))

	health := NewHealthChecker(sc)
	health.RegisterHealthEndpoints(e)

	api := &API{sc: sc, logger: logger}
	v1 := e.Group("/v1", identity.Middleware())
	api.RegisterRoutes(v1)

	return &Server{
		echo: e,
		httpServer: &http.Server{
			Handler:           e,
			ReadHeaderTimeout: defaultReadHeaderTimeout,
			WriteTimeout:      defaultWriteTimeout,
			IdleTimeout:       defaultIdleTimeout,
		},
		health:          health,
		sc:              sc,
		addr:            config.Addr,
		shutdownTimeout: config.ShutdownTimeout,
		logger:          logger,
	}
}

// Handler returns the HTTP handler of the API.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Health returns the health checker so callers can add readiness checks.
func (s *Server) Health() *HealthChecker {
	return s.health
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address after Listen, else the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Run serves the API until ctx is cancelled. Readiness is withdrawn before
// the listener is shut down so load balancers stop routing first.
func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.logger.Info("starting chat API", "addr", s.Addr())
	s.health.SetReady(true)

	stop := context.AfterFunc(ctx, func() {
		s.health.SetReady(false)
	})
	defer stop()

	err := serve(ctx, s.httpServer, s.listener, s.shutdownTimeout)
	if shutdownErr := s.sc.Shutdown(); shutdownErr != nil {
		err = errors.Join(err, shutdownErr)
	}
	s.logger.Info("chat API stopped")
	return err
}

// serve runs srv on ln until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
