package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/calcompanion/internal/chat"
	"github.com/teemow/calcompanion/internal/identity"
	"github.com/teemow/calcompanion/internal/instrumentation"
)

// ServerContext holds the long-lived dependencies of the HTTP handlers and
// tracks whether the server is shutting down.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	sessions     *SessionRegistry
	orchestrator *chat.Orchestrator
	metrics      *instrumentation.Metrics
	defaultLoc   *time.Location
	logger       *slog.Logger

	mu       sync.RWMutex
	shutdown bool
}

// ServerContextConfig lists what NewServerContext wires together.
type ServerContextConfig struct {
	Sessions     *SessionRegistry
	Orchestrator *chat.Orchestrator

	// Metrics is optional.
	Metrics *instrumentation.Metrics

	// DefaultLocation is used for users that send no time zone.
	DefaultLocation *time.Location

	Logger *slog.Logger
}

// NewServerContext creates a ServerContext. The returned context is
// cancelled by Shutdown.
func NewServerContext(ctx context.Context, config ServerContextConfig) (*ServerContext, error) {
	if config.Sessions == nil {
		return nil, errors.New("session registry is required")
	}
	if config.Orchestrator == nil {
		return nil, errors.New("chat orchestrator is required")
	}
	if config.DefaultLocation == nil {
		config.DefaultLocation = time.UTC
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:          shutdownCtx,
		cancel:       cancel,
		sessions:     config.Sessions,
		orchestrator: config.Orchestrator,
		metrics:      config.Metrics,
		defaultLoc:   config.DefaultLocation,
		logger:       config.Logger,
	}, nil
}

// Context returns the server lifetime context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Sessions returns the per-user session registry.
func (sc *ServerContext) Sessions() *SessionRegistry {
	return sc.sessions
}

// Orchestrator returns the chat orchestrator.
func (sc *ServerContext) Orchestrator() *chat.Orchestrator {
	return sc.orchestrator
}

// Metrics returns the metrics recorder, which may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Location returns the time zone used to render times for user.
func (sc *ServerContext) Location(user identity.User) *time.Location {
	return user.Location(sc.defaultLoc)
}

// IsShutdown reports whether Shutdown has been called.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown stops the session registry and cancels the server context.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}
	sc.shutdown = true
	sc.cancel()
	sc.sessions.Stop()
	return nil
}
