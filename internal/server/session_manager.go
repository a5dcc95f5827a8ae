package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/calcompanion/internal/instrumentation"
	"github.com/teemow/calcompanion/internal/logging"
	"github.com/teemow/calcompanion/internal/session"
)

const (
	// DefaultIdleTimeout is how long a user's session manager is kept
	// in memory without requests.
	DefaultIdleTimeout = 30 * time.Minute

	// DefaultCleanupInterval is how often idle managers are evicted.
	DefaultCleanupInterval = 5 * time.Minute
)

// userEntry tracks one signed-in user's manager for cleanup
type userEntry struct {
	manager    *session.Manager
	lastAccess time.Time
	bootstrap  sync.Once
}

// SessionRegistryConfig configures a SessionRegistry.
type SessionRegistryConfig struct {
	// IdleTimeout evicts users that made no request for this long.
	IdleTimeout time.Duration

	// CleanupInterval is the period of the eviction loop.
	CleanupInterval time.Duration

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger

	// ManagerOptions are passed to every new session.Manager.
	ManagerOptions []session.ManagerOption

	// Clock overrides the time source used for idle tracking.
	Clock func() time.Time
}

// SessionRegistry maps signed-in users to their session managers. Each user
// gets one manager, created and bootstrapped on first use. Evicting an idle
// user only drops in-memory state; stored conversations are kept and are
// loaded again on the next request.
type SessionRegistry struct {
	repo           session.Repository
	idleTimeout    time.Duration
	metrics        *instrumentation.Metrics
	logger         *slog.Logger
	managerOptions []session.ManagerOption
	now            func() time.Time

	users         map[string]*userEntry
	mu            sync.Mutex
	cleanupTicker *time.Ticker
	cleanupDone   chan struct{}
	cleanupWG     sync.WaitGroup
	stopOnce      sync.Once
}

// NewSessionRegistry creates a registry over repo and starts the eviction
// loop. Call Stop to end it.
func NewSessionRegistry(repo session.Repository, config SessionRegistryConfig) *SessionRegistry {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultCleanupInterval
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &SessionRegistry{
		repo:           repo,
		idleTimeout:    config.IdleTimeout,
		metrics:        config.Metrics,
		logger:         logging.WithComponent(logger, "session_registry"),
		managerOptions: config.ManagerOptions,
		now:            config.Clock,
		users:          make(map[string]*userEntry),
		cleanupTicker:  time.NewTicker(config.CleanupInterval),
		cleanupDone:    make(chan struct{}),
	}

	r.cleanupWG.Add(1)
	go r.cleanupLoop()

	return r
}

// Manager returns the session manager of userID, creating and
// bootstrapping it on first use. Concurrent first requests share one
// bootstrap.
func (r *SessionRegistry) Manager(ctx context.Context, userID string) (*session.Manager, error) {
	r.mu.Lock()
	entry, ok := r.users[userID]
	if !ok {
		manager, err := session.NewManager(userID, r.repo, r.logger, r.managerOptions...)
		if err != nil {
			r.mu.Unlock()
			return nil, err
		}
		entry = &userEntry{manager: manager}
		r.users[userID] = entry
		r.metrics.IncrementActiveSessions(ctx)
	}
	entry.lastAccess = r.now()
	r.mu.Unlock()

	entry.bootstrap.Do(func() {
		info := entry.manager.Bootstrap(context.WithoutCancel(ctx))
		r.logger.Debug("user sessions loaded", logging.UserHash(userID), logging.Session(info.ID))
	})
	return entry.manager, nil
}

// SignOut forgets the in-memory sessions of userID.
func (r *SessionRegistry) SignOut(ctx context.Context, userID string) {
	r.mu.Lock()
	entry, ok := r.users[userID]
	if ok {
		delete(r.users, userID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	entry.manager.SignOut()
	r.metrics.DecrementActiveSessions(ctx)
	r.logger.Info("user signed out", logging.UserHash(userID))
}

// Len returns the number of users currently held in memory.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// EvictIdle drops every user idle for longer than the idle timeout and
// returns how many were dropped.
func (r *SessionRegistry) EvictIdle() int {
	r.mu.Lock()
	now := r.now()
	expired := 0
	for userID, entry := range r.users {
		if now.Sub(entry.lastAccess) > r.idleTimeout {
			delete(r.users, userID)
			expired++
		}
	}
	r.mu.Unlock()

	for i := 0; i < expired; i++ {
		r.metrics.DecrementActiveSessions(context.Background())
	}
	if expired > 0 {
		r.logger.Info("evicted idle users", "count", expired)
	}
	return expired
}

func (r *SessionRegistry) cleanupLoop() {
	defer r.cleanupWG.Done()
	for {
		select {
		case <-r.cleanupTicker.C:
			r.EvictIdle()
		case <-r.cleanupDone:
			return
		}
	}
}

// Stop ends the eviction loop and waits for it to exit. It is safe to call
// more than once.
func (r *SessionRegistry) Stop() {
	r.stopOnce.Do(func() {
		r.cleanupTicker.Stop()
		close(r.cleanupDone)
	})
	r.cleanupWG.Wait()
}
