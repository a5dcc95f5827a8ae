package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/calcompanion/internal/conversation"
	"github.com/teemow/calcompanion/internal/logging"
)

// Repository is the persistence the Manager needs. *Store implements it.
type Repository interface {
	EnsureNamespace(ctx context.Context) error
	Save(ctx context.Context, userID, sessionID string, turns []conversation.Turn) error
	Load(ctx context.Context, userID, sessionID string) ([]conversation.Turn, error)
	List(ctx context.Context, userID string) (Listing, error)
	Delete(ctx context.Context, userID, sessionID string) error
}

// ErrNoActiveSession is returned when an operation needs an active session.
var ErrNoActiveSession = errors.New("no active session")

// Manager owns the chat sessions of one signed-in user: the session list,
// the active selection and the active conversation. In-memory state is the
// source of truth; storage failures are logged and never lose it.
//
// All methods are safe for concurrent use.
type Manager struct {
	userID string
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu          sync.Mutex
	sessions    []Info // most recently updated first
	truncated   bool   // storage holds more sessions than were listed
	active      string
	activeTurns []conversation.Turn
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(newID func() string) ManagerOption {
	return func(m *Manager) {
		m.newID = newID
	}
}

// NewManager returns a Manager for userID. Call Bootstrap before use.
func NewManager(userID string, repo Repository, logger *slog.Logger, opts ...ManagerOption) (*Manager, error) {
	if err := validateID(userID); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		userID: userID,
		repo:   repo,
		logger: logging.WithComponent(logger, "session_manager").With(logging.UserHash(userID)),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// UserID returns the owner of this manager.
func (m *Manager) UserID() string {
	return m.userID
}

// Bootstrap prepares storage, loads the session list and selects a session:
// the current one if it still exists, otherwise the most recently updated,
// otherwise a new one. Any failure heals by starting a new session.
func (m *Manager) Bootstrap(ctx context.Context) Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.repo.EnsureNamespace(ctx); err != nil {
		m.logger.Error("failed to prepare session storage, starting a new session", logging.Err(err))
		return m.newSessionLocked(ctx)
	}

	listing, err := m.repo.List(ctx, m.userID)
	if err != nil {
		m.logger.Error("failed to list sessions, starting a new session", logging.Err(err))
		return m.newSessionLocked(ctx)
	}
	m.sessions = listing.Sessions
	m.truncated = listing.Truncated

	if len(m.sessions) == 0 {
		return m.newSessionLocked(ctx)
	}

	if m.active != "" && m.indexLocked(m.active) >= 0 {
		if m.activeTurns != nil {
			return m.sessions[m.indexLocked(m.active)]
		}
		return m.switchLocked(ctx, m.active)
	}
	return m.switchLocked(ctx, m.sessions[0].ID)
}

// NewSession creates, activates and persists a fresh session. A failed
// persist is logged; the session stays usable in memory.
func (m *Manager) NewSession(ctx context.Context) Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.newSessionLocked(ctx)
}

func (m *Manager) newSessionLocked(ctx context.Context) Info {
	now := m.now()
	info := Info{ID: m.newID(), CreatedAt: now, LastUpdated: now}
	turns := conversation.NewConversation(now)

	m.sessions = append([]Info{info}, m.sessions...)
	m.active = info.ID
	m.activeTurns = turns

	if err := m.repo.Save(ctx, m.userID, info.ID, turns); err != nil {
		m.logger.Warn("failed to persist new session", logging.Session(info.ID), logging.Err(err))
	}
	m.logger.Info("session created", logging.Session(info.ID))
	return info
}

// SwitchSession activates the session with the given id. A missing or
// unreadable session is replaced by a new one.
func (m *Manager) SwitchSession(ctx context.Context, id string) Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.switchLocked(ctx, id)
}

func (m *Manager) switchLocked(ctx context.Context, id string) Info {
	turns, err := m.repo.Load(ctx, m.userID, id)
	if err != nil {
		if errors.Is(err, ErrMalformedState) {
			m.logger.Warn("stored session is malformed, starting a new session", logging.Session(id), logging.Err(err))
		} else {
			m.logger.Warn("failed to load session, starting a new session", logging.Session(id), logging.Err(err))
		}
		return m.newSessionLocked(ctx)
	}

	m.active = id
	m.activeTurns = turns

	if i := m.indexLocked(id); i >= 0 {
		return m.sessions[i]
	}
	// Loaded but not in the list yet, e.g. created by another replica.
	now := m.now()
	info := Info{ID: id, CreatedAt: now, LastUpdated: now}
	m.sessions = append([]Info{info}, m.sessions...)
	return info
}

// SignOut forgets the session list and the active session. Stored
// conversations are kept.
func (m *Manager) SignOut() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions = nil
	m.truncated = false
	m.active = ""
	m.activeTurns = nil
}

// Truncated reports whether the last listing was capped at
// MaxListedSessions and older sessions were left out.
func (m *Manager) Truncated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.truncated
}

// ListSessions returns the known sessions, most recently updated first.
func (m *Manager) ListSessions() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Info, len(m.sessions))
	copy(out, m.sessions)
	return out
}

// Active returns the active session, if any.
func (m *Manager) Active() (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == "" {
		return Info{}, false
	}
	if i := m.indexLocked(m.active); i >= 0 {
		return m.sessions[i], true
	}
	return Info{ID: m.active}, true
}

// ActiveConversation returns the active session id and a copy of its turns.
func (m *Manager) ActiveConversation() (string, []conversation.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == "" {
		return "", nil, ErrNoActiveSession
	}
	return m.active, conversation.Clone(m.activeTurns), nil
}

// DisplayMessages returns what the UI shows for the active session.
func (m *Manager) DisplayMessages() []conversation.DisplayMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == "" {
		return []conversation.DisplayMessage{}
	}
	return conversation.DisplayOrDefault(m.activeTurns)
}

// Commit replaces the turn sequence of session id and persists it. The
// in-memory sequence is updated even when persisting fails; lastUpdated
// only moves on success. Committing to a session that is no longer active
// persists it without touching the active conversation.
func (m *Manager) Commit(ctx context.Context, id string, turns []conversation.Turn) error {
	if err := conversation.Validate(turns); err != nil {
		return fmt.Errorf("invalid conversation for session %s: %w", id, err)
	}
	turns = conversation.Clone(turns)

	m.mu.Lock()
	defer m.mu.Unlock()

	if id == m.active {
		m.activeTurns = turns
	}

	if err := m.repo.Save(ctx, m.userID, id, turns); err != nil {
		m.logger.Warn("failed to persist session", logging.Session(id), logging.Err(err))
		return err
	}

	m.touchLocked(id, m.now())
	return nil
}

// DeleteSession removes a session. Deleting the active session selects the
// next most recent one, or starts a new session when none is left.
func (m *Manager) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.repo.Delete(ctx, m.userID, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if i := m.indexLocked(id); i >= 0 {
		m.sessions = append(m.sessions[:i:i], m.sessions[i+1:]...)
	}
	m.logger.Info("session deleted", logging.Session(id))

	if id != m.active {
		return nil
	}
	m.active = ""
	m.activeTurns = nil
	if len(m.sessions) > 0 {
		m.switchLocked(ctx, m.sessions[0].ID)
		return nil
	}
	m.newSessionLocked(ctx)
	return nil
}

func (m *Manager) indexLocked(id string) int {
	for i, s := range m.sessions {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// touchLocked moves id to the front of the list with a fresh lastUpdated.
func (m *Manager) touchLocked(id string, at time.Time) {
	info := Info{ID: id, CreatedAt: at}
	if i := m.indexLocked(id); i >= 0 {
		info = m.sessions[i]
		m.sessions = append(m.sessions[:i:i], m.sessions[i+1:]...)
	}
	info.LastUpdated = at
	m.sessions = append([]Info{info}, m.sessions...)
}
