package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teemow/calcompanion/internal/conversation"
	"github.com/teemow/calcompanion/internal/logging"
	"github.com/teemow/calcompanion/internal/storage"
)

// MaxListedSessions caps how many sessions List enumerates per user.
const MaxListedSessions = 100

const (
	userKeyPrefix    = "user-"
	sessionKeyPrefix = "chat-"
)

var (
	// ErrNotFound is returned when a session has no stored state.
	ErrNotFound = errors.New("session not found")

	// ErrMalformedState is returned when stored state cannot be decoded into
	// a valid conversation. Errors carrying it also match ErrNotFound.
	ErrMalformedState = errors.New("malformed session state")

	// ErrInvalidID is returned for empty ids or ids containing '/'.
	ErrInvalidID = errors.New("invalid user or session id")
)

// Info describes a stored session.
type Info struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// DisplayName renders "Chat <created time>" in loc. A nil loc means UTC.
func (i Info) DisplayName(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return "Chat " + i.CreatedAt.In(loc).Format("Jan 2, 2006, 3:04:05 PM")
}

// Listing is the result of List.
type Listing struct {
	// Sessions are ordered most recently updated first.
	Sessions []Info

	// Truncated is set when more than MaxListedSessions sessions exist.
	Truncated bool
}

// Store persists conversations as JSON blobs keyed by user and session.
type Store struct {
	blobs   storage.BlobStore
	logger  *slog.Logger
	timeout time.Duration
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithOperationTimeout bounds every blob store call.
func WithOperationTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		s.timeout = d
	}
}

// NewStore returns a Store writing through blobs.
func NewStore(blobs storage.BlobStore, logger *slog.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		blobs:  blobs,
		logger: logging.WithComponent(logger, "session_store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validateID(id string) error {
	if id == "" || strings.Contains(id, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// UserPrefix returns the key prefix under which all of a user's sessions live.
func UserPrefix(userID string) (string, error) {
	if err := validateID(userID); err != nil {
		return "", err
	}
	return userKeyPrefix + userID + "/", nil
}

// Key returns the storage key of one session.
func Key(userID, sessionID string) (string, error) {
	prefix, err := UserPrefix(userID)
	if err != nil {
		return "", err
	}
	if err := validateID(sessionID); err != nil {
		return "", err
	}
	return prefix + sessionKeyPrefix + sessionID, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// EnsureNamespace prepares the backing store.
func (s *Store) EnsureNamespace(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.blobs.EnsureNamespace(ctx); err != nil {
		return fmt.Errorf("failed to prepare session storage: %w", err)
	}
	return nil
}

// Save writes the whole turn sequence of a session in a single upsert.
func (s *Store) Save(ctx context.Context, userID, sessionID string, turns []conversation.Turn) error {
	key, err := Key(userID, sessionID)
	if err != nil {
		return err
	}
	if err := conversation.Validate(turns); err != nil {
		return fmt.Errorf("refusing to save session %s: %w", sessionID, err)
	}

	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sessionID, err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.blobs.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to save session %s: %w", sessionID, err)
	}
	return nil
}

// Load reads a session. Missing state yields ErrNotFound; undecodable or
// structurally invalid state yields an error matching both ErrNotFound and
// ErrMalformedState.
func (s *Store) Load(ctx context.Context, userID, sessionID string) ([]conversation.Turn, error) {
	key, err := Key(userID, sessionID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := s.blobs.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	var turns []conversation.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("%w: %w: session %s: %v", ErrNotFound, ErrMalformedState, sessionID, err)
	}
	if err := conversation.Validate(turns); err != nil {
		return nil, fmt.Errorf("%w: %w: session %s: %v", ErrNotFound, ErrMalformedState, sessionID, err)
	}
	return turns, nil
}

// List returns the user's sessions, most recently updated first.
func (s *Store) List(ctx context.Context, userID string) (Listing, error) {
	prefix, err := UserPrefix(userID)
	if err != nil {
		return Listing{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	objects, err := s.blobs.List(ctx, prefix, MaxListedSessions+1)
	if err != nil {
		return Listing{}, fmt.Errorf("failed to list sessions: %w", err)
	}

	var listing Listing
	if len(objects) > MaxListedSessions {
		listing.Truncated = true
		objects = objects[:MaxListedSessions]
		s.logger.Warn("session listing truncated",
			logging.UserHash(userID),
			slog.Int("limit", MaxListedSessions))
	}

	listing.Sessions = make([]Info, 0, len(objects))
	for _, obj := range objects {
		id, ok := strings.CutPrefix(strings.TrimPrefix(obj.Key, prefix), sessionKeyPrefix)
		if !ok || id == "" || strings.Contains(id, "/") {
			continue
		}
		listing.Sessions = append(listing.Sessions, Info{
			ID:          id,
			CreatedAt:   obj.CreatedAt,
			LastUpdated: obj.UpdatedAt,
		})
	}
	return listing, nil
}

// Delete removes a session's stored state.
func (s *Store) Delete(ctx context.Context, userID, sessionID string) error {
	key, err := Key(userID, sessionID)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err = s.blobs.Delete(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}
