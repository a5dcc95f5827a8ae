package calendar_tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/calcompanion/internal/calendar"
	"github.com/teemow/calcompanion/internal/identity"
	"github.com/teemow/calcompanion/internal/logging"
	"github.com/teemow/calcompanion/internal/tools"
)

// Defaults applied by NewHandler.
const (
	DefaultCalendarID = "primary"
	DefaultMaxResults = 10
)

// Config configures a Handler.
type Config struct {
	// CalendarID is the calendar all tools operate on (default: primary).
	CalendarID string

	// MaxResults caps the listed agenda (default: 10).
	MaxResults int64

	// DefaultLocation is used for users without a valid time zone.
	DefaultLocation *time.Location

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Handler runs the calendar tools for one request at a time. It is safe for
// concurrent use.
type Handler struct {
	connector  calendar.Connector
	calendarID string
	maxResults int64
	defaultLoc *time.Location
	now        func() time.Time
	logger     *slog.Logger
}

var _ tools.Handler = (*Handler)(nil)

// NewHandler creates a Handler connecting through connector.
func NewHandler(connector calendar.Connector, config Config) *Handler {
	h := &Handler{
		connector:  connector,
		calendarID: config.CalendarID,
		maxResults: config.MaxResults,
		defaultLoc: config.DefaultLocation,
		now:        config.Now,
		logger:     config.Logger,
	}
	if h.calendarID == "" {
		h.calendarID = DefaultCalendarID
	}
	if h.maxResults <= 0 {
		h.maxResults = DefaultMaxResults
	}
	if h.defaultLoc == nil {
		h.defaultLoc = time.UTC
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = logging.WithComponent(h.logger, "calendar_tools")
	return h
}

// getCalendarClient connects with the user's credential.
func (h *Handler) getCalendarClient(ctx context.Context, user identity.User) (calendar.Events, error) {
	if !user.HasCredential() {
		return nil, tools.ErrUnauthenticated
	}
	events, err := h.connector.Connect(ctx, user.Credential)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar client: %w", err)
	}
	return events, nil
}

// location returns the zone used to render and create events for user.
func (h *Handler) location(user identity.User) *time.Location {
	return user.Location(h.defaultLoc)
}
