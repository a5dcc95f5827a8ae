package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/calcompanion/internal/instrumentation"
)

// ErrNoCredential is returned by Connect when no access token is given.
var ErrNoCredential = errors.New("no calendar credential")

// Events is the subset of the calendar API the assistant uses.
type Events interface {
	CreateEvent(ctx context.Context, calendarID string, input EventInput) (*EventSummary, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	ListUpcoming(ctx context.Context, calendarID string, from time.Time, maxResults int64) ([]EventSummary, error)
}

// Connector builds an Events client for a bearer credential.
type Connector interface {
	Connect(ctx context.Context, credential string) (Events, error)
}

// ConnectorConfig configures a GoogleConnector.
type ConnectorConfig struct {
	// Endpoint overrides the API base URL. Used by tests and proxies.
	Endpoint string

	// Timeout bounds each API call. Zero means no extra deadline.
	Timeout time.Duration

	// HTTPClient is the base client the OAuth transport wraps.
	HTTPClient *http.Client

	Metrics *instrumentation.Metrics
}

// GoogleConnector connects to the Google Calendar API.
type GoogleConnector struct {
	config ConnectorConfig
}

// NewGoogleConnector creates a connector from config.
func NewGoogleConnector(config ConnectorConfig) *GoogleConnector {
	return &GoogleConnector{config: config}
}

// Connect creates a client authenticated with the given access token.
func (g *GoogleConnector) Connect(ctx context.Context, credential string) (Events, error) {
	if credential == "" {
		return nil, ErrNoCredential
	}

	if g.config.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, g.config.HTTPClient)
	}
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: credential, TokenType: "Bearer"})
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, tokenSource))}
	if g.config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.config.Endpoint))
	}

	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}

	return &Client{
		svc:     svc,
		timeout: g.config.Timeout,
		metrics: g.config.Metrics,
	}, nil
}

// Client wraps the Google Calendar service for one credential.
type Client struct {
	svc     *calendar.Service
	timeout time.Duration
	metrics *instrumentation.Metrics
}

// observe runs fn with the per-call timeout, a client span and metrics.
func (c *Client) observe(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ctx, span := instrumentation.StartCalendarSpan(ctx, operation)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordCalendarOperation(ctx, operation, status, time.Since(start))
	return err
}

// CreateEvent creates a new calendar event.
func (c *Client) CreateEvent(ctx context.Context, calendarID string, input EventInput) (*EventSummary, error) {
	var created *calendar.Event
	err := c.observe(ctx, instrumentation.OperationCreate, func(ctx context.Context) error {
		var err error
		created, err = c.svc.Events.Insert(calendarID, toEventResource(input)).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	summary := toEventSummary(created)
	return &summary, nil
}

// DeleteEvent deletes a calendar event.
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	err := c.observe(ctx, instrumentation.OperationDelete, func(ctx context.Context) error {
		return c.svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

// ListUpcoming lists up to maxResults events starting at or after from,
// ordered by start time with recurring events expanded.
func (c *Client) ListUpcoming(ctx context.Context, calendarID string, from time.Time, maxResults int64) ([]EventSummary, error) {
	var events *calendar.Events
	err := c.observe(ctx, instrumentation.OperationList, func(ctx context.Context) error {
		var err error
		events, err = c.svc.Events.List(calendarID).
			TimeMin(from.Format(time.RFC3339)).
			MaxResults(maxResults).
			SingleEvents(true).
			OrderBy("startTime").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	summaries := make([]EventSummary, 0, len(events.Items))
	for _, event := range events.Items {
		summaries = append(summaries, toEventSummary(event))
	}
	return summaries, nil
}

// ErrorMessage returns the provider's message for err, or "" when err did
// not come from the API.
func ErrorMessage(err error) string {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return ""
	}
	if apiErr.Message != "" {
		return apiErr.Message
	}
	for _, item := range apiErr.Errors {
		if item.Message != "" {
			return item.Message
		}
	}
	return http.StatusText(apiErr.Code)
}
