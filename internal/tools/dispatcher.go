package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teemow/calcompanion/internal/identity"
	"github.com/teemow/calcompanion/internal/instrumentation"
	"github.com/teemow/calcompanion/internal/logging"
	"github.com/teemow/calcompanion/internal/tools/common"
)

// Handler executes decoded requests against the calendar.
type Handler interface {
	CreateEvent(ctx context.Context, user identity.User, req CreateEvent) Result
	DeleteEvent(ctx context.Context, user identity.User, req DeleteEvent) Result
	ListEvents(ctx context.Context, user identity.User, req ListEvents) Result
}

// Invocation is one tool call together with the caller it runs for.
type Invocation struct {
	Call      Call
	User      identity.User
	SessionID string
}

// Dispatcher decodes model tool calls and routes them to a Handler.
type Dispatcher struct {
	handler     Handler
	logger      *slog.Logger
	instruments common.Instruments
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithInstrumentation records metrics, spans and audit lines per call.
func WithInstrumentation(metrics *instrumentation.Metrics, audit *instrumentation.AuditLogger) Option {
	return func(d *Dispatcher) {
		d.instruments = common.Instruments{Metrics: metrics, Audit: audit}
	}
}

// NewDispatcher creates a dispatcher executing calls with handler.
func NewDispatcher(handler Handler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handler: handler,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.WithComponent(d.logger, "tools")
	return d
}

// Descriptors returns the tools the dispatcher understands.
func (d *Dispatcher) Descriptors() []Descriptor {
	return Descriptors()
}

// Dispatch runs one tool call. It never returns an error: every failure is
// folded into the Result status and text.
func (d *Dispatcher) Dispatch(ctx context.Context, inv Invocation) Result {
	var result Result
	info := common.CallInfo{
		Tool:      inv.Call.Name,
		UserID:    inv.User.ID,
		SessionID: inv.SessionID,
	}
	common.InstrumentedCall(ctx, d.instruments, info, func(ctx context.Context) common.Outcome {
		result = d.dispatch(ctx, inv)
		return common.Outcome{
			Status:  string(result.Status),
			Success: result.OK(),
			Err:     result.Err,
		}
	})
	result.Tool = inv.Call.Name
	result.CallID = inv.Call.ID

	logger := logging.WithTool(logging.WithSession(d.logger, inv.User.ID, inv.SessionID), inv.Call.Name)
	if result.OK() {
		logger.Debug("tool call completed", logging.Status(string(result.Status)))
	} else {
		logger.Warn("tool call failed", logging.Status(string(result.Status)), logging.Err(result.Err))
	}
	return result
}

func (d *Dispatcher) dispatch(ctx context.Context, inv Invocation) Result {
	req, err := Decode(inv.Call)
	if err != nil {
		var argErr *ArgumentError
		if errors.As(err, &argErr) {
			return Result{
				Status: StatusInvalidArguments,
				Text:   fmt.Sprintf(InvalidArgsFormat, argErr.Tool, argErr.Reason),
				Err:    err,
			}
		}
		return Result{Status: StatusInvalidArguments, Text: fmt.Sprintf(InvalidArgsFormat, inv.Call.Name, err), Err: err}
	}

	switch r := req.(type) {
	case CreateEvent:
		return d.handler.CreateEvent(ctx, inv.User, r)
	case DeleteEvent:
		return d.handler.DeleteEvent(ctx, inv.User, r)
	case ListEvents:
		return d.handler.ListEvents(ctx, inv.User, r)
	case UnknownTool:
		return Result{
			Status: StatusUnknownTool,
			Text:   UnknownToolText,
			Err:    fmt.Errorf("unknown tool %q", r.Name),
		}
	default:
		return Result{Status: StatusUnknownTool, Text: UnknownToolText, Err: fmt.Errorf("unhandled request %T", req)}
	}
}
