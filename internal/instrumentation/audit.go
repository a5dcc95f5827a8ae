package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"github.com/teemow/calcompanion/internal/logging"
)

// ToolInvocation is the audit record of one tool dispatch. UserID is kept
// raw; the audit logger decides whether it is written hashed or verbatim.
type ToolInvocation struct {
	Tool      string
	UserID    string
	SessionID string

	// Outcome is the dispatch status (ok, unauthenticated, remote_error, ...).
	Outcome  string
	Success  bool
	Error    string
	Started  time.Time
	Duration time.Duration

	TraceID string
	SpanID  string
}

// StartToolInvocation begins a record for tool called by userID in
// sessionID, picking up the trace of the span in ctx.
func StartToolInvocation(ctx context.Context, tool, userID, sessionID string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		UserID:    userID,
		SessionID: sessionID,
		Started:   time.Now(),
		TraceID:   GetTraceID(ctx),
		SpanID:    GetSpanID(ctx),
	}
}

// Finish stamps the duration and result of the call.
func (ti *ToolInvocation) Finish(outcome string, success bool, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.Started)
	ti.Outcome = outcome
	ti.Success = success
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// Attrs renders the record as log attributes. The user is hashed unless
// rawUser is set. Empty optional fields are left out.
func (ti *ToolInvocation) Attrs(rawUser bool) []slog.Attr {
	user := logging.UserHash(ti.UserID)
	if rawUser {
		user = slog.String("user", ti.UserID)
	}

	attrs := []slog.Attr{
		logging.Tool(ti.Tool),
		user,
		slog.Duration(logging.KeyDuration, ti.Duration),
		slog.Bool("success", ti.Success),
	}
	for _, opt := range []struct{ key, value string }{
		{logging.KeySession, ti.SessionID},
		{"outcome", ti.Outcome},
		{"trace_id", ti.TraceID},
		{"span_id", ti.SpanID},
		{logging.KeyError, ti.Error},
	} {
		if opt.value != "" {
			attrs = append(attrs, slog.String(opt.key, opt.value))
		}
	}
	return attrs
}

// AuditLogger writes one line per tool invocation. A nil AuditLogger
// discards everything.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an AuditLogger. A nil logger falls back to
// slog.Default().
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogToolInvocation logs ti at info, or at warn when the call failed.
func (al *AuditLogger) LogToolInvocation(ctx context.Context, ti *ToolInvocation) {
	if al == nil || !al.enabled {
		return
	}

	level, msg := slog.LevelInfo, "tool_executed"
	if !ti.Success {
		level, msg = slog.LevelWarn, "tool_failed"
	}
	al.logger.LogAttrs(ctx, level, msg, ti.Attrs(al.includePII)...)
}
