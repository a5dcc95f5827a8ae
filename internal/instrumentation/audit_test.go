package instrumentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/teemow/calcompanion/internal/logging"
)

const (
	testUser    = "jane@example.com"
	testSession = "6f1c2b7e-session"
)

func attrMap(attrs []slog.Attr) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Key] = a.Value.String()
	}
	return m
}

func TestToolInvocation_Finish(t *testing.T) {
	ti := StartToolInvocation(context.Background(), "calendar_list_events", testUser, testSession)
	require.False(t, ti.Started.IsZero())

	ti.Finish("ok", true, nil)
	assert.True(t, ti.Success)
	assert.Equal(t, "ok", ti.Outcome)
	assert.Empty(t, ti.Error)
	assert.GreaterOrEqual(t, ti.Duration.Nanoseconds(), int64(0))

	failed := StartToolInvocation(context.Background(), "calendar_create_event", testUser, "").
		Finish("remote_error", false, errors.New("permission denied"))
	assert.False(t, failed.Success)
	assert.Equal(t, "permission denied", failed.Error)
}

func TestToolInvocation_Attrs(t *testing.T) {
	ti := StartToolInvocation(context.Background(), "calendar_list_events", testUser, testSession).
		Finish("ok", true, nil)

	hashed := attrMap(ti.Attrs(false))
	assert.Equal(t, "calendar_list_events", hashed[logging.KeyTool])
	assert.Equal(t, logging.AnonymizeUser(testUser), hashed[logging.KeyUserHash])
	assert.Equal(t, testSession, hashed[logging.KeySession])
	assert.Equal(t, "ok", hashed["outcome"])
	assert.NotContains(t, hashed, "user")
	assert.NotContains(t, hashed, logging.KeyError)
	assert.NotContains(t, hashed, "trace_id")

	raw := attrMap(ti.Attrs(true))
	assert.Equal(t, testUser, raw["user"])
	assert.NotContains(t, raw, logging.KeyUserHash)
}

func TestStartToolInvocation_PicksUpTrace(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "tool")
	defer span.End()

	ti := StartToolInvocation(ctx, "calendar_list_events", testUser, "")
	assert.Equal(t, span.SpanContext().TraceID().String(), ti.TraceID)
	assert.Equal(t, span.SpanContext().SpanID().String(), ti.SpanID)

	bare := StartToolInvocation(context.Background(), "calendar_list_events", testUser, "")
	assert.Empty(t, bare.TraceID)
	assert.Empty(t, bare.SpanID)
}

func TestAuditLogger_LogToolInvocation(t *testing.T) {
	tests := []struct {
		name      string
		config    AuditLoggingConfig
		success   bool
		wantMsg   string
		wantLevel string
		wantRaw   bool
	}{
		{name: "success", config: AuditLoggingConfig{Enabled: true}, success: true, wantMsg: "tool_executed", wantLevel: "INFO"},
		{name: "failure", config: AuditLoggingConfig{Enabled: true}, wantMsg: "tool_failed", wantLevel: "WARN"},
		{name: "pii", config: AuditLoggingConfig{Enabled: true, IncludePII: true}, success: true, wantMsg: "tool_executed", wantLevel: "INFO", wantRaw: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)), tt.config)

			var err error
			if !tt.success {
				err = errors.New("boom")
			}
			ti := StartToolInvocation(context.Background(), "calendar_create_event", testUser, testSession).
				Finish("ok", tt.success, err)
			al.LogToolInvocation(context.Background(), ti)

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.wantMsg, entry["msg"])
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, tt.wantRaw, bytes.Contains(buf.Bytes(), []byte(testUser)))
		})
	}
}

func TestAuditLogger_DisabledAndNil(t *testing.T) {
	var buf bytes.Buffer
	ti := StartToolInvocation(context.Background(), "calendar_list_events", testUser, "").Finish("ok", true, nil)

	NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)), AuditLoggingConfig{}).LogToolInvocation(context.Background(), ti)
	assert.Zero(t, buf.Len())

	var al *AuditLogger
	assert.NotPanics(t, func() { al.LogToolInvocation(context.Background(), ti) })

	assert.NotNil(t, NewAuditLogger(nil, AuditLoggingConfig{Enabled: true}).logger)
}
