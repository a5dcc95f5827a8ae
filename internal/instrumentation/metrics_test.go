package instrumentation

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T, detailed bool) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"), detailed)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func counterPoints(t *testing.T, data metricdata.Aggregation) []metricdata.DataPoint[int64] {
	t.Helper()

	sum, ok := data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected int64 sum, got %T", data)
	}
	return sum.DataPoints
}

func TestMetrics_RecordChatTurn(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.RecordChatTurn(ctx, OutcomeReplied)
	m.RecordChatTurn(ctx, OutcomeReplied)
	m.RecordChatTurn(ctx, OutcomeModelError)

	points := counterPoints(t, collect(t, reader)["chat_turns_total"])
	got := make(map[string]int64)
	for _, p := range points {
		v, _ := p.Attributes.Value(attribute.Key(attrOutcome))
		got[v.AsString()] = p.Value
	}

	if got[OutcomeReplied] != 2 {
		t.Errorf("replied = %d, want 2", got[OutcomeReplied])
	}
	if got[OutcomeModelError] != 1 {
		t.Errorf("model_error = %d, want 1", got[OutcomeModelError])
	}
}

func TestMetrics_RecordToolInvocation_UserLabel(t *testing.T) {
	tests := []struct {
		name     string
		detailed bool
		wantUser bool
	}{
		{"default labels", false, false},
		{"detailed labels", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, reader := newTestMetrics(t, tt.detailed)
			m.RecordToolInvocation(context.Background(), "calendar_list_events", StatusSuccess, "user:abc", 10*time.Millisecond)

			points := counterPoints(t, collect(t, reader)["tool_invocations_total"])
			if len(points) != 1 {
				t.Fatalf("expected 1 data point, got %d", len(points))
			}
			_, hasUser := points[0].Attributes.Value(attribute.Key(attrUser))
			if hasUser != tt.wantUser {
				t.Errorf("user label present = %v, want %v", hasUser, tt.wantUser)
			}
		})
	}
}

func TestMetrics_AllRecordersEmit(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.RecordHTTPRequest(ctx, "POST", "/v1/messages", 200, 100*time.Millisecond)
	m.RecordCalendarOperation(ctx, OperationCreate, StatusSuccess, 50*time.Millisecond)
	m.RecordModelRequest(ctx, "gemini-2.0-flash", StatusError, time.Second)
	m.RecordStorageOperation(ctx, "sqlite", "put", StatusSuccess, time.Millisecond)
	m.IncrementActiveSessions(ctx)

	data := collect(t, reader)
	for _, name := range []string{
		"http_requests_total",
		"http_request_duration_seconds",
		"calendar_api_operations_total",
		"calendar_api_operation_duration_seconds",
		"model_requests_total",
		"model_request_duration_seconds",
		"storage_operations_total",
		"storage_operation_duration_seconds",
		"active_sessions",
	} {
		if _, ok := data[name]; !ok {
			t.Errorf("metric %s was not recorded", name)
		}
	}
}

func TestMetrics_ActiveSessions(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.IncrementActiveSessions(ctx)
	m.IncrementActiveSessions(ctx)
	m.DecrementActiveSessions(ctx)

	points := counterPoints(t, collect(t, reader)["active_sessions"])
	if len(points) != 1 || points[0].Value != 1 {
		t.Errorf("active_sessions = %+v, want single point with value 1", points)
	}
}

func TestMetrics_NoOp_WhenDisabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	m := provider.Metrics()
	ctx := context.Background()

	// None of these may panic on an uninitialized recorder.
	m.RecordHTTPRequest(ctx, "GET", "/", 200, time.Millisecond)
	m.RecordCalendarOperation(ctx, OperationList, StatusSuccess, time.Millisecond)
	m.RecordToolInvocation(ctx, "calendar_list_events", StatusSuccess, "", time.Millisecond)
	m.RecordModelRequest(ctx, "m", StatusSuccess, time.Millisecond)
	m.RecordStorageOperation(ctx, "memory", "get", StatusSuccess, time.Millisecond)
	m.RecordChatTurn(ctx, OutcomeReplied)
	m.IncrementActiveSessions(ctx)
	m.DecrementActiveSessions(ctx)

	var nilMetrics *Metrics
	nilMetrics.RecordChatTurn(ctx, OutcomeReplied)
}
