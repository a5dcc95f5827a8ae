package common

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/teemow/calcompanion/internal/instrumentation"
)

func TestInstrumentedCall_NoInstruments(t *testing.T) {
	called := false
	outcome := InstrumentedCall(context.Background(), Instruments{}, CallInfo{Tool: "test_tool"}, func(ctx context.Context) Outcome {
		called = true
		return Outcome{Status: "ok", Success: true}
	})

	assert.True(t, called)
	assert.True(t, outcome.Success)
}

func TestInstrumentedCall_RecordsMetricsAndAudit(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	metrics, err := instrumentation.NewMetrics(mp.Meter("test"), false)
	require.NoError(t, err)

	var buf bytes.Buffer
	audit := instrumentation.NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)), instrumentation.AuditLoggingConfig{Enabled: true})

	inst := Instruments{Metrics: metrics, Audit: audit}
	info := CallInfo{Tool: "calendar_delete_event", UserID: "42", SessionID: "s1"}

	InstrumentedCall(context.Background(), inst, info, func(ctx context.Context) Outcome {
		return Outcome{Status: "remote_error", Success: false, Err: errors.New("Not Found")}
	})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "tool_invocations_total" {
				continue
			}
			found = true
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			require.Len(t, sum.DataPoints, 1)
			assert.Equal(t, int64(1), sum.DataPoints[0].Value)
			status, _ := sum.DataPoints[0].Attributes.Value("status")
			assert.Equal(t, instrumentation.StatusError, status.AsString())
		}
	}
	assert.True(t, found, "tool_invocations_total not recorded")

	out := buf.String()
	assert.Contains(t, out, `"msg":"tool_failed"`)
	assert.Contains(t, out, `"outcome":"remote_error"`)
	assert.NotContains(t, out, `"42"`)
}

func TestInstrumentedCall_Span(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	InstrumentedCall(context.Background(), Instruments{}, CallInfo{Tool: "calendar_list_events", SessionID: "s1"}, func(ctx context.Context) Outcome {
		return Outcome{Status: "ok", Success: true}
	})

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "tool.calendar_list_events", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
}
