package instrumentation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name             string
		metrics          string
		tracing          string
		wantErr          bool
		servesPrometheus bool
	}{
		{name: "prometheus without tracing", metrics: ExporterPrometheus, tracing: ExporterNone, servesPrometheus: true},
		{name: "stdout", metrics: ExporterStdout, tracing: ExporterStdout},
		{name: "unknown metrics exporter", metrics: "statsd", tracing: ExporterNone, wantErr: true},
		{name: "unknown tracing exporter", metrics: ExporterPrometheus, tracing: "zipkin", wantErr: true},
		{name: "otlp tracing without endpoint", metrics: ExporterPrometheus, tracing: ExporterOTLP, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			config := DefaultConfig()
			config.ServiceVersion = "test"
			config.MetricsExporter = tt.metrics
			config.TracingExporter = tt.tracing

			provider, err := NewProvider(ctx, config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

			assert.True(t, provider.Enabled())
			assert.NotNil(t, provider.Metrics())
			assert.NotNil(t, provider.Tracer("calcompanion"))
			assert.Equal(t, tt.servesPrometheus, provider.ServesPrometheus())
		})
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	config := DefaultConfig()
	config.Enabled = false

	provider, err := NewProvider(context.Background(), config)
	require.NoError(t, err)

	assert.False(t, provider.Enabled())
	assert.False(t, provider.ServesPrometheus())
	assert.NotNil(t, provider.Tracer("calcompanion"))

	// The recorder of a disabled provider accepts calls and drops them.
	metrics := provider.Metrics()
	require.NotNil(t, metrics)
	metrics.RecordChatTurn(context.Background(), OutcomeReplied)
	metrics.IncrementActiveSessions(context.Background())

	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestProvider_ShutdownTwice(t *testing.T) {
	ctx := context.Background()
	provider, err := NewProvider(ctx, DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, provider.Shutdown(ctx))
	// The SDK reports a second shutdown, it must not panic.
	assert.NotPanics(t, func() { _ = provider.Shutdown(ctx) })
}
