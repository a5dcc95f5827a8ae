package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/calcompanion/internal/calendar"
	"github.com/teemow/calcompanion/internal/chat"
	"github.com/teemow/calcompanion/internal/config"
	"github.com/teemow/calcompanion/internal/instrumentation"
	"github.com/teemow/calcompanion/internal/llm"
	"github.com/teemow/calcompanion/internal/logging"
	"github.com/teemow/calcompanion/internal/server"
	"github.com/teemow/calcompanion/internal/session"
	"github.com/teemow/calcompanion/internal/storage"
	"github.com/teemow/calcompanion/internal/storage/memory"
	"github.com/teemow/calcompanion/internal/storage/sqlite"
	"github.com/teemow/calcompanion/internal/storage/valkey"
	"github.com/teemow/calcompanion/internal/tools"
	"github.com/teemow/calcompanion/internal/tools/calendar_tools"
)

// telemetryFlushTimeout bounds the final export of metrics and traces.
const telemetryFlushTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat API server",
		Long: `Start the calcompanion chat API.

The API keeps chat sessions per signed-in user and answers messages with
the configured Gemini model, which can create, list and delete events in
the user's Google Calendar. Callers identify users with the X-User-ID
header and pass the user's Google access token as a Bearer token.

Prometheus metrics are served on a dedicated port (default :9090).

Configuration is read from --config, CALCOMPANION_* environment variables
and the flags below, in increasing order of precedence.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	// Flag names match config keys so they override the same settings.
	flags := cmd.Flags()
	flags.String("server.addr", server.DefaultAddr, "Chat API listen address")
	flags.String("storage.backend", config.BackendSQLite, "Session storage backend: memory, sqlite or valkey")
	flags.String("storage.sqlite.path", "calcompanion.db", "SQLite database file (sqlite backend)")
	flags.String("storage.valkey.addr", "", "Valkey server address, e.g. valkey.namespace.svc:6379 (valkey backend)")
	flags.String("llm.model", llm.DefaultModel, "Gemini model name")
	flags.String("calendar.default_time_zone", "UTC", "Time zone for users that send none")
	flags.Bool("metrics.enabled", true, "Serve Prometheus metrics on a dedicated port")
	flags.String("metrics.addr", server.DefaultMetricsAddr, "Metrics server address")
	flags.String("log.level", "info", "Log level: debug, info, warn or error")
	flags.String("log.format", "text", "Log format: text or json")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	instConfig := cfg.Instrumentation.ToInstrumentation(version)
	provider, err := instrumentation.NewProvider(ctx, instConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize instrumentation: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryFlushTimeout)
		defer cancel()
		if err := provider.Shutdown(flushCtx); err != nil {
			logger.Warn("failed to flush telemetry", logging.Err(err))
		}
	}()
	metrics := provider.Metrics()
	audit := instrumentation.NewAuditLogger(logging.WithComponent(logger, "audit"), instConfig.AuditLogging)

	blobs, err := openBlobStore(cfg.Storage, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := blobs.Close(); err != nil {
			logger.Warn("failed to close session storage", logging.Err(err))
		}
	}()
	store := session.NewStore(blobs, logger, session.WithOperationTimeout(cfg.Storage.Timeout))

	temperature := cfg.LLM.Temperature
	model, err := llm.NewGemini(ctx, llm.GeminiConfig{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: &temperature,
		Timeout:     cfg.LLM.Timeout,
		BaseURL:     cfg.LLM.BaseURL,
		Metrics:     metrics,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create language model: %w", err)
	}

	dispatcher := newDispatcher(cfg, logger, metrics, audit)

	registry := server.NewSessionRegistry(store, server.SessionRegistryConfig{
		IdleTimeout:     cfg.Sessions.IdleTimeout,
		CleanupInterval: cfg.Sessions.CleanupInterval,
		Metrics:         metrics,
		Logger:          logger,
	})
	defer registry.Stop()

	sc, err := server.NewServerContext(ctx, server.ServerContextConfig{
		Sessions:        registry,
		Orchestrator:    chat.New(model, dispatcher, chat.WithLogger(logger), chat.WithMetrics(metrics)),
		Metrics:         metrics,
		DefaultLocation: cfg.DefaultLocation(),
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	api := server.New(sc, server.Config{
		Addr:            cfg.Server.Addr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	api.Health().AddReadinessCheck("storage", store.EnsureNamespace)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.Run(gctx)
	})

	if cfg.Metrics.Enabled {
		metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Metrics.Addr,
			ShutdownTimeout:         cfg.Server.ShutdownTimeout,
			InstrumentationProvider: provider,
			Logger:                  logger,
		})
		switch {
		case err == nil:
			g.Go(func() error {
				return metricsServer.Run(gctx)
			})
		case errors.Is(err, server.ErrPrometheusNotConfigured):
			logger.Info("metrics are pushed, not serving a scrape endpoint", "exporter", instConfig.MetricsExporter)
		default:
			logger.Warn("metrics server disabled", logging.Err(err))
		}
	}

	logger.Info("calcompanion started",
		"version", version,
		"storage", cfg.Storage.Backend,
		"model", cfg.LLM.Model,
	)
	if err := g.Wait(); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	logger.Info("calcompanion stopped")
	return nil
}

// newDispatcher wires the calendar tools used by both the API and MCP.
func newDispatcher(cfg *config.Config, logger *slog.Logger, metrics *instrumentation.Metrics, audit *instrumentation.AuditLogger) *tools.Dispatcher {
	connector := calendar.NewGoogleConnector(calendar.ConnectorConfig{
		Endpoint: cfg.Calendar.Endpoint,
		Timeout:  cfg.Calendar.Timeout,
		Metrics:  metrics,
	})
	handler := calendar_tools.NewHandler(connector, calendar_tools.Config{
		CalendarID:      cfg.Calendar.CalendarID,
		MaxResults:      cfg.Calendar.MaxResults,
		DefaultLocation: cfg.DefaultLocation(),
		Logger:          logger,
	})
	return tools.NewDispatcher(handler,
		tools.WithLogger(logger),
		tools.WithInstrumentation(metrics, audit),
	)
}

// openBlobStore opens the configured backend wrapped with storage metrics.
func openBlobStore(cfg config.StorageConfig, metrics *instrumentation.Metrics) (storage.BlobStore, error) {
	var blobs storage.BlobStore
	switch cfg.Backend {
	case config.BackendMemory:
		blobs = memory.New()
	case config.BackendSQLite:
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		blobs = store
	case config.BackendValkey:
		store, err := valkey.New(valkey.Config{
			Addr:       cfg.Valkey.Addr,
			Password:   cfg.Valkey.Password,
			DB:         cfg.Valkey.DB,
			TLSEnabled: cfg.Valkey.TLSEnabled,
			KeyPrefix:  cfg.Valkey.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open valkey storage: %w", err)
		}
		blobs = store
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s (supported: memory, sqlite, valkey)", cfg.Backend)
	}
	return storage.NewInstrumented(blobs, cfg.Backend, metrics), nil
}
