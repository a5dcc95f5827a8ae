package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/teemow/calcompanion/internal/instrumentation"
)

// EnvPrefix prefixes every environment override, e.g. CALCOMPANION_LLM_API_KEY.
const EnvPrefix = "CALCOMPANION"

// Storage backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendValkey = "valkey"
)

// Config is the complete service configuration.
type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Metrics         MetricsConfig         `mapstructure:"metrics"`
	Storage         StorageConfig         `mapstructure:"storage"`
	LLM             LLMConfig             `mapstructure:"llm"`
	Calendar        CalendarConfig        `mapstructure:"calendar"`
	Sessions        SessionsConfig        `mapstructure:"sessions"`
	Log             LogConfig             `mapstructure:"log"`
	Instrumentation InstrumentationConfig `mapstructure:"instrumentation"`
}

// ServerConfig configures the chat API listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MetricsConfig configures the dedicated Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// StorageConfig selects and configures the session blob store.
type StorageConfig struct {
	Backend string        `mapstructure:"backend"`
	Timeout time.Duration `mapstructure:"timeout"`
	SQLite  SQLiteConfig  `mapstructure:"sqlite"`
	Valkey  ValkeyConfig  `mapstructure:"valkey"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// ValkeyConfig configures the Valkey backend.
type ValkeyConfig struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TLSEnabled bool   `mapstructure:"tls"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// LLMConfig configures the language model.
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	BaseURL     string        `mapstructure:"base_url"`
}

// CalendarConfig configures the calendar provider.
type CalendarConfig struct {
	CalendarID      string        `mapstructure:"calendar_id"`
	DefaultTimeZone string        `mapstructure:"default_time_zone"`
	MaxResults      int64         `mapstructure:"max_results"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Endpoint        string        `mapstructure:"endpoint"`
}

// SessionsConfig configures the per-user session registry.
type SessionsConfig struct {
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// InstrumentationConfig mirrors instrumentation.Config.
type InstrumentationConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	ServiceName       string  `mapstructure:"service_name"`
	MetricsExporter   string  `mapstructure:"metrics_exporter"`
	TracingExporter   string  `mapstructure:"tracing_exporter"`
	OTLPEndpoint      string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure      bool    `mapstructure:"otlp_insecure"`
	TraceSamplingRate float64 `mapstructure:"trace_sampling_rate"`
	DetailedLabels    bool    `mapstructure:"detailed_labels"`
	AuditLogging      bool    `mapstructure:"audit_logging"`
	AuditIncludePII   bool    `mapstructure:"audit_include_pii"`
}

// ToInstrumentation converts to the instrumentation package config.
func (c InstrumentationConfig) ToInstrumentation(version string) instrumentation.Config {
	cfg := instrumentation.DefaultConfig()
	cfg.Enabled = c.Enabled
	if c.ServiceName != "" {
		cfg.ServiceName = c.ServiceName
	}
	if version != "" {
		cfg.ServiceVersion = version
	}
	cfg.MetricsExporter = c.MetricsExporter
	cfg.TracingExporter = c.TracingExporter
	cfg.OTLPEndpoint = c.OTLPEndpoint
	cfg.OTLPInsecure = c.OTLPInsecure
	cfg.TraceSamplingRate = c.TraceSamplingRate
	cfg.DetailedLabels = c.DetailedLabels
	cfg.AuditLogging = instrumentation.AuditLoggingConfig{
		Enabled:    c.AuditLogging,
		IncludePII: c.AuditIncludePII,
	}
	return cfg
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	inst := instrumentation.DefaultConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("storage.backend", BackendSQLite)
	v.SetDefault("storage.timeout", "5s")
	v.SetDefault("storage.sqlite.path", "calcompanion.db")
	v.SetDefault("storage.valkey.addr", "")
	v.SetDefault("storage.valkey.password", "")
	v.SetDefault("storage.valkey.db", 0)
	v.SetDefault("storage.valkey.tls", false)
	v.SetDefault("storage.valkey.key_prefix", "calcompanion:")

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.base_url", "")

	v.SetDefault("calendar.calendar_id", "primary")
	v.SetDefault("calendar.default_time_zone", "UTC")
	v.SetDefault("calendar.max_results", 10)
	v.SetDefault("calendar.timeout", "15s")
	v.SetDefault("calendar.endpoint", "")

	v.SetDefault("sessions.idle_timeout", "30m")
	v.SetDefault("sessions.cleanup_interval", "5m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("instrumentation.enabled", inst.Enabled)
	v.SetDefault("instrumentation.service_name", inst.ServiceName)
	v.SetDefault("instrumentation.metrics_exporter", inst.MetricsExporter)
	v.SetDefault("instrumentation.tracing_exporter", inst.TracingExporter)
	v.SetDefault("instrumentation.otlp_endpoint", "")
	v.SetDefault("instrumentation.otlp_insecure", false)
	v.SetDefault("instrumentation.trace_sampling_rate", inst.TraceSamplingRate)
	v.SetDefault("instrumentation.detailed_labels", inst.DetailedLabels)
	v.SetDefault("instrumentation.audit_logging", inst.AuditLogging.Enabled)
	v.SetDefault("instrumentation.audit_include_pii", inst.AuditLogging.IncludePII)
}

// Load reads configuration from defaults, the optional YAML file at
// configPath, CALCOMPANION_* environment variables and the given flags, in
// increasing order of precedence. Flags are bound by their name, so a flag
// named "server.addr" overrides server.addr.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if !strings.Contains(f.Name, ".") {
				return
			}
			if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be checked by decoding alone.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, errors.New("storage.sqlite.path is required for the sqlite backend"))
		}
	case BackendValkey:
		if c.Storage.Valkey.Addr == "" {
			errs = append(errs, errors.New("storage.valkey.addr is required for the valkey backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid storage.backend %q, must be one of: memory, sqlite, valkey", c.Storage.Backend))
	}

	if c.Calendar.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("calendar.max_results must be positive, got %d", c.Calendar.MaxResults))
	}
	if _, err := time.LoadLocation(c.Calendar.DefaultTimeZone); err != nil {
		errs = append(errs, fmt.Errorf("invalid calendar.default_time_zone %q: %w", c.Calendar.DefaultTimeZone, err))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be between 0 and 2, got %v", c.LLM.Temperature))
	}

	inst := c.Instrumentation.ToInstrumentation("")
	if err := inst.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("instrumentation: %w", err))
	}

	return errors.Join(errs...)
}

// DefaultLocation resolves calendar.default_time_zone.
func (c *Config) DefaultLocation() *time.Location {
	loc, err := time.LoadLocation(c.Calendar.DefaultTimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
