// Package config loads and validates reader config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Profile store backends accepted by PROFILE_BACKEND.
const (
	ProfileBackendREST     = "rest"
	ProfileBackendPostgres = "postgres"
)

// Config holds reader configuration loaded from the environment.
type Config struct {
	// SupabaseURL is the project base URL (e.g. https://xyz.supabase.co). Required.
	SupabaseURL string `mapstructure:"SUPABASE_URL"`
	// SupabaseAnonKey is the public anon key sent as the apikey header. Required.
	SupabaseAnonKey string `mapstructure:"SUPABASE_ANON_KEY"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is "text" (tint, coloured on a terminal) or "json".
	LogFormat string `mapstructure:"LOG_FORMAT"`
	// DataDir holds the local SQLite store (device id, persisted auth session).
	DataDir string `mapstructure:"DATA_DIR"`

	// ProfileBackend selects how profiles are read and written: "rest" (PostgREST) or "postgres" (direct, needs DATABASE_URL).
	ProfileBackend string `mapstructure:"PROFILE_BACKEND"`
	// DatabaseURL is the Postgres DSN used when ProfileBackend is "postgres".
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// SessionDwellThreshold is how long the app must stay hidden before becoming visible triggers a session refresh (e.g. "30s").
	SessionDwellThreshold string `mapstructure:"SESSION_DWELL_THRESHOLD"`
	// SessionLookahead refreshes the auth session when it expires within this window (e.g. "5m").
	SessionLookahead string `mapstructure:"SESSION_LOOKAHEAD"`
	// SessionCheckInterval is the periodic session check while visible (e.g. "2m").
	SessionCheckInterval string `mapstructure:"SESSION_CHECK_INTERVAL"`
	// RefreshMaxAttempts bounds attempts per refresh (session and document URL); default 3.
	RefreshMaxAttempts int `mapstructure:"REFRESH_MAX_ATTEMPTS"`
	// RefreshRetryDelay is the fixed delay between attempts (e.g. "1s").
	RefreshRetryDelay string `mapstructure:"REFRESH_RETRY_DELAY"`
	// URLCheckInterval is the periodic signed URL expiry check (e.g. "30s").
	URLCheckInterval string `mapstructure:"URL_CHECK_INTERVAL"`
	// URLRefreshThreshold refreshes a signed URL when it expires within this window (e.g. "1m").
	URLRefreshThreshold string `mapstructure:"URL_REFRESH_THRESHOLD"`
	// URLHiddenThreshold refreshes a signed URL on return to visible when hidden longer than this (e.g. "1m").
	URLHiddenThreshold string `mapstructure:"URL_HIDDEN_THRESHOLD"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext connection to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses for session events.
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for session events.
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("SUPABASE_URL", "")
	v.SetDefault("SUPABASE_ANON_KEY", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("DATA_DIR", ".secure-reader")
	v.SetDefault("PROFILE_BACKEND", ProfileBackendREST)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SESSION_DWELL_THRESHOLD", "30s")
	v.SetDefault("SESSION_LOOKAHEAD", "5m")
	v.SetDefault("SESSION_CHECK_INTERVAL", "2m")
	v.SetDefault("REFRESH_MAX_ATTEMPTS", 3)
	v.SetDefault("REFRESH_RETRY_DELAY", "1s")
	v.SetDefault("URL_CHECK_INTERVAL", "30s")
	v.SetDefault("URL_REFRESH_THRESHOLD", "1m")
	v.SetDefault("URL_HIDDEN_THRESHOLD", "1m")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "reader-session-events")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.SupabaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.SupabaseURL), "/")
	if cfg.SupabaseURL == "" {
		return nil, errors.New("config: SUPABASE_URL must be set")
	}
	if cfg.SupabaseAnonKey == "" {
		return nil, errors.New("config: SUPABASE_ANON_KEY must be set")
	}

	switch cfg.ProfileBackend {
	case ProfileBackendREST:
	case ProfileBackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL must be set when PROFILE_BACKEND=postgres")
		}
	default:
		return nil, errors.New("config: PROFILE_BACKEND must be rest or postgres")
	}

	if cfg.RefreshMaxAttempts == 0 {
		cfg.RefreshMaxAttempts = 3
	}
	if cfg.RefreshMaxAttempts < 1 || cfg.RefreshMaxAttempts > 10 {
		return nil, errors.New("config: REFRESH_MAX_ATTEMPTS must be between 1 and 10")
	}

	return &cfg, nil
}

// StorePath returns the SQLite file path under DataDir.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "reader.db")
}

// DwellThreshold parses SessionDwellThreshold. Returns 30s if unset or invalid.
func (c *Config) DwellThreshold() time.Duration {
	return parseDuration(c.SessionDwellThreshold, 30*time.Second)
}

// Lookahead parses SessionLookahead. Returns 5m if unset or invalid.
func (c *Config) Lookahead() time.Duration {
	return parseDuration(c.SessionLookahead, 5*time.Minute)
}

// SessionInterval parses SessionCheckInterval. Returns 2m if unset or invalid.
func (c *Config) SessionInterval() time.Duration {
	return parseDuration(c.SessionCheckInterval, 2*time.Minute)
}

// RetryDelay parses RefreshRetryDelay. Returns 1s if unset or invalid.
func (c *Config) RetryDelay() time.Duration {
	return parseDuration(c.RefreshRetryDelay, time.Second)
}

// URLInterval parses URLCheckInterval. Returns 30s if unset or invalid.
func (c *Config) URLInterval() time.Duration {
	return parseDuration(c.URLCheckInterval, 30*time.Second)
}

// URLThreshold parses URLRefreshThreshold. Returns 1m if unset or invalid.
func (c *Config) URLThreshold() time.Duration {
	return parseDuration(c.URLRefreshThreshold, time.Minute)
}

// URLHidden parses URLHiddenThreshold. Returns 1m if unset or invalid.
func (c *Config) URLHidden() time.Duration {
	return parseDuration(c.URLHiddenThreshold, time.Minute)
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables the session event stream.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
