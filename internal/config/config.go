package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig    `yaml:"server"`
	Database    DatabaseConfig  `yaml:"database"`
	Logging     LoggingConfig   `yaml:"logging"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	CORS        CORSConfig      `yaml:"cors"`
	Realtime    RealtimeConfig  `yaml:"realtime"`
	Audit       AuditConfig     `yaml:"audit"`
	Tracing     TracingConfig   `yaml:"tracing"`
	Environment string          `yaml:"environment"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig selects the store backend. Driver is "postgres" (URL
// required) or "sqlite" (Path, ":memory:" allowed).
type DatabaseConfig struct {
	Driver         string `yaml:"driver"`
	URL            string `yaml:"url"`
	Path           string `yaml:"path"`
	MaxConnections int    `yaml:"max_connections"`
	AutoMigrate    bool   `yaml:"auto_migrate"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RateLimitConfig struct {
	PublicPerMinute   int      `yaml:"public_per_minute"`
	MutationPerMinute int      `yaml:"mutation_per_minute"`
	TrustedProxyCIDRs []string `yaml:"trusted_proxy_cidrs"`
}

type CORSConfig struct {
	AllowAllOrigins bool     `yaml:"allow_all_origins"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

type RealtimeConfig struct {
	SubscriberBuffer  int           `yaml:"subscriber_buffer"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// AuditConfig controls how audit entries reach the store. Delivery is
// "direct" (background insert) or "river" (durable job queue, postgres only).
type AuditConfig struct {
	Delivery     string        `yaml:"delivery"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	AuditDeliveryDirect = "direct"
	AuditDeliveryRiver  = "river"
)

// Defaults returns the configuration used when neither a file nor the
// environment sets a value.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver:         DriverPostgres,
			MaxConnections: 25,
			AutoMigrate:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute:   600,
			MutationPerMinute: 120,
		},
		Realtime: RealtimeConfig{
			SubscriberBuffer:  64,
			HeartbeatInterval: 25 * time.Second,
		},
		Audit: AuditConfig{
			Delivery:     AuditDeliveryDirect,
			WriteTimeout: 5 * time.Second,
		},
		Tracing: TracingConfig{
			Exporter:    "none",
			ServiceName: "subjectboard",
			SampleRate:  1.0,
		},
		Environment: "development",
	}
}

// Load reads configuration from environment variables on top of the defaults.
func Load() (Config, error) {
	return LoadFile("")
}

// LoadFile reads an optional YAML file, then applies environment overrides.
// Environment variables always win over file values.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)

	cfg.Database.Driver = strings.ToLower(getEnv("DATABASE_DRIVER", cfg.Database.Driver))
	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.Path = getEnv("DATABASE_PATH", cfg.Database.Path)
	cfg.Database.MaxConnections = getEnvInt("DATABASE_MAX_CONNECTIONS", cfg.Database.MaxConnections)
	cfg.Database.AutoMigrate = getEnvBool("DATABASE_AUTO_MIGRATE", cfg.Database.AutoMigrate)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.RateLimit.PublicPerMinute = getEnvInt("RATE_LIMIT_PUBLIC", cfg.RateLimit.PublicPerMinute)
	cfg.RateLimit.MutationPerMinute = getEnvInt("RATE_LIMIT_MUTATION", cfg.RateLimit.MutationPerMinute)
	cfg.RateLimit.TrustedProxyCIDRs = getEnvList("TRUSTED_PROXY_CIDRS", cfg.RateLimit.TrustedProxyCIDRs)

	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)

	cfg.CORS.AllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", cfg.CORS.AllowedOrigins)
	cfg.CORS.AllowAllOrigins = cfg.CORS.AllowAllOrigins || cfg.Environment == "development" || cfg.Environment == "test"

	cfg.Realtime.SubscriberBuffer = getEnvInt("REALTIME_SUBSCRIBER_BUFFER", cfg.Realtime.SubscriberBuffer)
	cfg.Realtime.HeartbeatInterval = getEnvDuration("REALTIME_HEARTBEAT_INTERVAL", cfg.Realtime.HeartbeatInterval)

	cfg.Audit.Delivery = strings.ToLower(getEnv("AUDIT_DELIVERY", cfg.Audit.Delivery))
	cfg.Audit.WriteTimeout = getEnvDuration("AUDIT_WRITE_TIMEOUT", cfg.Audit.WriteTimeout)

	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = getEnv("TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.ServiceName = getEnv("TRACING_SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
	cfg.Tracing.SampleRate = getEnvFloat("TRACING_SAMPLE_RATE", cfg.Tracing.SampleRate)
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("DATABASE_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q (must be postgres or sqlite)", c.Database.Driver)
	}

	switch c.Audit.Delivery {
	case AuditDeliveryDirect:
	case AuditDeliveryRiver:
		if c.Database.Driver != DriverPostgres {
			return fmt.Errorf("AUDIT_DELIVERY=river requires the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported AUDIT_DELIVERY %q (must be direct or river)", c.Audit.Delivery)
	}

	if c.Environment == "production" && len(c.CORS.AllowedOrigins) == 0 {
		return fmt.Errorf("CORS_ALLOWED_ORIGINS is required in production")
	}
	if c.Realtime.SubscriberBuffer <= 0 {
		return fmt.Errorf("REALTIME_SUBSCRIBER_BUFFER must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
