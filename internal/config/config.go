package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Feed backends
const (
	BackendDatabase = "database"
	BackendStream   = "stream"
)

// Config is the complete server configuration.
type Config struct {
	Env        string           `mapstructure:"env"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Log        LogConfig        `mapstructure:"log"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Stream     StreamConfig     `mapstructure:"stream"`
	Reputation ReputationConfig `mapstructure:"reputation"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig backs the rate limiter. An empty host disables Redis.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

type FeedConfig struct {
	Backend         string        `mapstructure:"backend"`
	DefaultPageSize int           `mapstructure:"default_page_size"`
	MaxPageSize     int           `mapstructure:"max_page_size"`
	SourceTimeout   time.Duration `mapstructure:"source_timeout"`
}

type StreamConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

type ReputationConfig struct {
	MaxBatch        int           `mapstructure:"max_batch"`
	Debounce        time.Duration `mapstructure:"debounce"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	NegativeTTL     time.Duration `mapstructure:"negative_ttl"`
	DriftThreshold  int           `mapstructure:"drift_threshold"`
	PersistEnabled  bool          `mapstructure:"persist_enabled"`
	PersistQueue    int           `mapstructure:"persist_queue"`
	PersistWorkers  int           `mapstructure:"persist_workers"`
	PersistRate     float64       `mapstructure:"persist_rate"`
	EnrichmentLimit int           `mapstructure:"enrichment_limit"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
	SentryDSN    string  `mapstructure:"sentry_dsn"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("server.port", 8787)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "feedengine")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.sqlite_path", "feedengine.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "feedengine.log")
	v.SetDefault("log.console", true)

	v.SetDefault("feed.backend", BackendDatabase)
	v.SetDefault("feed.default_page_size", 20)
	v.SetDefault("feed.max_page_size", 100)
	v.SetDefault("feed.source_timeout", 3*time.Second)

	v.SetDefault("stream.api_key", "")
	v.SetDefault("stream.api_secret", "")

	v.SetDefault("reputation.max_batch", 10)
	v.SetDefault("reputation.debounce", 100*time.Millisecond)
	v.SetDefault("reputation.cache_ttl", 5*time.Minute)
	v.SetDefault("reputation.batch_timeout", 5*time.Second)
	v.SetDefault("reputation.negative_ttl", 30*time.Second)
	v.SetDefault("reputation.drift_threshold", 50)
	v.SetDefault("reputation.persist_enabled", true)
	v.SetDefault("reputation.persist_queue", 256)
	v.SetDefault("reputation.persist_workers", 2)
	v.SetDefault("reputation.persist_rate", 50.0)
	v.SetDefault("reputation.enrichment_limit", 8)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests", 120)
	v.SetDefault("ratelimit.window", time.Minute)

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "feedengine")
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.sampling_rate", 0.1)
	v.SetDefault("telemetry.sentry_dsn", "")
}

// Load reads .env (if present), an optional CONFIG_FILE, and the
// environment. Keys map to variables by upper-casing and replacing dots
// with underscores, e.g. reputation.max_batch -> REPUTATION_MAX_BATCH.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Names the rest of the stack already uses.
	_ = v.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("telemetry.sentry_dsn", "TELEMETRY_SENTRY_DSN", "SENTRY_DSN")
	_ = v.BindEnv("telemetry.otlp_endpoint", "TELEMETRY_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
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

// Validate checks values that would otherwise fail at first use.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	switch c.Feed.Backend {
	case BackendDatabase:
	case BackendStream:
		if c.Stream.APIKey == "" || c.Stream.APISecret == "" {
			return fmt.Errorf("feed.backend=stream requires stream.api_key and stream.api_secret")
		}
	default:
		return fmt.Errorf("feed.backend must be %s or %s, got %q", BackendDatabase, BackendStream, c.Feed.Backend)
	}
	if c.Feed.DefaultPageSize <= 0 || c.Feed.MaxPageSize < c.Feed.DefaultPageSize {
		return fmt.Errorf("feed page sizes invalid: default=%d max=%d", c.Feed.DefaultPageSize, c.Feed.MaxPageSize)
	}
	if c.Reputation.MaxBatch <= 0 {
		return fmt.Errorf("reputation.max_batch must be positive")
	}
	if c.Reputation.Debounce <= 0 {
		return fmt.Errorf("reputation.debounce must be positive")
	}
	if c.Reputation.DriftThreshold < 0 {
		return fmt.Errorf("reputation.drift_threshold must not be negative")
	}
	return nil
}

// DSN builds the postgres connection string, preferring database.url.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisAddr returns host:port, or "" when Redis is disabled.
func (r RedisConfig) RedisAddr() string {
	if r.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}
