// Package config provides configuration loading for the membership service.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the membership service
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Validation ValidationConfig `mapstructure:"validation"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects and configures the repository.
type DatabaseConfig struct {
	Driver         string         `mapstructure:"driver" validate:"oneof=postgres memory"`
	MigrationsPath string         `mapstructure:"migrations_path"`
	QueryTimeout   time.Duration  `mapstructure:"query_timeout"`
	WriteTimeout   time.Duration  `mapstructure:"write_timeout"`
	Postgres       PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"min=1,max=65535"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database" validate:"required"`
	SSLMode  string `mapstructure:"sslmode" validate:"oneof=disable allow prefer require verify-ca verify-full"`
}

// ConnString renders the settings as a postgres:// URL.
func (p PostgresConfig) ConnString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

// RedisConfig holds Redis configuration for the user cache
type RedisConfig struct {
	URL        string `mapstructure:"url" validate:"required,url"`
	MaxRetries int    `mapstructure:"max_retries" validate:"min=0"`
	PoolSize   int    `mapstructure:"pool_size" validate:"min=1"`
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url" validate:"required_if=Enabled true"`
	Enabled       bool          `mapstructure:"enabled"`
	Token         string        `mapstructure:"token"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	JetStream     bool          `mapstructure:"jetstream"`
}

// CacheConfig controls invalidation of the user and group caches.
type CacheConfig struct {
	UserCacheEnabled bool `mapstructure:"user_cache_enabled"`
}

// TelemetryConfig controls where audit events go.
type TelemetryConfig struct {
	AuditSecret string           `mapstructure:"audit_secret"`
	OpenSearch  OpenSearchConfig `mapstructure:"opensearch"`
}

// OpenSearchConfig holds the audit index settings.
type OpenSearchConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url" validate:"omitempty,url"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	Insecure    bool   `mapstructure:"insecure"`
	IndexPrefix string `mapstructure:"index_prefix"`
}

// AuthConfig holds bearer token settings. An empty secret disables token
// verification.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" validate:"omitempty,min=16"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// ValidationConfig holds request validation settings
type ValidationConfig struct {
	EmptinessPolicy string `mapstructure:"emptiness_policy" validate:"oneof=invalid_request missing"`
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/cohort/membership")
	}

	// Environment variables override (MEMBERSHIP_SERVER_PORT, etc.)
	v.SetEnvPrefix("MEMBERSHIP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// Only fail if a specific config path was given
		if configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.migrations_path", "membership/migrations")
	v.SetDefault("database.query_timeout", "5s")
	v.SetDefault("database.write_timeout", "10s")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "cohort")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "cohort_membership")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("nats.url", "nats://nats:4222")
	v.SetDefault("nats.enabled", true)
	v.SetDefault("nats.token", "")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.jetstream", true)

	v.SetDefault("cache.user_cache_enabled", false)

	v.SetDefault("telemetry.audit_secret", "")
	v.SetDefault("telemetry.opensearch.enabled", false)
	v.SetDefault("telemetry.opensearch.url", "https://localhost:9200")
	v.SetDefault("telemetry.opensearch.username", "admin")
	v.SetDefault("telemetry.opensearch.password", "")
	v.SetDefault("telemetry.opensearch.insecure", true)
	v.SetDefault("telemetry.opensearch.index_prefix", "cohort-groups")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "15m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("validation.emptiness_policy", "invalid_request")
}
