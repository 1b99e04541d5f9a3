// Package config provides configuration management for the Workroom server.
// Configuration can be loaded from YAML files and environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
// It is constructed once at process start and injected into component
// constructors; business logic never reads the process environment.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Probe     ProbeConfig     `mapstructure:"probe"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadSize   int64         `mapstructure:"max_upload_size"`
}

// Addr returns the listen address in host:port format.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StoreConfig holds credential-store and namespace settings.
// The namespace (projects and files) always lives on the filesystem under
// UsersDir; the Driver only selects where credential records are kept.
type StoreConfig struct {
	// Driver selects the credential record backend: "fs", "sqlite", or
	// "postgres". The canonical deployment uses "fs" (one credentials.json
	// per user directory).
	Driver string `mapstructure:"driver"`

	// UsersDir is the root directory holding one subdirectory per user.
	UsersDir string `mapstructure:"users_dir"`

	// SQLite settings (used when Driver is "sqlite")
	Path            string `mapstructure:"path"`
	JournalMode     string `mapstructure:"journal_mode"`
	BusyTimeout     int    `mapstructure:"busy_timeout"`
	SynchronousMode string `mapstructure:"synchronous_mode"`

	// PostgreSQL settings (used when Driver is "postgres")
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
// Only valid when Driver is "postgres".
func (c StoreConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// JWTSecret signs bearer tokens. Required: the server refuses to start
	// without it rather than fall back to a built-in development secret.
	JWTSecret string `mapstructure:"jwt_secret"`

	// Algorithm is the JWT signing algorithm. Only HMAC variants are accepted.
	Algorithm string `mapstructure:"algorithm"`

	// TokenTTL is the lifetime of issued bearer tokens.
	TokenTTL time.Duration `mapstructure:"token_ttl"`

	// EncryptionKey, when set, AES-256-GCM-encrypts stored external API
	// keys at rest. Must be exactly 32 bytes when non-empty.
	EncryptionKey string `mapstructure:"encryption_key"`
}

// GetEncryptionKey returns the at-rest encryption key as a byte slice,
// or nil when at-rest encryption is not configured. A non-empty key
// must be exactly 32 bytes.
func (c AuthConfig) GetEncryptionKey() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, nil
	}
	key := []byte(c.EncryptionKey)
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(key))
	}
	return key, nil
}

// ProbeConfig holds settings for the external API-key validation probe
// and the supervisor LLM calls.
type ProbeConfig struct {
	// BaseURL is the external LLM service endpoint.
	BaseURL string `mapstructure:"base_url"`

	// Model is the model name used for probe and supervisor requests.
	Model string `mapstructure:"model"`

	// Timeout bounds each outbound probe/supervisor request.
	Timeout time.Duration `mapstructure:"timeout"`

	// CacheTTL is how long a successful key validation is remembered,
	// sparing the upstream a probe per login.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// BreakerThreshold is the number of consecutive transport failures
	// before the circuit opens and probes fail fast.
	BreakerThreshold int `mapstructure:"breaker_threshold"`

	// BreakerCooldown is how long the circuit stays open.
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// RedisConfig holds Redis connection settings, used for distributed
// project-creation locks when enabled.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Enabled     bool          `mapstructure:"enabled"`
}

// Addr returns the Redis address in host:port format.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled determines if the /metrics endpoint is exposed.
	Enabled bool `mapstructure:"enabled"`

	// Path is the URL path for the metrics endpoint.
	Path string `mapstructure:"path"`
}

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	// Enabled determines if rate limiting is active.
	Enabled bool `mapstructure:"enabled"`

	// RequestsPerSecond is the rate of token refill per client.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`

	// BurstSize is the maximum number of tokens (burst capacity).
	BurstSize int `mapstructure:"burst_size"`
}

// Load reads configuration from the specified file and environment variables.
// Environment variables take precedence over file values.
// Environment variables are prefixed with WORKROOM_ and use _ as separator.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("WORKROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/workroom")
	}

	// Config file not found is acceptable - defaults and env vars suffice.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_size", 20*1024*1024) // 20MB

	// Store defaults
	v.SetDefault("store.driver", "fs")
	v.SetDefault("store.users_dir", "./users")
	// SQLite
	v.SetDefault("store.path", "./data/workroom.db")
	v.SetDefault("store.journal_mode", "WAL")
	v.SetDefault("store.busy_timeout", 5000)
	v.SetDefault("store.synchronous_mode", "NORMAL")
	// PostgreSQL
	v.SetDefault("store.host", "localhost")
	v.SetDefault("store.port", 5432)
	v.SetDefault("store.user", "workroom")
	v.SetDefault("store.password", "")
	v.SetDefault("store.database", "workroom")
	v.SetDefault("store.ssl_mode", "prefer")
	v.SetDefault("store.max_open_conns", 25)
	v.SetDefault("store.max_idle_conns", 5)
	v.SetDefault("store.conn_max_lifetime", 5*time.Minute)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "") // Must be provided
	v.SetDefault("auth.algorithm", "HS256")
	v.SetDefault("auth.token_ttl", 30*time.Minute)
	v.SetDefault("auth.encryption_key", "")

	// Probe defaults
	v.SetDefault("probe.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("probe.model", "gemini-1.5-flash")
	v.SetDefault("probe.timeout", 10*time.Second)
	v.SetDefault("probe.cache_ttl", 5*time.Minute)
	v.SetDefault("probe.breaker_threshold", 3)
	v.SetDefault("probe.breaker_cooldown", 30*time.Second)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Rate limiting defaults
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests_per_second", 50)
	v.SetDefault("rate_limit.burst_size", 100)
}

// Validate checks the configuration for required values and valid ranges.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	validDrivers := map[string]bool{"fs": true, "sqlite": true, "postgres": true}
	if !validDrivers[c.Store.Driver] {
		return fmt.Errorf("store.driver must be 'fs', 'sqlite', or 'postgres'")
	}
	if c.Store.UsersDir == "" {
		return fmt.Errorf("store.users_dir is required")
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("store.path is required for sqlite driver")
	}
	if c.Store.Driver == "postgres" {
		if c.Store.Host == "" {
			return fmt.Errorf("store.host is required for postgres driver")
		}
		if c.Store.User == "" {
			return fmt.Errorf("store.user is required for postgres driver")
		}
		if c.Store.Database == "" {
			return fmt.Errorf("store.database is required for postgres driver")
		}
	}

	// A missing signing secret is a fatal startup condition: running with a
	// well-known fallback secret would make every token forgeable.
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if !strings.HasPrefix(c.Auth.Algorithm, "HS") {
		return fmt.Errorf("auth.algorithm must be an HMAC variant (HS256, HS384, HS512)")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Auth.EncryptionKey != "" && len(c.Auth.EncryptionKey) != 32 {
		return fmt.Errorf("auth.encryption_key must be exactly 32 characters")
	}

	if c.Probe.BaseURL == "" {
		return fmt.Errorf("probe.base_url is required")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error, fatal, panic")
	}

	return nil
}

// MustLoad loads configuration or panics on error.
// Useful for main function initialization.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
