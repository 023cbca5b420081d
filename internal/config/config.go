package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/daap14/hafgate/internal/database"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port     int    `envconfig:"PORT" default:"3000"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Version  string `envconfig:"VERSION" default:"dev"`

	// Bootstrap target, also restored when a credential update is rejected.
	DefaultDBHost     string `envconfig:"DEFAULT_DB_HOST" default:"hafsql-sql.mahdiyari.info"`
	DefaultDBPort     int    `envconfig:"DEFAULT_DB_PORT" default:"5432"`
	DefaultDBName     string `envconfig:"DEFAULT_DB_NAME" default:"haf_block_log"`
	DefaultDBUser     string `envconfig:"DEFAULT_DB_USER" default:"hafsql_public"`
	DefaultDBPassword string `envconfig:"DEFAULT_DB_PASSWORD" default:"hafsql_public"`

	DBConnectTimeoutMs   int    `envconfig:"DB_CONNECT_TIMEOUT_MS" default:"5000"`
	DBStatementTimeoutMs int    `envconfig:"DB_STATEMENT_TIMEOUT_MS" default:"10000"`
	DBMaxConns           int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	DBSSLMode            string `envconfig:"DB_SSLMODE" default:"prefer"`

	MaxQueryDays int `envconfig:"MAX_QUERY_DAYS" default:"365"`

	// Zero disables the background pool health check.
	PoolCheckIntervalSeconds int `envconfig:"POOL_CHECK_INTERVAL_SECONDS" default:"30"`
	PoolCheckFailures        int `envconfig:"POOL_CHECK_FAILURES" default:"3"`

	RedisAddr       string `envconfig:"REDIS_ADDR" default:""`
	RedisPassword   string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB         int    `envconfig:"REDIS_DB" default:"0"`
	CacheTTLSeconds int    `envconfig:"CACHE_TTL_SECONDS" default:"60"`

	KubeconfigPath    string `envconfig:"KUBECONFIG_PATH" default:""`
	Namespace         string `envconfig:"NAMESPACE" default:"default"`
	CredentialsSecret string `envconfig:"CREDENTIALS_SECRET" default:""`

	AdminAPIKeyHash   string `envconfig:"ADMIN_API_KEY_HASH" default:""`
	CORSAllowedOrigin string `envconfig:"CORS_ALLOWED_ORIGIN" default:"*"`
	StaticDir         string `envconfig:"STATIC_DIR" default:""`
}

// Load reads configuration from environment variables into a Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.MaxQueryDays < 1 {
		return nil, fmt.Errorf("MAX_QUERY_DAYS must be positive, got %d", cfg.MaxQueryDays)
	}
	if cfg.PoolCheckIntervalSeconds < 0 {
		return nil, fmt.Errorf("POOL_CHECK_INTERVAL_SECONDS must not be negative, got %d", cfg.PoolCheckIntervalSeconds)
	}
	if cfg.CacheTTLSeconds < 1 {
		return nil, fmt.Errorf("CACHE_TTL_SECONDS must be positive, got %d", cfg.CacheTTLSeconds)
	}
	if err := cfg.DefaultDatabase().Validate(); err != nil {
		return nil, fmt.Errorf("default database: %w", err)
	}
	return &cfg, nil
}

// DefaultDatabase returns the bootstrap database target.
func (c *Config) DefaultDatabase() database.Config {
	return database.Config{
		Host:             c.DefaultDBHost,
		Port:             c.DefaultDBPort,
		Database:         c.DefaultDBName,
		User:             c.DefaultDBUser,
		Password:         c.DefaultDBPassword,
		ConnectTimeout:   time.Duration(c.DBConnectTimeoutMs) * time.Millisecond,
		StatementTimeout: time.Duration(c.DBStatementTimeoutMs) * time.Millisecond,
		SSLMode:          c.DBSSLMode,
		MaxConns:         c.DBMaxConns,
	}.WithDefaults()
}

// Timeouts returns the connect and statement timeouts applied to targets that
// do not set their own.
func (c *Config) Timeouts() (connect, statement time.Duration) {
	return time.Duration(c.DBConnectTimeoutMs) * time.Millisecond,
		time.Duration(c.DBStatementTimeoutMs) * time.Millisecond
}

// PoolCheckInterval is the period of the background pool health check.
func (c *Config) PoolCheckInterval() time.Duration {
	return time.Duration(c.PoolCheckIntervalSeconds) * time.Second
}

// CacheTTL is how long query results stay cached.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}
