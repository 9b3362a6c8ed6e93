// Package config provides centralized configuration management for the console.
// Fields are read from environment variables named by their env tag, fall
// back to the default tag, and are checked against their validate tag.
package config

import (
	"strconv"
	"time"
)

// Width store backends.
const (
	WidthStoreMemory   = "memory"
	WidthStoreRedis    = "redis"
	WidthStorePostgres = "postgres"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Grid     GridConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080" validate:"min=1,max=65535"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s" validate:"gte=0"`

	// WriteTimeout is the maximum duration for writing response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s" validate:"gt=0"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Screens with a postgres
	// source and the postgres width store need it.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10" validate:"gt=0"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2" validate:"gte=0"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	// URL is the Redis connection string, e.g. redis://localhost:6379/0
	URL string `env:"REDIS_URL"`

	// DialTimeout bounds the initial connection and ping (default: 5s)
	DialTimeout time.Duration `env:"REDIS_DIAL_TIMEOUT" default:"5s"`
}

// GridConfig holds data-grid defaults shared by every screen.
type GridConfig struct {
	// DefaultPageSize applies to screens without page_size (default: 10)
	DefaultPageSize int `env:"GRID_DEFAULT_PAGE_SIZE" default:"10" validate:"gt=0"`

	// MinColumnWidth is the narrowest a resized column may be (default: 60)
	MinColumnWidth int `env:"GRID_MIN_COLUMN_WIDTH" default:"60" validate:"gt=0"`

	// ActiveKeyDelay postpones the URL read for screens with an active key (default: 500ms)
	ActiveKeyDelay time.Duration `env:"GRID_ACTIVE_KEY_DELAY" default:"500ms" validate:"gte=0"`

	// ArrayFormat is how list values appear in the URL: brackets, repeat or comma
	ArrayFormat string `env:"GRID_ARRAY_FORMAT" default:"brackets" validate:"oneof=brackets repeat comma"`

	// WidthStore selects the column-width backend: memory, redis or postgres
	WidthStore string `env:"GRID_WIDTH_STORE" default:"memory" validate:"oneof=memory redis postgres"`

	// WidthKeyPrefix prefixes every column-width storage key (default: cwp:)
	WidthKeyPrefix string `env:"GRID_WIDTH_KEY_PREFIX" default:"cwp:"`

	// ScreensFile is the YAML file declaring the screens (default: screens.yaml)
	ScreensFile string `env:"GRID_SCREENS_FILE" default:"screens.yaml" validate:"required"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 300)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey guards the /api routes with X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
