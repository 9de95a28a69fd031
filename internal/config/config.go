// Package config provides centralized configuration management for the card
// registry service. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Sessions SessionConfig
	Auth     AuthConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 5m,
	// exports stream large files)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"5m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10,
	// tuned for memory-capped hosting tiers)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AcquireTimeout force-releases a stuck connection acquire after this
	// duration (default: 30s)
	AcquireTimeout time.Duration `env:"DB_ACQUIRE_TIMEOUT" default:"30s"`
}

// ImportConfig holds bulk import processing settings.
type ImportConfig struct {
	// MaxFileSize is the maximum allowed upload size in bytes (default: 50MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"52428800"`

	// MaxRows is the maximum total row count per import; files above this
	// are rejected before processing (default: 200000)
	MaxRows int `env:"IMPORT_MAX_ROWS" default:"200000"`

	// MaxConcurrent is the maximum number of parallel imports (default: 2)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long to wait for an import slot (default: 10s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"10s"`

	// BatchSize is the number of rows processed per transaction (default: 200)
	BatchSize int `env:"IMPORT_BATCH_SIZE" default:"200"`

	// BatchTimeout is the wall-clock limit for a single batch transaction (default: 30s)
	BatchTimeout time.Duration `env:"IMPORT_BATCH_TIMEOUT" default:"30s"`

	// LowMemory selects the resource-constrained profile: pre-scan row counts
	// become size-based estimates above EstimateThreshold, audit entries are
	// throttled, and pacing pauses are inserted between batches (default: false)
	LowMemory bool `env:"IMPORT_LOW_MEMORY" default:"false"`

	// PauseEvery inserts a pacing pause after this many batches when the
	// low-memory profile is active (default: 5)
	PauseEvery int `env:"IMPORT_PAUSE_EVERY" default:"5"`

	// PauseDuration is the length of each pacing pause (default: 200ms)
	PauseDuration time.Duration `env:"IMPORT_PAUSE_DURATION" default:"200ms"`

	// AuditEvery throttles per-row audit entries to one every N rows under
	// the low-memory profile (default: 50)
	AuditEvery int `env:"IMPORT_AUDIT_EVERY" default:"50"`

	// EstimateThreshold is the file size in bytes above which the pre-scan
	// switches from an exact row count to a sampled estimate when LowMemory
	// is set (default: 5MB)
	EstimateThreshold int64 `env:"IMPORT_ESTIMATE_THRESHOLD" default:"5242880"`

	// TempDir is where uploaded files are spooled before processing
	// (default: OS temp dir when empty)
	TempDir string `env:"IMPORT_TEMP_DIR"`
}

// SessionConfig holds import-session tracking settings.
type SessionConfig struct {
	// Retention is how many terminal sessions are kept for listing (default: 50)
	Retention int `env:"SESSION_RETENTION" default:"50"`

	// RedisURL enables the Redis-backed session store for multi-instance
	// deployments; empty selects the in-memory store
	RedisURL string `env:"SESSION_REDIS_URL"`

	// TTL is how long Redis-backed sessions live after their last update (default: 24h)
	TTL time.Duration `env:"SESSION_TTL" default:"24h"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// JWTSecret signs and verifies bearer tokens; auth is disabled when empty
	JWTSecret string `env:"AUTH_JWT_SECRET"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
