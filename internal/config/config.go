// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Upload     UploadConfig
	Rate       RateLimitConfig
	Security   SecurityConfig
	Logging    LoggingConfig
	Staging    StagingConfig
	Ledger     LedgerConfig
	Extraction ExtractionConfig
	Poll       PollConfig
	Session    SessionConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Required unless every
	// backend is memory. Supports both DATABASE_URL and DB_URL.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// UploadConfig holds file intake settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 25MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"26214400"`

	// MaxConcurrent is the maximum number of documents in flight to the
	// extraction service at once (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for a dispatch slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// MaxRows caps the rows accepted from one CSV file or staged payload (default: 50000)
	MaxRows int `env:"UPLOAD_MAX_ROWS" default:"50000"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for upload endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey enforces X-API-Key on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// StagingConfig holds settings for the store that holds extraction results
// until they are picked up.
type StagingConfig struct {
	// Backend is memory, redis or postgres (default: memory)
	Backend string `env:"STAGING_BACKEND" default:"memory"`

	// RedisURL is a redis:// URL or host:port (default: localhost:6379)
	RedisURL string `env:"STAGING_REDIS_URL" envAlt:"REDIS_URL" default:"localhost:6379"`

	// Retention is how long an unclaimed entry is kept (default: 24h)
	Retention time.Duration `env:"STAGING_RETENTION" default:"24h"`

	// SweepInterval is how often expired entries are evicted (default: 10m)
	SweepInterval time.Duration `env:"STAGING_SWEEP_INTERVAL" default:"10m"`
}

// LedgerConfig selects where committed transactions and presets are stored.
type LedgerConfig struct {
	// Backend is memory or postgres (default: postgres)
	Backend string `env:"LEDGER_BACKEND" default:"postgres"`
}

// ExtractionConfig holds the document-extraction service client settings.
type ExtractionConfig struct {
	// URL is the endpoint documents are posted to. Empty disables document imports.
	URL string `env:"EXTRACTION_URL"`

	// Token is sent as a bearer token when set
	Token string `env:"EXTRACTION_TOKEN"`

	// CallbackURL is passed to the service as the write-back address
	CallbackURL string `env:"EXTRACTION_CALLBACK_URL"`

	// Timeout bounds a single dispatch request (default: 30s)
	Timeout time.Duration `env:"EXTRACTION_TIMEOUT" default:"30s"`

	// LinkMaxBytes bounds documents fetched from share links (default: 10MB)
	LinkMaxBytes int64 `env:"EXTRACTION_LINK_MAX_BYTES" default:"10485760"`

	// LinkHosts are the hosts share links may be fetched from, subdomains
	// included. "*" allows any host (default: Dropbox)
	LinkHosts []string `env:"EXTRACTION_LINK_HOSTS" default:"dropbox.com,dropboxusercontent.com"`
}

// PollConfig controls how long a dispatched document is waited for.
type PollConfig struct {
	// Interval is the delay between staging reads (default: 2s)
	Interval time.Duration `env:"POLL_INTERVAL" default:"2s"`

	// Attempts is the number of staging reads before timing out (default: 30)
	Attempts int `env:"POLL_ATTEMPTS" default:"30"`
}

// SessionConfig controls how long finished import sessions stay listed.
type SessionConfig struct {
	// Retention is how long a committed, cancelled or failed session is kept (default: 24h)
	Retention time.Duration `env:"SESSION_RETENTION" default:"24h"`

	// PruneInterval is how often finished sessions are pruned (default: 10m)
	PruneInterval time.Duration `env:"SESSION_PRUNE_INTERVAL" default:"10m"`
}

// Deadline is the total time a document is waited for.
func (c PollConfig) Deadline() time.Duration {
	return c.Interval * time.Duration(c.Attempts)
}

// NeedsDatabase reports whether any backend is Postgres.
func (c *Config) NeedsDatabase() bool {
	return c.Staging.Backend == "postgres" || c.Ledger.Backend == "postgres"
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
