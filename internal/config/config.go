// Package config loads the service configuration from the environment.
// Every setting has an env variable; unset values fall back to the default tag
// and the result is validated once at startup.
package config

import (
	"strconv"
	"time"
)

// Config holds all service configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Ingest   IngestConfig
	Redis    RedisConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"120s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including draining ingestion runs.
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds PostgreSQL pool settings.
type DatabaseConfig struct {
	// URL accepts DATABASE_URL or DB_URL.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// UploadConfig holds spreadsheet upload limits.
type UploadConfig struct {
	// MaxFileSize caps ingestion uploads (default: 10MB).
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"10MB" unit:"bytes"`

	// PreviewMaxFileSize caps preview uploads (default: 5MB).
	PreviewMaxFileSize int64 `env:"UPLOAD_PREVIEW_MAX_FILE_SIZE" default:"5MB" unit:"bytes"`

	// MaxConcurrent is the number of ingestion runs allowed at once.
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"3"`

	// MaxWaitTime is how long a request waits for an ingestion slot.
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a single ingestion run end to end.
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"5m"`
}

// IngestConfig tunes the ingestion engine.
type IngestConfig struct {
	// PreviewLimit is the number of records returned by a preview.
	PreviewLimit int `env:"INGEST_PREVIEW_LIMIT" default:"50"`
}

// RedisConfig enables the distributed tenant lock when URL is set.
type RedisConfig struct {
	URL     string        `env:"REDIS_URL"`
	LockTTL time.Duration `env:"REDIS_LOCK_TTL" default:"10m"`
}

// RateLimitConfig holds per-IP request limits.
type RateLimitConfig struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute applies to every route.
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit applies to preview and upload requests, per minute.
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds request trust settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// TenantHeader carries the tenant id set by the upstream gateway.
	TenantHeader string `env:"TENANT_HEADER" default:"X-Tenant-ID"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" default:"info"`
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// LockEnabled reports whether a Redis URL was configured.
func (c *RedisConfig) LockEnabled() bool {
	return c.URL != ""
}
