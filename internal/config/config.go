// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in defaults for every setting
//  2. Config File: Optional YAML file (config.yaml or CONFIG_PATH)
//  3. Environment Variables: Override any mapped setting
//
// Config is immutable after Load() and safe for concurrent reads.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	RateLimit   RateLimitConfig   `koanf:"rate_limit"`
	Sync        SyncConfig        `koanf:"sync"`
	Provider    ProviderConfig    `koanf:"provider"`
	Ingestion   IngestionConfig   `koanf:"ingestion"`
	StatusStore StatusStoreConfig `koanf:"status_store"`
	Database    DatabaseConfig    `koanf:"database"`
	Events      EventsConfig      `koanf:"events"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`

	// APIRateLimitReqs and APIRateLimitWindow bound requests per client IP
	// across the whole API. Zero requests disables the limit.
	APIRateLimitReqs   int           `koanf:"api_rate_limit_reqs"`
	APIRateLimitWindow time.Duration `koanf:"api_rate_limit_window"`

	// MaxUploadBytes caps multipart ingestion request bodies.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// RateLimitConfig configures the per-user fixed-window sync limiter.
type RateLimitConfig struct {
	// Requests is the number of sync triggers allowed per window.
	Requests int `koanf:"requests"`

	// Window is the fixed window length. Env RATE_LIMIT_PERIOD accepts bare seconds.
	Window time.Duration `koanf:"window"`

	// FailOpen admits requests when the status store is unreachable.
	// Default false: store failures reject the request.
	FailOpen bool `koanf:"fail_open"`
}

// SyncConfig configures the sync orchestrator.
type SyncConfig struct {
	// BatchSize is the number of items processed concurrently per batch.
	BatchSize int `koanf:"batch_size"`

	// ItemTimeout bounds one item's fetch+forward so a stuck call cannot
	// stall its batch indefinitely.
	ItemTimeout time.Duration `koanf:"item_timeout"`

	// RunTimeout bounds a whole sync run.
	RunTimeout time.Duration `koanf:"run_timeout"`

	// StaleAfter is how long an IN_PROGRESS status may go without updates
	// before a new trigger is allowed to supersede it.
	StaleAfter time.Duration `koanf:"stale_after"`

	// DefaultLookback is the sync range used when start_date is omitted.
	DefaultLookback time.Duration `koanf:"default_lookback"`
}

// ProviderConfig configures the intervals.icu client.
type ProviderConfig struct {
	BaseURL         string        `koanf:"base_url"`
	APIKey          string        `koanf:"api_key"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	MaxPayloadBytes int64         `koanf:"max_payload_bytes"`

	// Retry policy. MaxAttempts counts the first call.
	MaxAttempts int           `koanf:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	Multiplier  float64       `koanf:"multiplier"`
	MaxDelay    time.Duration `koanf:"max_delay"`
	Jitter      float64       `koanf:"jitter"`

	// Outbound pacing shared by every run in this process.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`

	Breaker BreakerConfig `koanf:"breaker"`

	// Vault, when enabled, is consulted for the API key before APIKey.
	Vault VaultConfig `koanf:"vault"`
}

// VaultConfig locates the provider API key in a HashiCorp Vault KV v2 mount.
// The key is read from <Mount>/<Path>/intervals_api_key, field "value".
type VaultConfig struct {
	Enabled bool          `koanf:"enabled"`
	Address string        `koanf:"address"`
	Token   string        `koanf:"token"`
	Mount   string        `koanf:"mount"`
	Path    string        `koanf:"path"`
	Timeout time.Duration `koanf:"timeout"`
}

// BreakerConfig configures the provider circuit breaker.
type BreakerConfig struct {
	MaxRequests         uint32        `koanf:"max_requests"`
	Interval            time.Duration `koanf:"interval"`
	Timeout             time.Duration `koanf:"timeout"`
	ConsecutiveFailures uint32        `koanf:"consecutive_failures"`
}

// Ingestion modes.
const (
	IngestionModeHTTP  = "http"
	IngestionModeLocal = "local"
)

// IngestionConfig configures how synced items reach the ingestion boundary.
type IngestionConfig struct {
	// Mode is "http" (multipart POST to URL) or "local" (in-process coordinator).
	Mode           string        `koanf:"mode"`
	URL            string        `koanf:"url"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// Status store backends.
const (
	StoreBackendMemory = "memory"
	StoreBackendBadger = "badger"
	StoreBackendRedis  = "redis"
)

// StatusStoreConfig selects and tunes the status store backend.
type StatusStoreConfig struct {
	Backend  string `koanf:"backend"`
	Path     string `koanf:"path"`
	RedisURL string `koanf:"redis_url"`

	// RecordTTL expires per-item activity statuses. Zero keeps them forever.
	RecordTTL time.Duration `koanf:"record_ttl"`

	// CASAttempts bounds compare-and-swap retries on version conflicts.
	CASAttempts int `koanf:"cas_attempts"`

	// WriteRetries is how many times a failed status write is retried
	// before the failure is surfaced.
	WriteRetries    int           `koanf:"write_retries"`
	WriteRetryDelay time.Duration `koanf:"write_retry_delay"`

	// GCInterval runs badger value-log GC. Ignored by other backends.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// DatabaseConfig holds DuckDB settings for the ingestion repository.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// Event backends.
const (
	EventsBackendGoChannel = "gochannel"
	EventsBackendNATS      = "nats"
)

// EventsConfig configures pipeline event publishing.
type EventsConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Backend     string `koanf:"backend"`
	NATSURL     string `koanf:"nats_url"`
	TopicPrefix string `koanf:"topic_prefix"`
}

// Load loads configuration from defaults, an optional YAML file, and the
// environment, then validates it.
//
//	cfg, err := config.Load()
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("Failed to load configuration")
//	}
func Load() (*Config, error) {
	return LoadWithKoanf()
}
