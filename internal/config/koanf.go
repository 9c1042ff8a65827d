// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/stridesync/config.yaml",
	"/etc/stridesync/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with every default populated.
// These are applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			ReadTimeout:        30 * time.Second,
			WriteTimeout:       60 * time.Second,
			ShutdownTimeout:    15 * time.Second,
			CORSOrigins:        []string{"*"},
			APIRateLimitReqs:   300,
			APIRateLimitWindow: time.Minute,
			MaxUploadBytes:     256 << 20, // 256MB
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		RateLimit: RateLimitConfig{
			Requests: 60,
			Window:   60 * time.Second,
			FailOpen: false,
		},
		Sync: SyncConfig{
			BatchSize:       50,
			ItemTimeout:     2 * time.Minute,
			RunTimeout:      2 * time.Hour,
			StaleAfter:      time.Hour,
			DefaultLookback: 30 * 24 * time.Hour,
		},
		Provider: ProviderConfig{
			BaseURL:           "https://intervals.icu/api/v1",
			APIKey:            "",
			RequestTimeout:    30 * time.Second,
			MaxPayloadBytes:   64 << 20, // 64MB
			MaxAttempts:       3,
			BaseDelay:         time.Second,
			Multiplier:        2.0,
			MaxDelay:          30 * time.Second,
			Jitter:            0.2,
			RequestsPerSecond: 10,
			Burst:             10,
			Breaker: BreakerConfig{
				MaxRequests:         3,
				Interval:            time.Minute,
				Timeout:             30 * time.Second,
				ConsecutiveFailures: 5,
			},
			Vault: VaultConfig{
				Enabled: false,
				Address: "http://localhost:8200",
				Mount:   "kv",
				Path:    "external-data-gateway",
				Timeout: 10 * time.Second,
			},
		},
		Ingestion: IngestionConfig{
			Mode:           IngestionModeHTTP,
			URL:            "http://data-ingestion-service:8080",
			RequestTimeout: time.Minute,
		},
		StatusStore: StatusStoreConfig{
			Backend:         StoreBackendBadger,
			Path:            "/data/status",
			RedisURL:        "redis://localhost:6379/0",
			RecordTTL:       7 * 24 * time.Hour,
			CASAttempts:     16,
			WriteRetries:    3,
			WriteRetryDelay: 200 * time.Millisecond,
			GCInterval:      10 * time.Minute,
		},
		Database: DatabaseConfig{
			Path:      "/data/stridesync.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Events: EventsConfig{
			Enabled:     true,
			Backend:     EventsBackendGoChannel,
			NATSURL:     "nats://127.0.0.1:4222",
			TopicPrefix: "stridesync",
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: defaultConfig()
//  2. Config File: optional YAML file
//  3. Environment Variables: mapped names only (see envTransformFunc)
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}
	if err := processSecondsFields(k); err != nil {
		return nil, fmt.Errorf("failed to process duration fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated env values.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// secondsConfigPaths accept a bare integer meaning seconds, matching the
// long-standing RATE_LIMIT_PERIOD=60 and RETRY_DELAY=1 deployments.
var secondsConfigPaths = []string{
	"rate_limit.window",
	"provider.base_delay",
}

func processSecondsFields(k *koanf.Koanf) error {
	for _, path := range secondsConfigPaths {
		var secs float64
		switch v := k.Get(path).(type) {
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				continue // "30s" style values go through the duration decoder
			}
			secs = parsed
		case int:
			secs = float64(v)
		case int64:
			secs = float64(v)
		case float64:
			secs = v
		default:
			continue
		}
		if err := k.Set(path, time.Duration(secs*float64(time.Second)).String()); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// The first block keeps the variable names existing deployments already use.
var envMappings = map[string]string{
	"rate_limit_requests":        "rate_limit.requests",
	"rate_limit_period":          "rate_limit.window",
	"sync_batch_size":            "sync.batch_size",
	"max_retries":                "provider.max_attempts",
	"retry_delay":                "provider.base_delay",
	"data_ingestion_service_url": "ingestion.url",
	"intervals_api_key":          "provider.api_key",
	"intervals_api_base_url":     "provider.base_url",
	"redis_url":                  "status_store.redis_url",
	"vault_addr":                 "provider.vault.address",
	"vault_token":                "provider.vault.token",
	"vault_path":                 "provider.vault.path",
	"vault_mount_point":          "provider.vault.mount",

	"http_host":             "server.host",
	"http_port":             "server.port",
	"server_read_timeout":   "server.read_timeout",
	"server_write_timeout":  "server.write_timeout",
	"cors_origins":          "server.cors_origins",
	"api_rate_limit_reqs":   "server.api_rate_limit_reqs",
	"api_rate_limit_window": "server.api_rate_limit_window",
	"max_upload_bytes":      "server.max_upload_bytes",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"rate_limit_fail_open": "rate_limit.fail_open",

	"sync_item_timeout":     "sync.item_timeout",
	"sync_run_timeout":      "sync.run_timeout",
	"sync_stale_after":      "sync.stale_after",
	"sync_default_lookback": "sync.default_lookback",

	"provider_request_timeout":      "provider.request_timeout",
	"provider_retry_multiplier":     "provider.multiplier",
	"provider_retry_max_delay":      "provider.max_delay",
	"provider_retry_jitter":         "provider.jitter",
	"provider_requests_per_second":  "provider.requests_per_second",
	"provider_burst":                "provider.burst",
	"provider_max_payload_bytes":    "provider.max_payload_bytes",
	"provider_breaker_timeout":      "provider.breaker.timeout",
	"provider_breaker_failures":     "provider.breaker.consecutive_failures",
	"provider_breaker_max_requests": "provider.breaker.max_requests",
	"vault_enabled":                 "provider.vault.enabled",
	"vault_timeout":                 "provider.vault.timeout",

	"ingestion_mode":            "ingestion.mode",
	"ingestion_request_timeout": "ingestion.request_timeout",

	"status_store_backend":      "status_store.backend",
	"status_store_path":         "status_store.path",
	"status_store_record_ttl":   "status_store.record_ttl",
	"status_store_cas_attempts": "status_store.cas_attempts",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"events_enabled":      "events.enabled",
	"events_backend":      "events.backend",
	"nats_url":            "events.nats_url",
	"events_topic_prefix": "events.topic_prefix",
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Unmapped variables return "" and are ignored so unrelated environment
// does not leak into configuration.
//
// Examples:
//   - RATE_LIMIT_PERIOD -> rate_limit.window
//   - DATA_INGESTION_SERVICE_URL -> ingestion.url
//   - STATUS_STORE_BACKEND -> status_store.backend
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
