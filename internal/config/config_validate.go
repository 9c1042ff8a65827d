// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package config

import (
	"fmt"
	"net/url"
	"time"
)

// Validate checks that configuration values are present and consistent.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateLogging,
		c.validateRateLimit,
		c.validateSync,
		c.validateProvider,
		c.validateIngestion,
		c.validateStatusStore,
		c.validateEvents,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.APIRateLimitReqs < 0 {
		return fmt.Errorf("API_RATE_LIMIT_REQS must be non-negative")
	}
	if c.Server.APIRateLimitReqs > 0 && c.Server.APIRateLimitWindow <= 0 {
		return fmt.Errorf("API_RATE_LIMIT_WINDOW must be positive when API_RATE_LIMIT_REQS is set")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

var validLogFormats = map[string]bool{
	"json": true, "console": true,
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	if c.RateLimit.Requests < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1, got %d", c.RateLimit.Requests)
	}
	if c.RateLimit.Window < time.Second {
		return fmt.Errorf("RATE_LIMIT_PERIOD must be at least 1s, got %v", c.RateLimit.Window)
	}
	if c.RateLimit.Window%time.Second != 0 {
		return fmt.Errorf("RATE_LIMIT_PERIOD must be a whole number of seconds, got %v", c.RateLimit.Window)
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.BatchSize < 1 || c.Sync.BatchSize > 1000 {
		return fmt.Errorf("SYNC_BATCH_SIZE must be between 1 and 1000, got %d", c.Sync.BatchSize)
	}
	if c.Sync.ItemTimeout <= 0 {
		return fmt.Errorf("SYNC_ITEM_TIMEOUT must be positive")
	}
	if c.Sync.RunTimeout < c.Sync.ItemTimeout {
		return fmt.Errorf("SYNC_RUN_TIMEOUT (%v) must not be shorter than SYNC_ITEM_TIMEOUT (%v)",
			c.Sync.RunTimeout, c.Sync.ItemTimeout)
	}
	if c.Sync.StaleAfter <= 0 {
		return fmt.Errorf("SYNC_STALE_AFTER must be positive")
	}
	if c.Sync.DefaultLookback <= 0 {
		return fmt.Errorf("SYNC_DEFAULT_LOOKBACK must be positive")
	}
	return nil
}

func (c *Config) validateProvider() error {
	if err := validateHTTPURL("INTERVALS_API_BASE_URL", c.Provider.BaseURL); err != nil {
		return err
	}
	if c.Provider.MaxAttempts < 1 || c.Provider.MaxAttempts > 20 {
		return fmt.Errorf("MAX_RETRIES must be between 1 and 20, got %d", c.Provider.MaxAttempts)
	}
	if c.Provider.BaseDelay < 0 || c.Provider.MaxDelay < c.Provider.BaseDelay {
		return fmt.Errorf("retry delays invalid: base %v, max %v", c.Provider.BaseDelay, c.Provider.MaxDelay)
	}
	if c.Provider.Multiplier < 1 {
		return fmt.Errorf("PROVIDER_RETRY_MULTIPLIER must be >= 1, got %v", c.Provider.Multiplier)
	}
	if c.Provider.Jitter < 0 || c.Provider.Jitter > 1 {
		return fmt.Errorf("PROVIDER_RETRY_JITTER must be between 0 and 1, got %v", c.Provider.Jitter)
	}
	if c.Provider.RequestsPerSecond <= 0 || c.Provider.Burst < 1 {
		return fmt.Errorf("provider pacing requires positive requests_per_second and burst")
	}
	if c.Provider.RequestTimeout <= 0 {
		return fmt.Errorf("PROVIDER_REQUEST_TIMEOUT must be positive")
	}
	if c.Provider.MaxPayloadBytes <= 0 {
		return fmt.Errorf("PROVIDER_MAX_PAYLOAD_BYTES must be positive")
	}
	if v := c.Provider.Vault; v.Enabled {
		if err := validateHTTPURL("VAULT_ADDR", v.Address); err != nil {
			return err
		}
		if v.Mount == "" || v.Path == "" {
			return fmt.Errorf("VAULT_MOUNT_POINT and VAULT_PATH are required when vault is enabled")
		}
	}
	return nil
}

func (c *Config) validateIngestion() error {
	switch c.Ingestion.Mode {
	case IngestionModeLocal:
		return nil
	case IngestionModeHTTP:
		if err := validateHTTPURL("DATA_INGESTION_SERVICE_URL", c.Ingestion.URL); err != nil {
			return err
		}
		if c.Ingestion.RequestTimeout <= 0 {
			return fmt.Errorf("INGESTION_REQUEST_TIMEOUT must be positive")
		}
		return nil
	default:
		return fmt.Errorf("INGESTION_MODE must be one of: http, local (got %q)", c.Ingestion.Mode)
	}
}

func (c *Config) validateStatusStore() error {
	switch c.StatusStore.Backend {
	case StoreBackendMemory:
	case StoreBackendBadger:
		if c.StatusStore.Path == "" {
			return fmt.Errorf("STATUS_STORE_PATH is required for the badger backend")
		}
	case StoreBackendRedis:
		if _, err := url.Parse(c.StatusStore.RedisURL); err != nil || c.StatusStore.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis backend")
		}
	default:
		return fmt.Errorf("STATUS_STORE_BACKEND must be one of: memory, badger, redis (got %q)", c.StatusStore.Backend)
	}
	if c.StatusStore.CASAttempts < 1 {
		return fmt.Errorf("STATUS_STORE_CAS_ATTEMPTS must be at least 1")
	}
	if c.StatusStore.WriteRetries < 0 {
		return fmt.Errorf("status_store.write_retries must be non-negative")
	}
	if c.StatusStore.RecordTTL < 0 {
		return fmt.Errorf("STATUS_STORE_RECORD_TTL must be non-negative")
	}
	return nil
}

func (c *Config) validateEvents() error {
	if !c.Events.Enabled {
		return nil
	}
	switch c.Events.Backend {
	case EventsBackendGoChannel:
		return nil
	case EventsBackendNATS:
		if c.Events.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required when EVENTS_BACKEND=nats")
		}
		return nil
	default:
		return fmt.Errorf("EVENTS_BACKEND must be one of: gochannel, nats (got %q)", c.Events.Backend)
	}
}

func validateHTTPURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
