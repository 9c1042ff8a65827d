// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

// Package config loads Stridesync configuration with Koanf v2.
//
// Sources are layered, highest priority last:
//  1. Built-in defaults (defaultConfig)
//  2. YAML file: CONFIG_PATH, ./config.yaml, or /etc/stridesync/config.yaml
//  3. Environment variables listed in envMappings
//
// # Environment Variables
//
// The gateway's historical variable names are kept:
//
//	RATE_LIMIT_REQUESTS=60          # rate_limit.requests
//	RATE_LIMIT_PERIOD=60            # rate_limit.window, bare seconds accepted
//	SYNC_BATCH_SIZE=50              # sync.batch_size
//	MAX_RETRIES=3                   # provider.max_attempts (total attempts)
//	RETRY_DELAY=1                   # provider.base_delay, bare seconds accepted
//	DATA_INGESTION_SERVICE_URL=...  # ingestion.url
//	INTERVALS_API_KEY=...           # provider.api_key
//	REDIS_URL=redis://...           # status_store.redis_url
//
// Everything else uses a SECTION_FIELD form, for example
// STATUS_STORE_BACKEND=redis or INGESTION_MODE=local.
//
// # Example config.yaml
//
//	sync:
//	  batch_size: 25
//	provider:
//	  max_attempts: 4
//	  base_delay: 500ms
//	  multiplier: 3
//	status_store:
//	  backend: redis
//	  redis_url: redis://redis:6379/0
//
// Validate rejects inconsistent values at startup so misconfiguration fails
// fast instead of surfacing mid-sync.
package config
