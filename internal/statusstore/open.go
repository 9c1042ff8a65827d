// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package statusstore

import (
	"context"
	"fmt"

	"github.com/tomtom215/stridesync/internal/config"
	"github.com/tomtom215/stridesync/internal/models"
)

// Open builds the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StatusStoreConfig) (Store, error) {
	switch cfg.Backend {
	case config.StoreBackendMemory:
		return NewMemoryStore(), nil
	case config.StoreBackendBadger:
		return OpenBadger(BadgerOptions{Path: cfg.Path, SyncWrites: true})
	case config.StoreBackendRedis:
		return OpenRedis(ctx, cfg.RedisURL, "stridesync")
	default:
		return nil, fmt.Errorf("unknown status store backend %q", cfg.Backend)
	}
}

// RecordsOptionsFromConfig maps status store settings onto RecordsOptions.
// ttl is passed separately because sync records never expire.
func RecordsOptionsFromConfig(cfg config.StatusStoreConfig, ttl bool) RecordsOptions {
	opts := RecordsOptions{
		CASAttempts:     cfg.CASAttempts,
		WriteRetries:    cfg.WriteRetries,
		WriteRetryDelay: cfg.WriteRetryDelay,
	}
	if ttl {
		opts.TTL = cfg.RecordTTL
	}
	return opts
}

// SyncStatuses returns the per-user sync record collection.
func SyncStatuses(store Store, opts RecordsOptions) *Records[models.SyncStatus] {
	return NewRecords[models.SyncStatus](store, models.SyncStatusKey, opts)
}

// ActivityStatuses returns the per-item ingestion record collection.
func ActivityStatuses(store Store, opts RecordsOptions) *Records[models.ActivityStatus] {
	return NewRecords[models.ActivityStatus](store, models.ActivityStatusKey, opts)
}
