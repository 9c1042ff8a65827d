// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package api

import (
	"context"
	"time"

	"github.com/tomtom215/stridesync/internal/models"
	syncpkg "github.com/tomtom215/stridesync/internal/sync"
)

// SyncService is the sync half of the pipeline. Implemented by sync.Orchestrator.
type SyncService interface {
	Trigger(ctx context.Context, req syncpkg.TriggerRequest) (models.SyncStatus, error)
	Status(ctx context.Context, userID string) (models.SyncStatus, error)
	RetryAfter() time.Duration
}

// IngestService is the ingestion half. Implemented by ingest.Coordinator.
type IngestService interface {
	SubmitBatch(ctx context.Context, idempotencyKey string, activities []models.Activity, payloads [][]byte) ([]models.ActivityStatus, error)
	UpsertGear(ctx context.Context, gear models.Gear) error
	Status(ctx context.Context, itemID string) (models.ActivityStatus, error)
}

// HealthCheck is one dependency probed by the health endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler holds the dependencies shared by every endpoint.
type Handler struct {
	sync           SyncService
	ingest         IngestService
	checks         []HealthCheck
	maxUploadBytes int64
	startTime      time.Time
}

// NewHandler creates the API handler. maxUploadBytes caps multipart
// ingestion bodies; zero means 64 MiB.
func NewHandler(syncSvc SyncService, ingestSvc IngestService, maxUploadBytes int64, checks ...HealthCheck) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 64 << 20
	}
	return &Handler{
		sync:           syncSvc,
		ingest:         ingestSvc,
		checks:         checks,
		maxUploadBytes: maxUploadBytes,
		startTime:      time.Now(),
	}
}
