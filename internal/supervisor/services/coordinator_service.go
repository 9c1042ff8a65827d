// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package services

import (
	"context"
	"fmt"
	"time"
)

// Drainer matches ingest.Coordinator's shutdown.
type Drainer interface {
	Stop(ctx context.Context) error
}

// CoordinatorService keeps the ingestion coordinator in the tree so its
// background tasks are drained on shutdown. The coordinator accepts work
// from construction, so there is nothing to start.
type CoordinatorService struct {
	coordinator  Drainer
	drainTimeout time.Duration
	name         string
}

// NewCoordinatorService wraps coordinator. In-flight tasks get drainTimeout
// to finish before they are cancelled; non-positive means 30s.
func NewCoordinatorService(coordinator Drainer, drainTimeout time.Duration) *CoordinatorService {
	if drainTimeout <= 0 {
		drainTimeout = 30 * time.Second
	}
	return &CoordinatorService{
		coordinator:  coordinator,
		drainTimeout: drainTimeout,
		name:         "ingest-coordinator",
	}
}

// Serve implements suture.Service.
func (s *CoordinatorService) Serve(ctx context.Context) error {
	<-ctx.Done()

	drainCtx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancel()
	if err := s.coordinator.Stop(drainCtx); err != nil {
		return fmt.Errorf("ingest coordinator drain failed: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for suture's logs.
func (s *CoordinatorService) String() string {
	return s.name
}
