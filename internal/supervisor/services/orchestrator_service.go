// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package services

import (
	"context"
	"fmt"
)

// StartStopper matches the sync.Orchestrator lifecycle.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop() error
}

// OrchestratorService adapts the orchestrator's Start/Stop lifecycle to
// suture's Serve:
//  1. Start begins accepting triggers
//  2. Serve blocks until the context is canceled
//  3. Stop drains in-flight runs before Serve returns
type OrchestratorService struct {
	orchestrator StartStopper
	name         string
}

// NewOrchestratorService wraps orchestrator.
func NewOrchestratorService(orchestrator StartStopper) *OrchestratorService {
	return &OrchestratorService{
		orchestrator: orchestrator,
		name:         "sync-orchestrator",
	}
}

// Serve implements suture.Service. A Start failure is returned so suture
// restarts the service with backoff.
func (s *OrchestratorService) Serve(ctx context.Context) error {
	if err := s.orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("sync orchestrator start failed: %w", err)
	}

	<-ctx.Done()

	if err := s.orchestrator.Stop(); err != nil {
		return fmt.Errorf("sync orchestrator stop failed: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer for suture's logs.
func (s *OrchestratorService) String() string {
	return s.name
}
