// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package services

import (
	"context"
	"time"

	"github.com/tomtom215/stridesync/internal/logging"
)

// GarbageCollector matches statusstore.GarbageCollector.
type GarbageCollector interface {
	CollectGarbage() error
}

// StatusStoreGCService runs store maintenance on a fixed interval.
// A failed pass is logged and retried on the next tick; it never restarts
// the service.
type StatusStoreGCService struct {
	gc       GarbageCollector
	interval time.Duration
	name     string
}

// NewStatusStoreGCService runs gc every interval; non-positive means 5m.
func NewStatusStoreGCService(gc GarbageCollector, interval time.Duration) *StatusStoreGCService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &StatusStoreGCService{
		gc:       gc,
		interval: interval,
		name:     "status-store-gc",
	}
}

// Serve implements suture.Service.
func (s *StatusStoreGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := s.gc.CollectGarbage(); err != nil {
				logging.Warn().Err(err).Msg("Status store garbage collection failed")
				continue
			}
			logging.Debug().Dur("duration", time.Since(start)).Msg("Status store garbage collection finished")
		}
	}
}

// String implements fmt.Stringer for suture's logs.
func (s *StatusStoreGCService) String() string {
	return s.name
}
