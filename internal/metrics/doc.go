// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

// Package metrics defines the Prometheus collectors for Stridesync.
//
// Collectors are registered with the default registry through promauto and
// exposed by the API router at /metrics. Callers use the RecordXxx helpers
// instead of touching collectors directly:
//
//	metrics.RecordSyncStarted()
//	defer func() { metrics.RecordSyncFinished(time.Since(start), failed > 0) }()
//
// All metric names carry the stridesync_ prefix.
package metrics
