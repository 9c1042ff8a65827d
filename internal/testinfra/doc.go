// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

// Package testinfra provides container-backed test infrastructure.
//
// Everything here builds only with the integration tag:
//
//	go test -tags integration ./internal/statusstore/...
//
// # Redis
//
// StartRedis runs a throwaway redis:7 so the status store contract can be
// checked against the backend that multi-process deployments share:
//
//	func TestRedisStore(t *testing.T) {
//	    redis := testinfra.StartRedis(t)
//	    store, err := statusstore.OpenRedis(ctx, redis.URL, "test")
//	    ...
//	}
//
// Tests call SkipIfNoDocker (StartRedis does so itself) so machines without
// Docker skip rather than fail.
package testinfra
