// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

// Package services adapts the application's components to suture.Service.
//
// Each wrapper depends on a small interface rather than the concrete type,
// so the supervisor package never imports sync, ingest or statusstore.
package services
