// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

// Package logging provides the process-wide zerolog logger for Stridesync.
//
// Every package logs through the package-level helpers rather than holding
// its own logger:
//
//	logging.Info().Str("user_id", userID).Int("total", n).Msg("Sync started")
//	logging.Error().Err(err).Str("item_id", id).Msg("Status write failed")
//
// # Context Propagation
//
// HTTP middleware stores a request ID and correlation ID in the request
// context. The sync orchestrator and ingestion coordinator add the user and
// item being processed. Ctx(ctx) attaches whatever is present:
//
//	ctx = logging.ContextWithUserID(ctx, "i12345")
//	logging.Ctx(ctx).Warn().Msg("Provider retry")
//
// # Configuration
//
// Init is called from main with values loaded by internal/config:
//   - logging.level: trace, debug, info, warn, error (default: info)
//   - logging.format: json or console (default: json)
//   - logging.caller: include file:line (default: false)
//
// # Adapters
//
// NewSlogLogger bridges slog-only libraries (the suture event hook) into the
// same zerolog stream.
package logging
