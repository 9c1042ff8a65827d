// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

/*
Package database is the DuckDB-backed ingestion repository.

It stores the output of the ingest task manifest:

  - activities: metadata plus the raw FIT payload (CreateActivity)
  - activity_laps: one row per FIT lap message (StoreLaps)
  - activity_streams: one row per FIT record message (StoreStreams)
  - gear: user equipment (UpsertGear)

Every write is an upsert on the natural key, so replaying an item after a
partial failure converges to the same rows. Writes retry DuckDB transaction
conflicts with a short exponential backoff.

Usage:

	db, err := database.New(&cfg.Database)
	if err != nil {
	    logging.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()
*/
package database
