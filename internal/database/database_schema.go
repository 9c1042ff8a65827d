// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext bounds schema operations at startup.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the ingestion tables.
//
// Laps and stream samples carry no foreign key to activities: the three
// ingest tasks run concurrently and may land in any order.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

func tableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS activities (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			start_date TIMESTAMP NOT NULL,
			name TEXT NOT NULL,
			sport_type TEXT NOT NULL,
			description TEXT,
			duration DOUBLE,
			distance DOUBLE,
			total_elevation_gain DOUBLE,
			average_speed DOUBLE,
			average_heartrate INTEGER,
			average_cadence DOUBLE,
			average_power DOUBLE,
			calories INTEGER,
			gear_id TEXT,
			fit_file BLOB,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS activity_laps (
			activity_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			start_date TIMESTAMP NOT NULL,
			duration DOUBLE,
			distance DOUBLE,
			average_speed DOUBLE,
			average_heartrate INTEGER,
			average_cadence DOUBLE,
			average_power DOUBLE,
			average_lr_balance DOUBLE,
			intensity TEXT,
			PRIMARY KEY (activity_id, sequence)
		)`,

		`CREATE TABLE IF NOT EXISTS activity_streams (
			activity_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			time TIMESTAMP NOT NULL,
			latitude DOUBLE,
			longitude DOUBLE,
			altitude DOUBLE,
			heart_rate INTEGER,
			cadence INTEGER,
			power INTEGER,
			speed DOUBLE,
			distance DOUBLE,
			temperature DOUBLE,
			vertical_oscillation DOUBLE,
			ground_contact_time DOUBLE,
			left_right_balance DOUBLE,
			PRIMARY KEY (activity_id, sequence)
		)`,

		`CREATE TABLE IF NOT EXISTS gear (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			description TEXT,
			brand TEXT,
			model TEXT,
			distance DOUBLE,
			time DOUBLE,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
}
