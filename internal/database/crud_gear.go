// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/stridesync/internal/models"
)

// UpsertGear inserts or replaces a gear row keyed by id.
func (db *DB) UpsertGear(ctx context.Context, gear *models.Gear) error {
	if gear == nil || gear.ID == "" {
		return errors.New("upsert gear: gear id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return db.withConflictRetry(ctx, "upsert gear "+gear.ID, func(ctx context.Context) error {
		_, err := db.conn.ExecContext(ctx, `INSERT INTO gear (
			id, user_id, name, type, description, brand, model, distance, time, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			description = EXCLUDED.description,
			brand = EXCLUDED.brand,
			model = EXCLUDED.model,
			distance = EXCLUDED.distance,
			time = EXCLUDED.time,
			updated_at = EXCLUDED.updated_at`,
			gear.ID,
			gear.UserID,
			gear.Name,
			gear.Type,
			nullable(gear.Description),
			nullable(gear.Brand),
			nullable(gear.Model),
			nullable(gear.Distance),
			nullable(gear.Time),
			time.Now().UTC(),
		)
		return err
	})
}

// GetGear returns a stored gear row.
func (db *DB) GetGear(ctx context.Context, id string) (*models.Gear, error) {
	if db.conn == nil {
		return nil, ErrClosed
	}

	var (
		g                         models.Gear
		description, brand, model sql.NullString
		distance, totalTime       sql.NullFloat64
	)
	err := db.conn.QueryRowContext(ctx, `SELECT
			id, user_id, name, type, description, brand, model, distance, time
		FROM gear WHERE id = ?`, id).Scan(
		&g.ID, &g.UserID, &g.Name, &g.Type, &description, &brand, &model, &distance, &totalTime,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("gear %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get gear %s: %w", id, err)
	}

	g.Description = fromNullString(description)
	g.Brand = fromNullString(brand)
	g.Model = fromNullString(model)
	g.Distance = fromNullFloat(distance)
	g.Time = fromNullFloat(totalTime)
	return &g, nil
}
