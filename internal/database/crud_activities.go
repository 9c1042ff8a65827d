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
	"strings"
	"time"

	"github.com/tomtom215/stridesync/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// writeTimeout bounds a single repository write, matching the other upserts.
const writeTimeout = 30 * time.Second

// rowsPerInsert caps the VALUES tuples per multi-row INSERT.
const rowsPerInsert = 200

// CreateActivity upserts the activity row together with the raw FIT payload.
// Re-ingesting the same activity id replaces the previous row.
func (db *DB) CreateActivity(ctx context.Context, activity *models.Activity, payload []byte) error {
	if activity == nil || activity.ID == "" {
		return errors.New("create activity: activity id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	now := time.Now().UTC()
	return db.withConflictRetry(ctx, "create activity "+activity.ID, func(ctx context.Context) error {
		_, err := db.conn.ExecContext(ctx, `INSERT INTO activities (
			id, user_id, start_date, name, sport_type, description,
			duration, distance, total_elevation_gain, average_speed,
			average_heartrate, average_cadence, average_power, calories,
			gear_id, fit_file, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			start_date = EXCLUDED.start_date,
			name = EXCLUDED.name,
			sport_type = EXCLUDED.sport_type,
			description = EXCLUDED.description,
			duration = EXCLUDED.duration,
			distance = EXCLUDED.distance,
			total_elevation_gain = EXCLUDED.total_elevation_gain,
			average_speed = EXCLUDED.average_speed,
			average_heartrate = EXCLUDED.average_heartrate,
			average_cadence = EXCLUDED.average_cadence,
			average_power = EXCLUDED.average_power,
			calories = EXCLUDED.calories,
			gear_id = EXCLUDED.gear_id,
			fit_file = EXCLUDED.fit_file,
			updated_at = EXCLUDED.updated_at`,
			activity.ID,
			nullable(activity.UserID),
			activity.StartDate.UTC(),
			activity.Name,
			activity.SportType,
			nullable(activity.Description),
			nullable(activity.Duration),
			nullable(activity.Distance),
			nullable(activity.TotalElevationGain),
			nullable(activity.AverageSpeed),
			nullable(activity.AverageHeartrate),
			nullable(activity.AverageCadence),
			nullable(activity.AveragePower),
			nullable(activity.Calories),
			nullable(activity.GearID),
			payload,
			now,
			now,
		)
		return err
	})
}

// GetActivity returns the stored activity metadata (without the payload).
func (db *DB) GetActivity(ctx context.Context, id string) (*models.Activity, error) {
	if db.conn == nil {
		return nil, ErrClosed
	}

	var (
		a                                                  models.Activity
		userID, description, gearID                        sql.NullString
		duration, distance, elevation, speed, cadence, pwr sql.NullFloat64
		heartrate, calories                                sql.NullInt64
	)
	err := db.conn.QueryRowContext(ctx, `SELECT
			id, user_id, start_date, name, sport_type, description,
			duration, distance, total_elevation_gain, average_speed,
			average_heartrate, average_cadence, average_power, calories, gear_id
		FROM activities WHERE id = ?`, id).Scan(
		&a.ID, &userID, &a.StartDate, &a.Name, &a.SportType, &description,
		&duration, &distance, &elevation, &speed,
		&heartrate, &cadence, &pwr, &calories, &gearID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("activity %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get activity %s: %w", id, err)
	}

	a.StartDate = a.StartDate.UTC()
	a.UserID = fromNullString(userID)
	a.Description = fromNullString(description)
	a.GearID = fromNullString(gearID)
	a.Duration = fromNullFloat(duration)
	a.Distance = fromNullFloat(distance)
	a.TotalElevationGain = fromNullFloat(elevation)
	a.AverageSpeed = fromNullFloat(speed)
	a.AverageCadence = fromNullFloat(cadence)
	a.AveragePower = fromNullFloat(pwr)
	a.AverageHeartrate = fromNullInt(heartrate)
	a.Calories = fromNullInt(calories)
	return &a, nil
}

// StoreLaps upserts every lap of an activity keyed by (activity_id, sequence)
// and removes laps left over from a previous, longer ingest.
func (db *DB) StoreLaps(ctx context.Context, activityID string, laps []models.Lap) error {
	if activityID == "" {
		return errors.New("store laps: activity id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	const columns = "activity_id, sequence, start_date, duration, distance, average_speed, " +
		"average_heartrate, average_cadence, average_power, average_lr_balance, intensity"
	const update = `start_date = EXCLUDED.start_date,
			duration = EXCLUDED.duration,
			distance = EXCLUDED.distance,
			average_speed = EXCLUDED.average_speed,
			average_heartrate = EXCLUDED.average_heartrate,
			average_cadence = EXCLUDED.average_cadence,
			average_power = EXCLUDED.average_power,
			average_lr_balance = EXCLUDED.average_lr_balance,
			intensity = EXCLUDED.intensity`

	rows := make([][]any, 0, len(laps))
	for i := range laps {
		lap := &laps[i]
		rows = append(rows, []any{
			activityID,
			lap.Sequence,
			lap.StartDate.UTC(),
			nullable(lap.Duration),
			nullable(lap.Distance),
			nullable(lap.AverageSpeed),
			nullable(lap.AverageHeartrate),
			nullable(lap.AverageCadence),
			nullable(lap.AveragePower),
			nullable(lap.AverageLRBalance),
			nullable(lap.Intensity),
		})
	}

	return db.withConflictRetry(ctx, "store laps "+activityID, func(ctx context.Context) error {
		return db.replaceChildRows(ctx, "activity_laps", columns, update, activityID, rows)
	})
}

// StoreStreams upserts the stream samples of an activity.
func (db *DB) StoreStreams(ctx context.Context, activityID string, samples []models.StreamSample) error {
	if activityID == "" {
		return errors.New("store streams: activity id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	const columns = "activity_id, sequence, time, latitude, longitude, altitude, heart_rate, cadence, " +
		"power, speed, distance, temperature, vertical_oscillation, ground_contact_time, left_right_balance"
	const update = `time = EXCLUDED.time,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			altitude = EXCLUDED.altitude,
			heart_rate = EXCLUDED.heart_rate,
			cadence = EXCLUDED.cadence,
			power = EXCLUDED.power,
			speed = EXCLUDED.speed,
			distance = EXCLUDED.distance,
			temperature = EXCLUDED.temperature,
			vertical_oscillation = EXCLUDED.vertical_oscillation,
			ground_contact_time = EXCLUDED.ground_contact_time,
			left_right_balance = EXCLUDED.left_right_balance`

	rows := make([][]any, 0, len(samples))
	for i := range samples {
		s := &samples[i]
		rows = append(rows, []any{
			activityID,
			s.Sequence,
			s.Time.UTC(),
			nullable(s.Latitude),
			nullable(s.Longitude),
			nullable(s.Altitude),
			nullable(s.HeartRate),
			nullable(s.Cadence),
			nullable(s.Power),
			nullable(s.Speed),
			nullable(s.Distance),
			nullable(s.Temperature),
			nullable(s.VerticalOscillation),
			nullable(s.GroundContactTime),
			nullable(s.LeftRightBalance),
		})
	}

	return db.withConflictRetry(ctx, "store streams "+activityID, func(ctx context.Context) error {
		return db.replaceChildRows(ctx, "activity_streams", columns, update, activityID, rows)
	})
}

// replaceChildRows upserts rows (each starting with activity_id, sequence)
// and deletes any row of the activity whose sequence was not written,
// all in one transaction.
func (db *DB) replaceChildRows(ctx context.Context, table, columns, update, activityID string, rows [][]any) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		maxSeq := -1
		for start := 0; start < len(rows); start += rowsPerInsert {
			end := min(start+rowsPerInsert, len(rows))
			chunk := rows[start:end]

			tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(chunk[0])), ", ") + ")"
			tuples := make([]string, len(chunk))
			args := make([]any, 0, len(chunk)*len(chunk[0]))
			for i, row := range chunk {
				tuples[i] = tuple
				args = append(args, row...)
				if seq, ok := row[1].(int); ok && seq > maxSeq {
					maxSeq = seq
				}
			}

			query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES %s
				ON CONFLICT (activity_id, sequence) DO UPDATE SET %s`,
				table, columns, strings.Join(tuples, ", "), update)
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("insert %s rows %d-%d: %w", table, start, end-1, err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE activity_id = ? AND sequence > ?`, table),
			activityID, maxSeq); err != nil {
			return fmt.Errorf("trim %s: %w", table, err)
		}
		return nil
	})
}

// CountLaps returns the number of stored laps for an activity.
func (db *DB) CountLaps(ctx context.Context, activityID string) (int, error) {
	return db.countChildRows(ctx, "activity_laps", activityID)
}

// CountStreamSamples returns the number of stored stream samples for an activity.
func (db *DB) CountStreamSamples(ctx context.Context, activityID string) (int, error) {
	return db.countChildRows(ctx, "activity_streams", activityID)
}

func (db *DB) countChildRows(ctx context.Context, table, activityID string) (int, error) {
	if db.conn == nil {
		return 0, ErrClosed
	}
	var n int
	err := db.conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE activity_id = ?`, table), activityID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s for %s: %w", table, activityID, err)
	}
	return n, nil
}

// nullable unwraps an optional value so the driver binds NULL for nil.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func fromNullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func fromNullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
