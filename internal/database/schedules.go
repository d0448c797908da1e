package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"schedfy/internal/models"
)

// GetWorkingHours loads the entity's schedule config. ErrNotFound signals a
// caller-side fallback to the default window from service config.
func (db *DB) GetWorkingHours(ctx context.Context, entityID int64) (*models.WorkingHours, error) {
	h := &models.WorkingHours{EntityID: entityID}
	var overrides sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT timezone, start_hour, end_hour, step_minutes, overrides
         FROM working_hours WHERE entity_id = ?`, entityID).
		Scan(&h.Timezone, &h.Window.StartHour, &h.Window.EndHour, &h.Window.StepMinutes, &overrides)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get working hours: %w", err)
	}

	if overrides.Valid && overrides.String != "" {
		if err := json.Unmarshal([]byte(overrides.String), &h.Overrides); err != nil {
			return nil, fmt.Errorf("failed to parse working hours overrides: %w", err)
		}
	}
	return h, nil
}

func (db *DB) UpsertWorkingHours(ctx context.Context, h *models.WorkingHours) error {
	var overrides any
	if len(h.Overrides) > 0 {
		raw, err := json.Marshal(h.Overrides)
		if err != nil {
			return fmt.Errorf("failed to encode working hours overrides: %w", err)
		}
		overrides = string(raw)
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO working_hours (entity_id, timezone, start_hour, end_hour, step_minutes, overrides, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(entity_id) DO UPDATE SET
             timezone = excluded.timezone,
             start_hour = excluded.start_hour,
             end_hour = excluded.end_hour,
             step_minutes = excluded.step_minutes,
             overrides = excluded.overrides,
             updated_at = excluded.updated_at`,
		h.EntityID, h.Timezone, h.Window.StartHour, h.Window.EndHour, h.Window.StepMinutes,
		overrides, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert working hours: %w", err)
	}
	return nil
}
