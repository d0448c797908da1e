package database

import (
	"context"
	"fmt"
	"time"

	"schedfy/internal/models"
)

// The sync_queue table is the notification outbox: booking changes enqueue a
// task here inside the request path, the worker drains it asynchronously.

func (db *DB) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	query := `INSERT INTO sync_queue (task_type, booking_id, payload, status, retry_count, last_error, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	result, err := db.ExecContext(ctx, query,
		task.TaskType, task.BookingID, task.Payload, task.Status,
		task.RetryCount, task.LastError, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now
	task.UpdatedAt = now
	return nil
}

func (db *DB) GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	query := `SELECT id, task_type, booking_id, payload, status, retry_count, last_error, created_at, updated_at
              FROM sync_queue WHERE status = ? ORDER BY created_at ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, models.TaskStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending sync tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		var t models.SyncTask
		var lastError *string
		err := rows.Scan(&t.ID, &t.TaskType, &t.BookingID, &t.Payload, &t.Status,
			&t.RetryCount, &lastError, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync task: %w", err)
		}
		if lastError != nil {
			t.LastError = *lastError
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (db *DB) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string) error {
	query := `UPDATE sync_queue SET status = ?, last_error = ?, retry_count = retry_count + 1, updated_at = ?
              WHERE id = ?`
	if status == models.TaskStatusDone {
		query = `UPDATE sync_queue SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`
	}
	_, err := db.ExecContext(ctx, query, status, errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update sync task status: %w", err)
	}
	return nil
}
