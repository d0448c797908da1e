package models

import "time"

// SyncTask is a persisted unit of work for the notification/sync worker.
// Tasks are written to the outbox table right after the booking change
// commits and drained asynchronously; the table is the source of truth,
// Redis only speeds up pickup.
type SyncTask struct {
	ID         int64     `json:"id"`
	TaskType   string    `json:"task_type"` // notify, sheet_upsert, sheet_status
	BookingID  int64     `json:"booking_id"`
	Payload    string    `json:"payload"` // JSON snapshot of the booking
	Status     string    `json:"status"`  // pending, done, failed
	RetryCount int       `json:"retry_count"`
	LastError  string    `json:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

const (
	TaskStatusPending = "pending"
	TaskStatusDone    = "done"
	TaskStatusFailed  = "failed"
)
