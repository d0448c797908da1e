package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"schedfy/internal/domain"
	"schedfy/internal/metrics"
	"schedfy/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskNotify      = "notify"
	TaskSheetUpsert = "sheet_upsert"
	TaskSheetStatus = "sheet_status"
	TaskSheetResync = "sheet_resync"
)

// taskPayload is persisted in SyncTask.Payload as JSON. Booking-scoped
// tasks carry the booking snapshot; a resync carries the entity and period
// instead.
type taskPayload struct {
	Booking  *models.Booking `json:"booking,omitempty"`
	Event    string          `json:"event,omitempty"`
	Status   string          `json:"status,omitempty"`
	EntityID int64           `json:"entity_id,omitempty"`
	From     string          `json:"from,omitempty"` // RFC3339
	To       string          `json:"to,omitempty"`   // RFC3339
}

// BookingSource supplies the bookings a full sheet resync mirrors.
type BookingSource interface {
	GetBookingsBetween(ctx context.Context, entityID int64, start, end time.Time) ([]models.Booking, error)
}

// SyncQueue is the subset of the repository the worker persists tasks
// through.
type SyncQueue interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string) error
}

// SyncWorker drains the outbox: tasks are written to the sync_queue table,
// scheduled through Redis (or an in-memory channel when Redis is down) and
// delivered to the notifier and the sheets mirror with retries.
type SyncWorker struct {
	queue         SyncQueue
	bookings      BookingSource
	notifier      domain.Notifier
	sheets        domain.SheetsWriter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	local         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

func NewSyncWorker(queue SyncQueue, notifier domain.Notifier, sheets domain.SheetsWriter, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *SyncWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if retry.Jitter == 0 {
		retry.Jitter = 0.2
	}

	return &SyncWorker{
		queue:         queue,
		notifier:      notifier,
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   retry,
		local:         make(chan models.SyncTask, models.WorkerQueueSize),
		redisQueueKey: "sync:queue",
		deadLetterKey: "sync:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// WithBookingSource attaches the repository resync tasks read from.
func (w *SyncWorker) WithBookingSource(src BookingSource) *SyncWorker {
	w.bookings = src
	return w
}

// EnqueueTask persists the task and schedules it. The database write is the
// source of truth; Redis and the local channel only speed up pickup.
func (w *SyncWorker) EnqueueTask(ctx context.Context, taskType string, booking *models.Booking, status string) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if booking == nil {
		return errors.New("booking is required")
	}

	raw, err := json.Marshal(taskPayload{Booking: booking, Event: status, Status: status})
	if err != nil {
		return fmt.Errorf("failed to encode task payload: %w", err)
	}

	return w.schedule(ctx, &models.SyncTask{
		TaskType:  taskType,
		BookingID: booking.ID,
		Payload:   string(raw),
		Status:    models.TaskStatusPending,
	})
}

// EnqueueResync schedules a full rebuild of the sheet mirror for a period.
func (w *SyncWorker) EnqueueResync(ctx context.Context, entityID int64, from, to time.Time) error {
	if to.Before(from) {
		return errors.New("resync period is inverted")
	}

	raw, err := json.Marshal(taskPayload{
		EntityID: entityID,
		From:     from.Format(time.RFC3339),
		To:       to.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to encode task payload: %w", err)
	}

	return w.schedule(ctx, &models.SyncTask{
		TaskType: TaskSheetResync,
		Payload:  string(raw),
		Status:   models.TaskStatusPending,
	})
}

func (w *SyncWorker) schedule(ctx context.Context, task *models.SyncTask) error {
	if err := w.queue.CreateSyncTask(ctx, task); err != nil {
		return fmt.Errorf("failed to persist sync task: %w", err)
	}

	if err := w.pushRedis(ctx, *task); err == nil {
		return nil
	}

	select {
	case w.local <- *task:
	default:
		// Channel full: the poller will pick it up from the table.
		w.logger.Warn().Int64("task_id", task.ID).Msg("local queue full, task left for polling")
	}
	return nil
}

// Start runs the drain loop until ctx is done.
func (w *SyncWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("sync worker started")
	defer w.logger.Info().Msg("sync worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocal(); ok {
			w.processTask(ctx, &t)
			continue
		}
		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.queue.GetPendingSyncTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("failed to fetch pending sync tasks")
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}
		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *SyncWorker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}

func (w *SyncWorker) tryLocal() (models.SyncTask, bool) {
	select {
	case t := <-w.local:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *SyncWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("redis BRPOP failed")
		}
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("failed to decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *SyncWorker) processTask(ctx context.Context, task *models.SyncTask) {
	var payload taskPayload
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handle(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	metrics.IncSyncTask(task.TaskType, "done")
	if err := w.queue.UpdateSyncTaskStatus(ctx, task.ID, models.TaskStatusDone, ""); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("failed to mark task done")
	}
}

func (w *SyncWorker) handle(ctx context.Context, taskType string, payload taskPayload) error {
	if taskType != TaskSheetResync && payload.Booking == nil {
		return errors.New("booking payload missing")
	}

	switch taskType {
	case TaskNotify:
		if w.notifier == nil {
			return nil
		}
		return w.notifier.NotifyBooking(ctx, payload.Event, payload.Booking)
	case TaskSheetUpsert:
		if w.sheets == nil {
			return nil
		}
		return w.sheets.UpsertBooking(ctx, payload.Booking)
	case TaskSheetStatus:
		if w.sheets == nil {
			return nil
		}
		if payload.Status == "" {
			return errors.New("status missing")
		}
		return w.sheets.UpdateBookingStatus(ctx, payload.Booking.ID, payload.Status)
	case TaskSheetResync:
		return w.resyncSheet(ctx, payload)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *SyncWorker) resyncSheet(ctx context.Context, payload taskPayload) error {
	if w.sheets == nil || w.bookings == nil {
		return nil
	}

	from, err := time.Parse(time.RFC3339, payload.From)
	if err != nil {
		return fmt.Errorf("invalid resync period start: %w", err)
	}
	to, err := time.Parse(time.RFC3339, payload.To)
	if err != nil {
		return fmt.Errorf("invalid resync period end: %w", err)
	}

	bookings, err := w.bookings.GetBookingsBetween(ctx, payload.EntityID, from, to)
	if err != nil {
		return fmt.Errorf("load bookings for resync: %w", err)
	}
	return w.sheets.ReplaceBookingsSheet(ctx, bookings)
}

// retryOrFail leaves the task pending with its error recorded until the
// retry budget is spent, then fails it and pushes it to the dead letter list.
func (w *SyncWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		w.failTask(ctx, task, cause)
		return
	}

	delay := w.retryPolicy.NextDelay(attempt)
	w.logger.Warn().Err(cause).
		Int64("task_id", task.ID).
		Int("attempt", attempt).
		Dur("next_delay", delay).
		Msg("sync task failed, will retry")

	if err := w.queue.UpdateSyncTaskStatus(ctx, task.ID, models.TaskStatusPending, cause.Error()); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("failed to record retry")
	}
	w.sleepFor(ctx, delay)
}

func (w *SyncWorker) sleepFor(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (w *SyncWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	metrics.IncSyncTask(task.TaskType, "failed")
	if err := w.queue.UpdateSyncTaskStatus(ctx, task.ID, models.TaskStatusFailed, cause.Error()); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("failed to mark task failed")
	}
	w.pushDeadLetter(ctx, task)
}

func (w *SyncWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	if w.redis == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *SyncWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("failed to push dead letter")
	}
}
