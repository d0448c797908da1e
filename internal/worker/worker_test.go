package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"schedfy/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu      sync.Mutex
	nextID  int64
	tasks   map[int64]*models.SyncTask
	updates []string // "id:status"
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{tasks: make(map[int64]*models.SyncTask)}
}

func (q *fakeQueue) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	task.ID = q.nextID
	task.Status = models.TaskStatusPending
	copied := *task
	q.tasks[task.ID] = &copied
	return nil
}

func (q *fakeQueue) GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []models.SyncTask
	for _, t := range q.tasks {
		if t.Status == models.TaskStatusPending && len(out) < limit {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (q *fakeQueue) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.tasks[id]; ok {
		t.Status = status
		t.LastError = errMsg
		if status != models.TaskStatusDone {
			t.RetryCount++
		}
	}
	q.updates = append(q.updates, status)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (n *fakeNotifier) NotifyBooking(ctx context.Context, event string, booking *models.Booking) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, event)
	return nil
}

type fakeSheets struct {
	mu       sync.Mutex
	upserts  int
	statuses []string
	replaced [][]models.Booking
	err      error
}

func (s *fakeSheets) UpsertBooking(ctx context.Context, booking *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.upserts++
	return nil
}

func (s *fakeSheets) UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeSheets) ReplaceBookingsSheet(ctx context.Context, bookings []models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.replaced = append(s.replaced, bookings)
	return nil
}

func newWorkerForTest(t *testing.T, queue *fakeQueue, notifier *fakeNotifier, sheets *fakeSheets, withRedis bool) (*SyncWorker, *miniredis.Miniredis) {
	t.Helper()
	logger := zerolog.Nop()
	retry := RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	var client *redis.Client
	var mr *miniredis.Miniredis
	if withRedis {
		mr = miniredis.RunT(t)
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
	}
	return NewSyncWorker(queue, notifier, sheets, client, retry, &logger), mr
}

func workerBooking() *models.Booking {
	return &models.Booking{
		ID:          9,
		Reference:   "ref-9",
		EntityID:    1,
		ServiceName: "Haircut",
		ClientName:  "Ana",
		Status:      models.StatusPending,
		StartTime:   time.Date(2025, 6, 16, 10, 0, 0, 0, time.UTC),
		EndTime:     time.Date(2025, 6, 16, 11, 0, 0, 0, time.UTC),
	}
}

func TestEnqueueTaskPersistsAndSchedules(t *testing.T) {
	queue := newFakeQueue()
	w, mr := newWorkerForTest(t, queue, &fakeNotifier{}, &fakeSheets{}, true)
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, TaskNotify, workerBooking(), "booking_created"))

	// Persisted to the outbox table.
	pending, err := queue.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, TaskNotify, pending[0].TaskType)
	assert.Equal(t, int64(9), pending[0].BookingID)

	// Scheduled through Redis.
	raw, err := mr.Lpop("sync:queue")
	require.NoError(t, err)
	var task models.SyncTask
	require.NoError(t, json.Unmarshal([]byte(raw), &task))
	assert.Equal(t, pending[0].ID, task.ID)
}

func TestEnqueueTaskValidation(t *testing.T) {
	w, _ := newWorkerForTest(t, newFakeQueue(), &fakeNotifier{}, &fakeSheets{}, false)
	ctx := context.Background()

	assert.Error(t, w.EnqueueTask(ctx, "", workerBooking(), ""))
	assert.Error(t, w.EnqueueTask(ctx, TaskNotify, nil, ""))
}

func TestEnqueueTaskWithoutRedisUsesLocalQueue(t *testing.T) {
	queue := newFakeQueue()
	w, _ := newWorkerForTest(t, queue, &fakeNotifier{}, &fakeSheets{}, false)
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, TaskNotify, workerBooking(), "booking_created"))

	task, ok := w.tryLocal()
	require.True(t, ok)
	assert.Equal(t, TaskNotify, task.TaskType)
}

func TestProcessTaskNotify(t *testing.T) {
	queue := newFakeQueue()
	notifier := &fakeNotifier{}
	w, _ := newWorkerForTest(t, queue, notifier, &fakeSheets{}, false)
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, TaskNotify, workerBooking(), "booking_created"))
	task, ok := w.tryLocal()
	require.True(t, ok)

	w.processTask(ctx, &task)

	assert.Equal(t, []string{"booking_created"}, notifier.events)
	assert.Equal(t, models.TaskStatusDone, queue.tasks[task.ID].Status)
}

func TestProcessTaskSheetStatus(t *testing.T) {
	queue := newFakeQueue()
	sheets := &fakeSheets{}
	w, _ := newWorkerForTest(t, queue, &fakeNotifier{}, sheets, false)
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, TaskSheetStatus, workerBooking(), models.StatusConfirmed))
	task, ok := w.tryLocal()
	require.True(t, ok)

	w.processTask(ctx, &task)

	assert.Equal(t, []string{models.StatusConfirmed}, sheets.statuses)
	assert.Equal(t, models.TaskStatusDone, queue.tasks[task.ID].Status)
}

func TestProcessTaskRetriesThenFails(t *testing.T) {
	queue := newFakeQueue()
	sheets := &fakeSheets{err: errors.New("sheets api down")}
	w, mr := newWorkerForTest(t, queue, &fakeNotifier{}, sheets, true)
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, TaskSheetUpsert, workerBooking(), ""))
	mr.FlushAll()

	pending, _ := queue.GetPendingSyncTasks(ctx, 1)
	require.Len(t, pending, 1)
	task := pending[0]

	// First attempt: stays pending with the error recorded.
	w.processTask(ctx, &task)
	assert.Equal(t, models.TaskStatusPending, queue.tasks[task.ID].Status)
	assert.Contains(t, queue.tasks[task.ID].LastError, "sheets api down")

	// Second attempt exhausts the budget: failed plus a dead letter.
	task.RetryCount = queue.tasks[task.ID].RetryCount
	w.processTask(ctx, &task)
	assert.Equal(t, models.TaskStatusFailed, queue.tasks[task.ID].Status)

	dead, err := mr.Lpop("sync:deadletter")
	require.NoError(t, err)
	assert.Contains(t, dead, `"task_type":"sheet_upsert"`)
}

func TestProcessTaskMalformedPayload(t *testing.T) {
	queue := newFakeQueue()
	w, _ := newWorkerForTest(t, queue, &fakeNotifier{}, &fakeSheets{}, false)
	ctx := context.Background()

	task := &models.SyncTask{Payload: "{not json"}
	require.NoError(t, queue.CreateSyncTask(ctx, task))
	stored := *queue.tasks[task.ID]

	w.processTask(ctx, &stored)
	assert.Equal(t, models.TaskStatusFailed, queue.tasks[task.ID].Status)
}

func TestProcessTaskUnknownType(t *testing.T) {
	queue := newFakeQueue()
	w, _ := newWorkerForTest(t, queue, &fakeNotifier{}, &fakeSheets{}, false)
	ctx := context.Background()

	raw, _ := json.Marshal(taskPayload{Booking: workerBooking()})
	task := &models.SyncTask{TaskType: "mystery", Payload: string(raw), RetryCount: 5}
	require.NoError(t, queue.CreateSyncTask(ctx, task))
	stored := *queue.tasks[task.ID]
	stored.RetryCount = 5

	w.processTask(ctx, &stored)
	assert.Equal(t, models.TaskStatusFailed, queue.tasks[task.ID].Status)
}

func TestStartDrainsPendingTasks(t *testing.T) {
	queue := newFakeQueue()
	notifier := &fakeNotifier{}
	w, _ := newWorkerForTest(t, queue, notifier, &fakeSheets{}, false)
	w.pollInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.EnqueueTask(ctx, TaskNotify, workerBooking(), "booking_created"))

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		return len(notifier.events) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestRetryPolicyNextDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, MaxDelay: 10 * time.Second, BackoffFactor: 2}

	assert.Equal(t, time.Second, p.NextDelay(1))
	assert.Equal(t, 2*time.Second, p.NextDelay(2))
	assert.Equal(t, 4*time.Second, p.NextDelay(3))
	assert.Equal(t, 10*time.Second, p.NextDelay(10), "clamped to max")
	assert.Equal(t, time.Second, p.NextDelay(0), "attempt floor")

	var zero RetryPolicy
	assert.Positive(t, zero.NextDelay(1))
}

func TestRetryPolicyJitterBounds(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, MaxDelay: 10 * time.Second, BackoffFactor: 2, Jitter: 0.2}

	for i := 0; i < 100; i++ {
		d := p.NextDelay(2)
		assert.GreaterOrEqual(t, d, 1600*time.Millisecond)
		assert.LessOrEqual(t, d, 2400*time.Millisecond)
	}
}

type fakeBookingSource struct {
	bookings []models.Booking
	calls    []int64
}

func (f *fakeBookingSource) GetBookingsBetween(ctx context.Context, entityID int64, start, end time.Time) ([]models.Booking, error) {
	f.calls = append(f.calls, entityID)
	return f.bookings, nil
}

func TestSheetResync(t *testing.T) {
	queue := newFakeQueue()
	sheets := &fakeSheets{}
	w, _ := newWorkerForTest(t, queue, &fakeNotifier{}, sheets, false)
	source := &fakeBookingSource{bookings: []models.Booking{*workerBooking()}}
	w.WithBookingSource(source)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, w.EnqueueResync(ctx, 1, now.AddDate(0, -1, 0), now.AddDate(0, 2, 0)))

	tasks, err := queue.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, TaskSheetResync, tasks[0].TaskType)

	w.processTask(ctx, &tasks[0])

	assert.Equal(t, []int64{1}, source.calls)
	require.Len(t, sheets.replaced, 1)
	require.Len(t, sheets.replaced[0], 1)
	assert.Equal(t, "ref-9", sheets.replaced[0][0].Reference)
	assert.Equal(t, []string{models.TaskStatusDone}, queue.updates)
}

func TestSheetResyncInvertedPeriod(t *testing.T) {
	queue := newFakeQueue()
	w, _ := newWorkerForTest(t, queue, &fakeNotifier{}, &fakeSheets{}, false)

	now := time.Now()
	err := w.EnqueueResync(context.Background(), 1, now, now.AddDate(0, -1, 0))
	assert.Error(t, err)
}
