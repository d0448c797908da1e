package service

import (
	"context"
	"sync"
	"time"

	"schedfy/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockRepo) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockRepo) CreateBooking(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockRepo) CreateBookingWithLock(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockRepo) UpdateBookingStatus(ctx context.Context, id int64, status string) error {
	return m.Called(ctx, id, status).Error(0)
}
func (m *mockRepo) UpdateBookingStatusWithVersion(ctx context.Context, id, version int64, status string) error {
	return m.Called(ctx, id, version, status).Error(0)
}
func (m *mockRepo) RescheduleBookingWithVersion(ctx context.Context, id, version int64, start, end time.Time) error {
	return m.Called(ctx, id, version, start, end).Error(0)
}
func (m *mockRepo) CountOverlapping(ctx context.Context, entityID int64, start, end time.Time) (int, error) {
	args := m.Called(ctx, entityID, start, end)
	return args.Int(0), args.Error(1)
}
func (m *mockRepo) GetBookingsBetween(ctx context.Context, entityID int64, start, end time.Time) ([]models.Booking, error) {
	args := m.Called(ctx, entityID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}
func (m *mockRepo) GetDailyBookings(ctx context.Context, entityID int64, start, end time.Time, loc *time.Location) (map[string][]models.Booking, error) {
	args := m.Called(ctx, entityID, start, end, loc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]models.Booking), args.Error(1)
}
func (m *mockRepo) GetActiveServices(ctx context.Context, entityID int64) ([]models.Service, error) {
	args := m.Called(ctx, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Service), args.Error(1)
}
func (m *mockRepo) GetServiceByID(ctx context.Context, id int64) (*models.Service, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Service), args.Error(1)
}
func (m *mockRepo) CreateService(ctx context.Context, svc *models.Service) error {
	return m.Called(ctx, svc).Error(0)
}
func (m *mockRepo) UpdateService(ctx context.Context, svc *models.Service) error {
	return m.Called(ctx, svc).Error(0)
}
func (m *mockRepo) DeactivateService(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockRepo) SeedServices(ctx context.Context, services []models.Service) error {
	return m.Called(ctx, services).Error(0)
}
func (m *mockRepo) GetWorkingHours(ctx context.Context, entityID int64) (*models.WorkingHours, error) {
	args := m.Called(ctx, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WorkingHours), args.Error(1)
}
func (m *mockRepo) UpsertWorkingHours(ctx context.Context, hours *models.WorkingHours) error {
	return m.Called(ctx, hours).Error(0)
}
func (m *mockRepo) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	return m.Called(ctx, task).Error(0)
}
func (m *mockRepo) GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SyncTask), args.Error(1)
}
func (m *mockRepo) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string) error {
	return m.Called(ctx, id, status, errMsg).Error(0)
}

// recordingSyncWorker captures enqueued task types instead of mocking.
type recordingSyncWorker struct {
	mu    sync.Mutex
	tasks []string
}

func (w *recordingSyncWorker) EnqueueTask(ctx context.Context, taskType string, booking *models.Booking, status string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tasks = append(w.tasks, taskType)
	return nil
}

func (w *recordingSyncWorker) taskTypes() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.tasks...)
}

// fakeDrafts is a trivial map-backed draft store for service tests.
type fakeDrafts struct {
	mu     sync.Mutex
	drafts map[string]*models.BookingDraft
}

func newFakeDrafts() *fakeDrafts {
	return &fakeDrafts{drafts: make(map[string]*models.BookingDraft)}
}

func (f *fakeDrafts) GetDraft(ctx context.Context, sessionID string) (*models.BookingDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drafts[sessionID], nil
}

func (f *fakeDrafts) SetDraft(ctx context.Context, draft *models.BookingDraft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts[draft.SessionID] = draft
	return nil
}

func (f *fakeDrafts) ClearDraft(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.drafts, sessionID)
	return nil
}

func (f *fakeDrafts) CheckRateLimit(ctx context.Context, clientKey string, limit int, window time.Duration) (bool, error) {
	return true, nil
}
