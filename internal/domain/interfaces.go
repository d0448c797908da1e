package domain

import (
	"context"
	"time"

	"schedfy/internal/models"
)

type Repository interface {
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error)
	CreateBooking(ctx context.Context, booking *models.Booking) error
	CreateBookingWithLock(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, id int64, status string) error
	UpdateBookingStatusWithVersion(ctx context.Context, id, version int64, status string) error
	RescheduleBookingWithVersion(ctx context.Context, id, version int64, start, end time.Time) error
	CountOverlapping(ctx context.Context, entityID int64, start, end time.Time) (int, error)
	GetBookingsBetween(ctx context.Context, entityID int64, start, end time.Time) ([]models.Booking, error)
	GetDailyBookings(ctx context.Context, entityID int64, start, end time.Time, loc *time.Location) (map[string][]models.Booking, error)

	GetActiveServices(ctx context.Context, entityID int64) ([]models.Service, error)
	GetServiceByID(ctx context.Context, id int64) (*models.Service, error)
	CreateService(ctx context.Context, svc *models.Service) error
	UpdateService(ctx context.Context, svc *models.Service) error
	DeactivateService(ctx context.Context, id int64) error
	SeedServices(ctx context.Context, services []models.Service) error

	GetWorkingHours(ctx context.Context, entityID int64) (*models.WorkingHours, error)
	UpsertWorkingHours(ctx context.Context, hours *models.WorkingHours) error

	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string) error
}

// DraftRepository stores in-progress booking-form sessions and applies
// per-client rate limits. Backed by Redis with an in-memory failover.
type DraftRepository interface {
	GetDraft(ctx context.Context, sessionID string) (*models.BookingDraft, error)
	SetDraft(ctx context.Context, draft *models.BookingDraft) error
	ClearDraft(ctx context.Context, sessionID string) error
	CheckRateLimit(ctx context.Context, clientKey string, limit int, window time.Duration) (bool, error)
}

// SlotCache is a best-effort cache of computed free-slot lists, keyed by
// entity, service and local date. Misses and backend errors both read as a
// miss; writes are fire-and-forget.
type SlotCache interface {
	GetDay(ctx context.Context, entityID, serviceID int64, date string) ([]string, bool)
	SetDay(ctx context.Context, entityID, serviceID int64, date string, free []string)
	InvalidateDay(ctx context.Context, entityID int64, date string)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Notifier delivers a booking-lifecycle message to the entity's
// notification channel.
type Notifier interface {
	NotifyBooking(ctx context.Context, event string, booking *models.Booking) error
}

// SheetsWriter mirrors bookings into the back-office spreadsheet.
type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error
	ReplaceBookingsSheet(ctx context.Context, bookings []models.Booking) error
}

// SyncWorker accepts asynchronous follow-up work for a booking change.
type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, booking *models.Booking, status string) error
}
