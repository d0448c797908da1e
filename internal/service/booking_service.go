package service

import (
	"context"
	"errors"
	"time"

	"schedfy/internal/database"
	"schedfy/internal/domain"
	"schedfy/internal/events"
	"schedfy/internal/metrics"
	"schedfy/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrDraftIncomplete = errors.New("booking draft is missing required fields")

// BookingService owns the booking lifecycle: create, confirm, cancel,
// complete and reschedule. Every state change publishes an event and
// enqueues sync work for the notification worker.
type BookingService struct {
	repo         domain.Repository
	availability *AvailabilityService
	drafts       domain.DraftRepository
	eventBus     domain.EventPublisher
	syncWorker   domain.SyncWorker
	loc          *time.Location
	maxDays      int
	minAdvance   time.Duration
	logger       *zerolog.Logger
}

func NewBookingService(
	repo domain.Repository,
	availability *AvailabilityService,
	drafts domain.DraftRepository,
	eventBus domain.EventPublisher,
	syncWorker domain.SyncWorker,
	loc *time.Location,
	maxBookingDays int,
	minAdvanceMinutes int,
	logger *zerolog.Logger,
) *BookingService {
	if maxBookingDays <= 0 {
		maxBookingDays = models.DefaultMaxBookingDays
	}
	if loc == nil {
		loc = time.UTC
	}
	return &BookingService{
		repo:         repo,
		availability: availability,
		drafts:       drafts,
		eventBus:     eventBus,
		syncWorker:   syncWorker,
		loc:          loc,
		maxDays:      maxBookingDays,
		minAdvance:   time.Duration(minAdvanceMinutes) * time.Minute,
		logger:       logger,
	}
}

// ValidateBookingDate enforces the entity's booking horizon policy.
func (s *BookingService) ValidateBookingDate(start time.Time) error {
	now := time.Now()
	if start.Before(now) {
		return database.ErrPastDate
	}
	if s.minAdvance > 0 && start.Before(now.Add(s.minAdvance)) {
		return database.ErrTooSoon
	}
	if start.After(now.AddDate(0, 0, s.maxDays)) {
		return database.ErrDateTooFar
	}
	return nil
}

// BookingRequest is the input to CreateBooking: a service, a local date and
// a slot start plus the client's contact details.
type BookingRequest struct {
	EntityID    int64
	ServiceID   int64
	Date        string // YYYY-MM-DD
	Slot        string // HH:MM
	ClientName  string
	ClientPhone string
	Comment     string
}

// CreateBooking validates the request against the availability grid and
// inserts the booking under a conflict-checking transaction. Returns
// database.ErrSlotConflict when the slot was taken in the meantime.
func (s *BookingService) CreateBooking(ctx context.Context, req BookingRequest) (*models.Booking, error) {
	svc, err := s.repo.GetServiceByID(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}

	loc, err := s.entityLocation(ctx, req.EntityID)
	if err != nil {
		return nil, err
	}
	start, err := time.ParseInLocation("2006-01-02 15:04", req.Date+" "+req.Slot, loc)
	if err != nil {
		return nil, err
	}
	if err := s.ValidateBookingDate(start); err != nil {
		return nil, err
	}

	free, err := s.availability.IsSlotFree(ctx, req.EntityID, req.ServiceID, req.Date, req.Slot)
	if err != nil {
		return nil, err
	}
	if !free {
		metrics.IncBookingConflict()
		return nil, database.ErrSlotConflict
	}

	booking := &models.Booking{
		Reference:   uuid.NewString(),
		EntityID:    req.EntityID,
		ClientName:  req.ClientName,
		ClientPhone: req.ClientPhone,
		ServiceID:   svc.ID,
		ServiceName: svc.Name,
		StartTime:   start,
		EndTime:     start.Add(time.Duration(svc.DurationMinutes) * time.Minute),
		Status:      models.StatusPending,
		Price:       svc.Price,
		Comment:     req.Comment,
	}

	if err := s.repo.CreateBookingWithLock(ctx, booking); err != nil {
		if errors.Is(err, database.ErrSlotConflict) {
			metrics.IncBookingConflict()
		}
		return nil, err
	}

	metrics.IncBookingCreated()
	s.invalidateDay(ctx, booking.EntityID, booking.StartTime)
	s.publish(events.EventBookingCreated, booking)
	s.enqueue(ctx, "notify", booking, events.EventBookingCreated)
	s.enqueue(ctx, "sheet_upsert", booking, "")

	return booking, nil
}

// ConfirmBooking moves a pending booking to confirmed. Version must match
// the caller's last-seen value or database.ErrConcurrentModification is
// returned.
func (s *BookingService) ConfirmBooking(ctx context.Context, bookingID, version int64) error {
	return s.transition(ctx, bookingID, version, models.StatusConfirmed, events.EventBookingConfirmed)
}

// CancelBooking cancels a booking, freeing its slot.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, version int64) error {
	return s.transition(ctx, bookingID, version, models.StatusCancelled, events.EventBookingCancelled)
}

// CompleteBooking marks a booking as served.
func (s *BookingService) CompleteBooking(ctx context.Context, bookingID, version int64) error {
	return s.transition(ctx, bookingID, version, models.StatusCompleted, events.EventBookingCompleted)
}

func (s *BookingService) transition(ctx context.Context, bookingID, version int64, status, event string) error {
	if err := s.repo.UpdateBookingStatusWithVersion(ctx, bookingID, version, status); err != nil {
		return err
	}

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("booking_id", bookingID).Msg("status updated but booking reload failed")
		return nil
	}

	if status == models.StatusCancelled {
		s.invalidateDay(ctx, booking.EntityID, booking.StartTime)
	}
	s.publish(event, booking)
	s.enqueue(ctx, "notify", booking, event)
	s.enqueue(ctx, "sheet_status", booking, status)
	return nil
}

// entityLocation resolves the timezone a booking's date+slot strings are
// parsed in. Bookings and availability must agree on it, so both go through
// the entity's stored working hours.
func (s *BookingService) entityLocation(ctx context.Context, entityID int64) (*time.Location, error) {
	if s.availability == nil {
		return s.loc, nil
	}
	return s.availability.LocationFor(ctx, entityID)
}

// invalidateDay drops cached availability for the booking's local date.
func (s *BookingService) invalidateDay(ctx context.Context, entityID int64, start time.Time) {
	if s.availability == nil {
		return
	}
	loc := s.loc
	if l, err := s.availability.LocationFor(ctx, entityID); err == nil {
		loc = l
	}
	s.availability.InvalidateDay(ctx, entityID, start.In(loc).Format("2006-01-02"))
}

// RescheduleBooking moves a booking to a new slot, re-checking conflicts
// inside the repository transaction.
func (s *BookingService) RescheduleBooking(ctx context.Context, bookingID, version int64, date, slot string) error {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}

	loc, err := s.entityLocation(ctx, booking.EntityID)
	if err != nil {
		return err
	}
	start, err := time.ParseInLocation("2006-01-02 15:04", date+" "+slot, loc)
	if err != nil {
		return err
	}
	if err := s.ValidateBookingDate(start); err != nil {
		return err
	}

	duration := booking.EndTime.Sub(booking.StartTime)
	end := start.Add(duration)

	if err := s.repo.RescheduleBookingWithVersion(ctx, bookingID, version, start, end); err != nil {
		if errors.Is(err, database.ErrSlotConflict) {
			metrics.IncBookingConflict()
		}
		return err
	}

	s.invalidateDay(ctx, booking.EntityID, booking.StartTime)
	s.invalidateDay(ctx, booking.EntityID, start)

	updated, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("booking_id", bookingID).Msg("rescheduled but booking reload failed")
		return nil
	}

	s.publish(events.EventBookingRescheduled, updated)
	s.enqueue(ctx, "notify", updated, events.EventBookingRescheduled)
	s.enqueue(ctx, "sheet_upsert", updated, "")
	return nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *BookingService) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	return s.repo.GetBookingByReference(ctx, reference)
}

func (s *BookingService) GetBookingsBetween(ctx context.Context, entityID int64, start, end time.Time) ([]models.Booking, error) {
	return s.repo.GetBookingsBetween(ctx, entityID, start, end)
}

// AllowDraftUpdate applies the per-session rate limit on draft mutations.
// A failing limiter backend never blocks the caller.
func (s *BookingService) AllowDraftUpdate(ctx context.Context, sessionID string) (bool, error) {
	if s.drafts == nil {
		return true, nil
	}
	return s.drafts.CheckRateLimit(ctx, "draft:"+sessionID, models.RateLimitRequests, models.RateLimitWindow*time.Second)
}

// SaveDraft merges a form step into the session's draft.
func (s *BookingService) SaveDraft(ctx context.Context, draft *models.BookingDraft) error {
	draft.UpdatedAt = time.Now()
	return s.drafts.SetDraft(ctx, draft)
}

func (s *BookingService) GetDraft(ctx context.Context, sessionID string) (*models.BookingDraft, error) {
	return s.drafts.GetDraft(ctx, sessionID)
}

// SubmitDraft turns a completed draft into a booking and clears the session.
func (s *BookingService) SubmitDraft(ctx context.Context, sessionID string) (*models.Booking, error) {
	draft, err := s.drafts.GetDraft(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if draft == nil || !draft.Complete() {
		return nil, ErrDraftIncomplete
	}

	booking, err := s.CreateBooking(ctx, BookingRequest{
		EntityID:    draft.EntityID,
		ServiceID:   draft.ServiceID,
		Date:        draft.Date,
		Slot:        draft.Slot,
		ClientName:  draft.ClientName,
		ClientPhone: draft.ClientPhone,
	})
	if err != nil {
		return nil, err
	}

	if err := s.drafts.ClearDraft(ctx, sessionID); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to clear draft after submit")
	}
	return booking, nil
}

func (s *BookingService) publish(event string, booking *models.Booking) {
	if err := s.eventBus.PublishJSON(event, events.NewBookingPayload(booking)); err != nil {
		s.logger.Warn().Err(err).Str("event", event).Msg("failed to publish event")
	}
}

func (s *BookingService) enqueue(ctx context.Context, taskType string, booking *models.Booking, status string) {
	if s.syncWorker == nil {
		return
	}
	if err := s.syncWorker.EnqueueTask(ctx, taskType, booking, status); err != nil {
		s.logger.Warn().Err(err).Str("task_type", taskType).Int64("booking_id", booking.ID).Msg("failed to enqueue sync task")
	}
}
