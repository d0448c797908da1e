package service

import (
	"context"
	"testing"
	"time"

	"schedfy/internal/config"
	"schedfy/internal/database"
	"schedfy/internal/events"
	"schedfy/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testWindow = models.OperatingWindow{StartHour: 9, EndHour: 18, StepMinutes: 60}

func testBookingConfig() config.BookingConfig {
	return config.BookingConfig{
		Timezone:       "UTC",
		Window:         testWindow,
		MaxBookingDays: 365,
	}
}

func newBookingServiceForTest(repo *mockRepo, worker *recordingSyncWorker, drafts *fakeDrafts) (*BookingService, *events.EventBus) {
	logger := zerolog.Nop()
	bus := events.NewEventBus()
	avail := NewAvailabilityService(repo, testBookingConfig(), time.UTC, &logger)
	svc := NewBookingService(repo, avail, drafts, bus, worker, time.UTC, 365, 0, &logger)
	return svc, bus
}

func futureDate(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02")
}

func haircut() *models.Service {
	return &models.Service{
		ID:              2,
		EntityID:        7,
		Name:            "Haircut",
		DurationMinutes: 60,
		Price:           models.NewMoney(12050, "BRL"),
		Active:          true,
	}
}

func TestCreateBooking(t *testing.T) {
	repo := new(mockRepo)
	worker := &recordingSyncWorker{}
	svc, bus := newBookingServiceForTest(repo, worker, newFakeDrafts())
	ctx := context.Background()

	var published []string
	bus.Subscribe(events.EventBookingCreated, func(e *events.Event) error {
		published = append(published, e.Type)
		return nil
	})

	repo.On("GetServiceByID", ctx, int64(2)).Return(haircut(), nil)
	repo.On("GetWorkingHours", ctx, int64(7)).Return(nil, database.ErrNotFound)
	repo.On("GetBookingsBetween", ctx, int64(7), mock.Anything, mock.Anything).Return([]models.Booking{}, nil)
	repo.On("CreateBookingWithLock", ctx, mock.AnythingOfType("*models.Booking")).Return(nil)

	booking, err := svc.CreateBooking(ctx, BookingRequest{
		EntityID:   7,
		ServiceID:  2,
		Date:       futureDate(7),
		Slot:       "10:00",
		ClientName: "Ana",
	})
	require.NoError(t, err)
	require.NotNil(t, booking)

	assert.NotEmpty(t, booking.Reference)
	assert.Equal(t, models.StatusPending, booking.Status)
	assert.Equal(t, "Haircut", booking.ServiceName)
	assert.Equal(t, time.Hour, booking.EndTime.Sub(booking.StartTime))
	assert.Equal(t, int64(12050), booking.Price.Amount)

	assert.Equal(t, []string{events.EventBookingCreated}, published)
	assert.Equal(t, []string{"notify", "sheet_upsert"}, worker.taskTypes())
	repo.AssertExpectations(t)
}

func TestCreateBookingSlotTaken(t *testing.T) {
	repo := new(mockRepo)
	worker := &recordingSyncWorker{}
	svc, _ := newBookingServiceForTest(repo, worker, newFakeDrafts())
	ctx := context.Background()

	date := futureDate(7)
	day, _ := time.ParseInLocation("2006-01-02", date, time.UTC)
	taken := models.Booking{
		EntityID:  7,
		StartTime: day.Add(10 * time.Hour),
		EndTime:   day.Add(11 * time.Hour),
		Status:    models.StatusConfirmed,
	}

	repo.On("GetServiceByID", ctx, int64(2)).Return(haircut(), nil)
	repo.On("GetWorkingHours", ctx, int64(7)).Return(nil, database.ErrNotFound)
	repo.On("GetBookingsBetween", ctx, int64(7), mock.Anything, mock.Anything).Return([]models.Booking{taken}, nil)

	_, err := svc.CreateBooking(ctx, BookingRequest{
		EntityID:   7,
		ServiceID:  2,
		Date:       date,
		Slot:       "10:00",
		ClientName: "Ana",
	})
	assert.ErrorIs(t, err, database.ErrSlotConflict)
	repo.AssertNotCalled(t, "CreateBookingWithLock", mock.Anything, mock.Anything)
	assert.Empty(t, worker.taskTypes())
}

func TestCreateBookingOutsideGrid(t *testing.T) {
	repo := new(mockRepo)
	svc, _ := newBookingServiceForTest(repo, &recordingSyncWorker{}, newFakeDrafts())
	ctx := context.Background()

	repo.On("GetServiceByID", ctx, int64(2)).Return(haircut(), nil)
	repo.On("GetWorkingHours", ctx, int64(7)).Return(nil, database.ErrNotFound)
	repo.On("GetBookingsBetween", ctx, int64(7), mock.Anything, mock.Anything).Return([]models.Booking{}, nil)

	// 07:00 is before the 09:00 opening.
	_, err := svc.CreateBooking(ctx, BookingRequest{
		EntityID:   7,
		ServiceID:  2,
		Date:       futureDate(7),
		Slot:       "07:00",
		ClientName: "Ana",
	})
	assert.ErrorIs(t, err, database.ErrSlotConflict)
}

func TestValidateBookingDate(t *testing.T) {
	logger := zerolog.Nop()
	svc := NewBookingService(nil, nil, nil, nil, nil, time.UTC, 30, 60, &logger)
	now := time.Now()

	assert.ErrorIs(t, svc.ValidateBookingDate(now.Add(-time.Hour)), database.ErrPastDate)
	assert.ErrorIs(t, svc.ValidateBookingDate(now.Add(30*time.Minute)), database.ErrTooSoon)
	assert.ErrorIs(t, svc.ValidateBookingDate(now.AddDate(0, 0, 45)), database.ErrDateTooFar)
	assert.NoError(t, svc.ValidateBookingDate(now.AddDate(0, 0, 7)))
}

func TestConfirmBooking(t *testing.T) {
	repo := new(mockRepo)
	worker := &recordingSyncWorker{}
	svc, bus := newBookingServiceForTest(repo, worker, newFakeDrafts())
	ctx := context.Background()

	var confirmed bool
	bus.Subscribe(events.EventBookingConfirmed, func(_ *events.Event) error {
		confirmed = true
		return nil
	})

	booking := &models.Booking{ID: 5, EntityID: 7, Status: models.StatusConfirmed, Version: 2}
	repo.On("UpdateBookingStatusWithVersion", ctx, int64(5), int64(1), models.StatusConfirmed).Return(nil)
	repo.On("GetBooking", ctx, int64(5)).Return(booking, nil)

	require.NoError(t, svc.ConfirmBooking(ctx, 5, 1))
	assert.True(t, confirmed)
	assert.Equal(t, []string{"notify", "sheet_status"}, worker.taskTypes())
}

func TestConfirmBookingVersionConflict(t *testing.T) {
	repo := new(mockRepo)
	svc, _ := newBookingServiceForTest(repo, &recordingSyncWorker{}, newFakeDrafts())
	ctx := context.Background()

	repo.On("UpdateBookingStatusWithVersion", ctx, int64(5), int64(1), models.StatusConfirmed).
		Return(database.ErrConcurrentModification)

	err := svc.ConfirmBooking(ctx, 5, 1)
	assert.ErrorIs(t, err, database.ErrConcurrentModification)
	repo.AssertNotCalled(t, "GetBooking", mock.Anything, mock.Anything)
}

func TestCancelBookingPublishesEvent(t *testing.T) {
	repo := new(mockRepo)
	worker := &recordingSyncWorker{}
	svc, bus := newBookingServiceForTest(repo, worker, newFakeDrafts())
	ctx := context.Background()

	var cancelled bool
	bus.Subscribe(events.EventBookingCancelled, func(_ *events.Event) error {
		cancelled = true
		return nil
	})

	booking := &models.Booking{ID: 9, EntityID: 7, Status: models.StatusCancelled}
	repo.On("UpdateBookingStatusWithVersion", ctx, int64(9), int64(3), models.StatusCancelled).Return(nil)
	repo.On("GetBooking", ctx, int64(9)).Return(booking, nil)
	repo.On("GetWorkingHours", ctx, int64(7)).Return(nil, database.ErrNotFound)

	require.NoError(t, svc.CancelBooking(ctx, 9, 3))
	assert.True(t, cancelled)
}

func TestRescheduleBooking(t *testing.T) {
	repo := new(mockRepo)
	worker := &recordingSyncWorker{}
	svc, _ := newBookingServiceForTest(repo, worker, newFakeDrafts())
	ctx := context.Background()

	date := futureDate(10)
	existing := &models.Booking{
		ID:        5,
		EntityID:  7,
		StartTime: time.Now().UTC().AddDate(0, 0, 3),
		Status:    models.StatusConfirmed,
		Version:   1,
	}
	existing.EndTime = existing.StartTime.Add(time.Hour)

	repo.On("GetBooking", ctx, int64(5)).Return(existing, nil)
	repo.On("GetWorkingHours", ctx, int64(7)).Return(nil, database.ErrNotFound)
	repo.On("RescheduleBookingWithVersion", ctx, int64(5), int64(1), mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			start := args.Get(3).(time.Time)
			end := args.Get(4).(time.Time)
			assert.Equal(t, time.Hour, end.Sub(start), "duration must be preserved")
		}).Return(nil)

	require.NoError(t, svc.RescheduleBooking(ctx, 5, 1, date, "14:00"))
	assert.Equal(t, []string{"notify", "sheet_upsert"}, worker.taskTypes())
}

func TestSubmitDraft(t *testing.T) {
	repo := new(mockRepo)
	drafts := newFakeDrafts()
	svc, _ := newBookingServiceForTest(repo, &recordingSyncWorker{}, drafts)
	ctx := context.Background()

	// Incomplete draft refuses to submit.
	require.NoError(t, drafts.SetDraft(ctx, &models.BookingDraft{SessionID: "s1", EntityID: 7}))
	_, err := svc.SubmitDraft(ctx, "s1")
	assert.ErrorIs(t, err, ErrDraftIncomplete)

	// Unknown session behaves the same.
	_, err = svc.SubmitDraft(ctx, "missing")
	assert.ErrorIs(t, err, ErrDraftIncomplete)

	repo.On("GetServiceByID", ctx, int64(2)).Return(haircut(), nil)
	repo.On("GetWorkingHours", ctx, int64(7)).Return(nil, database.ErrNotFound)
	repo.On("GetBookingsBetween", ctx, int64(7), mock.Anything, mock.Anything).Return([]models.Booking{}, nil)
	repo.On("CreateBookingWithLock", ctx, mock.AnythingOfType("*models.Booking")).Return(nil)

	require.NoError(t, drafts.SetDraft(ctx, &models.BookingDraft{
		SessionID:  "s2",
		EntityID:   7,
		ServiceID:  2,
		Date:       futureDate(5),
		Slot:       "11:00",
		ClientName: "Ana",
	}))

	booking, err := svc.SubmitDraft(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, "Ana", booking.ClientName)

	// The draft is cleared after a successful submit.
	left, err := drafts.GetDraft(ctx, "s2")
	require.NoError(t, err)
	assert.Nil(t, left)
}

func TestCreateBookingInvalidatesSlotCache(t *testing.T) {
	repo := new(mockRepo)
	cache := newFakeSlotCache()
	logger := zerolog.Nop()
	avail := NewAvailabilityService(repo, testBookingConfig(), time.UTC, &logger).WithSlotCache(cache)
	svc := NewBookingService(repo, avail, newFakeDrafts(), events.NewEventBus(), &recordingSyncWorker{}, time.UTC, 365, 0, &logger)
	ctx := context.Background()

	date := futureDate(3)
	cache.SetDay(ctx, 7, 2, date, []string{"14:00"})

	repo.On("GetServiceByID", ctx, int64(2)).Return(haircut(), nil)
	repo.On("GetWorkingHours", ctx, int64(7)).Return(nil, database.ErrNotFound)
	repo.On("CreateBookingWithLock", ctx, mock.Anything).Return(nil)

	_, err := svc.CreateBooking(ctx, BookingRequest{
		EntityID:   7,
		ServiceID:  2,
		Date:       date,
		Slot:       "14:00",
		ClientName: "Ana",
	})
	require.NoError(t, err)

	_, ok := cache.GetDay(ctx, 7, 2, date)
	assert.False(t, ok, "booking day should be evicted")
	assert.Contains(t, cache.invalidated, "7:"+date)
}

func TestCreateBookingUsesEntityTimezone(t *testing.T) {
	repo := new(mockRepo)
	worker := &recordingSyncWorker{}
	svc, _ := newBookingServiceForTest(repo, worker, newFakeDrafts())
	ctx := context.Background()

	// Entity runs on Sao Paulo time while the service default is UTC.
	saoPaulo, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	hours := &models.WorkingHours{
		EntityID: 7,
		Timezone: "America/Sao_Paulo",
		Window:   testWindow,
	}

	repo.On("GetServiceByID", ctx, int64(2)).Return(haircut(), nil)
	repo.On("GetWorkingHours", ctx, int64(7)).Return(hours, nil)
	repo.On("GetBookingsBetween", ctx, int64(7), mock.Anything, mock.Anything).Return([]models.Booking{}, nil)

	var stored *models.Booking
	repo.On("CreateBookingWithLock", ctx, mock.AnythingOfType("*models.Booking")).
		Run(func(args mock.Arguments) {
			stored = args.Get(1).(*models.Booking)
		}).Return(nil)

	date := futureDate(7)
	booking, err := svc.CreateBooking(ctx, BookingRequest{
		EntityID:   7,
		ServiceID:  2,
		Date:       date,
		Slot:       "10:00",
		ClientName: "Ana",
	})
	require.NoError(t, err)
	require.NotNil(t, stored)

	// The stored instant is 10:00 on the entity's clock, not the default's.
	local := booking.StartTime.In(saoPaulo)
	assert.Equal(t, 10, local.Hour())
	assert.Equal(t, date, local.Format("2006-01-02"))
	want, err := time.ParseInLocation("2006-01-02 15:04", date+" 10:00", saoPaulo)
	require.NoError(t, err)
	assert.True(t, stored.StartTime.Equal(want))
}

func TestBookedSlotUnavailableAcrossTimezones(t *testing.T) {
	repo := new(mockRepo)
	logger := zerolog.Nop()
	avail := NewAvailabilityService(repo, testBookingConfig(), time.UTC, &logger)
	ctx := context.Background()

	saoPaulo, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	hours := &models.WorkingHours{
		EntityID: 7,
		Timezone: "America/Sao_Paulo",
		Window:   models.OperatingWindow{StartHour: 9, EndHour: 12, StepMinutes: 60},
	}

	date := futureDate(7)
	start, err := time.ParseInLocation("2006-01-02 15:04", date+" 10:00", saoPaulo)
	require.NoError(t, err)
	booked := models.Booking{
		EntityID:  7,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Status:    models.StatusPending,
	}

	repo.On("GetServiceByID", ctx, int64(2)).Return(haircut(), nil)
	repo.On("GetWorkingHours", ctx, int64(7)).Return(hours, nil)
	repo.On("GetBookingsBetween", ctx, int64(7), mock.Anything, mock.Anything).Return([]models.Booking{booked}, nil)

	free, err := avail.SlotsForDay(ctx, 7, 2, date)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "11:00"}, free, "the booked 10:00 must not be offered")
}
