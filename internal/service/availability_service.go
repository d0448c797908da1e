package service

import (
	"context"
	"time"

	"schedfy/internal/config"
	"schedfy/internal/database"
	"schedfy/internal/domain"
	"schedfy/internal/metrics"
	"schedfy/internal/models"
	"schedfy/internal/slots"

	"github.com/rs/zerolog"
)

// AvailabilityService answers "which slots are free" questions. It resolves
// the entity's working hours and bookings, delegating the actual grid and
// conflict math to the slots package.
type AvailabilityService struct {
	repo     domain.Repository
	defaults config.BookingConfig
	loc      *time.Location
	cache    domain.SlotCache
	logger   *zerolog.Logger
}

func NewAvailabilityService(repo domain.Repository, defaults config.BookingConfig, loc *time.Location, logger *zerolog.Logger) *AvailabilityService {
	if loc == nil {
		loc = time.UTC
	}
	return &AvailabilityService{repo: repo, defaults: defaults, loc: loc, logger: logger}
}

// WithSlotCache attaches a best-effort cache for computed slot lists.
func (s *AvailabilityService) WithSlotCache(cache domain.SlotCache) *AvailabilityService {
	s.cache = cache
	return s
}

// InvalidateDay drops any cached slot lists for an entity's local date.
// Called after booking mutations that change the day's availability.
func (s *AvailabilityService) InvalidateDay(ctx context.Context, entityID int64, date string) {
	if s.cache != nil {
		s.cache.InvalidateDay(ctx, entityID, date)
	}
}

// LocationFor resolves the timezone an entity's calendar days are
// interpreted in: the stored working-hours timezone, or the configured
// default when the entity has no schedule row.
func (s *AvailabilityService) LocationFor(ctx context.Context, entityID int64) (*time.Location, error) {
	_, loc, err := s.hoursFor(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return loc, nil
}

// hoursFor loads the entity's working hours, falling back to the configured
// default window when none are stored.
func (s *AvailabilityService) hoursFor(ctx context.Context, entityID int64) (*models.WorkingHours, *time.Location, error) {
	hours, err := s.repo.GetWorkingHours(ctx, entityID)
	if err == database.ErrNotFound {
		return &models.WorkingHours{
			EntityID: entityID,
			Timezone: s.defaults.Timezone,
			Window:   s.defaults.Window,
		}, s.loc, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return hours, hours.Location(), nil
}

// SlotsForDay returns the free "HH:MM" starts for a service on a calendar
// date. A day the entity is closed yields an empty list, not an error.
func (s *AvailabilityService) SlotsForDay(ctx context.Context, entityID, serviceID int64, date string) ([]string, error) {
	if s.cache != nil {
		if free, ok := s.cache.GetDay(ctx, entityID, serviceID, date); ok {
			return free, nil
		}
	}

	svc, err := s.repo.GetServiceByID(ctx, serviceID)
	if err != nil {
		metrics.IncSlotComputation("error")
		return nil, err
	}

	hours, loc, err := s.hoursFor(ctx, entityID)
	if err != nil {
		metrics.IncSlotComputation("error")
		return nil, err
	}

	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		metrics.IncSlotComputation("error")
		return nil, err
	}

	window, open := hours.WindowFor(day.Weekday())
	if !open {
		metrics.IncSlotComputation("closed")
		if s.cache != nil {
			s.cache.SetDay(ctx, entityID, serviceID, date, []string{})
		}
		return []string{}, nil
	}

	engine := slots.Engine{Location: loc, BufferMinutes: s.defaults.BufferMinutes}
	grid := engine.Grid(window)

	// Fetch the local day's bookings; the half-open bound covers anything
	// that could overlap a slot on this date.
	dayStart := day
	dayEnd := day.AddDate(0, 0, 1)
	bookings, err := s.repo.GetBookingsBetween(ctx, entityID, dayStart, dayEnd)
	if err != nil {
		metrics.IncSlotComputation("error")
		return nil, err
	}

	free, err := engine.Available(grid, date, svc.DurationMinutes, bookings)
	if err != nil {
		metrics.IncSlotComputation("error")
		return nil, err
	}

	metrics.IncSlotComputation("ok")
	if free == nil {
		free = []string{}
	}
	if s.cache != nil {
		s.cache.SetDay(ctx, entityID, serviceID, date, free)
	}
	return free, nil
}

// SlotsForRange computes availability for each day in [from, to], keyed by
// "YYYY-MM-DD". Used by the bulk endpoint so clients can render a calendar
// in one request.
func (s *AvailabilityService) SlotsForRange(ctx context.Context, entityID, serviceID int64, from, to string) (map[string][]string, error) {
	_, loc, err := s.hoursFor(ctx, entityID)
	if err != nil {
		return nil, err
	}

	start, err := time.ParseInLocation("2006-01-02", from, loc)
	if err != nil {
		return nil, err
	}
	end, err := time.ParseInLocation("2006-01-02", to, loc)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return map[string][]string{}, nil
	}

	result := make(map[string][]string)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		free, err := s.SlotsForDay(ctx, entityID, serviceID, key)
		if err != nil {
			return nil, err
		}
		result[key] = free
	}
	return result, nil
}

// IsSlotFree reports whether a specific start time fits the entity's grid
// and does not collide with an active booking.
func (s *AvailabilityService) IsSlotFree(ctx context.Context, entityID, serviceID int64, date, slot string) (bool, error) {
	free, err := s.SlotsForDay(ctx, entityID, serviceID, date)
	if err != nil {
		return false, err
	}
	for _, f := range free {
		if f == slot {
			return true, nil
		}
	}
	return false, nil
}
