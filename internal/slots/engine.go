package slots

import (
	"fmt"
	"time"

	"schedfy/internal/models"
)

// Package slots computes bookable start times for a calendar day: a raw
// candidate grid from an operating window, then conflict filtering against
// the day's active bookings. Everything here is pure; callers supply the
// booking snapshot and get a fresh result back.

const (
	dateLayout = "2006-01-02"
	slotLayout = "15:04"
)

// GenerateTimeSlots produces the zero-padded "HH:MM" grid from startHour:00
// up to but excluding endHour:00, stepping by stepMinutes. An inverted range
// or non-positive step yields an empty grid rather than an error, since
// callers may pass uninitialized window config.
func GenerateTimeSlots(startHour, endHour, stepMinutes int) []string {
	if stepMinutes <= 0 || endHour <= startHour {
		return nil
	}

	var out []string
	for m := startHour * 60; m < endHour*60; m += stepMinutes {
		out = append(out, fmt.Sprintf("%02d:%02d", m/60, m%60))
	}
	return out
}

// AvailableTimeSlots filters candidates down to the start times at which a
// booking of durationMinutes can be placed on date without overlapping any
// active booking. Intervals are half-open, so a slot starting exactly when
// an existing booking ends is not a conflict.
//
// Calendar-day matching and slot instants are resolved in loc, the entity's
// configured timezone. Bookings on other dates and cancelled bookings never
// affect the result. The returned slice is a subset of candidates in their
// original order; inputs are never mutated.
func AvailableTimeSlots(candidates []string, date string, durationMinutes int, bookings []models.Booking, loc *time.Location) ([]string, error) {
	return available(candidates, date, durationMinutes, 0, bookings, loc)
}

func available(candidates []string, date string, durationMinutes, bufferMinutes int, bookings []models.Booking, loc *time.Location) ([]string, error) {
	if len(candidates) == 0 || durationMinutes <= 0 {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}

	day, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	active := make([]models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.Occupies() && b.OnDate(day, loc) {
			active = append(active, b)
		}
	}

	duration := time.Duration(durationMinutes) * time.Minute
	pad := time.Duration(bufferMinutes) * time.Minute
	out := make([]string, 0, len(candidates))
	for _, slot := range candidates {
		start, err := slotStart(day, slot, loc)
		if err != nil {
			return nil, err
		}
		if !conflicts(start, start.Add(duration), pad, active) {
			out = append(out, slot)
		}
	}
	return out, nil
}

// conflicts reports half-open interval overlap with any booking, each booking
// interval padded by pad on both sides: start < b.End+pad && b.Start-pad < end.
func conflicts(start, end time.Time, pad time.Duration, bookings []models.Booking) bool {
	for _, b := range bookings {
		if start.Before(b.EndTime.Add(pad)) && b.StartTime.Add(-pad).Before(end) {
			return true
		}
	}
	return false
}

func slotStart(day time.Time, slot string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(slotLayout, slot)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time slot %q: %w", slot, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}

// Engine carries the per-entity settings the pure functions are parameterized
// by: the timezone calendar days are resolved in and an optional buffer kept
// between adjacent appointments. The zero value works: UTC, no buffer.
type Engine struct {
	Location      *time.Location
	BufferMinutes int
}

// Grid expands an operating window into its candidate grid.
func (e Engine) Grid(w models.OperatingWindow) []string {
	return GenerateTimeSlots(w.StartHour, w.EndHour, w.StepMinutes)
}

// Available applies conflict filtering with the engine's buffer. With a zero
// buffer this matches AvailableTimeSlots exactly; a positive buffer keeps
// that many minutes free before and after every active booking.
func (e Engine) Available(candidates []string, date string, durationMinutes int, bookings []models.Booking) ([]string, error) {
	buffer := e.BufferMinutes
	if buffer < 0 {
		buffer = 0
	}
	return available(candidates, date, durationMinutes, buffer, bookings, e.Location)
}
