package models

import "time"

// OperatingWindow defines the raw candidate grid for one day: slots start at
// StartHour:00 and advance by StepMinutes up to (excluding) EndHour:00.
type OperatingWindow struct {
	StartHour   int `json:"start_hour" yaml:"start_hour"`
	EndHour     int `json:"end_hour" yaml:"end_hour"`
	StepMinutes int `json:"step_minutes" yaml:"step_minutes"`
}

// Valid reports whether the window can produce at least one slot.
func (w OperatingWindow) Valid() bool {
	return w.StepMinutes > 0 && w.StartHour < w.EndHour && w.StartHour >= 0 && w.EndHour <= 24
}

// WorkingHours is an entity's schedule configuration: a default window,
// optional per-weekday overrides and the timezone all calendar-day
// comparisons are performed in.
type WorkingHours struct {
	EntityID  int64                           `json:"entity_id" yaml:"entity_id"`
	Timezone  string                          `json:"timezone" yaml:"timezone"`
	Window    OperatingWindow                 `json:"window" yaml:"window"`
	Overrides map[time.Weekday]OperatingWindow `json:"overrides,omitempty" yaml:"overrides"`
}

// WindowFor returns the effective window for a weekday. An override with an
// empty (invalid) window marks the day as closed.
func (h WorkingHours) WindowFor(day time.Weekday) (OperatingWindow, bool) {
	if w, ok := h.Overrides[day]; ok {
		return w, w.Valid()
	}
	return h.Window, h.Window.Valid()
}

// Location resolves the configured timezone, falling back to UTC.
func (h WorkingHours) Location() *time.Location {
	if h.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(h.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
