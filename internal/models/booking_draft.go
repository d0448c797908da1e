package models

import "time"

// BookingDraft is the in-progress state of a client filling out the booking
// form: selections accumulate step by step and are only turned into a Booking
// on submit. Drafts live in Redis with a TTL and are safe to lose.
type BookingDraft struct {
	SessionID   string    `json:"session_id"`
	EntityID    int64     `json:"entity_id"`
	ServiceID   int64     `json:"service_id,omitempty"`
	Date        string    `json:"date,omitempty"` // YYYY-MM-DD
	Slot        string    `json:"slot,omitempty"` // HH:MM
	ClientName  string    `json:"client_name,omitempty"`
	ClientPhone string    `json:"client_phone,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Complete reports whether the draft carries everything needed to submit.
func (d *BookingDraft) Complete() bool {
	return d.EntityID != 0 && d.ServiceID != 0 && d.Date != "" && d.Slot != "" && d.ClientName != ""
}
