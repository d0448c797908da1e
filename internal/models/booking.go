package models

import "time"

type Booking struct {
	ID             int64     `json:"id"`
	Reference      string    `json:"reference"` // public UUID handed to clients
	EntityID       int64     `json:"entity_id"`
	ProfessionalID int64     `json:"professional_id,omitempty"`
	ClientName     string    `json:"client_name"`
	ClientPhone    string    `json:"client_phone"`
	ServiceID      int64     `json:"service_id"`
	ServiceName    string    `json:"service_name"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Status         string    `json:"status"` // pending, confirmed, completed, cancelled
	Price          Money     `json:"price"`
	Comment        string    `json:"comment"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Version        int64     `json:"version"`
}

// Occupies reports whether the booking still holds its time interval.
func (b *Booking) Occupies() bool {
	return b.Status != StatusCancelled
}

// OnDate reports whether the booking starts on the given calendar day in loc.
func (b *Booking) OnDate(date time.Time, loc *time.Location) bool {
	start := b.StartTime.In(loc)
	y1, m1, d1 := start.Date()
	y2, m2, d2 := date.In(loc).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
