package events

import (
	"encoding/json"
	"sync"
	"time"

	"schedfy/internal/models"
)

const (
	EventBookingCreated     = "booking_created"
	EventBookingConfirmed   = "booking_confirmed"
	EventBookingCancelled   = "booking_cancelled"
	EventBookingCompleted   = "booking_completed"
	EventBookingRescheduled = "booking_rescheduled"
)

// BookingEventPayload is the booking snapshot consumers receive. It carries
// everything a notifier or sheet mirror needs without a database round trip.
type BookingEventPayload struct {
	BookingID   int64     `json:"booking_id"`
	Reference   string    `json:"reference"`
	EntityID    int64     `json:"entity_id"`
	ClientName  string    `json:"client_name"`
	ClientPhone string    `json:"client_phone,omitempty"`
	ServiceID   int64     `json:"service_id"`
	ServiceName string    `json:"service_name"`
	Status      string    `json:"status"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Comment     string    `json:"comment,omitempty"`
}

// NewBookingPayload snapshots a booking for publishing.
func NewBookingPayload(b *models.Booking) BookingEventPayload {
	return BookingEventPayload{
		BookingID:   b.ID,
		Reference:   b.Reference,
		EntityID:    b.EntityID,
		ClientName:  b.ClientName,
		ClientPhone: b.ClientPhone,
		ServiceID:   b.ServiceID,
		ServiceName: b.ServiceName,
		Status:      b.Status,
		StartTime:   b.StartTime,
		EndTime:     b.EndTime,
		Comment:     b.Comment,
	}
}

// Event is a lightweight in-process domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub. Handlers run synchronously; the
// caller decides the concurrency model.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for an event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Handler errors are
// swallowed; a failing subscriber must not block booking flow.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event. A nil bus is a
// no-op so services can run without eventing wired up.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// DecodeBookingPayload parses an event payload back into a booking snapshot.
func DecodeBookingPayload(event *Event) (BookingEventPayload, error) {
	var payload BookingEventPayload
	err := json.Unmarshal(event.Payload, &payload)
	return payload, err
}
