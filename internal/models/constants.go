package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	// DefaultRedisTTL lifetime of a booking draft in Redis
	DefaultRedisTTL = 24 * 60 * 60 // 24 hours in seconds

	// Default operating window when an entity has no explicit schedule config
	DefaultStartHour   = 9
	DefaultEndHour     = 18
	DefaultStepMinutes = 60

	// DefaultMaxBookingDays how far ahead a booking may be placed
	DefaultMaxBookingDays = 365

	// DefaultExportRangeMonths export window around today
	DefaultExportRangeMonthsBefore = 1
	DefaultExportRangeMonthsAfter  = 2

	// WorkerQueueSize size of the in-memory notification queue
	WorkerQueueSize = 1000

	// RateLimitRequests requests allowed per window per client
	RateLimitRequests = 20

	// RateLimitWindow rate limit window in seconds
	RateLimitWindow = 60
)

// ActiveStatuses are the booking statuses that occupy a time interval.
// Cancelled bookings release their slot immediately.
var ActiveStatuses = []string{StatusPending, StatusConfirmed, StatusCompleted}
