package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "schedfy",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status class.",
		},
		[]string{"endpoint", "status"},
	)

	slotComputations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "schedfy",
			Name:      "slot_computations_total",
			Help:      "Availability grid computations by outcome.",
		},
		[]string{"outcome"},
	)

	bookingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "schedfy",
			Name:      "bookings_created_total",
			Help:      "Bookings successfully created.",
		},
	)

	bookingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "schedfy",
			Name:      "booking_conflicts_total",
			Help:      "Booking attempts rejected because the slot was taken.",
		},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "schedfy",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by endpoint.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "schedfy",
			Name:      "sync_tasks_total",
			Help:      "Background sync tasks by type and result.",
		},
		[]string{"task_type", "result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, slotComputations, bookingsCreated, bookingConflicts, syncTasks)
	})
}

// IncHTTP counts a served request for an endpoint label.
func IncHTTP(endpoint, status string) {
	httpRequests.WithLabelValues(endpoint, status).Inc()
}

// ObserveHTTPDuration records request latency for an endpoint label.
func ObserveHTTPDuration(endpoint string, seconds float64) {
	httpDuration.WithLabelValues(endpoint).Observe(seconds)
}

// IncSlotComputation counts an availability computation. Outcome is one of
// "ok", "closed" or "error".
func IncSlotComputation(outcome string) {
	slotComputations.WithLabelValues(outcome).Inc()
}

// IncBookingCreated counts a successful booking.
func IncBookingCreated() {
	bookingsCreated.Inc()
}

// IncBookingConflict counts a rejected double-booking attempt.
func IncBookingConflict() {
	bookingConflicts.Inc()
}

// IncSyncTask counts a background task result ("done" or "failed").
func IncSyncTask(taskType, result string) {
	syncTasks.WithLabelValues(taskType, result).Inc()
}
