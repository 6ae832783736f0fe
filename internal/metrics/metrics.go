package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quickcourt",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	reservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quickcourt",
			Name:      "reservations_total",
			Help:      "Reservation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	slotConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "quickcourt",
			Name:      "slot_conflicts_total",
			Help:      "Slots reported as conflicting across rejected reservations.",
		},
	)

	availabilityFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "quickcourt",
			Name:      "availability_fallback_reads_total",
			Help:      "Availability reads served from the in-memory fallback store.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, reservations, slotConflicts, availabilityFallbacks)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncReservation counts a reservation attempt outcome
// (confirmed, conflict, payment_failed, cancelled, error).
func IncReservation(outcome string) {
	reservations.WithLabelValues(outcome).Inc()
}

// AddSlotConflicts counts individual conflicting slots.
func AddSlotConflicts(n int) {
	slotConflicts.Add(float64(n))
}

// IncAvailabilityFallback counts a read served from the fallback store.
func IncAvailabilityFallback() {
	availabilityFallbacks.Inc()
}
