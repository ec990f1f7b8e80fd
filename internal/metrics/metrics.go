package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "space_reservation"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		},
		[]string{"route", "method", "code"},
	)

	reservationsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_created_total",
			Help:      "Reservations created in pending state.",
		},
	)

	reservationConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_conflicts_total",
			Help:      "Booking attempts rejected because the window overlaps an active reservation.",
		},
	)

	statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_transitions_total",
			Help:      "Reservation status transitions.",
		},
		[]string{"from", "to"},
	)

	gatewayCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_gateway_calls_total",
			Help:      "Payment gateway calls by operation and result.",
		},
		[]string{"operation", "result"},
	)

	refundDivergences = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refund_divergences_total",
			Help:      "Refunds accepted by the gateway whose local status update failed.",
		},
	)

	expiredPending = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_expired_total",
			Help:      "Pending reservations cancelled by the expiry sweeper.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			reservationsCreated,
			reservationConflicts,
			statusTransitions,
			gatewayCalls,
			refundDivergences,
			expiredPending,
		)
	})
}

func IncHTTP(route, method, code string) {
	httpRequests.WithLabelValues(route, method, code).Inc()
}

func IncReservationCreated() {
	reservationsCreated.Inc()
}

func IncConflict() {
	reservationConflicts.Inc()
}

func IncTransition(from, to string) {
	statusTransitions.WithLabelValues(from, to).Inc()
}

// IncGatewayCall records one gateway call; result is "ok" or "error".
func IncGatewayCall(operation, result string) {
	gatewayCalls.WithLabelValues(operation, result).Inc()
}

func IncRefundDivergence() {
	refundDivergences.Inc()
}

func AddExpired(n int) {
	expiredPending.Add(float64(n))
}
