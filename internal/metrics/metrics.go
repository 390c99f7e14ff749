// README: Prometheus collectors for HTTP traffic and domain events.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schoolride_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "schoolride_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "schoolride_http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		},
	)

	BookingsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schoolride_bookings_created_total",
			Help: "Bookings created, by route compatibility tier.",
		},
		[]string{"tier"},
	)

	PaymentsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schoolride_payments_processed_total",
			Help: "Gateway charges by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schoolride_notification_failures_total",
			Help: "Notification dispatch or delivery failures by stage.",
		},
		[]string{"stage"},
	)

	AttendanceTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schoolride_attendance_transitions_total",
			Help: "Child attendance transitions on active rides.",
		},
		[]string{"status"},
	)
)
