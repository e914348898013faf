package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_http_requests_total",
			Help: "HTTP requests served, by route pattern and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	OTPIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_otp_issued_total",
			Help: "One-time codes issued",
		},
	)

	OTPVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_otp_verifications_total",
			Help: "One-time code verification attempts by outcome",
		},
		[]string{"outcome"},
	)

	DeliveryClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_delivery_claims_total",
			Help: "Delivery claim attempts by outcome (won, lost, rejected)",
		},
		[]string{"outcome"},
	)

	DeliveryTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_delivery_transitions_total",
			Help: "Delivery status transitions by target status",
		},
		[]string{"status"},
	)

	PaymentConfirmationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_payment_confirmations_total",
			Help: "Payment confirmations by outcome",
		},
		[]string{"outcome"},
	)

	OutboxPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_outbox_publish_total",
			Help: "Outbox relay results by outcome (published, failed, dead_lettered)",
		},
		[]string{"outcome"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_notifications_total",
			Help: "Outbound notifications by outcome (sent, failed, dropped)",
		},
		[]string{"outcome"},
	)

	BroadcastFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_broadcast_failures_total",
			Help: "Realtime broadcasts that could not be handed to the fan-out backend",
		},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			OTPIssuedTotal,
			OTPVerificationsTotal,
			DeliveryClaimsTotal,
			DeliveryTransitionsTotal,
			PaymentConfirmationsTotal,
			OutboxPublishTotal,
			NotificationsTotal,
			BroadcastFailuresTotal,
		)
	})
}
