package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		billingAttemptsTotal,
		billingGatewayLatency,
		billingRevenueTotal,
	)
}

var (
	billingAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_attempts_total",
			Help: "Billing attempts by outcome (success/failed).",
		},
		[]string{"outcome"},
	)

	billingGatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_gateway_latency_ms",
			Help:    "Payment gateway round-trip latency in milliseconds.",
			Buckets: []float64{25, 50, 100, 200, 400, 800, 1600, 5000, 10000},
		},
		[]string{"outcome"},
	)

	billingRevenueTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_revenue_total",
			Help: "Sum of successfully charged amounts.",
		},
	)
)

func IncBillingAttempt(outcome string) {
	billingAttemptsTotal.WithLabelValues(norm(outcome)).Inc()
}

func ObserveGatewayLatency(outcome string, d time.Duration) {
	billingGatewayLatency.WithLabelValues(norm(outcome)).Observe(float64(d.Milliseconds()))
}

func AddBillingRevenue(amount float64) {
	if amount > 0 {
		billingRevenueTotal.Add(amount)
	}
}
