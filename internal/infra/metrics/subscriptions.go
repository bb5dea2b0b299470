package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionsCreatedTotal,
		subscriptionsCancelledTotal,
	)
}

var (
	subscriptionsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_created_total",
			Help: "Subscriptions created, labeled by whether they start in a trial.",
		},
		[]string{"trial"}, // 'true', 'false'
	)

	subscriptionsCancelledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_cancelled_total",
			Help: "Total number of subscriptions cancelled.",
		},
	)
)

func IncSubscriptionCreated(trial bool) {
	if trial {
		subscriptionsCreatedTotal.WithLabelValues("true").Inc()
		return
	}
	subscriptionsCreatedTotal.WithLabelValues("false").Inc()
}

func IncSubscriptionCancelled() {
	subscriptionsCancelledTotal.Inc()
}
