package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		billingJobsTotal,
		billingJobsRunning,
		billingBatchDuration,
		billingBatchSize,
	)
}

var (
	billingJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_jobs_total",
			Help: "Billing-cycle jobs finished, labeled by terminal status.",
		},
		[]string{"status"}, // 'completed', 'failed'
	)

	billingJobsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "billing_jobs_running",
			Help: "Billing-cycle drivers currently running in this process.",
		},
	)

	billingBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "billing_batch_duration_seconds",
			Help:    "Wall time to process one batch of due subscriptions.",
			Buckets: prometheus.DefBuckets,
		},
	)

	billingBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "billing_batch_size",
			Help:    "Number of subscriptions per processed batch.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		},
	)
)

func IncBillingJob(status string) {
	billingJobsTotal.WithLabelValues(norm(status)).Inc()
}

func IncJobsRunning() { billingJobsRunning.Inc() }
func DecJobsRunning() { billingJobsRunning.Dec() }

func ObserveBatch(size int, d time.Duration) {
	billingBatchSize.Observe(float64(size))
	billingBatchDuration.Observe(d.Seconds())
}
