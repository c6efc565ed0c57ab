package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhookCallbacksTotal,
		webhookLatencyMs,
		indexingEnqueuedTotal,
	)
}

var (
	webhookCallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocr_webhook_callbacks_total",
			Help: "OCR engine callbacks received, labeled by payload status and outcome.",
		},
		[]string{"status", "outcome"}, // outcome: applied|replay|stale|rejected|error
	)

	webhookLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ocr_webhook_handle_latency_ms",
			Help:    "Webhook handling latency distribution in milliseconds.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	indexingEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ocr_indexing_jobs_enqueued_total",
			Help: "Indexing jobs handed to the search collaborator.",
		},
	)
)

func ObserveWebhook(status, outcome string, latencyMs int) {
	webhookCallbacksTotal.WithLabelValues(norm(status), norm(outcome)).Inc()
	webhookLatencyMs.Observe(float64(latencyMs))
}

func IncIndexingEnqueued() { indexingEnqueuedTotal.Inc() }
