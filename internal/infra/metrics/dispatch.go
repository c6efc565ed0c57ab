package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(dispatchJobsTotal, dispatchRetriesTotal, retryJobsTotal)
}

var (
	dispatchJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocr_dispatch_jobs_total",
			Help: "Dispatch jobs processed, labeled by result.",
		},
		[]string{"result"}, // submitted|transient|permanent|dead_letter|missing
	)

	dispatchRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ocr_dispatch_retries_total",
			Help: "Transient dispatch failures requeued with backoff.",
		},
	)

	retryJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocr_manual_retry_jobs_total",
			Help: "Operator retry jobs processed, labeled by result.",
		},
		[]string{"result"}, // accepted|rejected|missing
	)
)

func IncDispatch(result string) { dispatchJobsTotal.WithLabelValues(norm(result)).Inc() }
func IncDispatchRetry()        { dispatchRetriesTotal.Inc() }
func IncManualRetry(result string) {
	retryJobsTotal.WithLabelValues(norm(result)).Inc()
}
