package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(engineQueueDepth, engineHealthLevel)
}

var (
	engineQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ocr_engine_queue_depth",
			Help: "Last observed OCR engine queue counters, labeled by bucket.",
		},
		[]string{"bucket"}, // queued|processing|failed|stuck|dead_letter_queue
	)

	engineHealthLevel = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ocr_engine_health_level",
			Help: "Derived engine health: 0 healthy, 1 warning, 2 critical.",
		},
	)
)

func SetQueueDepth(bucket string, n int) {
	engineQueueDepth.WithLabelValues(norm(bucket)).Set(float64(n))
}

func SetHealthLevel(level int) { engineHealthLevel.Set(float64(level)) }
