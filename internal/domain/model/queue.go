package model

import "time"

// QueueStatistics mirrors the OCR engine's work-queue counters.
type QueueStatistics struct {
	Queued          int            `json:"queued"`
	Processing      int            `json:"processing"`
	Failed          int            `json:"failed"`
	CompletedToday  int            `json:"completed_today"`
	Stuck           int            `json:"stuck"`
	DeadLetterQueue int            `json:"dead_letter_queue"`
	ByPriority      map[string]int `json:"by_priority,omitempty"`
}

type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// HealthReport is the classification derived from QueueStatistics.
type HealthReport struct {
	Status     HealthStatus    `json:"status"`
	Issues     []string        `json:"issues,omitempty"`
	Statistics QueueStatistics `json:"statistics"`
}

// StuckTask identifies an engine-side job whose in-flight duration exceeded
// the stuck timeout without a terminal callback.
type StuckTask struct {
	TaskID     string    `json:"task_id"`
	DocumentID string    `json:"document_id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}
