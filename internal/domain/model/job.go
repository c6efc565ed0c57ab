package model

import "time"

// DispatchJob asks the dispatch worker to submit a document to the OCR engine.
// Attempt counts deliveries; the queue redelivers transient failures with
// backoff until MaxAttempts, then dead-letters the job.
type DispatchJob struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Attempt    int       `json:"attempt"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// RetryJob is an operator-issued request to retry a failed document.
// Reason is kept for audit logging only.
type RetryJob struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Reason     string    `json:"reason"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// IndexingJob is handed to the external search-indexing subsystem exactly
// once per successful OCR completion.
type IndexingJob struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	TaskID     string    `json:"task_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
