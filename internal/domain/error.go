package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidSignature    = errors.New("webhook signature invalid or missing")
	ErrInvalidPayload      = errors.New("webhook payload invalid")
	ErrStaleCallback       = errors.New("callback references a superseded task")
	ErrInvalidTransition   = errors.New("illegal processing status transition")
	ErrNotRetryable        = errors.New("document is not in a retryable state")
	ErrUpstreamUnavailable = errors.New("ocr engine unavailable")
	ErrQueueFull           = errors.New("job queue is saturated")
	ErrReadDatabaseRow     = errors.New("failed to read database row")
)
