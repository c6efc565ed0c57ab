package queue

import (
	"context"
	"time"

	"ocr-processing-coordinator/internal/domain/model"
)

// JobQueue is the internal job transport. The in-memory implementation backs
// unit tests; the redis implementation backs production. Handlers never see
// the transport.
//
// Dequeue* block up to wait and return domain.ErrNotFound when nothing is
// ready, so consumer loops can poll without special-casing emptiness.
type JobQueue interface {
	EnqueueDispatch(ctx context.Context, job *model.DispatchJob) error
	DequeueDispatch(ctx context.Context, wait time.Duration) (*model.DispatchJob, error)
	// RequeueDispatch schedules a redelivery after delay (transient failure path).
	RequeueDispatch(ctx context.Context, job *model.DispatchJob, delay time.Duration) error
	// DeadLetterDispatch parks a job that exhausted its attempts.
	DeadLetterDispatch(ctx context.Context, job *model.DispatchJob) error

	EnqueueRetry(ctx context.Context, job *model.RetryJob) error
	DequeueRetry(ctx context.Context, wait time.Duration) (*model.RetryJob, error)

	// EnqueueIndexing hands a completed document to the search-indexing
	// collaborator. fence is an idempotency key; a second enqueue with the
	// same fence is a no-op and reports false.
	EnqueueIndexing(ctx context.Context, job *model.IndexingJob, fence string) (bool, error)
}
