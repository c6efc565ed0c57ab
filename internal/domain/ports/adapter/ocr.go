package adapter

import (
	"context"
	"time"

	"ocr-processing-coordinator/internal/domain/model"
)

// OCREngineAdapter is the outbound contract with the external OCR engine.
// The engine performs the actual recognition; we only dispatch work and read
// its queue. Implementations map upstream failures to typed errors so the
// error categorizer can route retries.
type OCREngineAdapter interface {
	// Submit sends the document for processing and returns the engine's
	// correlation task id for the in-flight job.
	Submit(ctx context.Context, doc *model.Document) (taskID string, err error)

	QueueStatistics(ctx context.Context) (*model.QueueStatistics, error)

	// StuckTasks lists engine-side tasks in flight longer than timeout.
	StuckTasks(ctx context.Context, timeout time.Duration) ([]model.StuckTask, error)
}
