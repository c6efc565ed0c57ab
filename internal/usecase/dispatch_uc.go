package usecase

import (
	"context"
	"errors"
	"fmt"

	"ocr-processing-coordinator/internal/domain"
	"ocr-processing-coordinator/internal/domain/model"
	"ocr-processing-coordinator/internal/domain/ports/adapter"
	"ocr-processing-coordinator/internal/domain/ports/repository"
	"ocr-processing-coordinator/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// ErrTransientDispatch wraps a dispatch failure the job queue should
// redeliver. The worker matches on it to requeue with backoff instead of
// completing the job.
var ErrTransientDispatch = errors.New("transient dispatch failure")

// DispatchUseCase consumes "process document" jobs and submits documents to
// the OCR engine.
type DispatchUseCase struct {
	docs   repository.DocumentRepository
	engine adapter.OCREngineAdapter
	sm     *StateMachine
	log    *zerolog.Logger
}

func NewDispatchUseCase(docs repository.DocumentRepository, engine adapter.OCREngineAdapter, sm *StateMachine, log *zerolog.Logger) *DispatchUseCase {
	return &DispatchUseCase{docs: docs, engine: engine, sm: sm, log: log}
}

// Process handles one dispatch job.
//
// Returns nil when the job is complete (submitted, nothing to do, or the
// document was terminally failed) and an ErrTransientDispatch-wrapped error
// when the queue should redeliver.
func (u *DispatchUseCase) Process(ctx context.Context, job *model.DispatchJob) error {
	doc, err := u.docs.FindByID(ctx, repository.NoTX, job.DocumentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			u.log.Warn().Str("document_id", job.DocumentID).Msg("dispatch job for unknown document, dropping")
			metrics.IncDispatch("missing")
			return nil
		}
		return fmt.Errorf("%w: load document %s: %v", ErrTransientDispatch, job.DocumentID, err)
	}

	if doc.Status != model.StatusUploaded && doc.Status != model.StatusQueued {
		// Already past dispatch (duplicate delivery, or a callback beat us).
		u.log.Info().
			Str("document_id", doc.ID).
			Str("status", string(doc.Status)).
			Msg("dispatch job skipped, document already in flight")
		return nil
	}

	if err := u.Submit(ctx, doc); err != nil {
		return u.routeFailure(ctx, doc, job, err)
	}
	metrics.IncDispatch("submitted")
	return nil
}

// Submit sends the document to the engine and records the returned task id.
// Shared with the manual-retry path, which re-invokes dispatch after its
// state reset.
func (u *DispatchUseCase) Submit(ctx context.Context, doc *model.Document) error {
	taskID, err := u.engine.Submit(ctx, doc)
	if err != nil {
		return err
	}
	applied, err := u.sm.MarkDispatched(ctx, doc, taskID)
	if err != nil {
		return err
	}
	if !applied {
		// The document left the dispatchable states while we were talking to
		// the engine. The submitted task becomes an orphan; its callbacks
		// will be rejected as stale.
		u.log.Warn().
			Str("document_id", doc.ID).
			Str("task_id", taskID).
			Msg("dispatched task could not be recorded, callbacks for it will be stale")
		return nil
	}
	u.log.Info().
		Str("document_id", doc.ID).
		Str("task_id", taskID).
		Msg("document dispatched to ocr engine")
	return nil
}

// routeFailure consults the failure categorizer: transient failures are
// propagated so the queue redelivers; permanent ones terminally fail the
// document and complete the job.
func (u *DispatchUseCase) routeFailure(ctx context.Context, doc *model.Document, job *model.DispatchJob, cause error) error {
	if Classify(cause) == FailureTransient {
		metrics.IncDispatch("transient")
		return fmt.Errorf("%w: submit %s: %v", ErrTransientDispatch, doc.ID, cause)
	}

	metrics.IncDispatch("permanent")
	u.log.Error().
		Err(cause).
		Str("document_id", doc.ID).
		Msg("permanent dispatch failure, marking document failed")

	// Uploaded documents have no failed edge in the forward lifecycle, so a
	// permanent failure records itself through a direct guarded write.
	return u.FailDocument(ctx, doc, cause.Error())
}

// Exhaust records the terminal outcome of a dispatch job that burned through
// all its redeliveries: the document is failed with the last error so
// operators can see it and manually retry.
func (u *DispatchUseCase) Exhaust(ctx context.Context, job *model.DispatchJob) error {
	doc, err := u.docs.FindByID(ctx, repository.NoTX, job.DocumentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	return u.FailDocument(ctx, doc, "dispatch retries exhausted: "+job.LastError)
}

// FailDocument records a terminal dispatch failure on the document without
// going through a callback.
func (u *DispatchUseCase) FailDocument(ctx context.Context, doc *model.Document, reason string) error {
	next := doc.Clone()
	next.Status = model.StatusFailed
	next.CurrentOperation = ""
	next.ProcessingError = reason

	applied, err := u.docs.UpdateGuarded(ctx, next, repository.Guard{
		Statuses: []model.ProcessingStatus{model.StatusUploaded, model.StatusQueued},
		AnyTask:  true,
	})
	if err != nil {
		return err
	}
	if applied {
		*doc = *next
	}
	return nil
}
