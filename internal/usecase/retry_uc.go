package usecase

import (
	"context"
	"errors"
	"fmt"

	"ocr-processing-coordinator/internal/domain"
	"ocr-processing-coordinator/internal/domain/model"
	"ocr-processing-coordinator/internal/domain/ports/repository"
	"ocr-processing-coordinator/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// RetryUseCase consumes operator-issued retry jobs. A retry is accepted only
// for documents currently failed; anything else is a logged no-op so a
// mistimed operator action cannot corrupt state.
type RetryUseCase struct {
	docs     repository.DocumentRepository
	dispatch *DispatchUseCase
	sm       *StateMachine
	log      *zerolog.Logger
}

func NewRetryUseCase(docs repository.DocumentRepository, dispatch *DispatchUseCase, sm *StateMachine, log *zerolog.Logger) *RetryUseCase {
	return &RetryUseCase{docs: docs, dispatch: dispatch, sm: sm, log: log}
}

// Process handles one retry job. Unexpected errors propagate to the caller
// so the outer queue can apply its own retry policy to the retry itself.
func (u *RetryUseCase) Process(ctx context.Context, job *model.RetryJob) error {
	doc, err := u.docs.FindByID(ctx, repository.NoTX, job.DocumentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			u.log.Warn().Str("document_id", job.DocumentID).Msg("retry requested for unknown document")
			metrics.IncManualRetry("missing")
			return nil
		}
		return fmt.Errorf("load document %s: %w", job.DocumentID, err)
	}

	if !doc.CanRetry() {
		u.log.Warn().
			Str("document_id", doc.ID).
			Str("status", string(doc.Status)).
			Str("reason", job.Reason).
			Msg("retry rejected, document is not failed")
		metrics.IncManualRetry("rejected")
		return nil
	}

	applied, err := u.sm.ResetForRetry(ctx, doc)
	if err != nil {
		return fmt.Errorf("reset %s for retry: %w", doc.ID, err)
	}
	if !applied {
		// Lost a race with a concurrent retry or a late callback.
		u.log.Warn().Str("document_id", doc.ID).Msg("retry reset lost the race, skipping")
		metrics.IncManualRetry("rejected")
		return nil
	}

	u.log.Info().
		Str("document_id", doc.ID).
		Str("reason", job.Reason).
		Msg("document reset for retry, re-dispatching")
	metrics.IncManualRetry("accepted")

	if err := u.dispatch.Submit(ctx, doc); err != nil {
		return fmt.Errorf("re-dispatch %s: %w", doc.ID, err)
	}
	return nil
}
