package usecase

import (
	"context"

	"ocr-processing-coordinator/internal/domain/model"
	"ocr-processing-coordinator/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// Change carries the callback-derived fields applied when a document enters a
// new status. Only the fields relevant to the target status are read.
type Change struct {
	Progress        int
	Operation       string
	Error           string
	OCRText         string
	ConfidenceScore float64
	Metadata        map[string]string
}

// StateMachine owns the document's processing fields and their legal
// transitions. All mutations go through a guarded compare-and-set on the
// repository, so duplicate concurrent callbacks cannot produce lost updates:
// exactly one writer wins, the rest observe a failed guard and no-op.
type StateMachine struct {
	docs repository.DocumentRepository
	log  *zerolog.Logger
}

func NewStateMachine(docs repository.DocumentRepository, log *zerolog.Logger) *StateMachine {
	return &StateMachine{docs: docs, log: log}
}

// TransitionTo moves doc into newStatus, applying the per-status field
// effects. Illegal transitions are logged and reported as not-applied rather
// than returned as errors, because duplicate and out-of-order callbacks must
// not corrupt state or fail the delivery.
//
// Returns (true, nil) when this call won the guarded update, (false, nil)
// when the transition was illegal or another writer got there first.
func (m *StateMachine) TransitionTo(ctx context.Context, doc *model.Document, newStatus model.ProcessingStatus, change Change) (bool, error) {
	if !model.CanTransition(doc.Status, newStatus) {
		m.log.Warn().
			Str("document_id", doc.ID).
			Str("from", string(doc.Status)).
			Str("to", string(newStatus)).
			Msg("illegal status transition ignored")
		return false, nil
	}

	next := doc.Clone()
	switch newStatus {
	case model.StatusProcessing:
		next.Progress = clampProgress(change.Progress)
		next.CurrentOperation = change.Operation
		next.ProcessingError = ""
	case model.StatusCompleted:
		next.Progress = 100
		next.CurrentOperation = ""
		next.ProcessingError = ""
		next.OCRText = change.OCRText
		next.ConfidenceScore = change.ConfidenceScore
		next.Metadata = change.Metadata
	case model.StatusFailed:
		// progress keeps its last known value for diagnostics
		next.CurrentOperation = ""
		next.ProcessingError = change.Error
	}
	next.Status = newStatus

	guard := repository.Guard{
		Statuses: []model.ProcessingStatus{doc.Status},
		TaskID:   doc.ExternalTaskID,
	}
	applied, err := m.docs.UpdateGuarded(ctx, next, guard)
	if err != nil {
		return false, err
	}
	if !applied {
		m.log.Debug().
			Str("document_id", doc.ID).
			Str("to", string(newStatus)).
			Msg("guarded transition lost the race")
		return false, nil
	}
	*doc = *next
	return true, nil
}

// MarkDispatched records the engine's task id and moves the document to
// queued. Accepted from uploaded (fresh dispatch) and from queued (the
// re-dispatch after a manual retry reset).
func (m *StateMachine) MarkDispatched(ctx context.Context, doc *model.Document, taskID string) (bool, error) {
	next := doc.Clone()
	next.Status = model.StatusQueued
	next.Progress = 0
	next.CurrentOperation = ""
	next.ProcessingError = ""
	next.ExternalTaskID = taskID

	guard := repository.Guard{
		Statuses: []model.ProcessingStatus{model.StatusUploaded, model.StatusQueued},
		AnyTask:  true,
	}
	applied, err := m.docs.UpdateGuarded(ctx, next, guard)
	if err != nil {
		return false, err
	}
	if applied {
		*doc = *next
	}
	return applied, nil
}

// ResetForRetry performs the manual-retry reset: back to queued with cleared
// error, progress and operation, and the old task id invalidated so late
// callbacks for it become stale no-ops. Only accepted from failed.
func (m *StateMachine) ResetForRetry(ctx context.Context, doc *model.Document) (bool, error) {
	if !doc.CanRetry() {
		m.log.Warn().
			Str("document_id", doc.ID).
			Str("status", string(doc.Status)).
			Msg("retry requested for a document that is not failed")
		return false, nil
	}

	next := doc.Clone()
	next.Status = model.StatusQueued
	next.Progress = 0
	next.CurrentOperation = ""
	next.ProcessingError = ""
	next.ExternalTaskID = ""

	guard := repository.Guard{
		Statuses: []model.ProcessingStatus{model.StatusFailed},
		AnyTask:  true,
	}
	applied, err := m.docs.UpdateGuarded(ctx, next, guard)
	if err != nil {
		return false, err
	}
	if applied {
		*doc = *next
	}
	return applied, nil
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
