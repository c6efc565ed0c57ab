package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ocr-processing-coordinator/internal/domain"
	"ocr-processing-coordinator/internal/domain/model"
	"ocr-processing-coordinator/internal/domain/ports/queue"
	"ocr-processing-coordinator/internal/domain/ports/repository"
	"ocr-processing-coordinator/internal/infra/metrics"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Callback outcomes reported back to the HTTP layer. All three are delivered
// as HTTP 200; they differ only for logging and metrics.
const (
	OutcomeApplied = "applied"
	OutcomeReplay  = "replay"
	OutcomeIgnored = "ignored"
)

type CallbackResult struct {
	Outcome    string
	DocumentID string
	TaskID     string
	Status     model.ProcessingStatus
}

// callbackPayload is the tagged union delivered by the OCR engine, keyed on
// Status. Per-variant required fields are validated before any state mutation
// so a malformed variant can never cause a partial update.
type callbackPayload struct {
	DocumentID string            `json:"document_id"`
	TaskID     string            `json:"task_id"`
	Status     string            `json:"status"`
	Progress   *int              `json:"progress,omitempty"`
	Message    string            `json:"message,omitempty"`
	Result     *callbackOCR      `json:"result,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Error      string            `json:"error,omitempty"`
}

type callbackOCR struct {
	Text            string    `json:"text"`
	ConfidenceScore flexFloat `json:"confidence_score"`
}

// flexFloat accepts the confidence score as either a JSON number or a quoted
// decimal string; the engine has been observed sending both.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("confidence_score: %w", err)
	}
	*f = flexFloat(v)
	return nil
}

func (p *callbackPayload) validate() error {
	if p.DocumentID == "" {
		return fmt.Errorf("%w: document_id is required", domain.ErrInvalidPayload)
	}
	if p.TaskID == "" {
		return fmt.Errorf("%w: task_id is required", domain.ErrInvalidPayload)
	}
	switch p.Status {
	case string(model.StatusProcessing):
		if p.Progress == nil {
			return fmt.Errorf("%w: progress is required for status=processing", domain.ErrInvalidPayload)
		}
		if *p.Progress < 0 || *p.Progress > 100 {
			return fmt.Errorf("%w: progress out of range", domain.ErrInvalidPayload)
		}
	case string(model.StatusCompleted):
		if p.Result == nil {
			return fmt.Errorf("%w: result is required for status=completed", domain.ErrInvalidPayload)
		}
	case string(model.StatusFailed):
		if p.Error == "" {
			return fmt.Errorf("%w: error is required for status=failed", domain.ErrInvalidPayload)
		}
	case "":
		return fmt.Errorf("%w: status is required", domain.ErrInvalidPayload)
	default:
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidPayload, p.Status)
	}
	return nil
}

// WebhookUseCase applies verified engine callbacks to document state.
// Signature verification happens at the HTTP boundary; everything here runs
// on an authenticated body.
type WebhookUseCase struct {
	docs repository.DocumentRepository
	sm   *StateMachine
	jobs queue.JobQueue
	log  *zerolog.Logger
}

func NewWebhookUseCase(docs repository.DocumentRepository, sm *StateMachine, jobs queue.JobQueue, log *zerolog.Logger) *WebhookUseCase {
	return &WebhookUseCase{docs: docs, sm: sm, jobs: jobs, log: log}
}

// Handle parses, validates and applies one callback body.
//
// Error mapping for the HTTP layer: domain.ErrInvalidPayload -> 400,
// domain.ErrNotFound -> 404. A nil error means the callback was accepted,
// whether it was applied, an idempotent replay, or a stale no-op.
func (u *WebhookUseCase) Handle(ctx context.Context, body []byte) (*CallbackResult, error) {
	var payload callbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON: %v", domain.ErrInvalidPayload, err)
	}
	if err := payload.validate(); err != nil {
		return nil, err
	}

	doc, err := u.docs.FindByID(ctx, repository.NoTX, payload.DocumentID)
	if err != nil {
		return nil, err
	}

	res := &CallbackResult{DocumentID: doc.ID, TaskID: payload.TaskID}

	// Correlate against the document's live task. A mismatching task id is a
	// benign duplicate from a superseded dispatch (e.g. after a manual retry
	// invalidated it): acknowledge without touching state.
	if doc.ExternalTaskID != payload.TaskID {
		u.log.Info().
			Str("document_id", doc.ID).
			Str("callback_task_id", payload.TaskID).
			Str("current_task_id", doc.ExternalTaskID).
			Msg("stale callback ignored")
		res.Outcome = OutcomeIgnored
		res.Status = doc.Status
		return res, nil
	}

	switch payload.Status {
	case string(model.StatusProcessing):
		return u.applyProgress(ctx, doc, &payload, res)
	case string(model.StatusCompleted):
		return u.applyCompletion(ctx, doc, &payload, res)
	default:
		return u.applyFailure(ctx, doc, &payload, res)
	}
}

func (u *WebhookUseCase) applyProgress(ctx context.Context, doc *model.Document, p *callbackPayload, res *CallbackResult) (*CallbackResult, error) {
	applied, err := u.sm.TransitionTo(ctx, doc, model.StatusProcessing, Change{
		Progress:  *p.Progress,
		Operation: p.Message,
	})
	if err != nil {
		return nil, err
	}
	res.Status = doc.Status
	if applied {
		res.Outcome = OutcomeApplied
	} else {
		// Out-of-order progress after a terminal callback, or a lost race
		// with a concurrent duplicate. Either way the delivery is benign.
		res.Outcome = OutcomeReplay
	}
	return res, nil
}

func (u *WebhookUseCase) applyCompletion(ctx context.Context, doc *model.Document, p *callbackPayload, res *CallbackResult) (*CallbackResult, error) {
	applied, err := u.sm.TransitionTo(ctx, doc, model.StatusCompleted, Change{
		OCRText:         p.Result.Text,
		ConfidenceScore: float64(p.Result.ConfidenceScore),
		Metadata:        p.Metadata,
	})
	if err != nil {
		return nil, err
	}
	res.Status = doc.Status

	if !applied {
		fresh, err := u.docs.FindByID(ctx, repository.NoTX, doc.ID)
		if err != nil {
			return nil, err
		}
		res.Status = fresh.Status
		if fresh.Status == model.StatusCompleted && fresh.ExternalTaskID == p.TaskID {
			// Replay of the terminal callback that already won. Re-arm the
			// indexing enqueue under the same fence so a crash between the
			// original update and its enqueue cannot lose the job; the fence
			// keeps it exactly-once.
			res.Outcome = OutcomeReplay
			return res, u.enqueueIndexing(ctx, fresh.ID, p.TaskID)
		}
		res.Outcome = OutcomeIgnored
		return res, nil
	}

	res.Outcome = OutcomeApplied
	return res, u.enqueueIndexing(ctx, doc.ID, p.TaskID)
}

func (u *WebhookUseCase) applyFailure(ctx context.Context, doc *model.Document, p *callbackPayload, res *CallbackResult) (*CallbackResult, error) {
	applied, err := u.sm.TransitionTo(ctx, doc, model.StatusFailed, Change{Error: p.Error})
	if err != nil {
		return nil, err
	}
	res.Status = doc.Status
	if applied {
		res.Outcome = OutcomeApplied
	} else {
		res.Outcome = OutcomeReplay
	}
	// Failures never trigger indexing.
	return res, nil
}

func (u *WebhookUseCase) enqueueIndexing(ctx context.Context, documentID, taskID string) error {
	job := &model.IndexingJob{
		ID:         ulid.Make().String(),
		DocumentID: documentID,
		TaskID:     taskID,
		EnqueuedAt: time.Now(),
	}
	fence := "index:" + documentID + ":" + taskID
	enqueued, err := u.jobs.EnqueueIndexing(ctx, job, fence)
	if err != nil {
		return fmt.Errorf("enqueue indexing for %s: %w", documentID, err)
	}
	if enqueued {
		metrics.IncIndexingEnqueued()
	}
	return nil
}
