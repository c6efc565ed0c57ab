package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"ocr-processing-coordinator/internal/domain"
	"ocr-processing-coordinator/internal/domain/model"
	"ocr-processing-coordinator/internal/domain/ports/repository"
	"ocr-processing-coordinator/internal/infra/logging"
	"ocr-processing-coordinator/internal/infra/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
)

// handleWebhook receives signed callbacks from the OCR engine. The signature
// is verified over the exact raw bytes before anything is parsed; a bad or
// missing signature never touches state.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, s.webhookMaxBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		metrics.ObserveWebhook("unknown", "rejected", int(time.Since(start).Milliseconds()))
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	if !VerifySignature(s.webhookSecret, body, r.Header.Get("X-Webhook-Signature")) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("webhook signature verification failed")
		metrics.ObserveWebhook("unknown", "rejected", int(time.Since(start).Milliseconds()))
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	res, err := s.webhookUC.Handle(r.Context(), body)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidPayload):
			metrics.ObserveWebhook("unknown", "rejected", latency)
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrNotFound):
			metrics.ObserveWebhook("unknown", "rejected", latency)
			http.Error(w, "document not found", http.StatusNotFound)
		default:
			l := logging.With(r.Context(), s.log)
			l.Error().Err(err).Msg("webhook handling failed")
			metrics.ObserveWebhook("unknown", "error", latency)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	metrics.ObserveWebhook(string(res.Status), res.Outcome, latency)
	respondJSON(w, http.StatusOK, map[string]string{
		"result":      res.Outcome,
		"document_id": res.DocumentID,
		"status":      string(res.Status),
	})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.monitorUC.Statistics(r.Context())
	if err != nil {
		s.monitorError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleMonitorHealth(w http.ResponseWriter, r *http.Request) {
	report, err := s.monitorUC.Health(r.Context())
	if err != nil {
		s.monitorError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleStuckTasks(w http.ResponseWriter, r *http.Request) {
	var timeout time.Duration
	if v := r.URL.Query().Get("timeout"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			http.Error(w, "timeout must be a positive integer of seconds", http.StatusBadRequest)
			return
		}
		timeout = time.Duration(secs) * time.Second
	}

	tasks, err := s.monitorUC.StuckTasks(r.Context(), timeout)
	if err != nil {
		s.monitorError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, struct {
		Tasks []model.StuckTask `json:"tasks"`
	}{Tasks: tasks})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.docs.FindByID(r.Context(), repository.NoTX, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "failed to load document", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, struct {
		ID               string            `json:"id"`
		Status           string            `json:"processing_status"`
		Progress         int               `json:"progress"`
		CurrentOperation string            `json:"current_operation,omitempty"`
		ProcessingError  string            `json:"processing_error,omitempty"`
		ConfidenceScore  float64           `json:"confidence_score,omitempty"`
		Metadata         map[string]string `json:"metadata,omitempty"`
		ExternalTaskID   string            `json:"external_task_id,omitempty"`
	}{
		ID:               doc.ID,
		Status:           string(doc.Status),
		Progress:         doc.Progress,
		CurrentOperation: doc.CurrentOperation,
		ProcessingError:  doc.ProcessingError,
		ConfidenceScore:  doc.ConfidenceScore,
		Metadata:         doc.Metadata,
		ExternalTaskID:   doc.ExternalTaskID,
	})
}

type retryRequest struct {
	Reason string `json:"reason"`
}

// handleRetryDocument enqueues an operator retry job. Precondition checks
// (document exists, is failed) happen in the consumer so the endpoint stays a
// cheap, always-accepting producer; operators see the result in the document
// status.
func (s *Server) handleRetryDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "document id is required", http.StatusBadRequest)
		return
	}

	var req retryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		req.Reason = "operator request"
	}

	job := &model.RetryJob{
		ID:         ulid.Make().String(),
		DocumentID: id,
		Reason:     req.Reason,
		EnqueuedAt: time.Now(),
	}
	if err := s.jobs.EnqueueRetry(r.Context(), job); err != nil {
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("document_id", id).Msg("failed to enqueue retry job")
		http.Error(w, "failed to enqueue retry", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id":      job.ID,
		"document_id": id,
	})
}

func (s *Server) monitorError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrUpstreamUnavailable) {
		l := logging.With(r.Context(), s.log)
		l.Warn().Err(err).Msg("ocr engine unreachable")
		http.Error(w, "ocr engine unavailable", http.StatusServiceUnavailable)
		return
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
