package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ocr-processing-coordinator/internal/domain/model"
	"ocr-processing-coordinator/internal/usecase"
)

const testSecret = "webhook-test-secret"

type fixture struct {
	server *Server
	repo   *memDocumentRepo
	jobs   *memJobQueue
	engine *mockEngine
	auth   *AuthManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := newTestLogger()
	repo := newMemDocumentRepo()
	jobs := newMemJobQueue()
	engine := &mockEngine{}

	sm := usecase.NewStateMachine(repo, log)
	webhookUC := usecase.NewWebhookUseCase(repo, sm, jobs, log)
	monitorUC := usecase.NewMonitorUseCase(engine, usecase.MonitorThresholds{}, log)
	auth := NewAuthManager("auth-test-secret", time.Minute)

	return &fixture{
		server: NewServer(webhookUC, monitorUC, repo, jobs, auth, testSecret, 0, log),
		repo:   repo,
		jobs:   jobs,
		engine: engine,
		auth:   auth,
	}
}

func (f *fixture) signedCallback(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/ocr/callback", bytes.NewBufferString(body))
	req.Header.Set("X-Webhook-Signature", ComputeSignature(testSecret, []byte(body)))
	w := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)
	return w
}

func (f *fixture) operatorGet(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	tok, err := f.auth.Mint()
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)
	return w
}

func TestWebhookEndpointSignature(t *testing.T) {
	body := `{"document_id":"D1","task_id":"T1","status":"processing","progress":50}`

	t.Run("missing signature is rejected", func(t *testing.T) {
		f := newFixture(t)
		_ = f.repo.Save(context.Background(), nil, &model.Document{
			ID: "D1", Status: model.StatusProcessing, ExternalTaskID: "T1",
		})

		req := httptest.NewRequest(http.MethodPost, "/webhooks/ocr/callback", bytes.NewBufferString(body))
		w := httptest.NewRecorder()
		f.server.Router().ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
		if doc := f.repo.get("D1"); doc.Progress != 0 {
			t.Error("unsigned callback must not mutate the document")
		}
	})

	t.Run("wrong signature is rejected", func(t *testing.T) {
		f := newFixture(t)
		_ = f.repo.Save(context.Background(), nil, &model.Document{
			ID: "D1", Status: model.StatusProcessing, ExternalTaskID: "T1",
		})

		req := httptest.NewRequest(http.MethodPost, "/webhooks/ocr/callback", bytes.NewBufferString(body))
		req.Header.Set("X-Webhook-Signature", ComputeSignature("other-secret", []byte(body)))
		w := httptest.NewRecorder()
		f.server.Router().ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
		if doc := f.repo.get("D1"); doc.Progress != 0 {
			t.Error("forged callback must not mutate the document")
		}
	})

	t.Run("signature over tampered body fails", func(t *testing.T) {
		f := newFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/ocr/callback",
			bytes.NewBufferString(`{"document_id":"D1","task_id":"T1","status":"processing","progress":99}`))
		req.Header.Set("X-Webhook-Signature", ComputeSignature(testSecret, []byte(body)))
		w := httptest.NewRecorder()
		f.server.Router().ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}

func TestWebhookEndpoint(t *testing.T) {
	t.Run("progress callback is applied", func(t *testing.T) {
		f := newFixture(t)
		_ = f.repo.Save(context.Background(), nil, &model.Document{
			ID: "D1", Status: model.StatusQueued, ExternalTaskID: "T1",
		})

		w := f.signedCallback(t, `{"document_id":"D1","task_id":"T1","status":"processing","progress":50,"message":"extracting text"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}

		var ack map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &ack); err != nil {
			t.Fatalf("ack not json: %v", err)
		}
		if ack["result"] != usecase.OutcomeApplied {
			t.Errorf("result = %q, want applied", ack["result"])
		}
		doc := f.repo.get("D1")
		if doc.Status != model.StatusProcessing || doc.Progress != 50 {
			t.Errorf("got %s/%d, want processing/50", doc.Status, doc.Progress)
		}
	})

	t.Run("malformed json is a bad request", func(t *testing.T) {
		f := newFixture(t)
		w := f.signedCallback(t, `{"document_id": `)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("unknown document is not found", func(t *testing.T) {
		f := newFixture(t)
		w := f.signedCallback(t, `{"document_id":"ghost","task_id":"T1","status":"processing","progress":10}`)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("completion replay acks without a second indexing job", func(t *testing.T) {
		f := newFixture(t)
		_ = f.repo.Save(context.Background(), nil, &model.Document{
			ID: "D1", Status: model.StatusProcessing, ExternalTaskID: "T1",
		})
		body := `{"document_id":"D1","task_id":"T1","status":"completed","result":{"text":"hello","confidence_score":0.95}}`

		first := f.signedCallback(t, body)
		second := f.signedCallback(t, body)
		if first.Code != http.StatusOK || second.Code != http.StatusOK {
			t.Fatalf("statuses = %d/%d, want 200/200", first.Code, second.Code)
		}
		if len(f.jobs.indexing) != 1 {
			t.Errorf("indexing jobs = %d, want exactly 1", len(f.jobs.indexing))
		}

		var ack map[string]string
		_ = json.Unmarshal(second.Body.Bytes(), &ack)
		if ack["result"] != usecase.OutcomeReplay {
			t.Errorf("replay result = %q, want replay", ack["result"])
		}
	})
}

func TestOperatorAuth(t *testing.T) {
	f := newFixture(t)

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/monitor/health", nil)
		w := httptest.NewRecorder()
		f.server.Router().ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/monitor/health", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		w := httptest.NewRecorder()
		f.server.Router().ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("minted token passes", func(t *testing.T) {
		if w := f.operatorGet(t, "/api/v1/monitor/health"); w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})

	t.Run("webhook and health need no token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		f.server.Router().ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
	})
}

func TestMonitorEndpoints(t *testing.T) {
	t.Run("statistics", func(t *testing.T) {
		f := newFixture(t)
		f.engine.StatisticsFunc = func(ctx context.Context) (*model.QueueStatistics, error) {
			return &model.QueueStatistics{Queued: 3, Processing: 2, Stuck: 1, DeadLetterQueue: 4}, nil
		}

		w := f.operatorGet(t, "/api/v1/monitor/statistics")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var stats model.QueueStatistics
		if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
			t.Fatalf("body not json: %v", err)
		}
		if stats.Queued != 3 || stats.DeadLetterQueue != 4 {
			t.Errorf("stats = %+v", stats)
		}
	})

	t.Run("engine down yields 503", func(t *testing.T) {
		f := newFixture(t)
		f.engine.StatisticsFunc = func(ctx context.Context) (*model.QueueStatistics, error) {
			return nil, errors.New("dial tcp: connection refused")
		}

		if w := f.operatorGet(t, "/api/v1/monitor/statistics"); w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
		if w := f.operatorGet(t, "/api/v1/monitor/health"); w.Code != http.StatusServiceUnavailable {
			t.Errorf("health status = %d, want 503", w.Code)
		}
	})

	t.Run("stuck passes the timeout through", func(t *testing.T) {
		f := newFixture(t)
		var gotTimeout time.Duration
		f.engine.StuckFunc = func(ctx context.Context, timeout time.Duration) ([]model.StuckTask, error) {
			gotTimeout = timeout
			return []model.StuckTask{{TaskID: "T9", DocumentID: "D9"}}, nil
		}

		w := f.operatorGet(t, "/api/v1/monitor/stuck?timeout=120")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if gotTimeout != 120*time.Second {
			t.Errorf("timeout = %s, want 120s", gotTimeout)
		}

		var resp struct {
			Tasks []model.StuckTask `json:"tasks"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("body not json: %v", err)
		}
		if len(resp.Tasks) != 1 || resp.Tasks[0].TaskID != "T9" {
			t.Errorf("tasks = %+v", resp.Tasks)
		}
	})

	t.Run("stuck rejects a bad timeout", func(t *testing.T) {
		f := newFixture(t)
		if w := f.operatorGet(t, "/api/v1/monitor/stuck?timeout=soon"); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
		if w := f.operatorGet(t, "/api/v1/monitor/stuck?timeout=-5"); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestDocumentEndpoints(t *testing.T) {
	t.Run("get document", func(t *testing.T) {
		f := newFixture(t)
		_ = f.repo.Save(context.Background(), nil, &model.Document{
			ID: "D1", Status: model.StatusCompleted, Progress: 100,
			ConfidenceScore: 0.93, Metadata: map[string]string{"invoice_number": "INV-77"},
		})

		w := f.operatorGet(t, "/api/v1/documents/D1")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var resp struct {
			Status   string            `json:"processing_status"`
			Progress int               `json:"progress"`
			Metadata map[string]string `json:"metadata"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("body not json: %v", err)
		}
		if resp.Status != "completed" || resp.Progress != 100 || resp.Metadata["invoice_number"] != "INV-77" {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("get unknown document", func(t *testing.T) {
		f := newFixture(t)
		if w := f.operatorGet(t, "/api/v1/documents/ghost"); w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("retry enqueues a job", func(t *testing.T) {
		f := newFixture(t)
		_ = f.repo.Save(context.Background(), nil, &model.Document{ID: "D1", Status: model.StatusFailed})

		tok, err := f.auth.Mint()
		if err != nil {
			t.Fatalf("mint token: %v", err)
		}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/D1/retry",
			bytes.NewBufferString(`{"reason":"rescanned upstream"}`))
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		f.server.Router().ServeHTTP(w, req)

		if w.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202", w.Code)
		}
		if len(f.jobs.retries) != 1 {
			t.Fatalf("retry jobs = %d, want 1", len(f.jobs.retries))
		}
		job := f.jobs.retries[0]
		if job.DocumentID != "D1" || job.Reason != "rescanned upstream" {
			t.Errorf("job = %+v", job)
		}

		var ack map[string]string
		_ = json.Unmarshal(w.Body.Bytes(), &ack)
		if ack["job_id"] != job.ID {
			t.Errorf("ack job_id = %q, want %q", ack["job_id"], job.ID)
		}
	})

	t.Run("retry with no body defaults the reason", func(t *testing.T) {
		f := newFixture(t)
		tok, err := f.auth.Mint()
		if err != nil {
			t.Fatalf("mint token: %v", err)
		}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/D1/retry", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		f.server.Router().ServeHTTP(w, req)

		if w.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202", w.Code)
		}
		if f.jobs.retries[0].Reason != "operator request" {
			t.Errorf("reason = %q", f.jobs.retries[0].Reason)
		}
	})
}

func TestSignatureHelpers(t *testing.T) {
	body := []byte(`{"document_id":"D1"}`)
	sig := ComputeSignature(testSecret, body)

	if !VerifySignature(testSecret, body, sig) {
		t.Error("valid signature rejected")
	}
	if !VerifySignature(testSecret, body, "  "+sig+" ") {
		t.Error("whitespace around the header should be tolerated")
	}
	if VerifySignature(testSecret, body, "") {
		t.Error("empty signature accepted")
	}
	if VerifySignature(testSecret, []byte(`{"document_id":"D2"}`), sig) {
		t.Error("signature valid for a different body")
	}
	if VerifySignature("other", body, sig) {
		t.Error("signature valid under a different secret")
	}
}
