package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ocr-processing-coordinator/internal/config"
	"ocr-processing-coordinator/internal/domain"
	"ocr-processing-coordinator/internal/domain/model"
	"ocr-processing-coordinator/internal/domain/ports/adapter"
)

var _ adapter.OCREngineAdapter = (*HTTPEngine)(nil)

// HTTPEngine talks to the external OCR engine's REST surface. Non-2xx
// responses become *domain.UpstreamStatusError so the failure categorizer can
// distinguish 5xx (transient) from 4xx (permanent); transport errors pass
// through untouched.
type HTTPEngine struct {
	baseURL      string
	apiKey       string
	submitClient *http.Client
	queryClient  *http.Client
}

func NewHTTPEngine(cfg *config.EngineConfig) *HTTPEngine {
	return &HTTPEngine{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		submitClient: &http.Client{Timeout: cfg.SubmitTimeout},
		queryClient:  &http.Client{Timeout: cfg.QueryTimeout},
	}
}

type submitRequest struct {
	DocumentID string `json:"document_id"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

func (e *HTTPEngine) Submit(ctx context.Context, doc *model.Document) (string, error) {
	body, err := json.Marshal(submitRequest{DocumentID: doc.ID})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/v1/tasks", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	e.authorize(req)

	resp, err := e.submitClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", upstreamError(resp)
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if out.TaskID == "" {
		return "", fmt.Errorf("engine returned empty task_id for document %s", doc.ID)
	}
	return out.TaskID, nil
}

func (e *HTTPEngine) QueueStatistics(ctx context.Context) (*model.QueueStatistics, error) {
	var stats model.QueueStatistics
	if err := e.get(ctx, "/api/v1/queue/statistics", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (e *HTTPEngine) StuckTasks(ctx context.Context, timeout time.Duration) ([]model.StuckTask, error) {
	q := url.Values{}
	q.Set("timeout_seconds", strconv.Itoa(int(timeout.Seconds())))

	var out struct {
		Tasks []model.StuckTask `json:"tasks"`
	}
	if err := e.get(ctx, "/api/v1/queue/stuck", q, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

func (e *HTTPEngine) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := e.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	e.authorize(req)

	resp, err := e.queryClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return upstreamError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (e *HTTPEngine) authorize(req *http.Request) {
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
}

func upstreamError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &domain.UpstreamStatusError{StatusCode: resp.StatusCode, Body: string(b)}
}
