package web

import (
	"net/http"
	"time"

	"ocr-processing-coordinator/internal/domain/ports/queue"
	"ocr-processing-coordinator/internal/domain/ports/repository"
	"ocr-processing-coordinator/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server exposes the webhook endpoint, the operator monitoring API and the
// operational surfaces (/health, /metrics).
type Server struct {
	webhookUC *usecase.WebhookUseCase
	monitorUC *usecase.MonitorUseCase
	docs      repository.DocumentRepository
	jobs      queue.JobQueue
	auth      *AuthManager

	webhookSecret  string
	webhookMaxBody int64

	log *zerolog.Logger
}

func NewServer(
	webhookUC *usecase.WebhookUseCase,
	monitorUC *usecase.MonitorUseCase,
	docs repository.DocumentRepository,
	jobs queue.JobQueue,
	auth *AuthManager,
	webhookSecret string,
	webhookMaxBody int64,
	logger *zerolog.Logger,
) *Server {
	if webhookMaxBody <= 0 {
		webhookMaxBody = 1 << 20
	}
	return &Server{
		webhookUC:      webhookUC,
		monitorUC:      monitorUC,
		docs:           docs,
		jobs:           jobs,
		auth:           auth,
		webhookSecret:  webhookSecret,
		webhookMaxBody: webhookMaxBody,
		log:            logger,
	}
}

func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log), Timeout(30*time.Second))

	r.Post("/webhooks/ocr/callback", s.handleWebhook)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Require)
		r.Get("/monitor/statistics", s.handleStatistics)
		r.Get("/monitor/health", s.handleMonitorHealth)
		r.Get("/monitor/stuck", s.handleStuckTasks)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Post("/documents/{id}/retry", s.handleRetryDocument)
	})

	return r
}
