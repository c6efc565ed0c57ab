package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ocr-processing-coordinator/internal/config"
	pg "ocr-processing-coordinator/internal/infra/db/postgres"
	"ocr-processing-coordinator/internal/infra/logging"
	"ocr-processing-coordinator/internal/infra/metrics"
	"ocr-processing-coordinator/internal/infra/ocr"
	red "ocr-processing-coordinator/internal/infra/redis"
	"ocr-processing-coordinator/internal/infra/web"
	"ocr-processing-coordinator/internal/infra/worker"
	"ocr-processing-coordinator/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	jobs := red.NewJobQueue(redisClient)

	// ---- Repositories & adapters ----
	docRepo := pg.NewDocumentRepo(pool)
	engine := ocr.NewHTTPEngine(&cfg.Engine)

	// ---- Use cases ----
	sm := usecase.NewStateMachine(docRepo, logger)
	dispatchUC := usecase.NewDispatchUseCase(docRepo, engine, sm, logger)
	retryUC := usecase.NewRetryUseCase(docRepo, dispatchUC, sm, logger)
	webhookUC := usecase.NewWebhookUseCase(docRepo, sm, jobs, logger)
	monitorUC := usecase.NewMonitorUseCase(engine, usecase.MonitorThresholds{
		StuckWarning:       cfg.Monitor.StuckWarningThreshold,
		DeadLetterCritical: cfg.Monitor.DeadLetterCriticalThreshold,
		StuckTimeout:       cfg.Monitor.StuckTimeout,
	}, logger)

	// ---- Workers ----
	pool2 := worker.NewPool(cfg.Worker.DispatchWorkers, logger)
	pool2.Start(ctx)

	policy := worker.RetryPolicy{
		MaxAttempts: cfg.Worker.MaxAttempts,
		Base:        cfg.Worker.BackoffBase,
		Cap:         cfg.Worker.BackoffCap,
	}
	dispatchConsumer := worker.NewDispatchConsumer(jobs, dispatchUC, policy, logger)
	retryConsumer := worker.NewRetryConsumer(jobs, retryUC, cfg.Worker.MaxAttempts, logger)
	go dispatchConsumer.Run(ctx, pool2)
	go retryConsumer.Run(ctx, pool2)

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)
	srv := web.NewServer(webhookUC, monitorUC, docRepo, jobs, auth,
		cfg.Webhook.Secret, cfg.Webhook.MaxBodySize, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
	pool2.Stop()
}
