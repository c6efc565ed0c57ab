package usecase

import (
	"context"
	"fmt"
	"time"

	"ocr-processing-coordinator/internal/domain"
	"ocr-processing-coordinator/internal/domain/model"
	"ocr-processing-coordinator/internal/domain/ports/adapter"
	"ocr-processing-coordinator/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// MonitorThresholds are the operator-configurable health boundaries.
// Defaults: 5 stuck tasks trips warning, 50 dead-letter entries trips
// critical. Critical takes precedence over warning.
type MonitorThresholds struct {
	StuckWarning       int
	DeadLetterCritical int
	StuckTimeout       time.Duration
}

// MonitorUseCase aggregates the engine's queue statistics into health
// classifications and stuck-task listings. Any upstream failure surfaces as
// domain.ErrUpstreamUnavailable: the monitored system is unreachable, which
// is not a bug in the monitor.
type MonitorUseCase struct {
	engine     adapter.OCREngineAdapter
	thresholds MonitorThresholds
	log        *zerolog.Logger
}

func NewMonitorUseCase(engine adapter.OCREngineAdapter, thresholds MonitorThresholds, log *zerolog.Logger) *MonitorUseCase {
	if thresholds.StuckWarning <= 0 {
		thresholds.StuckWarning = 5
	}
	if thresholds.DeadLetterCritical <= 0 {
		thresholds.DeadLetterCritical = 50
	}
	if thresholds.StuckTimeout <= 0 {
		thresholds.StuckTimeout = 30 * time.Second
	}
	return &MonitorUseCase{engine: engine, thresholds: thresholds, log: log}
}

func (u *MonitorUseCase) Statistics(ctx context.Context) (*model.QueueStatistics, error) {
	stats, err := u.engine.QueueStatistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}

	metrics.SetQueueDepth("queued", stats.Queued)
	metrics.SetQueueDepth("processing", stats.Processing)
	metrics.SetQueueDepth("failed", stats.Failed)
	metrics.SetQueueDepth("stuck", stats.Stuck)
	metrics.SetQueueDepth("dead_letter_queue", stats.DeadLetterQueue)

	return stats, nil
}

func (u *MonitorUseCase) Health(ctx context.Context) (*model.HealthReport, error) {
	stats, err := u.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	report := u.classify(stats)

	switch report.Status {
	case model.HealthCritical:
		metrics.SetHealthLevel(2)
	case model.HealthWarning:
		metrics.SetHealthLevel(1)
	default:
		metrics.SetHealthLevel(0)
	}
	return report, nil
}

// classify derives the health status from queue statistics. Both signals are
// evaluated so the issues list names everything that tripped, but the overall
// status is the worst one.
func (u *MonitorUseCase) classify(stats *model.QueueStatistics) *model.HealthReport {
	report := &model.HealthReport{Status: model.HealthHealthy, Statistics: *stats}

	if stats.Stuck >= u.thresholds.StuckWarning {
		report.Status = model.HealthWarning
		report.Issues = append(report.Issues,
			fmt.Sprintf("%d stuck tasks reached warning threshold %d", stats.Stuck, u.thresholds.StuckWarning))
	}
	if stats.DeadLetterQueue >= u.thresholds.DeadLetterCritical {
		report.Status = model.HealthCritical
		report.Issues = append(report.Issues,
			fmt.Sprintf("%d dead-letter entries reached critical threshold %d", stats.DeadLetterQueue, u.thresholds.DeadLetterCritical))
	}
	return report
}

// StuckTasks lists engine tasks in flight longer than timeout; timeout <= 0
// falls back to the configured default.
func (u *MonitorUseCase) StuckTasks(ctx context.Context, timeout time.Duration) ([]model.StuckTask, error) {
	if timeout <= 0 {
		timeout = u.thresholds.StuckTimeout
	}
	tasks, err := u.engine.StuckTasks(ctx, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return tasks, nil
}
