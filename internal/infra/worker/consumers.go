package worker

import (
	"context"
	"errors"
	"time"

	"ocr-processing-coordinator/internal/domain"
	"ocr-processing-coordinator/internal/domain/model"
	"ocr-processing-coordinator/internal/domain/ports/queue"
	"ocr-processing-coordinator/internal/infra/metrics"
	"ocr-processing-coordinator/internal/usecase"

	"github.com/rs/zerolog"
)

const dequeueWait = 2 * time.Second

// RetryPolicy is the queue-side redelivery policy for transient dispatch
// failures: exponential backoff from Base, capped at Cap, dead-lettered after
// MaxAttempts deliveries.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.Cap {
			return p.Cap
		}
	}
	if d > p.Cap {
		return p.Cap
	}
	return d
}

// DispatchConsumer pulls dispatch jobs off the queue and hands them to the
// pool. One job is processed at a time per worker; the queue is the only
// shared state.
type DispatchConsumer struct {
	jobs   queue.JobQueue
	uc     *usecase.DispatchUseCase
	policy RetryPolicy
	log    *zerolog.Logger
}

func NewDispatchConsumer(jobs queue.JobQueue, uc *usecase.DispatchUseCase, policy RetryPolicy, log *zerolog.Logger) *DispatchConsumer {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 5
	}
	if policy.Base <= 0 {
		policy.Base = 2 * time.Second
	}
	if policy.Cap <= 0 {
		policy.Cap = 5 * time.Minute
	}
	return &DispatchConsumer{jobs: jobs, uc: uc, policy: policy, log: log}
}

// Run blocks until ctx is cancelled. Should be run in a goroutine.
func (c *DispatchConsumer) Run(ctx context.Context, pool *Pool) {
	c.log.Info().Msg("dispatch consumer started")
	for {
		if ctx.Err() != nil {
			c.log.Info().Msg("dispatch consumer stopping")
			return
		}

		job, err := c.jobs.DequeueDispatch(ctx, dequeueWait)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, context.Canceled) {
				continue
			}
			c.log.Error().Err(err).Msg("dequeue dispatch job failed")
			continue
		}

		j := job
		if err := pool.Submit(func(ctx context.Context) error {
			c.handle(ctx, j)
			return nil
		}); err != nil {
			// Pool saturated: put the job back without counting an attempt.
			if rqErr := c.jobs.RequeueDispatch(ctx, j, dequeueWait); rqErr != nil {
				c.log.Error().Err(rqErr).Str("job_id", j.ID).Msg("requeue after saturation failed")
			}
		}
	}
}

func (c *DispatchConsumer) handle(ctx context.Context, job *model.DispatchJob) {
	job.Attempt++

	err := c.uc.Process(ctx, job)
	if err == nil {
		return
	}
	if !errors.Is(err, usecase.ErrTransientDispatch) {
		c.log.Error().Err(err).Str("job_id", job.ID).Msg("dispatch job failed unexpectedly")
		return
	}

	job.LastError = err.Error()
	if job.Attempt >= c.policy.MaxAttempts {
		c.log.Error().
			Err(err).
			Str("job_id", job.ID).
			Str("document_id", job.DocumentID).
			Int("attempts", job.Attempt).
			Msg("dispatch retries exhausted, dead-lettering")
		if dlErr := c.jobs.DeadLetterDispatch(ctx, job); dlErr != nil {
			c.log.Error().Err(dlErr).Str("job_id", job.ID).Msg("dead-letter enqueue failed")
		}
		if exErr := c.uc.Exhaust(ctx, job); exErr != nil {
			c.log.Error().Err(exErr).Str("document_id", job.DocumentID).Msg("failed to record exhausted dispatch")
		}
		metrics.IncDispatch("dead_letter")
		return
	}

	delay := c.policy.delay(job.Attempt)
	c.log.Warn().
		Err(err).
		Str("job_id", job.ID).
		Int("attempt", job.Attempt).
		Dur("delay", delay).
		Msg("transient dispatch failure, requeueing")
	if rqErr := c.jobs.RequeueDispatch(ctx, job, delay); rqErr != nil {
		c.log.Error().Err(rqErr).Str("job_id", job.ID).Msg("requeue failed")
	}
	metrics.IncDispatchRetry()
}

// RetryConsumer pulls operator retry jobs off the queue. Errors from the
// retry use case count as delivery failures of the retry job itself and are
// redelivered up to the same attempt cap.
type RetryConsumer struct {
	jobs        queue.JobQueue
	uc          *usecase.RetryUseCase
	maxAttempts int
	log         *zerolog.Logger
}

func NewRetryConsumer(jobs queue.JobQueue, uc *usecase.RetryUseCase, maxAttempts int, log *zerolog.Logger) *RetryConsumer {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &RetryConsumer{jobs: jobs, uc: uc, maxAttempts: maxAttempts, log: log}
}

func (c *RetryConsumer) Run(ctx context.Context, pool *Pool) {
	c.log.Info().Msg("retry consumer started")
	for {
		if ctx.Err() != nil {
			c.log.Info().Msg("retry consumer stopping")
			return
		}

		job, err := c.jobs.DequeueRetry(ctx, dequeueWait)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, context.Canceled) {
				continue
			}
			c.log.Error().Err(err).Msg("dequeue retry job failed")
			continue
		}

		j := job
		if err := pool.Submit(func(ctx context.Context) error {
			c.handle(ctx, j)
			return nil
		}); err != nil {
			if rqErr := c.jobs.EnqueueRetry(ctx, j); rqErr != nil {
				c.log.Error().Err(rqErr).Str("job_id", j.ID).Msg("requeue after saturation failed")
			}
		}
	}
}

func (c *RetryConsumer) handle(ctx context.Context, job *model.RetryJob) {
	job.Attempt++

	err := c.uc.Process(ctx, job)
	if err == nil {
		return
	}
	if job.Attempt >= c.maxAttempts {
		c.log.Error().
			Err(err).
			Str("job_id", job.ID).
			Str("document_id", job.DocumentID).
			Msg("retry job abandoned after repeated failures")
		return
	}
	c.log.Warn().Err(err).Str("job_id", job.ID).Int("attempt", job.Attempt).Msg("retry job failed, redelivering")
	if rqErr := c.jobs.EnqueueRetry(ctx, job); rqErr != nil {
		c.log.Error().Err(rqErr).Str("job_id", job.ID).Msg("redeliver retry job failed")
	}
}
