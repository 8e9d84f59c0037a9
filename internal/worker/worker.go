// Package worker runs the job queue consumer: it polls SQLite for PENDING
// pipeline jobs, executes them one at a time, and mirrors progress into the
// job's log table so the api process can stream it.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pickgear/backend/internal/metrics"
	"github.com/pickgear/backend/internal/storage/models"
	"github.com/pickgear/backend/pkg/logger"
)

// JobStore is the queue surface of *sqlite.Store.
type JobStore interface {
	NextPendingJob() (*models.PipelineJob, error)
	MarkJobRunning(jobID string) error
	MarkJobDone(jobID string) error
	MarkJobFailed(jobID string) error
	AppendJobLog(jobID, message string) error
}

// PipelineFunc executes one pipeline run for a job's category and makers,
// reporting progress through logf.
type PipelineFunc func(ctx context.Context, category string, makers []string, logf func(format string, args ...any)) error

// Runner executes a single claimed job and owns its status transitions.
type Runner struct {
	store    JobStore
	pipeline PipelineFunc
}

func NewRunner(store JobStore, pipeline PipelineFunc) *Runner {
	return &Runner{store: store, pipeline: pipeline}
}

// Execute moves the job RUNNING, runs the pipeline, and lands it in DONE or
// FAILED. A pipeline error is recorded as a final FATAL log line before the
// FAILED transition so the log stream carries the cause.
func (r *Runner) Execute(ctx context.Context, job *models.PipelineJob) error {
	if err := r.store.MarkJobRunning(job.ID); err != nil {
		return fmt.Errorf("claim job %s: %w", job.ID, err)
	}

	logf := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		if err := r.store.AppendJobLog(job.ID, msg); err != nil {
			logger.Warn("Failed to append job log", zap.String("job_id", job.ID), zap.Error(err))
		}
	}

	start := time.Now()
	logf("job started (trigger=%s, category=%s, makers=%v)", job.TriggeredBy, job.Category, job.Makers)

	runErr := r.pipeline(ctx, job.Category, job.Makers, logf)
	duration := time.Since(start)

	if runErr != nil {
		logf("FATAL: %v", runErr)
		if err := r.store.MarkJobFailed(job.ID); err != nil {
			return fmt.Errorf("mark job %s failed: %w", job.ID, err)
		}
		metrics.JobsTotal.WithLabelValues(string(models.JobFailed), string(job.TriggeredBy)).Inc()
		metrics.JobDuration.Observe(duration.Seconds())
		logger.Error("Pipeline job failed",
			zap.String("job_id", job.ID),
			zap.Duration("duration", duration),
			zap.Error(runErr))
		return runErr
	}

	logf("job completed in %s", duration.Round(time.Second))
	if err := r.store.MarkJobDone(job.ID); err != nil {
		return fmt.Errorf("mark job %s done: %w", job.ID, err)
	}
	metrics.JobsTotal.WithLabelValues(string(models.JobDone), string(job.TriggeredBy)).Inc()
	metrics.JobDuration.Observe(duration.Seconds())
	logger.Info("Pipeline job completed",
		zap.String("job_id", job.ID),
		zap.Duration("duration", duration))
	return nil
}

// Worker is the poll loop. One worker processes one job at a time, which
// together with the single-flight check at enqueue keeps pipeline runs
// strictly serialized.
type Worker struct {
	store        JobStore
	runner       *Runner
	scheduler    *Scheduler
	pollInterval time.Duration
	refreshEvery time.Duration
}

func New(store JobStore, runner *Runner, scheduler *Scheduler, pollInterval, refreshEvery time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	if refreshEvery <= 0 {
		refreshEvery = time.Minute
	}
	return &Worker{
		store:        store,
		runner:       runner,
		scheduler:    scheduler,
		pollInterval: pollInterval,
		refreshEvery: refreshEvery,
	}
}

// Run blocks until ctx is cancelled. Every poll interval it claims the
// oldest pending job; every refresh interval it reconciles the scheduler
// against the stored schedule.
func (w *Worker) Run(ctx context.Context) error {
	logger.Info("Worker started",
		zap.Duration("poll_interval", w.pollInterval),
		zap.Duration("schedule_refresh", w.refreshEvery))

	if w.scheduler != nil {
		w.scheduler.Start()
		defer w.scheduler.Stop()
		if err := w.scheduler.Reconcile(); err != nil {
			logger.Warn("Initial schedule reconcile failed", zap.Error(err))
		}
	}

	poll := time.NewTicker(w.pollInterval)
	defer poll.Stop()
	refresh := time.NewTicker(w.refreshEvery)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Worker stopping")
			return ctx.Err()
		case <-refresh.C:
			if w.scheduler == nil {
				continue
			}
			if err := w.scheduler.Reconcile(); err != nil {
				logger.Warn("Schedule reconcile failed", zap.Error(err))
			}
		case <-poll.C:
			job, err := w.store.NextPendingJob()
			if err != nil {
				logger.Error("Failed to poll for jobs", zap.Error(err))
				continue
			}
			if job == nil {
				continue
			}
			// Errors are terminal for the job, not for the worker.
			if err := w.runner.Execute(ctx, job); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}
