// Package worker runs queued sheet comparison jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/competitor-url-checker/internal/checker"
	"github.com/JakeFAU/competitor-url-checker/internal/metrics"
)

// Config controls Worker behavior.
type Config struct {
	// JobTimeout bounds a single comparison run. Zero means no limit.
	JobTimeout time.Duration
}

// Worker consumes queue items and executes the comparison pipeline.
type Worker struct {
	queue    checker.Queue
	jobStore checker.JobStore
	comparer checker.SheetComparer
	notifier checker.Notifier
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker. The notifier is optional.
func New(
	queue checker.Queue,
	jobStore checker.JobStore,
	comparer checker.SheetComparer,
	notifier checker.Notifier,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:    queue,
		jobStore: jobStore,
		comparer: comparer,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, checker.ErrQueueClosed) {
				w.logger.Info("queue closed, worker exiting")
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item checker.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	logger := w.logger.With(zap.String("job_id", item.JobID))
	start := time.Now()

	if w.comparer == nil {
		w.finish(ctx, logger, item.JobID, checker.JobStatusFailed, nil, "no comparer configured")
		return
	}

	job, err := w.jobStore.GetJob(ctx, item.JobID)
	if err != nil {
		logger.Error("load job failed", zap.Error(err))
		metrics.ObserveJob(string(checker.JobStatusFailed))
		return
	}
	if job.Status.Terminal() {
		logger.Warn("skipping finished job", zap.String("status", string(job.Status)))
		return
	}

	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, checker.JobStatusRunning, nil, ""); err != nil {
		logger.Error("update job status failed", zap.Error(err))
		return
	}
	metrics.ObserveJob(string(checker.JobStatusRunning))

	result, err := w.compare(ctx, job.Input)
	if err != nil {
		logger.Warn("comparison failed", zap.Error(err))
		w.finish(ctx, logger, item.JobID, checker.JobStatusFailed, nil, err.Error())
		return
	}

	w.finish(ctx, logger, item.JobID, checker.JobStatusCompleted, &result, "")
	logger.Info("job completed",
		zap.Int("rows", len(result.ProcessedData)),
		zap.Int("updates", len(result.EmailUpdates)),
		zap.Duration("duration", time.Since(start)),
	)

	if w.notifier != nil && len(result.EmailUpdates) > 0 {
		if err := w.notifier.SendUpdates(ctx, result.EmailUpdates); err != nil {
			logger.Error("send updates failed", zap.Error(err))
		}
	}
}

func (w *Worker) compare(ctx context.Context, rows [][]string) (result checker.SheetResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("comparison panicked: %v", rec)
		}
	}()
	if w.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
		defer cancel()
	}
	result, err = w.comparer.Compare(ctx, rows)
	if err != nil {
		return checker.SheetResult{}, fmt.Errorf("compare sheet: %w", err)
	}
	return result, nil
}

func (w *Worker) finish(
	ctx context.Context,
	logger *zap.Logger,
	jobID string,
	status checker.JobStatus,
	result *checker.SheetResult,
	errText string,
) {
	metrics.ObserveJob(string(status))
	if err := w.jobStore.UpdateJobStatus(ctx, jobID, status, result, errText); err != nil {
		logger.Error("final job status update failed", zap.Error(err))
	}
}
