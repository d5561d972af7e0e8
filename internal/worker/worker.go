package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"fts-benchmark/internal/cluster"
	"fts-benchmark/internal/domain"
	"fts-benchmark/internal/messaging"
	"fts-benchmark/internal/metrics"
)

type Options struct {
	// Concurrency bounds the jobs evaluated at once.
	Concurrency int
	TaskTimeout time.Duration
	MaxRetries  int
	// RetryDelay is multiplied by the attempt number between publish retries.
	RetryDelay    time.Duration
	StatsInterval time.Duration
}

type Worker struct {
	id        string
	queue     messaging.JobQueue
	evaluator cluster.Evaluator
	opts      Options
	logger    *zap.SugaredLogger

	sem        *semaphore.Weighted
	stopChan   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	isRunning  atomic.Bool
	processed  atomic.Int64
	failed     atomic.Int64
	processing atomic.Int32
}

func NewWorker(id string, queue messaging.JobQueue, evaluator cluster.Evaluator, opts Options, logger *zap.SugaredLogger) *Worker {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = time.Minute
	}
	return &Worker{
		id:        id,
		queue:     queue,
		evaluator: evaluator,
		opts:      opts,
		logger:    logger.With("worker", id),
		sem:       semaphore.NewWeighted(int64(opts.Concurrency)),
		stopChan:  make(chan struct{}),
	}
}

// Start consumes jobs until Stop is called or ctx is done, then waits for
// the jobs in flight.
func (w *Worker) Start(ctx context.Context) error {
	w.isRunning.Store(true)
	w.logger.Infow("Worker starting", "concurrency", w.opts.Concurrency, "task_timeout", w.opts.TaskTimeout)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := w.queue.SubscribeToJobs(subCtx, w.handleJob); err != nil {
		w.isRunning.Store(false)
		return fmt.Errorf("failed to subscribe to jobs: %w", err)
	}

	go w.runMonitor(subCtx)

	select {
	case <-w.stopChan:
	case <-ctx.Done():
	}
	w.isRunning.Store(false)
	cancel()

	w.wg.Wait()

	w.logger.Infow("Worker stopped", "processed", w.processed.Load(), "failed", w.failed.Load())
	return nil
}

func (w *Worker) runMonitor(ctx context.Context) {
	ticker := time.NewTicker(w.opts.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.logger.Infow("Worker stats", "stats", w.GetStats())
		}
	}
}

// handleJob blocks the consumer until a slot is free, then evaluates job in
// the background. Jobs dropped here are left unacked for redelivery.
func (w *Worker) handleJob(ctx context.Context, job domain.Job, ack func()) {
	if ctx.Err() != nil || !w.isRunning.Load() {
		w.logger.Warnw("Job dropped on shutdown", "job", job.ID)
		return
	}
	if err := w.sem.Acquire(ctx, 1); err != nil {
		w.logger.Warnw("Job dropped on shutdown", "job", job.ID)
		return
	}

	w.wg.Add(1)
	w.processing.Add(1)
	metrics.WorkerJobsInProgress.Inc()

	go func() {
		defer func() {
			metrics.WorkerJobsInProgress.Dec()
			w.processing.Add(-1)
			w.sem.Release(1)
			w.wg.Done()
		}()
		w.process(context.WithoutCancel(ctx), job, ack)
	}()
}

// process acks job once its result is published.
func (w *Worker) process(ctx context.Context, job domain.Job, ack func()) {
	start := time.Now()

	result := w.evaluate(ctx, job)
	result.WorkerID = w.id

	err := w.publishWithRetry(ctx, result)
	if err == nil {
		ack()
	}

	duration := time.Since(start)
	switch {
	case err != nil:
		w.logger.Errorw("Failed to publish result, job left pending", "job", job.ID, "duration", duration, zap.Error(err))
		w.failed.Add(1)
	case !result.Succeeded():
		w.logger.Warnw("Job failed", "job", job.ID, "model", job.Spec.ShortName(),
			"window", job.Window, "duration", duration, "error", result.Failure.Exception)
		w.failed.Add(1)
	default:
		w.logger.Debugw("Job completed", "job", job.ID, "model", job.Spec.ShortName(), "window", job.Window, "duration", duration)
		w.processed.Add(1)
	}
}

// evaluate runs job under the task timeout. Panics become failures.
func (w *Worker) evaluate(ctx context.Context, job domain.Job) (result domain.JobResult) {
	if w.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.TaskTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result = domain.Fail(job, fmt.Errorf("panic: %v", r), string(debug.Stack()))
		}
	}()

	result = w.evaluator.Evaluate(ctx, job)
	if result.Success == nil && result.Failure == nil {
		return domain.Fail(job, errors.New("evaluator returned an empty result"), "")
	}
	if !result.Succeeded() && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		output := ""
		if result.Failure != nil {
			output = result.Failure.Output
		}
		result = domain.Fail(job, fmt.Errorf("%w: %v", domain.ErrJobTimeout, w.opts.TaskTimeout), output)
	}
	return result
}

func (w *Worker) publishWithRetry(ctx context.Context, result domain.JobResult) error {
	var err error
	for attempt := 1; attempt <= w.opts.MaxRetries; attempt++ {
		if err = w.queue.PublishResult(ctx, result); err == nil {
			return nil
		}
		if attempt == w.opts.MaxRetries {
			break
		}

		w.logger.Warnw("Retrying result publish", "job", result.JobID, "attempt", attempt, "max", w.opts.MaxRetries, zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * w.opts.RetryDelay):
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", w.opts.MaxRetries, err)
}

func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Infow("Stopping worker")
		close(w.stopChan)
	})
}

func (w *Worker) ID() string {
	return w.id
}

func (w *Worker) GetStats() map[string]any {
	return map[string]any{
		"id":         w.id,
		"running":    w.isRunning.Load(),
		"processed":  w.processed.Load(),
		"failed":     w.failed.Load(),
		"processing": w.processing.Load(),
	}
}

func (w *Worker) IsRunning() bool {
	return w.isRunning.Load()
}
